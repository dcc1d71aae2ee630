package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
)

// httapiSessionRepo implements HTTAPISessionRepository.
type httapiSessionRepo struct {
	db *DB
}

// NewHTTAPISessionRepository creates a new HTTAPISessionRepository.
func NewHTTAPISessionRepository(db *DB) HTTAPISessionRepository {
	return &httapiSessionRepo{db: db}
}

// GetOrCreate returns the session for sessionID, creating it on first sight.
// The second return reports whether a new session was created.
func (r *httapiSessionRepo) GetOrCreate(ctx context.Context, sessionID, name string) (*models.HTTAPISession, bool, error) {
	s, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if s != nil {
		return s, false, nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO httapi_sessions (session_id, name) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, name,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting httapi session: %w", err)
	}
	s, err = r.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, fmt.Errorf("httapi session %s vanished after insert", sessionID)
	}
	return s, true, nil
}

// Get returns a session by its switch-assigned ID.
func (r *httapiSessionRepo) Get(ctx context.Context, sessionID string) (*models.HTTAPISession, error) {
	var s models.HTTAPISession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, scratch, created_at
		 FROM httapi_sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.ID, &s.SessionID, &s.Name, &s.Scratch, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning httapi session: %w", err)
	}
	return &s, nil
}

// SetScratch replaces a session's scratch data.
func (r *httapiSessionRepo) SetScratch(ctx context.Context, sessionID, scratch string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE httapi_sessions SET scratch = ? WHERE session_id = ?`,
		scratch, sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating httapi session scratch: %w", err)
	}
	return nil
}

// Delete removes a completed session.
func (r *httapiSessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM httapi_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting httapi session: %w", err)
	}
	return nil
}

// DeleteOlderThan sweeps sessions abandoned before cutoff and returns how
// many were removed.
func (r *httapiSessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM httapi_sessions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweeping httapi sessions: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of live sessions.
func (r *httapiSessionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM httapi_sessions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting httapi sessions: %w", err)
	}
	return n, nil
}
