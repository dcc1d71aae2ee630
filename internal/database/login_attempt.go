package database

import (
	"context"
	"fmt"
	"time"
)

// loginAttemptRepo implements LoginAttemptRepository.
type loginAttemptRepo struct {
	db *DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository.
func NewLoginAttemptRepository(db *DB) LoginAttemptRepository {
	return &loginAttemptRepo{db: db}
}

// Increment bumps the failure counter for address and returns the new total.
func (r *loginAttemptRepo) Increment(ctx context.Context, address string, now time.Time) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_attempts (address, attempts, last_at)
		 VALUES (?, 1, ?)
		 ON CONFLICT(address) DO UPDATE SET
		   attempts = attempts + 1,
		   last_at = excluded.last_at`,
		address, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("incrementing login attempts: %w", err)
	}

	var attempts int
	err = r.db.QueryRowContext(ctx,
		`SELECT attempts FROM login_attempts WHERE address = ?`, address,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("reading login attempts: %w", err)
	}
	return attempts, nil
}

// Reset clears the failure counter after a successful authentication.
func (r *loginAttemptRepo) Reset(ctx context.Context, address string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("resetting login attempts: %w", err)
	}
	return nil
}

// DeleteOlderThan ages out counters whose last failure predates cutoff.
func (r *loginAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE last_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweeping login attempts: %w", err)
	}
	return res.RowsAffected()
}
