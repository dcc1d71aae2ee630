package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// extensionRepo implements ExtensionRepository.
type extensionRepo struct {
	db *DB
}

// NewExtensionRepository creates a new ExtensionRepository.
func NewExtensionRepository(db *DB) ExtensionRepository {
	return &extensionRepo{db: db}
}

const extensionColumns = `id, domain_id, extension, caller_id_name, caller_id_number,
	 user_id, call_timeout, follow_me, enabled, created_at, updated_at`

// Create inserts a new extension. The ID is generated if empty.
func (r *extensionRepo) Create(ctx context.Context, ext *models.Extension) error {
	if ext.ID == "" {
		ext.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO extensions (id, domain_id, extension, caller_id_name,
		 caller_id_number, user_id, call_timeout, follow_me, enabled,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		ext.ID, ext.DomainID, ext.Extension, ext.CallerIDName, ext.CallerIDNumber,
		ext.UserID, ext.CallTimeout, ext.FollowMe, ext.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting extension: %w", err)
	}
	return nil
}

// GetByID returns an extension by ID.
func (r *extensionRepo) GetByID(ctx context.Context, id string) (*models.Extension, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+extensionColumns+` FROM extensions WHERE id = ?`, id,
	))
}

// GetByNumber returns an extension by domain and dialable number.
func (r *extensionRepo) GetByNumber(ctx context.Context, domainID, number string) (*models.Extension, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+extensionColumns+` FROM extensions WHERE domain_id = ? AND extension = ?`,
		domainID, number,
	))
}

// List returns a domain's extensions ordered by number.
func (r *extensionRepo) List(ctx context.Context, domainID string) ([]models.Extension, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+extensionColumns+` FROM extensions WHERE domain_id = ? ORDER BY extension`,
		domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying extensions: %w", err)
	}
	defer rows.Close()

	var exts []models.Extension
	for rows.Next() {
		var e models.Extension
		if err := rows.Scan(&e.ID, &e.DomainID, &e.Extension, &e.CallerIDName,
			&e.CallerIDNumber, &e.UserID, &e.CallTimeout, &e.FollowMe,
			&e.Enabled, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning extension row: %w", err)
		}
		exts = append(exts, e)
	}
	return exts, rows.Err()
}

// Update modifies an existing extension.
func (r *extensionRepo) Update(ctx context.Context, ext *models.Extension) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE extensions SET extension = ?, caller_id_name = ?, caller_id_number = ?,
		 user_id = ?, call_timeout = ?, follow_me = ?, enabled = ?,
		 updated_at = datetime('now') WHERE id = ?`,
		ext.Extension, ext.CallerIDName, ext.CallerIDNumber, ext.UserID,
		ext.CallTimeout, ext.FollowMe, ext.Enabled, ext.ID,
	)
	if err != nil {
		return fmt.Errorf("updating extension: %w", err)
	}
	return nil
}

// Delete removes an extension; follow-me rows cascade.
func (r *extensionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM extensions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting extension: %w", err)
	}
	return nil
}

// ListFollowMe returns an extension's follow-me legs in ring order.
func (r *extensionRepo) ListFollowMe(ctx context.Context, extensionID string) ([]models.FollowMeDestination, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, extension_id, destination, delay, timeout, prompt, sequence
		 FROM follow_me_destinations WHERE extension_id = ? ORDER BY sequence`,
		extensionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying follow-me destinations: %w", err)
	}
	defer rows.Close()

	var dests []models.FollowMeDestination
	for rows.Next() {
		var d models.FollowMeDestination
		if err := rows.Scan(&d.ID, &d.ExtensionID, &d.Destination, &d.Delay,
			&d.Timeout, &d.Prompt, &d.Sequence); err != nil {
			return nil, fmt.Errorf("scanning follow-me row: %w", err)
		}
		dests = append(dests, d)
	}
	return dests, rows.Err()
}

// ReplaceFollowMe swaps the extension's full follow-me list in one transaction.
func (r *extensionRepo) ReplaceFollowMe(ctx context.Context, extensionID string, dests []models.FollowMeDestination) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM follow_me_destinations WHERE extension_id = ?`, extensionID); err != nil {
		return fmt.Errorf("clearing follow-me destinations: %w", err)
	}
	for _, d := range dests {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO follow_me_destinations (extension_id, destination, delay, timeout, prompt, sequence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			extensionID, d.Destination, d.Delay, d.Timeout, d.Prompt, d.Sequence,
		); err != nil {
			return fmt.Errorf("inserting follow-me destination: %w", err)
		}
	}
	return tx.Commit()
}

func (r *extensionRepo) scanOne(row *sql.Row) (*models.Extension, error) {
	var e models.Extension
	err := row.Scan(&e.ID, &e.DomainID, &e.Extension, &e.CallerIDName,
		&e.CallerIDNumber, &e.UserID, &e.CallTimeout, &e.FollowMe,
		&e.Enabled, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning extension: %w", err)
	}
	return &e, nil
}
