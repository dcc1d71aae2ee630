package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// settingRepo implements SettingRepository.
type settingRepo struct {
	db *DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *DB) SettingRepository {
	return &settingRepo{db: db}
}

const settingColumns = `id, scope, domain_id, user_id, category, subcategory,
	 type, value, sequence, enabled, description, updated_at`

// Create inserts a new setting. The ID is generated if empty.
func (r *settingRepo) Create(ctx context.Context, s *models.Setting) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (id, scope, domain_id, user_id, category, subcategory,
		 type, value, sequence, enabled, description, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		s.ID, s.Scope, s.DomainID, s.UserID, s.Category, s.Subcategory,
		s.Type, s.Value, s.Sequence, s.Enabled, s.Description,
	)
	if err != nil {
		return fmt.Errorf("inserting setting: %w", err)
	}
	return nil
}

// GetByID returns a setting by ID.
func (r *settingRepo) GetByID(ctx context.Context, id string) (*models.Setting, error) {
	var s models.Setting
	err := r.db.QueryRowContext(ctx,
		`SELECT `+settingColumns+` FROM settings WHERE id = ?`, id,
	).Scan(&s.ID, &s.Scope, &s.DomainID, &s.UserID, &s.Category, &s.Subcategory,
		&s.Type, &s.Value, &s.Sequence, &s.Enabled, &s.Description, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning setting: %w", err)
	}
	return &s, nil
}

// List returns settings at one scope, optionally filtered by domain or user.
func (r *settingRepo) List(ctx context.Context, scope string, domainID, userID *string) ([]models.Setting, error) {
	query := `SELECT ` + settingColumns + ` FROM settings WHERE scope = ?`
	args := []any{scope}
	if domainID != nil {
		query += ` AND domain_id = ?`
		args = append(args, *domainID)
	}
	if userID != nil {
		query += ` AND user_id = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY category, subcategory, sequence`

	return r.queryMany(ctx, query, args...)
}

// Lookup returns all rows for (category, subcategory) across every scope,
// ordered by sequence. The settings resolver applies the scope chain.
func (r *settingRepo) Lookup(ctx context.Context, category, subcategory string) ([]models.Setting, error) {
	return r.queryMany(ctx,
		`SELECT `+settingColumns+` FROM settings
		 WHERE category = ? AND subcategory = ?
		 ORDER BY sequence`, category, subcategory)
}

// Update modifies an existing setting.
func (r *settingRepo) Update(ctx context.Context, s *models.Setting) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE settings SET scope = ?, domain_id = ?, user_id = ?, category = ?,
		 subcategory = ?, type = ?, value = ?, sequence = ?, enabled = ?,
		 description = ?, updated_at = datetime('now') WHERE id = ?`,
		s.Scope, s.DomainID, s.UserID, s.Category, s.Subcategory, s.Type,
		s.Value, s.Sequence, s.Enabled, s.Description, s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating setting: %w", err)
	}
	return nil
}

// Upsert inserts or, when a row with the same scope and key exists at the
// same owner, updates it in place. Used by the default loader and the CLI.
func (r *settingRepo) Upsert(ctx context.Context, s *models.Setting) error {
	existing, err := r.find(ctx, s)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.Create(ctx, s)
	}
	s.ID = existing.ID
	return r.Update(ctx, s)
}

// Delete removes a setting by ID.
func (r *settingRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting setting: %w", err)
	}
	return nil
}

// find locates a row with the same scope, owner and key as s.
func (r *settingRepo) find(ctx context.Context, s *models.Setting) (*models.Setting, error) {
	query := `SELECT ` + settingColumns + ` FROM settings
		 WHERE scope = ? AND category = ? AND subcategory = ?`
	args := []any{s.Scope, s.Category, s.Subcategory}
	if s.DomainID != nil {
		query += ` AND domain_id = ?`
		args = append(args, *s.DomainID)
	} else {
		query += ` AND domain_id IS NULL`
	}
	if s.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *s.UserID)
	} else {
		query += ` AND user_id IS NULL`
	}

	found, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *settingRepo) queryMany(ctx context.Context, query string, args ...any) ([]models.Setting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.ID, &s.Scope, &s.DomainID, &s.UserID, &s.Category,
			&s.Subcategory, &s.Type, &s.Value, &s.Sequence, &s.Enabled,
			&s.Description, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
