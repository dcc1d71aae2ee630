package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// timeConditionRepo implements TimeConditionRepository.
type timeConditionRepo struct {
	db *DB
}

// NewTimeConditionRepository creates a new TimeConditionRepository.
func NewTimeConditionRepository(db *DB) TimeConditionRepository {
	return &timeConditionRepo{db: db}
}

const timeConditionColumns = `id, domain_id, dialplan_id, name, extension,
	 context, settings, default_app, default_data, sequence, enabled,
	 created_at, updated_at`

// Create inserts a new time condition. The ID is generated if empty.
func (r *timeConditionRepo) Create(ctx context.Context, tc *models.TimeCondition) error {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_conditions (id, domain_id, dialplan_id, name,
		 extension, context, settings, default_app, default_data, sequence,
		 enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		tc.ID, tc.DomainID, tc.DialplanID, tc.Name, tc.Extension, tc.Context,
		tc.Settings, tc.DefaultApp, tc.DefaultData, tc.Sequence, tc.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting time condition: %w", err)
	}
	return nil
}

// GetByID returns a time condition by ID.
func (r *timeConditionRepo) GetByID(ctx context.Context, id string) (*models.TimeCondition, error) {
	var tc models.TimeCondition
	err := r.db.QueryRowContext(ctx,
		`SELECT `+timeConditionColumns+` FROM time_conditions WHERE id = ?`, id,
	).Scan(&tc.ID, &tc.DomainID, &tc.DialplanID, &tc.Name, &tc.Extension,
		&tc.Context, &tc.Settings, &tc.DefaultApp, &tc.DefaultData,
		&tc.Sequence, &tc.Enabled, &tc.CreatedAt, &tc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning time condition: %w", err)
	}
	return &tc, nil
}

// List returns a domain's time conditions ordered by extension.
func (r *timeConditionRepo) List(ctx context.Context, domainID string) ([]models.TimeCondition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+timeConditionColumns+` FROM time_conditions
		 WHERE domain_id = ? ORDER BY extension`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying time conditions: %w", err)
	}
	defer rows.Close()

	var conds []models.TimeCondition
	for rows.Next() {
		var tc models.TimeCondition
		if err := rows.Scan(&tc.ID, &tc.DomainID, &tc.DialplanID, &tc.Name,
			&tc.Extension, &tc.Context, &tc.Settings, &tc.DefaultApp,
			&tc.DefaultData, &tc.Sequence, &tc.Enabled, &tc.CreatedAt,
			&tc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning time condition row: %w", err)
		}
		conds = append(conds, tc)
	}
	return conds, rows.Err()
}

// Update modifies an existing time condition.
func (r *timeConditionRepo) Update(ctx context.Context, tc *models.TimeCondition) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE time_conditions SET name = ?, extension = ?, context = ?,
		 settings = ?, default_app = ?, default_data = ?, sequence = ?,
		 enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		tc.Name, tc.Extension, tc.Context, tc.Settings, tc.DefaultApp,
		tc.DefaultData, tc.Sequence, tc.Enabled, tc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating time condition: %w", err)
	}
	return nil
}

// Delete removes a time condition and its compiled dialplan record.
func (r *timeConditionRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM time_conditions WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading time condition: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_conditions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting time condition: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}
