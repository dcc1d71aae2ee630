package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// switchVariableRepo implements SwitchVariableRepository.
type switchVariableRepo struct {
	db *DB
}

// NewSwitchVariableRepository creates a new SwitchVariableRepository.
func NewSwitchVariableRepository(db *DB) SwitchVariableRepository {
	return &switchVariableRepo{db: db}
}

const switchVariableColumns = `id, category, name, value, command, hostname,
	 enabled, sequence, description, updated_at`

// Create inserts a new switch variable. The ID is generated if empty.
func (r *switchVariableRepo) Create(ctx context.Context, v *models.SwitchVariable) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO switch_variables (id, category, name, value, command,
		 hostname, enabled, sequence, description, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		v.ID, v.Category, v.Name, v.Value, v.Command, v.Hostname, v.Enabled,
		v.Sequence, v.Description,
	)
	if err != nil {
		return fmt.Errorf("inserting switch variable: %w", err)
	}
	return nil
}

// GetByID returns a switch variable by ID.
func (r *switchVariableRepo) GetByID(ctx context.Context, id string) (*models.SwitchVariable, error) {
	var v models.SwitchVariable
	err := r.db.QueryRowContext(ctx,
		`SELECT `+switchVariableColumns+` FROM switch_variables WHERE id = ?`, id,
	).Scan(&v.ID, &v.Category, &v.Name, &v.Value, &v.Command, &v.Hostname,
		&v.Enabled, &v.Sequence, &v.Description, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning switch variable: %w", err)
	}
	return &v, nil
}

// List returns every switch variable grouped by category then sequence.
func (r *switchVariableRepo) List(ctx context.Context) ([]models.SwitchVariable, error) {
	return r.query(ctx,
		`SELECT `+switchVariableColumns+` FROM switch_variables
		 ORDER BY category, sequence, name`)
}

// ListEnabled returns the enabled variables applying to hostname, in render
// order. Variables with a NULL hostname apply to every switch node.
func (r *switchVariableRepo) ListEnabled(ctx context.Context, hostname string) ([]models.SwitchVariable, error) {
	return r.query(ctx,
		`SELECT `+switchVariableColumns+` FROM switch_variables
		 WHERE enabled = 1 AND (hostname IS NULL OR hostname = ?)
		 ORDER BY category, sequence, name`, hostname)
}

func (r *switchVariableRepo) query(ctx context.Context, q string, args ...any) ([]models.SwitchVariable, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying switch variables: %w", err)
	}
	defer rows.Close()

	var vars []models.SwitchVariable
	for rows.Next() {
		var v models.SwitchVariable
		if err := rows.Scan(&v.ID, &v.Category, &v.Name, &v.Value, &v.Command,
			&v.Hostname, &v.Enabled, &v.Sequence, &v.Description,
			&v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning switch variable row: %w", err)
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// Upsert sets a variable by (category, name, hostname), creating it when no
// matching row exists.
func (r *switchVariableRepo) Upsert(ctx context.Context, v *models.SwitchVariable) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE switch_variables SET value = ?, command = ?, enabled = ?,
		 updated_at = datetime('now')
		 WHERE category = ? AND name = ?
		   AND (hostname IS ? OR hostname = ?)`,
		v.Value, v.Command, v.Enabled, v.Category, v.Name, v.Hostname, v.Hostname,
	)
	if err != nil {
		return fmt.Errorf("updating switch variable: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return r.Create(ctx, v)
	}
	return nil
}

// Update modifies an existing switch variable.
func (r *switchVariableRepo) Update(ctx context.Context, v *models.SwitchVariable) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE switch_variables SET category = ?, name = ?, value = ?,
		 command = ?, hostname = ?, enabled = ?, sequence = ?,
		 description = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		v.Category, v.Name, v.Value, v.Command, v.Hostname, v.Enabled,
		v.Sequence, v.Description, v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating switch variable: %w", err)
	}
	return nil
}

// Delete removes a switch variable.
func (r *switchVariableRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM switch_variables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting switch variable: %w", err)
	}
	return nil
}
