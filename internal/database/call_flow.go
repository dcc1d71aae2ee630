package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// callFlowRepo implements CallFlowRepository.
type callFlowRepo struct {
	db *DB
}

// NewCallFlowRepository creates a new CallFlowRepository.
func NewCallFlowRepository(db *DB) CallFlowRepository {
	return &callFlowRepo{db: db}
}

const callFlowColumns = `id, domain_id, dialplan_id, name, extension,
	 feature_code, context, status, pin, app_a, data_a, app_b, data_b, sound,
	 enabled, created_at, updated_at`

func scanCallFlow(row interface {
	Scan(dest ...any) error
}) (*models.CallFlow, error) {
	var cf models.CallFlow
	err := row.Scan(&cf.ID, &cf.DomainID, &cf.DialplanID, &cf.Name,
		&cf.Extension, &cf.FeatureCode, &cf.Context, &cf.Status, &cf.PIN,
		&cf.AppA, &cf.DataA, &cf.AppB, &cf.DataB, &cf.Sound, &cf.Enabled,
		&cf.CreatedAt, &cf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cf, nil
}

// Create inserts a new call flow. The ID is generated if empty.
func (r *callFlowRepo) Create(ctx context.Context, cf *models.CallFlow) error {
	if cf.ID == "" {
		cf.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_flows (id, domain_id, dialplan_id, name, extension,
		 feature_code, context, status, pin, app_a, data_a, app_b, data_b,
		 sound, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		cf.ID, cf.DomainID, cf.DialplanID, cf.Name, cf.Extension,
		cf.FeatureCode, cf.Context, cf.Status, cf.PIN, cf.AppA, cf.DataA,
		cf.AppB, cf.DataB, cf.Sound, cf.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting call flow: %w", err)
	}
	return nil
}

// GetByID returns a call flow by ID.
func (r *callFlowRepo) GetByID(ctx context.Context, id string) (*models.CallFlow, error) {
	cf, err := scanCallFlow(r.db.QueryRowContext(ctx,
		`SELECT `+callFlowColumns+` FROM call_flows WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call flow: %w", err)
	}
	return cf, nil
}

// GetByExtension returns the call flow dialed at extension within a domain.
func (r *callFlowRepo) GetByExtension(ctx context.Context, domainID, extension string) (*models.CallFlow, error) {
	cf, err := scanCallFlow(r.db.QueryRowContext(ctx,
		`SELECT `+callFlowColumns+` FROM call_flows
		 WHERE domain_id = ? AND extension = ?`, domainID, extension))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call flow: %w", err)
	}
	return cf, nil
}

// List returns a domain's call flows ordered by extension.
func (r *callFlowRepo) List(ctx context.Context, domainID string) ([]models.CallFlow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callFlowColumns+` FROM call_flows
		 WHERE domain_id = ? ORDER BY extension`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying call flows: %w", err)
	}
	defer rows.Close()

	var flows []models.CallFlow
	for rows.Next() {
		cf, err := scanCallFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning call flow row: %w", err)
		}
		flows = append(flows, *cf)
	}
	return flows, rows.Err()
}

// Update modifies an existing call flow.
func (r *callFlowRepo) Update(ctx context.Context, cf *models.CallFlow) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_flows SET name = ?, extension = ?, feature_code = ?,
		 context = ?, status = ?, pin = ?, app_a = ?, data_a = ?, app_b = ?,
		 data_b = ?, sound = ?, enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		cf.Name, cf.Extension, cf.FeatureCode, cf.Context, cf.Status, cf.PIN,
		cf.AppA, cf.DataA, cf.AppB, cf.DataB, cf.Sound, cf.Enabled, cf.ID,
	)
	if err != nil {
		return fmt.Errorf("updating call flow: %w", err)
	}
	return nil
}

// SetStatus flips the toggle state without touching the rest of the row.
func (r *callFlowRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_flows SET status = ?, updated_at = datetime('now')
		 WHERE id = ?`, status, id,
	)
	if err != nil {
		return fmt.Errorf("updating call flow status: %w", err)
	}
	return nil
}

// Delete removes a call flow and its compiled dialplan record.
func (r *callFlowRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM call_flows WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading call flow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM call_flows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting call flow: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}
