package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// outboundRouteRepo implements OutboundRouteRepository.
type outboundRouteRepo struct {
	db *DB
}

// NewOutboundRouteRepository creates a new OutboundRouteRepository.
func NewOutboundRouteRepository(db *DB) OutboundRouteRepository {
	return &outboundRouteRepo{db: db}
}

const outboundRouteColumns = `id, domain_id, dialplan_id, name, number,
	 gateway1_id, gateway2_id, gateway3_id, toll_allow, account_code, call_limit,
	 pin_required, sequence, enabled, created_at, updated_at`

// Create inserts a new outbound route. The ID is generated if empty.
func (r *outboundRouteRepo) Create(ctx context.Context, rt *models.OutboundRoute) error {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbound_routes (id, domain_id, dialplan_id, name, number,
		 gateway1_id, gateway2_id, gateway3_id, toll_allow, account_code, call_limit,
		 pin_required, sequence, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		rt.ID, rt.DomainID, rt.DialplanID, rt.Name, rt.Number,
		rt.Gateway1ID, rt.Gateway2ID, rt.Gateway3ID, rt.TollAllow, rt.AccountCode,
		rt.Limit, rt.PINRequired, rt.Sequence, rt.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting outbound route: %w", err)
	}
	return nil
}

// GetByID returns an outbound route by ID.
func (r *outboundRouteRepo) GetByID(ctx context.Context, id string) (*models.OutboundRoute, error) {
	var rt models.OutboundRoute
	err := r.db.QueryRowContext(ctx,
		`SELECT `+outboundRouteColumns+` FROM outbound_routes WHERE id = ?`, id,
	).Scan(&rt.ID, &rt.DomainID, &rt.DialplanID, &rt.Name, &rt.Number,
		&rt.Gateway1ID, &rt.Gateway2ID, &rt.Gateway3ID, &rt.TollAllow,
		&rt.AccountCode, &rt.Limit, &rt.PINRequired, &rt.Sequence, &rt.Enabled,
		&rt.CreatedAt, &rt.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning outbound route: %w", err)
	}
	return &rt, nil
}

// List returns a domain's outbound routes ordered by sequence.
func (r *outboundRouteRepo) List(ctx context.Context, domainID string) ([]models.OutboundRoute, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboundRouteColumns+` FROM outbound_routes
		 WHERE domain_id = ? ORDER BY sequence, name`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying outbound routes: %w", err)
	}
	defer rows.Close()

	var routes []models.OutboundRoute
	for rows.Next() {
		var rt models.OutboundRoute
		if err := rows.Scan(&rt.ID, &rt.DomainID, &rt.DialplanID, &rt.Name,
			&rt.Number, &rt.Gateway1ID, &rt.Gateway2ID, &rt.Gateway3ID,
			&rt.TollAllow, &rt.AccountCode, &rt.Limit, &rt.PINRequired,
			&rt.Sequence, &rt.Enabled, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning outbound route row: %w", err)
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

// Update modifies an existing outbound route.
func (r *outboundRouteRepo) Update(ctx context.Context, rt *models.OutboundRoute) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbound_routes SET name = ?, number = ?, gateway1_id = ?,
		 gateway2_id = ?, gateway3_id = ?, toll_allow = ?, account_code = ?,
		 call_limit = ?, pin_required = ?, sequence = ?, enabled = ?,
		 updated_at = datetime('now') WHERE id = ?`,
		rt.Name, rt.Number, rt.Gateway1ID, rt.Gateway2ID, rt.Gateway3ID,
		rt.TollAllow, rt.AccountCode, rt.Limit, rt.PINRequired, rt.Sequence,
		rt.Enabled, rt.ID,
	)
	if err != nil {
		return fmt.Errorf("updating outbound route: %w", err)
	}
	return nil
}

// Delete removes an outbound route and its compiled dialplan record.
func (r *outboundRouteRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM outbound_routes WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading outbound route: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbound_routes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting outbound route: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}
