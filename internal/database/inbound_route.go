package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// inboundRouteRepo implements InboundRouteRepository.
type inboundRouteRepo struct {
	db *DB
}

// NewInboundRouteRepository creates a new InboundRouteRepository.
func NewInboundRouteRepository(db *DB) InboundRouteRepository {
	return &inboundRouteRepo{db: db}
}

const inboundRouteColumns = `id, domain_id, dialplan_id, name, prefix, number,
	 context, cid_name_prefix, record_call, account_code, app, data, sequence,
	 enabled, created_at, updated_at`

// Create inserts a new inbound route. The ID is generated if empty.
func (r *inboundRouteRepo) Create(ctx context.Context, rt *models.InboundRoute) error {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inbound_routes (id, domain_id, dialplan_id, name, prefix, number,
		 context, cid_name_prefix, record_call, account_code, app, data, sequence,
		 enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		rt.ID, rt.DomainID, rt.DialplanID, rt.Name, rt.Prefix, rt.Number,
		rt.Context, rt.CIDNamePrefix, rt.Record, rt.AccountCode, rt.App, rt.Data,
		rt.Sequence, rt.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting inbound route: %w", err)
	}
	return nil
}

// GetByID returns an inbound route by ID.
func (r *inboundRouteRepo) GetByID(ctx context.Context, id string) (*models.InboundRoute, error) {
	var rt models.InboundRoute
	err := r.db.QueryRowContext(ctx,
		`SELECT `+inboundRouteColumns+` FROM inbound_routes WHERE id = ?`, id,
	).Scan(&rt.ID, &rt.DomainID, &rt.DialplanID, &rt.Name, &rt.Prefix, &rt.Number,
		&rt.Context, &rt.CIDNamePrefix, &rt.Record, &rt.AccountCode, &rt.App,
		&rt.Data, &rt.Sequence, &rt.Enabled, &rt.CreatedAt, &rt.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning inbound route: %w", err)
	}
	return &rt, nil
}

// List returns a domain's inbound routes ordered by sequence.
func (r *inboundRouteRepo) List(ctx context.Context, domainID string) ([]models.InboundRoute, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inboundRouteColumns+` FROM inbound_routes
		 WHERE domain_id = ? ORDER BY sequence, name`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying inbound routes: %w", err)
	}
	defer rows.Close()

	var routes []models.InboundRoute
	for rows.Next() {
		var rt models.InboundRoute
		if err := rows.Scan(&rt.ID, &rt.DomainID, &rt.DialplanID, &rt.Name,
			&rt.Prefix, &rt.Number, &rt.Context, &rt.CIDNamePrefix, &rt.Record,
			&rt.AccountCode, &rt.App, &rt.Data, &rt.Sequence, &rt.Enabled,
			&rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning inbound route row: %w", err)
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

// Update modifies an existing inbound route.
func (r *inboundRouteRepo) Update(ctx context.Context, rt *models.InboundRoute) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE inbound_routes SET name = ?, prefix = ?, number = ?, context = ?,
		 cid_name_prefix = ?, record_call = ?, account_code = ?, app = ?, data = ?,
		 sequence = ?, enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		rt.Name, rt.Prefix, rt.Number, rt.Context, rt.CIDNamePrefix, rt.Record,
		rt.AccountCode, rt.App, rt.Data, rt.Sequence, rt.Enabled, rt.ID,
	)
	if err != nil {
		return fmt.Errorf("updating inbound route: %w", err)
	}
	return nil
}

// Delete removes an inbound route and cascades to its dialplan record
// explicitly (the pointer runs from route to record).
func (r *inboundRouteRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM inbound_routes WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading inbound route: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inbound_routes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting inbound route: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}
