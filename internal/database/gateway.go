package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// gatewayRepo implements GatewayRepository.
type gatewayRepo struct {
	db *DB
}

// NewGatewayRepository creates a new GatewayRepository.
func NewGatewayRepository(db *DB) GatewayRepository {
	return &gatewayRepo{db: db}
}

// Create inserts a new gateway. The ID is generated if empty.
func (r *gatewayRepo) Create(ctx context.Context, g *models.Gateway) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO gateways (id, domain_id, name, type, prefix, proxy, enabled,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		g.ID, g.DomainID, g.Name, g.Type, g.Prefix, g.Proxy, g.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting gateway: %w", err)
	}
	return nil
}

// GetByID returns a gateway by ID.
func (r *gatewayRepo) GetByID(ctx context.Context, id string) (*models.Gateway, error) {
	var g models.Gateway
	err := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, name, type, prefix, proxy, enabled, created_at, updated_at
		 FROM gateways WHERE id = ?`, id,
	).Scan(&g.ID, &g.DomainID, &g.Name, &g.Type, &g.Prefix, &g.Proxy, &g.Enabled,
		&g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning gateway: %w", err)
	}
	return &g, nil
}

// List returns a domain's gateways ordered by name.
func (r *gatewayRepo) List(ctx context.Context, domainID string) ([]models.Gateway, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, name, type, prefix, proxy, enabled, created_at, updated_at
		 FROM gateways WHERE domain_id = ? ORDER BY name`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	defer rows.Close()

	var gateways []models.Gateway
	for rows.Next() {
		var g models.Gateway
		if err := rows.Scan(&g.ID, &g.DomainID, &g.Name, &g.Type, &g.Prefix,
			&g.Proxy, &g.Enabled, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning gateway row: %w", err)
		}
		gateways = append(gateways, g)
	}
	return gateways, rows.Err()
}

// Update modifies an existing gateway.
func (r *gatewayRepo) Update(ctx context.Context, g *models.Gateway) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE gateways SET name = ?, type = ?, prefix = ?, proxy = ?, enabled = ?,
		 updated_at = datetime('now') WHERE id = ?`,
		g.Name, g.Type, g.Prefix, g.Proxy, g.Enabled, g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating gateway: %w", err)
	}
	return nil
}

// Delete removes a gateway by ID.
func (r *gatewayRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM gateways WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting gateway: %w", err)
	}
	return nil
}
