package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// domainRepo implements DomainRepository.
type domainRepo struct {
	db *DB
}

// NewDomainRepository creates a new DomainRepository.
func NewDomainRepository(db *DB) DomainRepository {
	return &domainRepo{db: db}
}

// Create inserts a new domain. The ID is generated if empty.
func (r *domainRepo) Create(ctx context.Context, d *models.Domain) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO domains (id, name, enabled, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))`,
		d.ID, d.Name, d.Enabled, d.Description,
	)
	if err != nil {
		return fmt.Errorf("inserting domain: %w", err)
	}
	return nil
}

// GetByID returns a domain by ID.
func (r *domainRepo) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, enabled, description, created_at, updated_at
		 FROM domains WHERE id = ?`, id,
	))
}

// GetByName returns a domain by its unique name.
func (r *domainRepo) GetByName(ctx context.Context, name string) (*models.Domain, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, enabled, description, created_at, updated_at
		 FROM domains WHERE name = ?`, name,
	))
}

// List returns all domains ordered by name.
func (r *domainRepo) List(ctx context.Context) ([]models.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, enabled, description, created_at, updated_at
		 FROM domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying domains: %w", err)
	}
	defer rows.Close()

	var domains []models.Domain
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(&d.ID, &d.Name, &d.Enabled, &d.Description,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning domain row: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// Update modifies an existing domain. The name is immutable and not written.
func (r *domainRepo) Update(ctx context.Context, d *models.Domain) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE domains SET enabled = ?, description = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		d.Enabled, d.Description, d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating domain: %w", err)
	}
	return nil
}

// Delete removes a domain; child rows cascade.
func (r *domainRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM domains WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting domain: %w", err)
	}
	return nil
}

func (r *domainRepo) scanOne(row *sql.Row) (*models.Domain, error) {
	var d models.Domain
	err := row.Scan(&d.ID, &d.Name, &d.Enabled, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning domain: %w", err)
	}
	return &d, nil
}
