package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// conferenceCentreRepo implements ConferenceCentreRepository.
type conferenceCentreRepo struct {
	db *DB
}

// NewConferenceCentreRepository creates a new ConferenceCentreRepository.
func NewConferenceCentreRepository(db *DB) ConferenceCentreRepository {
	return &conferenceCentreRepo{db: db}
}

const conferenceCentreColumns = `id, domain_id, dialplan_id, name, extension,
	 context, greeting, pin_length, record_call, enabled, created_at, updated_at`

// Create inserts a new conference centre. The ID is generated if empty.
func (r *conferenceCentreRepo) Create(ctx context.Context, cc *models.ConferenceCentre) error {
	if cc.ID == "" {
		cc.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conference_centres (id, domain_id, dialplan_id, name,
		 extension, context, greeting, pin_length, record_call, enabled,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		cc.ID, cc.DomainID, cc.DialplanID, cc.Name, cc.Extension, cc.Context,
		cc.Greeting, cc.PINLength, cc.Record, cc.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting conference centre: %w", err)
	}
	return nil
}

// GetByID returns a conference centre by ID.
func (r *conferenceCentreRepo) GetByID(ctx context.Context, id string) (*models.ConferenceCentre, error) {
	var cc models.ConferenceCentre
	err := r.db.QueryRowContext(ctx,
		`SELECT `+conferenceCentreColumns+` FROM conference_centres WHERE id = ?`, id,
	).Scan(&cc.ID, &cc.DomainID, &cc.DialplanID, &cc.Name, &cc.Extension,
		&cc.Context, &cc.Greeting, &cc.PINLength, &cc.Record, &cc.Enabled,
		&cc.CreatedAt, &cc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conference centre: %w", err)
	}
	return &cc, nil
}

// List returns a domain's conference centres ordered by extension.
func (r *conferenceCentreRepo) List(ctx context.Context, domainID string) ([]models.ConferenceCentre, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conferenceCentreColumns+` FROM conference_centres
		 WHERE domain_id = ? ORDER BY extension`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conference centres: %w", err)
	}
	defer rows.Close()

	var centres []models.ConferenceCentre
	for rows.Next() {
		var cc models.ConferenceCentre
		if err := rows.Scan(&cc.ID, &cc.DomainID, &cc.DialplanID, &cc.Name,
			&cc.Extension, &cc.Context, &cc.Greeting, &cc.PINLength, &cc.Record,
			&cc.Enabled, &cc.CreatedAt, &cc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conference centre row: %w", err)
		}
		centres = append(centres, cc)
	}
	return centres, rows.Err()
}

// Update modifies an existing conference centre.
func (r *conferenceCentreRepo) Update(ctx context.Context, cc *models.ConferenceCentre) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conference_centres SET name = ?, extension = ?, context = ?,
		 greeting = ?, pin_length = ?, record_call = ?, enabled = ?,
		 updated_at = datetime('now')
		 WHERE id = ?`,
		cc.Name, cc.Extension, cc.Context, cc.Greeting, cc.PINLength,
		cc.Record, cc.Enabled, cc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conference centre: %w", err)
	}
	return nil
}

// Delete removes a conference centre and its compiled dialplan record.
func (r *conferenceCentreRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM conference_centres WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading conference centre: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conference_centres WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conference centre: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}
