package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// dialplanRepo implements DialplanRepository.
type dialplanRepo struct {
	db *DB
}

// NewDialplanRepository creates a new DialplanRepository.
func NewDialplanRepository(db *DB) DialplanRepository {
	return &dialplanRepo{db: db}
}

const dialplanColumns = `id, domain_id, app_id, category, name, number, context,
	 continue_flag, sequence, enabled, hostname, xml, opaque, last_reload_error,
	 created_at, updated_at`

// Create inserts a new dialplan record. The ID is generated if empty.
func (r *dialplanRepo) Create(ctx context.Context, rec *models.DialplanRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dialplan_records (id, domain_id, app_id, category, name, number,
		 context, continue_flag, sequence, enabled, hostname, xml, opaque,
		 last_reload_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		rec.ID, rec.DomainID, rec.AppID, rec.Category, rec.Name, rec.Number,
		rec.Context, rec.Continue, rec.Sequence, rec.Enabled, rec.Hostname,
		rec.XML, rec.Opaque, rec.LastReloadError,
	)
	if err != nil {
		return fmt.Errorf("inserting dialplan record: %w", err)
	}
	return nil
}

// GetByID returns a dialplan record by ID.
func (r *dialplanRepo) GetByID(ctx context.Context, id string) (*models.DialplanRecord, error) {
	var rec models.DialplanRecord
	err := r.scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+dialplanColumns+` FROM dialplan_records WHERE id = ?`, id), &rec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning dialplan record: %w", err)
	}
	return &rec, nil
}

// List returns all records, or a domain's records when domainID is set,
// ordered by context, sequence, name.
func (r *dialplanRepo) List(ctx context.Context, domainID *string) ([]models.DialplanRecord, error) {
	query := `SELECT ` + dialplanColumns + ` FROM dialplan_records`
	var args []any
	if domainID != nil {
		query += ` WHERE domain_id = ?`
		args = append(args, *domainID)
	}
	query += ` ORDER BY context, sequence, name`
	return r.queryMany(ctx, query, args...)
}

// Update modifies an existing dialplan record.
func (r *dialplanRepo) Update(ctx context.Context, rec *models.DialplanRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE dialplan_records SET domain_id = ?, app_id = ?, category = ?,
		 name = ?, number = ?, context = ?, continue_flag = ?, sequence = ?,
		 enabled = ?, hostname = ?, xml = ?, opaque = ?, last_reload_error = ?,
		 updated_at = datetime('now') WHERE id = ?`,
		rec.DomainID, rec.AppID, rec.Category, rec.Name, rec.Number, rec.Context,
		rec.Continue, rec.Sequence, rec.Enabled, rec.Hostname, rec.XML,
		rec.Opaque, rec.LastReloadError, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating dialplan record: %w", err)
	}
	return nil
}

// UpdateXML writes the compiled artifact under an optimistic lock: the write
// applies only if updated_at still equals seen, otherwise ErrStaleRecord.
func (r *dialplanRepo) UpdateXML(ctx context.Context, id, xml string, opaque bool, seen time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dialplan_records SET xml = ?, opaque = ?, updated_at = datetime('now')
		 WHERE id = ? AND updated_at = ?`,
		xml, opaque, id, seen.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("updating dialplan xml: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleRecord
	}
	return nil
}

// SetReloadError records a reload failure against the record for operator
// visibility. An empty message clears it.
func (r *dialplanRepo) SetReloadError(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE dialplan_records SET last_reload_error = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("recording reload error: %w", err)
	}
	return nil
}

// Delete removes a dialplan record; detail rows cascade.
func (r *dialplanRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting dialplan record: %w", err)
	}
	return nil
}

// ForContext returns the enabled records serving ctxName on hostname,
// ordered by sequence then name. Records whose context equals ctxName or the
// literal ${domain_name} placeholder are included; the domain's exclusion
// triples suppress matching global dialplans.
func (r *dialplanRepo) ForContext(ctx context.Context, ctxName, hostname string, domainID *string) ([]models.DialplanRecord, error) {
	query := `SELECT ` + dialplanColumns + ` FROM dialplan_records d
		 WHERE d.enabled = 1
		 AND (d.context = ? OR d.context = '${domain_name}')
		 AND (d.hostname = ? OR d.hostname IS NULL)`
	args := []any{ctxName, hostname}

	if domainID != nil {
		query += ` AND NOT EXISTS (
			SELECT 1 FROM dialplan_excludes e
			WHERE e.domain_id = ? AND e.app_id = d.app_id AND e.name = d.name)`
		args = append(args, *domainID)
	}
	query += ` ORDER BY d.sequence, d.name`

	return r.queryMany(ctx, query, args...)
}

// ListDetails returns the typed detail rows of a record in compile order.
func (r *dialplanRepo) ListDetails(ctx context.Context, recordID string) ([]models.DialplanDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, record_id, grp, tag, type, data, break_on, inline, sequence
		 FROM dialplan_details WHERE record_id = ?
		 ORDER BY grp, CASE tag WHEN 'condition' THEN 0 WHEN 'action' THEN 1 ELSE 2 END, sequence`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying dialplan details: %w", err)
	}
	defer rows.Close()

	var details []models.DialplanDetail
	for rows.Next() {
		var d models.DialplanDetail
		if err := rows.Scan(&d.ID, &d.RecordID, &d.Group, &d.Tag, &d.Type,
			&d.Data, &d.Break, &d.Inline, &d.Sequence); err != nil {
			return nil, fmt.Errorf("scanning dialplan detail row: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// ReplaceDetails swaps the full detail list of a record in one transaction.
func (r *dialplanRepo) ReplaceDetails(ctx context.Context, recordID string, details []models.DialplanDetail) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dialplan_details WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("clearing dialplan details: %w", err)
	}
	for _, d := range details {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dialplan_details (record_id, grp, tag, type, data, break_on, inline, sequence)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			recordID, d.Group, d.Tag, d.Type, d.Data, d.Break, d.Inline, d.Sequence,
		); err != nil {
			return fmt.Errorf("inserting dialplan detail: %w", err)
		}
	}
	return tx.Commit()
}

// ListExcludes returns a domain's exclusion triples.
func (r *dialplanRepo) ListExcludes(ctx context.Context, domainID string) ([]models.DialplanExclude, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, app_id, name FROM dialplan_excludes WHERE domain_id = ?`,
		domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying dialplan excludes: %w", err)
	}
	defer rows.Close()

	var excludes []models.DialplanExclude
	for rows.Next() {
		var e models.DialplanExclude
		if err := rows.Scan(&e.ID, &e.DomainID, &e.AppID, &e.Name); err != nil {
			return nil, fmt.Errorf("scanning dialplan exclude row: %w", err)
		}
		excludes = append(excludes, e)
	}
	return excludes, rows.Err()
}

// AddExclude suppresses one global dialplan for a domain.
func (r *dialplanRepo) AddExclude(ctx context.Context, e *models.DialplanExclude) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dialplan_excludes (domain_id, app_id, name) VALUES (?, ?, ?)`,
		e.DomainID, e.AppID, e.Name,
	)
	if err != nil {
		return fmt.Errorf("inserting dialplan exclude: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// RemoveExclude deletes an exclusion row.
func (r *dialplanRepo) RemoveExclude(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dialplan_excludes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting dialplan exclude: %w", err)
	}
	return nil
}

func (r *dialplanRepo) scanRecord(row *sql.Row, rec *models.DialplanRecord) error {
	return row.Scan(&rec.ID, &rec.DomainID, &rec.AppID, &rec.Category, &rec.Name,
		&rec.Number, &rec.Context, &rec.Continue, &rec.Sequence, &rec.Enabled,
		&rec.Hostname, &rec.XML, &rec.Opaque, &rec.LastReloadError,
		&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *dialplanRepo) queryMany(ctx context.Context, query string, args ...any) ([]models.DialplanRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dialplan records: %w", err)
	}
	defer rows.Close()

	var records []models.DialplanRecord
	for rows.Next() {
		var rec models.DialplanRecord
		if err := rows.Scan(&rec.ID, &rec.DomainID, &rec.AppID, &rec.Category,
			&rec.Name, &rec.Number, &rec.Context, &rec.Continue, &rec.Sequence,
			&rec.Enabled, &rec.Hostname, &rec.XML, &rec.Opaque,
			&rec.LastReloadError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning dialplan record row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
