// Package pgstore is the PostgreSQL cache-of-truth for firewall address
// sets, for deployments where several switch nodes share one database.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tappbx/tappbx/internal/database/models"
)

const schema = `CREATE TABLE IF NOT EXISTS firewall_addresses (
	id          BIGSERIAL PRIMARY KEY,
	address     TEXT NOT NULL,
	family      TEXT NOT NULL,
	list_name   TEXT NOT NULL,
	first_seen  TIMESTAMPTZ NOT NULL,
	last_seen   TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	UNIQUE (address, list_name)
)`

// DB is the minimal pool surface the store needs. *pgxpool.Pool and the
// pgxmock pool both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the reconciler's Store over PostgreSQL.
type Store struct {
	db DB
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring firewall schema: %w", err)
	}
	return &Store{db: pool}, nil
}

// New wraps an existing pool. Tests use this with a mock.
func New(db DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or refreshes an address row. created is true only when the
// row did not exist before, which gates the kernel mutation.
func (s *Store) Upsert(ctx context.Context, address, family, list string, now time.Time) (bool, error) {
	var created bool
	err := s.db.QueryRow(ctx, `INSERT INTO firewall_addresses
		(address, family, list_name, first_seen, last_seen, status)
		VALUES ($1, $2, $3, $4, $4, 'active')
		ON CONFLICT (address, list_name)
		DO UPDATE SET last_seen = EXCLUDED.last_seen, status = 'active'
		RETURNING (xmax = 0)`,
		address, family, list, now).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upserting firewall address: %w", err)
	}
	return created, nil
}

// Get returns one row, or nil when absent.
func (s *Store) Get(ctx context.Context, address, list string) (*models.FirewallAddress, error) {
	var a models.FirewallAddress
	err := s.db.QueryRow(ctx, `SELECT id, address, family, list_name, first_seen, last_seen, status
		FROM firewall_addresses WHERE address = $1 AND list_name = $2`,
		address, list).Scan(&a.ID, &a.Address, &a.Family, &a.List, &a.FirstSeen, &a.LastSeen, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting firewall address: %w", err)
	}
	return &a, nil
}

// ListActive returns the active rows of one list.
func (s *Store) ListActive(ctx context.Context, list string) ([]models.FirewallAddress, error) {
	rows, err := s.db.Query(ctx, `SELECT id, address, family, list_name, first_seen, last_seen, status
		FROM firewall_addresses WHERE list_name = $1 AND status = 'active'
		ORDER BY address`, list)
	if err != nil {
		return nil, fmt.Errorf("listing firewall addresses: %w", err)
	}
	defer rows.Close()

	var out []models.FirewallAddress
	for rows.Next() {
		var a models.FirewallAddress
		if err := rows.Scan(&a.ID, &a.Address, &a.Family, &a.List, &a.FirstSeen, &a.LastSeen, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning firewall address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkObsolete ages out rows whose last_seen is older than the cutoff.
func (s *Store) MarkObsolete(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE firewall_addresses SET status = 'obsolete'
		WHERE status = 'active' AND last_seen < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("marking obsolete firewall addresses: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, address, list string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM firewall_addresses
		WHERE address = $1 AND list_name = $2`, address, list); err != nil {
		return fmt.Errorf("deleting firewall address: %w", err)
	}
	return nil
}
