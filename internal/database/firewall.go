package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
)

// firewallRepo implements FirewallRepository on sqlite.
type firewallRepo struct {
	db *DB
}

// NewFirewallRepository creates a new FirewallRepository.
func NewFirewallRepository(db *DB) FirewallRepository {
	return &firewallRepo{db: db}
}

// Upsert records a sighting of address on list. It reports true when the row
// did not exist before, meaning the address is new to the cache of truth and
// the caller must mutate the kernel set.
func (r *firewallRepo) Upsert(ctx context.Context, address, family, list string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE firewall_addresses
		 SET last_seen = ?, status = ?
		 WHERE address = ? AND list = ?`,
		now.UTC(), models.AddressActive, address, list,
	)
	if err != nil {
		return false, fmt.Errorf("updating firewall address: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO firewall_addresses (address, family, list, first_seen, last_seen, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		address, family, list, now.UTC(), now.UTC(), models.AddressActive,
	)
	if err != nil {
		return false, fmt.Errorf("inserting firewall address: %w", err)
	}
	return true, nil
}

// Get returns the cached row for (address, list).
func (r *firewallRepo) Get(ctx context.Context, address, list string) (*models.FirewallAddress, error) {
	var a models.FirewallAddress
	err := r.db.QueryRowContext(ctx,
		`SELECT id, address, family, list, first_seen, last_seen, status
		 FROM firewall_addresses WHERE address = ? AND list = ?`, address, list,
	).Scan(&a.ID, &a.Address, &a.Family, &a.List, &a.FirstSeen, &a.LastSeen, &a.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning firewall address: %w", err)
	}
	return &a, nil
}

// ListActive returns the active addresses of one list.
func (r *firewallRepo) ListActive(ctx context.Context, list string) ([]models.FirewallAddress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, family, list, first_seen, last_seen, status
		 FROM firewall_addresses
		 WHERE list = ? AND status = ? ORDER BY address`,
		list, models.AddressActive,
	)
	if err != nil {
		return nil, fmt.Errorf("querying firewall addresses: %w", err)
	}
	defer rows.Close()

	var addrs []models.FirewallAddress
	for rows.Next() {
		var a models.FirewallAddress
		if err := rows.Scan(&a.ID, &a.Address, &a.Family, &a.List, &a.FirstSeen,
			&a.LastSeen, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning firewall address row: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// MarkObsolete flags every active address not seen since olderThan and
// returns how many rows changed.
func (r *firewallRepo) MarkObsolete(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE firewall_addresses SET status = ?
		 WHERE status = ? AND last_seen < ?`,
		models.AddressObsolete, models.AddressActive, olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("marking firewall addresses obsolete: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes a cached row after its kernel entry has been withdrawn.
func (r *firewallRepo) Delete(ctx context.Context, address, list string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM firewall_addresses WHERE address = ? AND list = ?`,
		address, list,
	)
	if err != nil {
		return fmt.Errorf("deleting firewall address: %w", err)
	}
	return nil
}
