package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// aclRepo implements ACLRepository.
type aclRepo struct {
	db *DB
}

// NewACLRepository creates a new ACLRepository.
func NewACLRepository(db *DB) ACLRepository {
	return &aclRepo{db: db}
}

// Create inserts a new ACL. The ID is generated if empty.
func (r *aclRepo) Create(ctx context.Context, a *models.ACL) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO acls (id, name, default_policy) VALUES (?, ?, ?)`,
		a.ID, a.Name, a.Default,
	)
	if err != nil {
		return fmt.Errorf("inserting acl: %w", err)
	}
	return nil
}

// GetByName returns an ACL by its unique name.
func (r *aclRepo) GetByName(ctx context.Context, name string) (*models.ACL, error) {
	var a models.ACL
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, default_policy FROM acls WHERE name = ?`, name,
	).Scan(&a.ID, &a.Name, &a.Default)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning acl: %w", err)
	}
	return &a, nil
}

// List returns every ACL ordered by name.
func (r *aclRepo) List(ctx context.Context) ([]models.ACL, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, default_policy FROM acls ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying acls: %w", err)
	}
	defer rows.Close()

	var acls []models.ACL
	for rows.Next() {
		var a models.ACL
		if err := rows.Scan(&a.ID, &a.Name, &a.Default); err != nil {
			return nil, fmt.Errorf("scanning acl row: %w", err)
		}
		acls = append(acls, a)
	}
	return acls, rows.Err()
}

// Delete removes an ACL; its nodes cascade.
func (r *aclRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM acls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting acl: %w", err)
	}
	return nil
}

// ListNodes returns an ACL's nodes in sequence order.
func (r *aclRepo) ListNodes(ctx context.Context, aclID string) ([]models.ACLNode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, acl_id, type, cidr, domain, description, sequence
		 FROM acl_nodes WHERE acl_id = ? ORDER BY sequence`, aclID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying acl nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.ACLNode
	for rows.Next() {
		var n models.ACLNode
		if err := rows.Scan(&n.ID, &n.ACLID, &n.Type, &n.CIDR, &n.Domain,
			&n.Description, &n.Sequence); err != nil {
			return nil, fmt.Errorf("scanning acl node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ReplaceNodes swaps an ACL's full node list in one transaction.
func (r *aclRepo) ReplaceNodes(ctx context.Context, aclID string, nodes []models.ACLNode) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM acl_nodes WHERE acl_id = ?`, aclID); err != nil {
		return fmt.Errorf("clearing acl nodes: %w", err)
	}
	for _, n := range nodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO acl_nodes (acl_id, type, cidr, domain, description, sequence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			aclID, n.Type, n.CIDR, n.Domain, n.Description, n.Sequence,
		); err != nil {
			return fmt.Errorf("inserting acl node: %w", err)
		}
	}
	return tx.Commit()
}
