package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// ringGroupRepo implements RingGroupRepository.
type ringGroupRepo struct {
	db *DB
}

// NewRingGroupRepository creates a new RingGroupRepository.
func NewRingGroupRepository(db *DB) RingGroupRepository {
	return &ringGroupRepo{db: db}
}

const ringGroupColumns = `id, domain_id, dialplan_id, name, extension, context,
	 strategy, call_timeout, ringback, greeting, follow_me, cid_name_prefix,
	 timeout_app, timeout_data, missed_call_app, missed_call_data,
	 forward_enabled, forward_target, enabled, created_at, updated_at`

// Create inserts a new ring group. The ID is generated if empty.
func (r *ringGroupRepo) Create(ctx context.Context, rg *models.RingGroup) error {
	if rg.ID == "" {
		rg.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ring_groups (id, domain_id, dialplan_id, name, extension,
		 context, strategy, call_timeout, ringback, greeting, follow_me,
		 cid_name_prefix, timeout_app, timeout_data, missed_call_app,
		 missed_call_data, forward_enabled, forward_target, enabled,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		rg.ID, rg.DomainID, rg.DialplanID, rg.Name, rg.Extension, rg.Context,
		rg.Strategy, rg.CallTimeout, rg.Ringback, rg.Greeting, rg.FollowMe,
		rg.CIDNamePrefix, rg.TimeoutApp, rg.TimeoutData, rg.MissedCallApp,
		rg.MissedCallData, rg.Forward, rg.ForwardTarget, rg.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting ring group: %w", err)
	}
	return nil
}

// GetByID returns a ring group by ID.
func (r *ringGroupRepo) GetByID(ctx context.Context, id string) (*models.RingGroup, error) {
	var rg models.RingGroup
	err := r.db.QueryRowContext(ctx,
		`SELECT `+ringGroupColumns+` FROM ring_groups WHERE id = ?`, id,
	).Scan(&rg.ID, &rg.DomainID, &rg.DialplanID, &rg.Name, &rg.Extension,
		&rg.Context, &rg.Strategy, &rg.CallTimeout, &rg.Ringback, &rg.Greeting,
		&rg.FollowMe, &rg.CIDNamePrefix, &rg.TimeoutApp, &rg.TimeoutData,
		&rg.MissedCallApp, &rg.MissedCallData, &rg.Forward, &rg.ForwardTarget,
		&rg.Enabled, &rg.CreatedAt, &rg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ring group: %w", err)
	}
	return &rg, nil
}

// List returns a domain's ring groups ordered by extension.
func (r *ringGroupRepo) List(ctx context.Context, domainID string) ([]models.RingGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ringGroupColumns+` FROM ring_groups
		 WHERE domain_id = ? ORDER BY extension`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ring groups: %w", err)
	}
	defer rows.Close()

	var groups []models.RingGroup
	for rows.Next() {
		var rg models.RingGroup
		if err := rows.Scan(&rg.ID, &rg.DomainID, &rg.DialplanID, &rg.Name,
			&rg.Extension, &rg.Context, &rg.Strategy, &rg.CallTimeout,
			&rg.Ringback, &rg.Greeting, &rg.FollowMe, &rg.CIDNamePrefix,
			&rg.TimeoutApp, &rg.TimeoutData, &rg.MissedCallApp, &rg.MissedCallData,
			&rg.Forward, &rg.ForwardTarget, &rg.Enabled, &rg.CreatedAt,
			&rg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning ring group row: %w", err)
		}
		groups = append(groups, rg)
	}
	return groups, rows.Err()
}

// Update modifies an existing ring group.
func (r *ringGroupRepo) Update(ctx context.Context, rg *models.RingGroup) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ring_groups SET name = ?, extension = ?, context = ?, strategy = ?,
		 call_timeout = ?, ringback = ?, greeting = ?, follow_me = ?,
		 cid_name_prefix = ?, timeout_app = ?, timeout_data = ?,
		 missed_call_app = ?, missed_call_data = ?, forward_enabled = ?,
		 forward_target = ?, enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		rg.Name, rg.Extension, rg.Context, rg.Strategy, rg.CallTimeout,
		rg.Ringback, rg.Greeting, rg.FollowMe, rg.CIDNamePrefix, rg.TimeoutApp,
		rg.TimeoutData, rg.MissedCallApp, rg.MissedCallData, rg.Forward,
		rg.ForwardTarget, rg.Enabled, rg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ring group: %w", err)
	}
	return nil
}

// Delete removes a ring group and its compiled dialplan record; destination
// and user rows cascade.
func (r *ringGroupRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM ring_groups WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading ring group: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ring_groups WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting ring group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}

// ListDestinations returns the legs of a ring group in ring order.
func (r *ringGroupRepo) ListDestinations(ctx context.Context, ringGroupID string) ([]models.RingGroupDestination, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ring_group_id, number, delay, timeout, prompt, prompt_file,
		 prompt_key, sequence
		 FROM ring_group_destinations WHERE ring_group_id = ? ORDER BY sequence`,
		ringGroupID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ring group destinations: %w", err)
	}
	defer rows.Close()

	var dests []models.RingGroupDestination
	for rows.Next() {
		var d models.RingGroupDestination
		if err := rows.Scan(&d.ID, &d.RingGroupID, &d.Number, &d.Delay, &d.Timeout,
			&d.Prompt, &d.PromptFile, &d.PromptKey, &d.Sequence); err != nil {
			return nil, fmt.Errorf("scanning ring group destination row: %w", err)
		}
		dests = append(dests, d)
	}
	return dests, rows.Err()
}

// ReplaceDestinations swaps the full destination list in one transaction.
func (r *ringGroupRepo) ReplaceDestinations(ctx context.Context, ringGroupID string, dests []models.RingGroupDestination) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ring_group_destinations WHERE ring_group_id = ?`, ringGroupID); err != nil {
		return fmt.Errorf("clearing ring group destinations: %w", err)
	}
	for _, d := range dests {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ring_group_destinations (ring_group_id, number, delay,
			 timeout, prompt, prompt_file, prompt_key, sequence)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ringGroupID, d.Number, d.Delay, d.Timeout, d.Prompt, d.PromptFile,
			d.PromptKey, d.Sequence,
		); err != nil {
			return fmt.Errorf("inserting ring group destination: %w", err)
		}
	}
	return tx.Commit()
}

// ListUsers returns the member users of a ring group.
func (r *ringGroupRepo) ListUsers(ctx context.Context, ringGroupID string) ([]models.RingGroupUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ring_group_id, user_id FROM ring_group_users
		 WHERE ring_group_id = ?`, ringGroupID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ring group users: %w", err)
	}
	defer rows.Close()

	var users []models.RingGroupUser
	for rows.Next() {
		var u models.RingGroupUser
		if err := rows.Scan(&u.ID, &u.RingGroupID, &u.UserID); err != nil {
			return nil, fmt.Errorf("scanning ring group user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ReplaceUsers swaps the full member list in one transaction.
func (r *ringGroupRepo) ReplaceUsers(ctx context.Context, ringGroupID string, users []models.RingGroupUser) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ring_group_users WHERE ring_group_id = ?`, ringGroupID); err != nil {
		return fmt.Errorf("clearing ring group users: %w", err)
	}
	for _, u := range users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ring_group_users (ring_group_id, user_id) VALUES (?, ?)`,
			ringGroupID, u.UserID,
		); err != nil {
			return fmt.Errorf("inserting ring group user: %w", err)
		}
	}
	return tx.Commit()
}
