package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// queueRepo implements QueueRepository.
type queueRepo struct {
	db *DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *DB) QueueRepository {
	return &queueRepo{db: db}
}

const queueColumns = `id, domain_id, dialplan_id, name, extension, context,
	 strategy, moh_sound, record_template, time_base_score, max_wait_time,
	 max_wait_time_no_agent, tier_rules_apply, tier_rule_wait_second,
	 discard_abandoned_after, announce_sound, announce_frequency, enabled,
	 created_at, updated_at`

func scanQueue(row interface {
	Scan(dest ...any) error
}) (*models.Queue, error) {
	var q models.Queue
	err := row.Scan(&q.ID, &q.DomainID, &q.DialplanID, &q.Name, &q.Extension,
		&q.Context, &q.Strategy, &q.MOHSound, &q.RecordTemplate,
		&q.TimeBaseScore, &q.MaxWaitTime, &q.MaxWaitTimeNoAgent,
		&q.TierRulesApply, &q.TierRuleWaitSecond, &q.DiscardAbandonedAfter,
		&q.AnnounceSound, &q.AnnounceFrequency, &q.Enabled, &q.CreatedAt,
		&q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Create inserts a new queue. The ID is generated if empty.
func (r *queueRepo) Create(ctx context.Context, q *models.Queue) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queues (id, domain_id, dialplan_id, name, extension,
		 context, strategy, moh_sound, record_template, time_base_score,
		 max_wait_time, max_wait_time_no_agent, tier_rules_apply,
		 tier_rule_wait_second, discard_abandoned_after, announce_sound,
		 announce_frequency, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		q.ID, q.DomainID, q.DialplanID, q.Name, q.Extension, q.Context,
		q.Strategy, q.MOHSound, q.RecordTemplate, q.TimeBaseScore,
		q.MaxWaitTime, q.MaxWaitTimeNoAgent, q.TierRulesApply,
		q.TierRuleWaitSecond, q.DiscardAbandonedAfter, q.AnnounceSound,
		q.AnnounceFrequency, q.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting queue: %w", err)
	}
	return nil
}

// GetByID returns a queue by ID.
func (r *queueRepo) GetByID(ctx context.Context, id string) (*models.Queue, error) {
	q, err := scanQueue(r.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM queues WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning queue: %w", err)
	}
	return q, nil
}

// List returns a domain's queues ordered by extension.
func (r *queueRepo) List(ctx context.Context, domainID string) ([]models.Queue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM queues
		 WHERE domain_id = ? ORDER BY extension`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying queues: %w", err)
	}
	defer rows.Close()

	var queues []models.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue row: %w", err)
		}
		queues = append(queues, *q)
	}
	return queues, rows.Err()
}

// Update modifies an existing queue.
func (r *queueRepo) Update(ctx context.Context, q *models.Queue) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queues SET name = ?, extension = ?, context = ?, strategy = ?,
		 moh_sound = ?, record_template = ?, time_base_score = ?,
		 max_wait_time = ?, max_wait_time_no_agent = ?, tier_rules_apply = ?,
		 tier_rule_wait_second = ?, discard_abandoned_after = ?,
		 announce_sound = ?, announce_frequency = ?, enabled = ?,
		 updated_at = datetime('now')
		 WHERE id = ?`,
		q.Name, q.Extension, q.Context, q.Strategy, q.MOHSound,
		q.RecordTemplate, q.TimeBaseScore, q.MaxWaitTime, q.MaxWaitTimeNoAgent,
		q.TierRulesApply, q.TierRuleWaitSecond, q.DiscardAbandonedAfter,
		q.AnnounceSound, q.AnnounceFrequency, q.Enabled, q.ID,
	)
	if err != nil {
		return fmt.Errorf("updating queue: %w", err)
	}
	return nil
}

// Delete removes a queue and its compiled dialplan record; tiers cascade.
func (r *queueRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM queues WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queues WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting queue: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}

// CreateAgent inserts a new agent. The ID is generated if empty.
func (r *queueRepo) CreateAgent(ctx context.Context, a *models.Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agents (id, domain_id, name, type, contact, status,
		 max_no_answer, wrap_up_time, reject_delay_time, busy_delay_time,
		 no_answer_delay_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		a.ID, a.DomainID, a.Name, a.Type, a.Contact, a.Status, a.MaxNoAnswer,
		a.WrapUpTime, a.RejectDelayTime, a.BusyDelayTime, a.NoAnswerDelayTime,
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// GetAgent returns an agent by ID.
func (r *queueRepo) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, name, type, contact, status, max_no_answer,
		 wrap_up_time, reject_delay_time, busy_delay_time,
		 no_answer_delay_time, created_at, updated_at
		 FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.DomainID, &a.Name, &a.Type, &a.Contact, &a.Status,
		&a.MaxNoAnswer, &a.WrapUpTime, &a.RejectDelayTime, &a.BusyDelayTime,
		&a.NoAnswerDelayTime, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	return &a, nil
}

// ListAgents returns a domain's agents ordered by name.
func (r *queueRepo) ListAgents(ctx context.Context, domainID string) ([]models.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, name, type, contact, status, max_no_answer,
		 wrap_up_time, reject_delay_time, busy_delay_time,
		 no_answer_delay_time, created_at, updated_at
		 FROM agents WHERE domain_id = ? ORDER BY name`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.DomainID, &a.Name, &a.Type, &a.Contact,
			&a.Status, &a.MaxNoAnswer, &a.WrapUpTime, &a.RejectDelayTime,
			&a.BusyDelayTime, &a.NoAnswerDelayTime, &a.CreatedAt,
			&a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent modifies an existing agent.
func (r *queueRepo) UpdateAgent(ctx context.Context, a *models.Agent) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, type = ?, contact = ?, status = ?,
		 max_no_answer = ?, wrap_up_time = ?, reject_delay_time = ?,
		 busy_delay_time = ?, no_answer_delay_time = ?,
		 updated_at = datetime('now')
		 WHERE id = ?`,
		a.Name, a.Type, a.Contact, a.Status, a.MaxNoAnswer, a.WrapUpTime,
		a.RejectDelayTime, a.BusyDelayTime, a.NoAnswerDelayTime, a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return nil
}

// DeleteAgent removes an agent; its tiers cascade.
func (r *queueRepo) DeleteAgent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	return nil
}

// ListTiers returns a queue's tiers ordered by level then position.
func (r *queueRepo) ListTiers(ctx context.Context, queueID string) ([]models.Tier, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, queue_id, agent_id, level, position FROM tiers
		 WHERE queue_id = ? ORDER BY level, position`, queueID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.Tier
	for rows.Next() {
		var t models.Tier
		if err := rows.Scan(&t.ID, &t.QueueID, &t.AgentID, &t.Level,
			&t.Position); err != nil {
			return nil, fmt.Errorf("scanning tier row: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// AddTier places an agent in a queue.
func (r *queueRepo) AddTier(ctx context.Context, t *models.Tier) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tiers (queue_id, agent_id, level, position)
		 VALUES (?, ?, ?, ?)`,
		t.QueueID, t.AgentID, t.Level, t.Position,
	)
	if err != nil {
		return fmt.Errorf("inserting tier: %w", err)
	}
	return nil
}

// UpdateTier changes an agent's level and position within a queue.
func (r *queueRepo) UpdateTier(ctx context.Context, t *models.Tier) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tiers SET level = ?, position = ?
		 WHERE queue_id = ? AND agent_id = ?`,
		t.Level, t.Position, t.QueueID, t.AgentID,
	)
	if err != nil {
		return fmt.Errorf("updating tier: %w", err)
	}
	return nil
}

// RemoveTier takes an agent out of a queue.
func (r *queueRepo) RemoveTier(ctx context.Context, queueID, agentID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tiers WHERE queue_id = ? AND agent_id = ?`, queueID, agentID)
	if err != nil {
		return fmt.Errorf("deleting tier: %w", err)
	}
	return nil
}
