package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// ivrMenuRepo implements IVRMenuRepository.
type ivrMenuRepo struct {
	db *DB
}

// NewIVRMenuRepository creates a new IVRMenuRepository.
func NewIVRMenuRepository(db *DB) IVRMenuRepository {
	return &ivrMenuRepo{db: db}
}

const ivrMenuColumns = `id, domain_id, dialplan_id, name, extension, context,
	 greet_long, greet_short, invalid_sound, exit_sound, timeout,
	 inter_digit_timeout, max_failures, max_timeouts, digit_len, tts_engine,
	 tts_voice, direct_dial, ringback, exit_app, exit_data, enabled,
	 created_at, updated_at`

func (r *ivrMenuRepo) scanMenu(row interface {
	Scan(dest ...any) error
}) (*models.IVRMenu, error) {
	var m models.IVRMenu
	err := row.Scan(&m.ID, &m.DomainID, &m.DialplanID, &m.Name, &m.Extension,
		&m.Context, &m.GreetLong, &m.GreetShort, &m.InvalidSound, &m.ExitSound,
		&m.Timeout, &m.InterDigitTimeout, &m.MaxFailures, &m.MaxTimeouts,
		&m.DigitLen, &m.TTSEngine, &m.TTSVoice, &m.DirectDial, &m.Ringback,
		&m.ExitApp, &m.ExitData, &m.Enabled, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new IVR menu. The ID is generated if empty.
func (r *ivrMenuRepo) Create(ctx context.Context, m *models.IVRMenu) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ivr_menus (id, domain_id, dialplan_id, name, extension,
		 context, greet_long, greet_short, invalid_sound, exit_sound, timeout,
		 inter_digit_timeout, max_failures, max_timeouts, digit_len, tts_engine,
		 tts_voice, direct_dial, ringback, exit_app, exit_data, enabled,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		m.ID, m.DomainID, m.DialplanID, m.Name, m.Extension, m.Context,
		m.GreetLong, m.GreetShort, m.InvalidSound, m.ExitSound, m.Timeout,
		m.InterDigitTimeout, m.MaxFailures, m.MaxTimeouts, m.DigitLen,
		m.TTSEngine, m.TTSVoice, m.DirectDial, m.Ringback, m.ExitApp,
		m.ExitData, m.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting ivr menu: %w", err)
	}
	return nil
}

// GetByID returns an IVR menu by ID.
func (r *ivrMenuRepo) GetByID(ctx context.Context, id string) (*models.IVRMenu, error) {
	m, err := r.scanMenu(r.db.QueryRowContext(ctx,
		`SELECT `+ivrMenuColumns+` FROM ivr_menus WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ivr menu: %w", err)
	}
	return m, nil
}

// List returns a domain's IVR menus ordered by extension.
func (r *ivrMenuRepo) List(ctx context.Context, domainID string) ([]models.IVRMenu, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ivrMenuColumns+` FROM ivr_menus
		 WHERE domain_id = ? ORDER BY extension`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ivr menus: %w", err)
	}
	defer rows.Close()

	var menus []models.IVRMenu
	for rows.Next() {
		m, err := r.scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ivr menu row: %w", err)
		}
		menus = append(menus, *m)
	}
	return menus, rows.Err()
}

// Update modifies an existing IVR menu.
func (r *ivrMenuRepo) Update(ctx context.Context, m *models.IVRMenu) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ivr_menus SET name = ?, extension = ?, context = ?,
		 greet_long = ?, greet_short = ?, invalid_sound = ?, exit_sound = ?,
		 timeout = ?, inter_digit_timeout = ?, max_failures = ?,
		 max_timeouts = ?, digit_len = ?, tts_engine = ?, tts_voice = ?,
		 direct_dial = ?, ringback = ?, exit_app = ?, exit_data = ?,
		 enabled = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		m.Name, m.Extension, m.Context, m.GreetLong, m.GreetShort,
		m.InvalidSound, m.ExitSound, m.Timeout, m.InterDigitTimeout,
		m.MaxFailures, m.MaxTimeouts, m.DigitLen, m.TTSEngine, m.TTSVoice,
		m.DirectDial, m.Ringback, m.ExitApp, m.ExitData, m.Enabled, m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ivr menu: %w", err)
	}
	return nil
}

// Delete removes an IVR menu and its compiled dialplan record.
func (r *ivrMenuRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var dialplanID string
	err = tx.QueryRowContext(ctx,
		`SELECT dialplan_id FROM ivr_menus WHERE id = ?`, id).Scan(&dialplanID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading ivr menu: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ivr_menus WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting ivr menu: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialplan_records WHERE id = ?`, dialplanID); err != nil {
		return fmt.Errorf("deleting compiled dialplan record: %w", err)
	}
	return tx.Commit()
}

// ListOptions returns a menu's digit bindings in sequence order.
func (r *ivrMenuRepo) ListOptions(ctx context.Context, menuID string) ([]models.IVRMenuOption, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, menu_id, digits, app, data, sequence
		 FROM ivr_menu_options WHERE menu_id = ? ORDER BY sequence`, menuID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ivr menu options: %w", err)
	}
	defer rows.Close()

	var opts []models.IVRMenuOption
	for rows.Next() {
		var o models.IVRMenuOption
		if err := rows.Scan(&o.ID, &o.MenuID, &o.Digits, &o.App, &o.Data,
			&o.Sequence); err != nil {
			return nil, fmt.Errorf("scanning ivr menu option row: %w", err)
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// ReplaceOptions swaps a menu's full option list in one transaction.
func (r *ivrMenuRepo) ReplaceOptions(ctx context.Context, menuID string, opts []models.IVRMenuOption) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ivr_menu_options WHERE menu_id = ?`, menuID); err != nil {
		return fmt.Errorf("clearing ivr menu options: %w", err)
	}
	for _, o := range opts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ivr_menu_options (menu_id, digits, app, data, sequence)
			 VALUES (?, ?, ?, ?, ?)`,
			menuID, o.Digits, o.App, o.Data, o.Sequence,
		); err != nil {
			return fmt.Errorf("inserting ivr menu option: %w", err)
		}
	}
	return tx.Commit()
}
