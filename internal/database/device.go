package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// deviceRepo implements DeviceRepository.
type deviceRepo struct {
	db *DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *DB) DeviceRepository {
	return &deviceRepo{db: db}
}

const deviceColumns = `id, domain_id, mac, label, vendor, template_path,
	 user_id, profile_id, alt_id, enabled, provisioned_at, provisioned_method,
	 provisioned_ip, created_at, updated_at`

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanDevice(row interface {
	Scan(dest ...any) error
}) (*models.Device, error) {
	var d models.Device
	err := row.Scan(&d.ID, &d.DomainID, &d.MAC, &d.Label, &d.Vendor,
		&d.TemplatePath, &d.UserID, &d.ProfileID, &d.AltID, &d.Enabled,
		&d.ProvisionedAt, &d.ProvisionedMethod, &d.ProvisionedIP,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new device. The ID is generated if empty. The MAC must
// already be normalised; a (domain, MAC) clash returns ErrDuplicateMAC.
func (r *deviceRepo) Create(ctx context.Context, d *models.Device) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, domain_id, mac, label, vendor, template_path,
		 user_id, profile_id, alt_id, enabled, provisioned_at,
		 provisioned_method, provisioned_ip, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		d.ID, d.DomainID, d.MAC, d.Label, d.Vendor, d.TemplatePath, d.UserID,
		d.ProfileID, d.AltID, d.Enabled, d.ProvisionedAt, d.ProvisionedMethod,
		d.ProvisionedIP,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateMAC
	}
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// GetByID returns a device by ID.
func (r *deviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	return d, nil
}

// GetByMAC returns a device by its normalised MAC within a domain.
func (r *deviceRepo) GetByMAC(ctx context.Context, domainID, mac string) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE domain_id = ? AND mac = ?`,
		domainID, mac))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	return d, nil
}

// List returns a domain's devices ordered by MAC.
func (r *deviceRepo) List(ctx context.Context, domainID string) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE domain_id = ? ORDER BY mac`,
		domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// Update modifies an existing device. A (domain, MAC) clash returns
// ErrDuplicateMAC.
func (r *deviceRepo) Update(ctx context.Context, d *models.Device) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET mac = ?, label = ?, vendor = ?, template_path = ?,
		 user_id = ?, profile_id = ?, alt_id = ?, enabled = ?,
		 updated_at = datetime('now')
		 WHERE id = ?`,
		d.MAC, d.Label, d.Vendor, d.TemplatePath, d.UserID, d.ProfileID,
		d.AltID, d.Enabled, d.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateMAC
	}
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return nil
}

// MarkProvisioned stamps the last successful provisioning fetch.
func (r *deviceRepo) MarkProvisioned(ctx context.Context, id, method, ip string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET provisioned_at = ?, provisioned_method = ?,
		 provisioned_ip = ?
		 WHERE id = ?`,
		at.UTC(), method, ip, id,
	)
	if err != nil {
		return fmt.Errorf("stamping device provisioning: %w", err)
	}
	return nil
}

// Delete removes a device; its lines, keys and settings cascade.
func (r *deviceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// ListLines returns a device's registration lines in line order.
func (r *deviceRepo) ListLines(ctx context.Context, deviceID string) ([]models.DeviceLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, line_number, display_name, auth_id, password,
		 server_address, port, transport, enabled
		 FROM device_lines WHERE device_id = ? ORDER BY line_number`, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device lines: %w", err)
	}
	defer rows.Close()

	var lines []models.DeviceLine
	for rows.Next() {
		var l models.DeviceLine
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.LineNumber, &l.DisplayName,
			&l.AuthID, &l.Password, &l.ServerAddress, &l.Port, &l.Transport,
			&l.Enabled); err != nil {
			return nil, fmt.Errorf("scanning device line row: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ReplaceLines swaps a device's full line list in one transaction.
func (r *deviceRepo) ReplaceLines(ctx context.Context, deviceID string, lines []models.DeviceLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_lines WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("clearing device lines: %w", err)
	}
	for _, l := range lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_lines (device_id, line_number, display_name,
			 auth_id, password, server_address, port, transport, enabled)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			deviceID, l.LineNumber, l.DisplayName, l.AuthID, l.Password,
			l.ServerAddress, l.Port, l.Transport, l.Enabled,
		); err != nil {
			return fmt.Errorf("inserting device line: %w", err)
		}
	}
	return tx.Commit()
}

// ListKeys returns a device's programmable keys grouped by category.
func (r *deviceRepo) ListKeys(ctx context.Context, deviceID string) ([]models.DeviceKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, category, key_id, type, value, label
		 FROM device_keys WHERE device_id = ? ORDER BY category, key_id`, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device keys: %w", err)
	}
	defer rows.Close()

	var keys []models.DeviceKey
	for rows.Next() {
		var k models.DeviceKey
		if err := rows.Scan(&k.ID, &k.DeviceID, &k.Category, &k.KeyID, &k.Type,
			&k.Value, &k.Label); err != nil {
			return nil, fmt.Errorf("scanning device key row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ReplaceKeys swaps a device's full key list in one transaction.
func (r *deviceRepo) ReplaceKeys(ctx context.Context, deviceID string, keys []models.DeviceKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_keys WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("clearing device keys: %w", err)
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_keys (device_id, category, key_id, type, value, label)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			deviceID, k.Category, k.KeyID, k.Type, k.Value, k.Label,
		); err != nil {
			return fmt.Errorf("inserting device key: %w", err)
		}
	}
	return tx.Commit()
}

// ListSettings returns a device's vendor-specific overrides.
func (r *deviceRepo) ListSettings(ctx context.Context, deviceID string) ([]models.DeviceSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, name, value, enabled
		 FROM device_settings WHERE device_id = ? ORDER BY name`, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device settings: %w", err)
	}
	defer rows.Close()

	var settings []models.DeviceSetting
	for rows.Next() {
		var s models.DeviceSetting
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Name, &s.Value,
			&s.Enabled); err != nil {
			return nil, fmt.Errorf("scanning device setting row: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// ReplaceSettings swaps a device's override list in one transaction.
func (r *deviceRepo) ReplaceSettings(ctx context.Context, deviceID string, settings []models.DeviceSetting) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_settings WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("clearing device settings: %w", err)
	}
	for _, s := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_settings (device_id, name, value, enabled)
			 VALUES (?, ?, ?, ?)`,
			deviceID, s.Name, s.Value, s.Enabled,
		); err != nil {
			return fmt.Errorf("inserting device setting: %w", err)
		}
	}
	return tx.Commit()
}

// CreateProfile inserts a new device profile. The ID is generated if empty.
func (r *deviceRepo) CreateProfile(ctx context.Context, p *models.DeviceProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_profiles (id, domain_id, name, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))`,
		p.ID, p.DomainID, p.Name, p.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting device profile: %w", err)
	}
	return nil
}

// GetProfile returns a device profile by ID.
func (r *deviceRepo) GetProfile(ctx context.Context, id string) (*models.DeviceProfile, error) {
	var p models.DeviceProfile
	err := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, name, enabled, created_at, updated_at
		 FROM device_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.DomainID, &p.Name, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device profile: %w", err)
	}
	return &p, nil
}

// ListProfiles returns a domain's device profiles ordered by name.
func (r *deviceRepo) ListProfiles(ctx context.Context, domainID string) ([]models.DeviceProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, name, enabled, created_at, updated_at
		 FROM device_profiles WHERE domain_id = ? ORDER BY name`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.DeviceProfile
	for rows.Next() {
		var p models.DeviceProfile
		if err := rows.Scan(&p.ID, &p.DomainID, &p.Name, &p.Enabled,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes a device profile; its settings cascade and device
// references fall back to NULL.
func (r *deviceRepo) DeleteProfile(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device profile: %w", err)
	}
	return nil
}

// ListProfileSettings returns a profile's key/values.
func (r *deviceRepo) ListProfileSettings(ctx context.Context, profileID string) ([]models.DeviceProfileSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, profile_id, name, value, enabled
		 FROM device_profile_settings WHERE profile_id = ? ORDER BY name`, profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device profile settings: %w", err)
	}
	defer rows.Close()

	var settings []models.DeviceProfileSetting
	for rows.Next() {
		var s models.DeviceProfileSetting
		if err := rows.Scan(&s.ID, &s.ProfileID, &s.Name, &s.Value,
			&s.Enabled); err != nil {
			return nil, fmt.Errorf("scanning device profile setting row: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// ReplaceProfileSettings swaps a profile's key/values in one transaction.
func (r *deviceRepo) ReplaceProfileSettings(ctx context.Context, profileID string, settings []models.DeviceProfileSetting) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_profile_settings WHERE profile_id = ?`, profileID); err != nil {
		return fmt.Errorf("clearing device profile settings: %w", err)
	}
	for _, s := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_profile_settings (profile_id, name, value, enabled)
			 VALUES (?, ?, ?, ?)`,
			profileID, s.Name, s.Value, s.Enabled,
		); err != nil {
			return fmt.Errorf("inserting device profile setting: %w", err)
		}
	}
	return tx.Commit()
}

// ListContacts returns a domain's phone-book entries ordered by name.
func (r *deviceRepo) ListContacts(ctx context.Context, domainID string) ([]models.Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, user_id, name, number
		 FROM contacts WHERE domain_id = ? ORDER BY name`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.DomainID, &c.UserID, &c.Name,
			&c.Number); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
