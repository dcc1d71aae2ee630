package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

type mockSettings struct {
	database.SettingRepository
	byScope map[string][]models.Setting
}

func (m *mockSettings) List(ctx context.Context, scope string, domainID, userID *string) ([]models.Setting, error) {
	return m.byScope[scope], nil
}

func (m *mockSettings) Lookup(ctx context.Context, category, subcategory string) ([]models.Setting, error) {
	return nil, nil
}

type mockDevices struct {
	database.DeviceRepository
	devices  map[string]*models.Device
	byMAC    map[string]*models.Device
	lines    []models.DeviceLine
	keys     []models.DeviceKey
	settings []models.DeviceSetting
	profile  []models.DeviceProfileSetting
	contacts []models.Contact

	provisioned []string
}

func (m *mockDevices) GetByID(ctx context.Context, id string) (*models.Device, error) {
	return m.devices[id], nil
}

func (m *mockDevices) GetByMAC(ctx context.Context, domainID, mac string) (*models.Device, error) {
	return m.byMAC[domainID+"|"+mac], nil
}

func (m *mockDevices) ListLines(ctx context.Context, deviceID string) ([]models.DeviceLine, error) {
	return m.lines, nil
}

func (m *mockDevices) ListKeys(ctx context.Context, deviceID string) ([]models.DeviceKey, error) {
	return m.keys, nil
}

func (m *mockDevices) ListSettings(ctx context.Context, deviceID string) ([]models.DeviceSetting, error) {
	return m.settings, nil
}

func (m *mockDevices) ListProfileSettings(ctx context.Context, profileID string) ([]models.DeviceProfileSetting, error) {
	return m.profile, nil
}

func (m *mockDevices) ListContacts(ctx context.Context, domainID string) ([]models.Contact, error) {
	return m.contacts, nil
}

func (m *mockDevices) MarkProvisioned(ctx context.Context, id, method, ip string, at time.Time) error {
	m.provisioned = append(m.provisioned, id+"|"+method+"|"+ip)
	return nil
}

func strptr(s string) *string { return &s }

func TestDefaultsMergeOrder(t *testing.T) {
	setting := func(scope, sub, value string) models.Setting {
		return models.Setting{
			Scope: scope, Category: "provision", Subcategory: sub,
			Value: value, Enabled: true,
		}
	}
	settings := &mockSettings{byScope: map[string][]models.Setting{
		models.ScopeGlobal: {
			setting(models.ScopeGlobal, "ntp_server", "pool.ntp.org"),
			setting(models.ScopeGlobal, "admin_pin", "0000"),
			{Scope: models.ScopeGlobal, Category: "domain", Subcategory: "language", Value: "en", Enabled: true},
		},
		models.ScopeDomain: {
			setting(models.ScopeDomain, "admin_pin", "1234"),
		},
		models.ScopeUser: {
			setting(models.ScopeUser, "wallpaper", "custom.png"),
		},
	}}
	devices := &mockDevices{
		profile:  []models.DeviceProfileSetting{{Name: "wallpaper", Value: "corp.png", Enabled: true}},
		settings: []models.DeviceSetting{{Name: "admin_pin", Value: "9999", Enabled: true}},
	}

	r := NewRenderer(settings, devices, t.TempDir())
	dev := &models.Device{ID: "d1", DomainID: "t1", UserID: strptr("u1"), ProfileID: strptr("p1")}
	defs, err := r.Defaults(context.Background(), dev)
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}

	want := map[string]string{
		"ntp_server": "pool.ntp.org",
		"admin_pin":  "9999",
		"wallpaper":  "corp.png",
	}
	if len(defs) != len(want) {
		t.Errorf("Defaults() = %v, want %v", defs, want)
	}
	for k, v := range want {
		if defs[k] != v {
			t.Errorf("defs[%q] = %q, want %q", k, defs[k], v)
		}
	}
}

func TestRenderTemplate(t *testing.T) {
	root := t.TempDir()
	tpl := `#ntp {{index .prov_defs "ntp_server"}}
{{range .prov_lines}}line {{.LineNumber}} auth {{.AuthID}}
{{end}}{{range .memory_keys}}memory {{.KeyID}} {{.Value}}
{{end}}{{range .contacts}}contact {{.Name}} {{.Number}}
{{end}}`
	if err := os.WriteFile(filepath.Join(root, "yealink.tpl"), []byte(tpl), 0o644); err != nil {
		t.Fatal(err)
	}

	settings := &mockSettings{byScope: map[string][]models.Setting{
		models.ScopeGlobal: {{
			Scope: models.ScopeGlobal, Category: "provision",
			Subcategory: "ntp_server", Value: "pool.ntp.org", Enabled: true,
		}},
	}}
	devices := &mockDevices{
		lines: []models.DeviceLine{{LineNumber: 1, AuthID: "201"}},
		keys: []models.DeviceKey{
			{Category: "memory", KeyID: 1, Value: "202"},
			{Category: "line", KeyID: 1, Value: "201"},
		},
		contacts: []models.Contact{{Name: "Helpdesk", Number: "5000"}},
	}

	r := NewRenderer(settings, devices, root)
	dev := &models.Device{ID: "d1", DomainID: "t1", TemplatePath: "yealink.tpl"}
	got, err := r.Render(context.Background(), dev)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := `#ntp pool.ntp.org
line 1 auth 201
memory 1 202
contact Helpdesk 5000
`
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderRejectsPathEscape(t *testing.T) {
	r := NewRenderer(&mockSettings{}, &mockDevices{}, t.TempDir())
	dev := &models.Device{ID: "d1", DomainID: "t1", TemplatePath: "../../etc/passwd"}
	if _, err := r.Render(context.Background(), dev); err == nil {
		t.Fatal("Render() accepted a path escaping the template root")
	}
}
