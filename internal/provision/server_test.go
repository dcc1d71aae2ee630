package provision

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDomains struct {
	database.DomainRepository
	doms map[string]*models.Domain
}

func (m *mockDomains) GetByName(ctx context.Context, name string) (*models.Domain, error) {
	return m.doms[name], nil
}

type mockUsers struct {
	database.UserRepository
	users map[string]*models.User
}

func (m *mockUsers) GetByUsername(ctx context.Context, domainID, username string) (*models.User, error) {
	return m.users[domainID+"|"+username], nil
}

type mockThrottle struct {
	failures []string
}

func (m *mockThrottle) Fail(ctx context.Context, address string) {
	m.failures = append(m.failures, address)
}

type serverEnv struct {
	server   *Server
	devices  *mockDevices
	throttle *mockThrottle
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	root := t.TempDir()
	tpl := `mac={{index .prov_defs "mac"}}`
	if err := os.WriteFile(filepath.Join(root, "generic.tpl"), []byte(tpl), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := database.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}

	devices := &mockDevices{
		devices: map[string]*models.Device{},
		byMAC:   map[string]*models.Device{},
		settings: []models.DeviceSetting{
			{Name: "mac", Value: "00:15:65:A6:69:9B", Enabled: true},
		},
	}
	dev := &models.Device{
		ID: "d1", DomainID: "t1", MAC: "00:15:65:A6:69:9B",
		TemplatePath: "generic.tpl", Enabled: true,
	}
	devices.devices["d1"] = dev
	devices.byMAC["t1|00:15:65:A6:69:9B"] = dev

	resolver := settings.NewResolver(&mockSettings{}, cache.NewMemory(), testLogger())
	throttle := &mockThrottle{}

	env := &serverEnv{devices: devices, throttle: throttle}
	env.server = NewServer(Deps{
		Domains: &mockDomains{doms: map[string]*models.Domain{
			"t1.example": {ID: "t1", Name: "t1.example", Enabled: true},
		}},
		Users: &mockUsers{users: map[string]*models.User{
			"t1|provision": {
				ID: "u1", DomainID: "t1", Username: "provision",
				PasswordHash: hash, Enabled: true,
			},
		}},
		Devices:  devices,
		Resolver: resolver,
		Renderer: NewRenderer(&mockSettings{}, devices, root),
		Throttle: throttle,
	}, testLogger())
	return env
}

func get(env *serverEnv, path, user, pass, ua string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "198.51.100.7:49152"
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	return w
}

func TestProvisionByMACInURL(t *testing.T) {
	env := newServerEnv(t)

	w := get(env, "/t1.example/001565a6699b.cfg", "provision", "s3cret", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if got := w.Body.String(); got != "mac=00:15:65:A6:69:9B" {
		t.Errorf("body = %q", got)
	}
	if len(env.devices.provisioned) != 1 || env.devices.provisioned[0] != "d1|http|198.51.100.7" {
		t.Errorf("provisioned = %v", env.devices.provisioned)
	}
}

func TestProvisionByUserAgentMAC(t *testing.T) {
	env := newServerEnv(t)

	w := get(env, "/t1.example/config.bin", "provision", "s3cret",
		"Yealink SIP-T46G 28.83.0.120 00:15:65:a6:69:9b")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", ct)
	}
}

func TestProvisionNoMACIs404(t *testing.T) {
	env := newServerEnv(t)

	w := get(env, "/t1.example/firmware.rom", "provision", "s3cret", "Mozilla/5.0")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProvisionBadPasswordFeedsThrottle(t *testing.T) {
	env := newServerEnv(t)

	w := get(env, "/t1.example/001565a6699b.cfg", "provision", "wrong", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, "Basic realm=") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if len(env.throttle.failures) != 1 || env.throttle.failures[0] != "198.51.100.7" {
		t.Errorf("throttle failures = %v", env.throttle.failures)
	}
}

func TestProvisionMissingCredentialsFeedsThrottle(t *testing.T) {
	env := newServerEnv(t)

	w := get(env, "/t1.example/001565a6699b.cfg", "", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(env.throttle.failures) != 1 {
		t.Errorf("throttle failures = %v", env.throttle.failures)
	}
}

func TestProvisionUnknownTenantIs404(t *testing.T) {
	env := newServerEnv(t)

	w := get(env, "/nowhere.example/001565a6699b.cfg", "provision", "s3cret", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProvisionAlternateIdentityHop(t *testing.T) {
	env := newServerEnv(t)
	alt := "d1"
	spare := &models.Device{
		ID: "d2", DomainID: "t1", MAC: "00:15:65:00:00:01",
		TemplatePath: "generic.tpl", Enabled: true, AltID: &alt,
	}
	env.devices.devices["d2"] = spare
	env.devices.byMAC["t1|00:15:65:00:00:01"] = spare

	w := get(env, "/t1.example/001565000001.cfg", "provision", "s3cret", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(env.devices.provisioned) != 1 || !strings.HasPrefix(env.devices.provisioned[0], "d1|") {
		t.Errorf("provisioned = %v, want the alternate identity d1", env.devices.provisioned)
	}
}
