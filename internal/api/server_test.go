package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/dialplan"
	"github.com/tappbx/tappbx/internal/reload"
	"github.com/tappbx/tappbx/internal/settings"
	"github.com/tappbx/tappbx/internal/switchrpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDomains struct {
	database.DomainRepository
	byID   map[string]*models.Domain
	byName map[string]*models.Domain
}

func (m *mockDomains) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	return m.byID[id], nil
}

func (m *mockDomains) GetByName(ctx context.Context, name string) (*models.Domain, error) {
	return m.byName[name], nil
}

type mockUsers struct {
	database.UserRepository
	users map[string]*models.User // keyed by username
}

func (m *mockUsers) GetByUsername(ctx context.Context, domainID, username string) (*models.User, error) {
	u := m.users[username]
	if u == nil || u.DomainID != domainID {
		return nil, nil
	}
	return u, nil
}

type mockDialplans struct {
	database.DialplanRepository
	recs         map[string]*models.DialplanRecord
	details      map[string][]models.DialplanDetail
	updatedXML   map[string]string
	reloadErrors map[string]string
}

func (m *mockDialplans) GetByID(ctx context.Context, id string) (*models.DialplanRecord, error) {
	return m.recs[id], nil
}

func (m *mockDialplans) ForContext(ctx context.Context, ctxName, hostname string, domainID *string) ([]models.DialplanRecord, error) {
	var out []models.DialplanRecord
	for _, rec := range m.recs {
		if rec.Context == ctxName && rec.Enabled {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockDialplans) ListDetails(ctx context.Context, recordID string) ([]models.DialplanDetail, error) {
	return m.details[recordID], nil
}

func (m *mockDialplans) UpdateXML(ctx context.Context, id, xml string, opaque bool, seen time.Time) error {
	m.updatedXML[id] = xml
	return nil
}

func (m *mockDialplans) SetReloadError(ctx context.Context, id, message string) error {
	m.reloadErrors[id] = message
	return nil
}

type mockIVRMenus struct {
	database.IVRMenuRepository
	menus map[string]*models.IVRMenu
	opts  map[string][]models.IVRMenuOption
}

func (m *mockIVRMenus) GetByID(ctx context.Context, id string) (*models.IVRMenu, error) {
	return m.menus[id], nil
}

func (m *mockIVRMenus) Update(ctx context.Context, menu *models.IVRMenu) error {
	m.menus[menu.ID] = menu
	return nil
}

func (m *mockIVRMenus) ListOptions(ctx context.Context, menuID string) ([]models.IVRMenuOption, error) {
	return m.opts[menuID], nil
}

func (m *mockIVRMenus) ReplaceOptions(ctx context.Context, menuID string, opts []models.IVRMenuOption) error {
	m.opts[menuID] = opts
	return nil
}

type mockAttempts struct {
	counts map[string]int
	resets []string
}

func (m *mockAttempts) Increment(ctx context.Context, address string, now time.Time) (int, error) {
	m.counts[address]++
	return m.counts[address], nil
}

func (m *mockAttempts) Reset(ctx context.Context, address string) error {
	m.resets = append(m.resets, address)
	delete(m.counts, address)
	return nil
}

func (m *mockAttempts) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type mockBlocker struct {
	blocked []string
}

func (m *mockBlocker) Add(ctx context.Context, address, list string) error {
	m.blocked = append(m.blocked, address+"|"+list)
	return nil
}

type stubSettingRepo struct {
	database.SettingRepository
}

func (stubSettingRepo) Lookup(ctx context.Context, category, subcategory string) ([]models.Setting, error) {
	return nil, nil
}

type stubExtensions struct{}

func (stubExtensions) GetByNumber(ctx context.Context, domainID, number string) (*models.Extension, error) {
	return nil, nil
}

func (stubExtensions) ListFollowMe(ctx context.Context, extensionID string) ([]models.FollowMeDestination, error) {
	return nil, nil
}

type stubGateways struct{}

func (stubGateways) GetByID(ctx context.Context, id string) (*models.Gateway, error) {
	return nil, nil
}

// fakeRPC serves +OK to every command, or -ERR when failing.
type fakeRPC struct {
	failing bool
	sent    []string
}

func (f *fakeRPC) Connect(ctx context.Context) error { return nil }

func (f *fakeRPC) Send(ctx context.Context, payload, host string) error {
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeRPC) Receive(ctx context.Context, n int) ([]switchrpc.Response, error) {
	body := "+OK"
	if f.failing {
		body = "-ERR reload refused"
	}
	out := make([]switchrpc.Response, n)
	for i := range out {
		out[i] = switchrpc.Response{Host: "sw1", Body: body}
	}
	return out, nil
}

func (f *fakeRPC) Close() error { return nil }

type apiEnv struct {
	server    *Server
	dialplans *mockDialplans
	ivrMenus  *mockIVRMenus
	cache     cache.Cache
	attempts  *mockAttempts
	blocker   *mockBlocker
	rpc       *fakeRPC
	secret    []byte
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := testLogger()

	hash, err := database.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	dom := &models.Domain{ID: "dom-1", Name: "t1.example", Enabled: true}
	domains := &mockDomains{
		byID:   map[string]*models.Domain{"dom-1": dom},
		byName: map[string]*models.Domain{"t1.example": dom},
	}
	users := &mockUsers{users: map[string]*models.User{
		"admin": {ID: "u-1", DomainID: "dom-1", Username: "admin", PasswordHash: hash, IsAdmin: true, Enabled: true},
	}}
	dialplans := &mockDialplans{
		recs: map[string]*models.DialplanRecord{
			"dp-1": {
				ID:       "dp-1",
				DomainID: strptr("dom-1"),
				AppID:    models.AppGeneric,
				Name:     "echo-test",
				Number:   "9196",
				Context:  "t1.example",
				Enabled:  true,
			},
		},
		details: map[string][]models.DialplanDetail{
			"dp-1": {
				{RecordID: "dp-1", Group: 0, Tag: "condition", Type: "destination_number", Data: "^9196$", Sequence: 10},
				{RecordID: "dp-1", Group: 0, Tag: "action", Type: "answer", Sequence: 20},
				{RecordID: "dp-1", Group: 0, Tag: "action", Type: "echo", Sequence: 30},
			},
		},
		updatedXML:   map[string]string{},
		reloadErrors: map[string]string{},
	}

	ivrMenus := &mockIVRMenus{
		menus: map[string]*models.IVRMenu{
			"ivr-1": {
				ID: "ivr-1", DomainID: "dom-1", DialplanID: "dp-9",
				Name: "day-menu", Extension: "5000", Context: "t1.example",
				Timeout: 10000, InterDigitTimeout: 2000,
				MaxFailures: 3, MaxTimeouts: 3, DigitLen: 4, Enabled: true,
			},
		},
		opts: map[string][]models.IVRMenuOption{
			"ivr-1": {{MenuID: "ivr-1", Digits: "1", App: "transfer", Data: "2000 XML t1.example", Sequence: 10}},
		},
	}

	mem := cache.NewMemory()
	resolver := settings.NewResolver(stubSettingRepo{}, mem, logger)
	rpc := &fakeRPC{}
	fabric := switchrpc.NewFabric(rpc, []string{"sw1"}, logger)
	coordinator := reload.New(mem, fabric, logger)
	compiler := dialplan.NewCompiler(resolver, stubExtensions{}, stubGateways{}, logger)

	attempts := &mockAttempts{counts: map[string]int{}}
	blocker := &mockBlocker{}
	throttle := NewThrottle(attempts, resolver, blocker, logger)

	secret := []byte("test-secret")
	server := NewServer(Deps{
		Domains:   domains,
		Users:     users,
		Dialplans: dialplans,
		IVRMenus:  ivrMenus,
		Cache:     mem,
		Compiler:  compiler,
		Reload:    coordinator,
		Fabric:    fabric,
		Resolver:  resolver,
		Throttle:  throttle,
	}, secret)

	return &apiEnv{
		server:    server,
		dialplans: dialplans,
		ivrMenus:  ivrMenus,
		cache:     mem,
		attempts:  attempts,
		blocker:   blocker,
		rpc:       rpc,
		secret:    secret,
	}
}

func strptr(s string) *string { return &s }

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.50:40000"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	return rr
}

func (env *apiEnv) login(t *testing.T) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"domain": "t1.example", "username": "admin", "password": "s3cret",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data loginResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Data.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Data.Token
}

func TestLoginIssuesToken(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)

	rr := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data struct {
			Username string `json:"username"`
			DomainID string `json:"domain_id"`
			IsAdmin  bool   `json:"is_admin"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if resp.Data.Username != "admin" || resp.Data.DomainID != "dom-1" || !resp.Data.IsAdmin {
		t.Errorf("unexpected identity: %+v", resp.Data)
	}
	if len(env.attempts.resets) == 0 {
		t.Error("successful login did not reset the failure count")
	}
}

func TestLoginRejectsWithoutToken(t *testing.T) {
	env := newAPIEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestLoginFailureFeedsThrottle(t *testing.T) {
	env := newAPIEnv(t)

	for i := 0; i < 6; i++ {
		rr := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"domain": "t1.example", "username": "admin", "password": "wrong",
		})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rr.Code)
		}
	}

	if env.attempts.counts["203.0.113.50"] != 6 {
		t.Errorf("failure count = %d, want 6", env.attempts.counts["203.0.113.50"])
	}
	if len(env.blocker.blocked) != 1 || env.blocker.blocked[0] != "203.0.113.50|"+models.ListWebBlock {
		t.Errorf("blocked = %v, want one web-block entry for 203.0.113.50", env.blocker.blocked)
	}
}

func TestLoginUnknownDomain(t *testing.T) {
	env := newAPIEnv(t)
	rr := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"domain": "nowhere.example", "username": "admin", "password": "s3cret",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if env.attempts.counts["203.0.113.50"] != 1 {
		t.Errorf("failure count = %d, want 1", env.attempts.counts["203.0.113.50"])
	}
}

func TestCompileDialplanReloads(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)

	rr := env.do(t, http.MethodPost, "/api/v1/dialplans/dp-1/compile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data compileResult `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data.Reloaded {
		t.Errorf("reloaded = false, detail %q", resp.Data.Detail)
	}
	if resp.Data.XML == "" {
		t.Fatal("compile returned empty XML")
	}
	if env.dialplans.updatedXML["dp-1"] != resp.Data.XML {
		t.Error("saved XML does not match the response body")
	}
	found := false
	for _, cmd := range env.rpc.sent {
		if cmd == "reloadxml" {
			found = true
		}
	}
	if !found {
		t.Errorf("reloadxml never sent, commands %v", env.rpc.sent)
	}
}

func TestCompileDialplanSavedNotReloaded(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)
	env.rpc.failing = true

	rr := env.do(t, http.MethodPost, "/api/v1/dialplans/dp-1/compile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data compileResult `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Reloaded {
		t.Error("reloaded = true, want false")
	}
	if resp.Data.Detail != "saved, not reloaded" {
		t.Errorf("detail = %q, want saved, not reloaded", resp.Data.Detail)
	}
	if env.dialplans.updatedXML["dp-1"] == "" {
		t.Error("XML was not saved before the failed reload")
	}
	if env.dialplans.reloadErrors["dp-1"] == "" {
		t.Error("reload error was not recorded on the record")
	}
}

func TestCompileUnknownDialplan(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)

	rr := env.do(t, http.MethodPost, "/api/v1/dialplans/missing/compile", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func (env *apiEnv) getXML(t *testing.T, path, token string) string {
	t.Helper()
	rr := env.do(t, http.MethodGet, path, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data["xml"]
}

func TestRenderContextServesCachedDocument(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)

	first := env.getXML(t, "/api/v1/dialplans/context/t1.example?domain_id=dom-1", token)
	if first == "" {
		t.Fatal("render returned empty XML")
	}

	// A store change is invisible while the rendered document is cached.
	env.dialplans.recs["dp-1"].Enabled = false
	if got := env.getXML(t, "/api/v1/dialplans/context/t1.example?domain_id=dom-1", token); got != first {
		t.Error("cached document should be served unchanged")
	}

	rr := env.do(t, http.MethodPost, "/api/v1/dialplans/flush-cache?domain_id=dom-1", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("flush status = %d", rr.Code)
	}
	if got := env.getXML(t, "/api/v1/dialplans/context/t1.example?domain_id=dom-1", token); got == first {
		t.Error("flush must force a re-render")
	}
}

func TestIVRMenuXML(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)

	got := env.getXML(t, "/api/v1/ivr-menus/ivr-1/generate-xml", token)
	for _, want := range []string{
		`<configuration name="ivr.conf"`,
		`<menu name="ivr-1"`,
		`digits="1" param="transfer 2000 XML t1.example"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
}

func TestIVRMenuUpdateInvalidatesXML(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t)

	first := env.getXML(t, "/api/v1/ivr-menus/ivr-1/generate-xml", token)
	if !strings.Contains(first, `timeout="10000"`) {
		t.Fatalf("unexpected initial document:\n%s", first)
	}

	rr := env.do(t, http.MethodPut, "/api/v1/ivr-menus/ivr-1", token, map[string]any{
		"name": "day-menu", "timeout": 5000,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rr.Code, rr.Body.String())
	}

	got := env.getXML(t, "/api/v1/ivr-menus/ivr-1/generate-xml", token)
	if !strings.Contains(got, `timeout="5000"`) {
		t.Errorf("update must drop the cached document, got:\n%s", got)
	}
}
