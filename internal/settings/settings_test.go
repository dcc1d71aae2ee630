package settings

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

// mockSettingRepo serves canned rows to the resolver.
type mockSettingRepo struct {
	database.SettingRepository
	rows []models.Setting
}

func (m *mockSettingRepo) Lookup(ctx context.Context, category, subcategory string) ([]models.Setting, error) {
	var out []models.Setting
	for _, s := range m.rows {
		if s.Category == category && s.Subcategory == subcategory {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestResolver(rows []models.Setting) *Resolver {
	return NewResolver(&mockSettingRepo{rows: rows}, cache.NewMemory(), slog.Default())
}

func TestTextScopeChain(t *testing.T) {
	domainID := "dom-1"
	userID := "user-1"
	rows := []models.Setting{
		{Scope: models.ScopeGlobal, Category: "domain", Subcategory: "time_zone", Value: "UTC", Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &domainID, Category: "domain", Subcategory: "time_zone", Value: "Europe/London", Enabled: true},
		{Scope: models.ScopeUser, DomainID: &domainID, UserID: &userID, Category: "domain", Subcategory: "time_zone", Value: "America/Chicago", Enabled: true},
	}
	r := newTestResolver(rows)
	ctx := context.Background()

	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{"user wins", ForUser(domainID, userID), "America/Chicago"},
		{"domain wins without user", ForDomain(domainID), "Europe/London"},
		{"global fallback", Scope{}, "UTC"},
		{"other tenant falls to global", ForDomain("dom-2"), "UTC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Text(ctx, tt.scope, "domain", "time_zone")
			if err != nil {
				t.Fatalf("Text() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisabledRowIsSkipped(t *testing.T) {
	domainID := "dom-1"
	rows := []models.Setting{
		{Scope: models.ScopeGlobal, Category: "domain", Subcategory: "language", Value: "en", Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &domainID, Category: "domain", Subcategory: "language", Value: "fr", Enabled: false},
	}
	r := newTestResolver(rows)

	got, err := r.Text(context.Background(), ForDomain(domainID), "domain", "language")
	if err != nil {
		t.Fatalf("Text() error: %v", err)
	}
	if got != "en" {
		t.Errorf("Text() = %q, want en", got)
	}
}

func TestMissingRequiredSetting(t *testing.T) {
	r := newTestResolver(nil)
	_, err := r.Text(context.Background(), Scope{}, "domain", "absent")
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("Text() = %v, want ErrConfigMissing", err)
	}
}

func TestDefaultNumericMalformedFallsBack(t *testing.T) {
	rows := []models.Setting{
		{Scope: models.ScopeGlobal, Category: "security", Subcategory: "max-fail-attempts", Value: "not-a-number", Enabled: true},
	}
	r := newTestResolver(rows)

	got := r.DefaultNumeric(context.Background(), Scope{}, "security", "max-fail-attempts", 5)
	if got != 5 {
		t.Errorf("DefaultNumeric() = %d, want 5", got)
	}
}

func TestArrayWinningScopeMasksWider(t *testing.T) {
	domainID := "dom-1"
	rows := []models.Setting{
		{Scope: models.ScopeGlobal, Category: "switch", Subcategory: "event-socket-acl", Value: "10.0.0.0/8", Sequence: 10, Enabled: true},
		{Scope: models.ScopeGlobal, Category: "switch", Subcategory: "event-socket-acl", Value: "192.168.0.0/16", Sequence: 20, Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &domainID, Category: "switch", Subcategory: "event-socket-acl", Value: "172.16.0.0/12", Sequence: 10, Enabled: true},
	}
	r := newTestResolver(rows)
	ctx := context.Background()

	got, err := r.Array(ctx, ForDomain(domainID), "switch", "event-socket-acl")
	if err != nil {
		t.Fatalf("Array() error: %v", err)
	}
	if len(got) != 1 || got[0] != "172.16.0.0/12" {
		t.Errorf("Array() = %v, want domain-scope list only", got)
	}

	got, err = r.Array(ctx, Scope{}, "switch", "event-socket-acl")
	if err != nil {
		t.Fatalf("Array() global error: %v", err)
	}
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.168.0.0/16" {
		t.Errorf("Array() global = %v", got)
	}
}

func TestWellKnownMemoisation(t *testing.T) {
	repo := &mockSettingRepo{rows: []models.Setting{
		{Scope: models.ScopeGlobal, Category: "switch", Subcategory: "sounds-dir", Value: "/opt/sounds", Enabled: true},
	}}
	mem := cache.NewMemory()
	r := NewResolver(repo, mem, slog.Default())
	ctx := context.Background()

	if got := r.SoundsDir(ctx); got != "/opt/sounds" {
		t.Fatalf("SoundsDir() = %q", got)
	}

	// A repo change is invisible until the cache key is invalidated.
	repo.rows[0].Value = "/srv/sounds"
	if got := r.SoundsDir(ctx); got != "/opt/sounds" {
		t.Fatalf("SoundsDir() after repo change = %q, want cached /opt/sounds", got)
	}

	if err := mem.Delete(ctx, KeySoundsDir); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if got := r.SoundsDir(ctx); got != "/srv/sounds" {
		t.Fatalf("SoundsDir() after invalidation = %q, want /srv/sounds", got)
	}
}

func TestMemoisedValuesStayPerTenant(t *testing.T) {
	domA, domB := "dom-a", "dom-b"
	rows := []models.Setting{
		{Scope: models.ScopeDomain, DomainID: &domA, Category: "domain", Subcategory: "language", Value: "en", Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &domB, Category: "domain", Subcategory: "language", Value: "fr", Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &domA, Category: "provision", Subcategory: "http-auth-realm", Value: "realm-a", Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &domB, Category: "provision", Subcategory: "http-auth-realm", Value: "realm-b", Enabled: true},
	}
	r := newTestResolver(rows)
	ctx := context.Background()

	// Resolving tenant A first must not seed a value tenant B then reads.
	if got := r.DefaultLanguage(ctx, ForDomain(domA)); got != "en" {
		t.Fatalf("DefaultLanguage(dom-a) = %q, want en", got)
	}
	if got := r.DefaultLanguage(ctx, ForDomain(domB)); got != "fr" {
		t.Errorf("DefaultLanguage(dom-b) = %q, want fr", got)
	}
	if got := r.ProvisionRealm(ctx, ForDomain(domA)); got != "realm-a" {
		t.Fatalf("ProvisionRealm(dom-a) = %q, want realm-a", got)
	}
	if got := r.ProvisionRealm(ctx, ForDomain(domB)); got != "realm-b" {
		t.Errorf("ProvisionRealm(dom-b) = %q, want realm-b", got)
	}

	// Cached reads stay tenant-isolated too.
	if got := r.DefaultLanguage(ctx, ForDomain(domB)); got != "fr" {
		t.Errorf("cached DefaultLanguage(dom-b) = %q, want fr", got)
	}
}

func TestMemoKeyQualification(t *testing.T) {
	domainID := "dom-1"
	userID := "user-1"
	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{"global", Scope{}, KeyDefaultLanguage},
		{"domain", ForDomain(domainID), KeyDefaultLanguage + ":dom-1"},
		{"user", ForUser(domainID, userID), KeyDefaultLanguage + ":dom-1:user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := memoKey(KeyDefaultLanguage, tt.scope); got != tt.want {
				t.Errorf("memoKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotifierBroadcast(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe()

	domainID := "dom-1"
	n.Notify(Change{Kind: "setting", DomainID: &domainID, Key: "domain/time_zone"})

	select {
	case c := <-sub:
		if c.Key != "domain/time_zone" {
			t.Errorf("change key = %q", c.Key)
		}
	default:
		t.Fatal("no change delivered")
	}
}
