package reload

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/settings"
	"github.com/tappbx/tappbx/internal/switchrpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRPC struct {
	sent    []string
	pending int
}

func (f *fakeRPC) Connect(ctx context.Context) error { return nil }

func (f *fakeRPC) Send(ctx context.Context, payload, host string) error {
	f.sent = append(f.sent, payload)
	f.pending++
	return nil
}

func (f *fakeRPC) Receive(ctx context.Context, n int) ([]switchrpc.Response, error) {
	out := make([]switchrpc.Response, 0, n)
	for i := 0; i < n && f.pending > 0; i++ {
		f.pending--
		out = append(out, switchrpc.Response{Host: "node-1", Body: "+OK [Success]"})
	}
	return out, nil
}

func (f *fakeRPC) Close() error { return nil }

func newTestCoordinator() (*Coordinator, cache.Cache, *fakeRPC) {
	c := cache.NewMemory()
	rpc := &fakeRPC{}
	fabric := switchrpc.NewFabric(rpc, []string{"node-1"}, testLogger())
	return New(c, fabric, testLogger()), c, rpc
}

func TestInvalidateScope(t *testing.T) {
	coord, c, _ := newTestCoordinator()
	ctx := context.Background()

	for _, k := range []string{"dialplan", "dialplan:t1", "dialplan:t1:context:public:node-1", "dialplan:t10", "directory:t1"} {
		if err := c.Set(ctx, k, "v", time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := coord.Invalidate(ctx, ScopeDialplan, "t1", ""); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	for _, k := range []string{"dialplan", "dialplan:t1", "dialplan:t1:context:public:node-1"} {
		if _, ok := c.Get(ctx, k); ok {
			t.Errorf("key %s should be invalidated", k)
		}
	}
	for _, k := range []string{"dialplan:t10", "directory:t1"} {
		if _, ok := c.Get(ctx, k); !ok {
			t.Errorf("key %s must survive a tenant dialplan invalidation", k)
		}
	}
}

func TestInvalidateScopeGlobal(t *testing.T) {
	coord, c, _ := newTestCoordinator()
	ctx := context.Background()

	for _, k := range []string{"dialplan", "dialplan:t1", "dialplan:t10:context:public:node-1"} {
		if err := c.Set(ctx, k, "v", time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := coord.Invalidate(ctx, ScopeDialplan, "", ""); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	for _, k := range []string{"dialplan", "dialplan:t1", "dialplan:t10:context:public:node-1"} {
		if _, ok := c.Get(ctx, k); ok {
			t.Errorf("key %s should be invalidated by a global change", k)
		}
	}
}

func TestInvalidateLanguagesDropsTenantMemo(t *testing.T) {
	coord, c, _ := newTestCoordinator()
	ctx := context.Background()

	for _, k := range []string{
		settings.KeyDefaultLanguage,
		settings.KeyDefaultLanguage + ":t1",
		settings.KeyDefaultLanguage + ":t2",
	} {
		if err := c.Set(ctx, k, "en", time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := coord.Invalidate(ctx, ScopeLanguages, "t1", ""); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.Get(ctx, settings.KeyDefaultLanguage); ok {
		t.Error("unqualified memo entry should be dropped")
	}
	if _, ok := c.Get(ctx, settings.KeyDefaultLanguage+":t1"); ok {
		t.Error("changed tenant's memo entry should be dropped")
	}
	if _, ok := c.Get(ctx, settings.KeyDefaultLanguage+":t2"); !ok {
		t.Error("other tenant's memo entry must survive")
	}
}

func TestInvalidateSingleKey(t *testing.T) {
	coord, c, _ := newTestCoordinator()
	ctx := context.Background()
	c.Set(ctx, "dialplan:t1", "v", time.Minute)
	c.Set(ctx, "dialplan:t2", "v", time.Minute)

	if err := coord.Invalidate(ctx, ScopeDialplan, "", "dialplan:t1"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.Get(ctx, "dialplan:t1"); ok {
		t.Error("named key should be gone")
	}
	if _, ok := c.Get(ctx, "dialplan:t2"); !ok {
		t.Error("other keys must survive a single-key invalidation")
	}
}

func TestInvalidateAllDropsWellKnownKeys(t *testing.T) {
	coord, c, _ := newTestCoordinator()
	ctx := context.Background()
	c.Set(ctx, settings.KeyHTTAPIURL, "http://x", time.Minute)

	if err := coord.Invalidate(ctx, ScopeAll, "", ""); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.Get(ctx, settings.KeyHTTAPIURL); ok {
		t.Error("well-known keys must be dropped by clear-all")
	}
}

func TestInvalidateUnknownScope(t *testing.T) {
	coord, _, _ := newTestCoordinator()
	if err := coord.Invalidate(context.Background(), "bogus", "", ""); err == nil {
		t.Fatal("want error for unknown scope")
	}
}

func TestFlushAndReload(t *testing.T) {
	coord, c, rpc := newTestCoordinator()
	ctx := context.Background()
	c.Set(ctx, "dialplan:t1", "v", time.Minute)

	if err := coord.FlushAndReload(ctx, ScopeDialplan, "t1"); err != nil {
		t.Fatalf("FlushAndReload() error: %v", err)
	}
	if _, ok := c.Get(ctx, "dialplan:t1"); ok {
		t.Error("cache key should be flushed")
	}
	if len(rpc.sent) != 1 || rpc.sent[0] != "reloadxml" {
		t.Errorf("sent = %v, want one reloadxml", rpc.sent)
	}
}

func TestWatchInvalidatesAndReloads(t *testing.T) {
	coord, c, rpc := newTestCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	c.Set(ctx, "dialplan:t1", "v", time.Minute)

	tenant := "t1"
	changes := make(chan settings.Change, 1)
	changes <- settings.Change{Kind: ScopeDialplan, DomainID: &tenant}
	close(changes)

	coord.Watch(ctx, changes)
	cancel()

	if _, ok := c.Get(ctx, "dialplan:t1"); ok {
		t.Error("change must invalidate its scope")
	}
	if len(rpc.sent) != 1 || rpc.sent[0] != "reloadxml" {
		t.Errorf("sent = %v, want one reloadxml", rpc.sent)
	}
}

func TestWatchConfigurationWithoutRecompiler(t *testing.T) {
	coord, c, rpc := newTestCoordinator()
	ctx := context.Background()
	c.Set(ctx, settings.KeyHTTAPIURL, "http://x", time.Minute)

	changes := make(chan settings.Change, 1)
	changes <- settings.Change{Kind: ScopeConfiguration}
	close(changes)

	coord.Watch(ctx, changes)

	if _, ok := c.Get(ctx, settings.KeyHTTAPIURL); ok {
		t.Error("configuration change must drop its memoised keys")
	}
	if len(rpc.sent) != 0 {
		t.Errorf("without a recompiler a configuration change must not reload the switch, sent %v", rpc.sent)
	}
}

type fakeRecompiler struct {
	domains []string
}

func (f *fakeRecompiler) RecompileSettingsDependent(ctx context.Context, domainID string) error {
	f.domains = append(f.domains, domainID)
	return nil
}

func TestWatchLanguagesRecompilesAndReloads(t *testing.T) {
	coord, c, rpc := newTestCoordinator()
	ctx := context.Background()
	rec := &fakeRecompiler{}
	coord.SetRecompiler(rec)

	c.Set(ctx, settings.KeyDefaultLanguage+":t1", "en", time.Minute)

	tenant := "t1"
	changes := make(chan settings.Change, 2)
	changes <- settings.Change{Kind: ScopeLanguages, DomainID: &tenant}
	changes <- settings.Change{Kind: ScopeConfiguration}
	close(changes)

	coord.Watch(ctx, changes)

	if len(rec.domains) != 2 || rec.domains[0] != "t1" || rec.domains[1] != "" {
		t.Errorf("recompiled domains = %v, want [t1 \"\"]", rec.domains)
	}
	if _, ok := c.Get(ctx, settings.KeyDefaultLanguage+":t1"); ok {
		t.Error("language change must drop the tenant's memo entry")
	}
	if len(rpc.sent) != 2 {
		t.Errorf("sent = %v, want a reloadxml per recompiled change", rpc.sent)
	}
}
