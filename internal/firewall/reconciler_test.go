package firewall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]*models.FirewallAddress
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*models.FirewallAddress{}}
}

func (s *fakeStore) key(address, list string) string { return address + "|" + list }

func (s *fakeStore) Upsert(ctx context.Context, address, family, list string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(address, list)
	if row, ok := s.rows[k]; ok {
		row.LastSeen = now
		row.Status = "active"
		return false, nil
	}
	s.rows[k] = &models.FirewallAddress{
		Address: address, Family: family, List: list,
		FirstSeen: now, LastSeen: now, Status: "active",
	}
	return true, nil
}

func (s *fakeStore) Get(ctx context.Context, address, list string) (*models.FirewallAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[s.key(address, list)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *fakeStore) ListActive(ctx context.Context, list string) ([]models.FirewallAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FirewallAddress
	for _, row := range s.rows {
		if row.List == list && row.Status == "active" {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkObsolete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.Status == "active" && row.LastSeen.Before(olderThan) {
			row.Status = "obsolete"
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Delete(ctx context.Context, address, list string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, s.key(address, list))
	return nil
}

type scriptCall struct {
	script string
	args   []string
}

type fakePub struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
}

func (p *fakePub) Publish(ctx context.Context, exchange, key, contentType string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.body = append(p.body, body)
	return nil
}

func newTestReconciler(t *testing.T) (*Reconciler, *fakeStore, *[]scriptCall, *fakePub) {
	t.Helper()
	store := newFakeStore()
	runner := NewRunner("/usr/local/bin", testLogger())
	runner.backoff = time.Millisecond

	var calls []scriptCall
	runner.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		calls = append(calls, scriptCall{script: script, args: args})
		return nil, nil
	}

	pub := &fakePub{}
	rec := NewReconciler(store, runner, NewAnnouncer(pub, "node-1", testLogger()), testLogger())
	return rec, store, &calls, pub
}

func TestHandleEventRegisters(t *testing.T) {
	rec, store, calls, pub := newTestReconciler(t)
	ctx := context.Background()

	ev := RegistrationEvent{Status: "Registered(UDP)", NetworkIP: "203.0.113.7", User: "201", Realm: "t1.example"}
	if err := rec.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent() error: %v", err)
	}

	row, err := store.Get(ctx, "203.0.113.7", models.ListSIPCustomer)
	if err != nil || row == nil {
		t.Fatalf("row not recorded: %v %v", row, err)
	}
	if len(*calls) != 1 {
		t.Fatalf("want 1 kernel call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if filepath.Base(call.script) != "fw-add-ipv4-sip-customer-list.sh" {
		t.Errorf("script = %s", call.script)
	}
	if len(call.args) != 1 || call.args[0] != "203.0.113.7" {
		t.Errorf("args = %v", call.args)
	}

	if len(pub.keys) != 1 || pub.keys[0] != "DjangoPBX.node-1.FIREWALL.add.ipv4" {
		t.Errorf("announcement keys = %v", pub.keys)
	}
	var ann Announcement
	if err := json.Unmarshal(pub.body[0], &ann); err != nil {
		t.Fatalf("announcement body: %v", err)
	}
	want := Announcement{EventName: "FIREWALL", Action: "add", IPType: "ipv4", FwList: "sip-customer", IPAddress: "203.0.113.7"}
	if ann != want {
		t.Errorf("announcement = %+v, want %+v", ann, want)
	}

	// A repeat registration refreshes the row without touching the kernel.
	if err := rec.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("second HandleEvent() error: %v", err)
	}
	if len(*calls) != 1 {
		t.Errorf("duplicate event fired the kernel helper again: %d calls", len(*calls))
	}
}

func TestHandleEventIgnoresOtherStatuses(t *testing.T) {
	rec, _, calls, _ := newTestReconciler(t)
	for _, status := range []string{"Unregistered", "Expired", ""} {
		if err := rec.HandleEvent(context.Background(), RegistrationEvent{Status: status, NetworkIP: "203.0.113.7"}); err != nil {
			t.Fatalf("HandleEvent(%s) error: %v", status, err)
		}
	}
	if len(*calls) != 0 {
		t.Errorf("non-registered statuses must not mutate the kernel")
	}
}

func TestHandleEventIPv6(t *testing.T) {
	rec, _, calls, pub := newTestReconciler(t)
	if err := rec.HandleEvent(context.Background(), RegistrationEvent{Status: "Registered", NetworkIP: "2001:db8::1"}); err != nil {
		t.Fatalf("HandleEvent() error: %v", err)
	}
	if filepath.Base((*calls)[0].script) != "fw-add-ipv6-sip-customer-list.sh" {
		t.Errorf("script = %s", (*calls)[0].script)
	}
	if pub.keys[0] != "DjangoPBX.node-1.FIREWALL.add.ipv6" {
		t.Errorf("key = %s", pub.keys[0])
	}
}

func TestKernelRetrySucceeds(t *testing.T) {
	rec, _, _, _ := newTestReconciler(t)
	attempts := 0
	rec.runner.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("ipset temporarily busy")
		}
		return nil, nil
	}
	if err := rec.HandleEvent(context.Background(), RegistrationEvent{Status: "Registered", NetworkIP: "203.0.113.8"}); err != nil {
		t.Fatalf("HandleEvent() error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestKernelPermanentFailureDoesNotFailCaller(t *testing.T) {
	rec, store, _, pub := newTestReconciler(t)
	rec.runner.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		return []byte("no such set"), nil
	}
	if err := rec.HandleEvent(context.Background(), RegistrationEvent{Status: "Registered", NetworkIP: "203.0.113.9"}); err != nil {
		t.Fatalf("permanent kernel failure must not surface: %v", err)
	}
	if row, _ := store.Get(context.Background(), "203.0.113.9", models.ListSIPCustomer); row == nil {
		t.Error("store row must exist even when the kernel mutation failed")
	}
	if len(pub.keys) != 0 {
		t.Error("failed mutations must not be announced")
	}
}

func TestRemove(t *testing.T) {
	rec, store, calls, pub := newTestReconciler(t)
	ctx := context.Background()
	if err := rec.Add(ctx, "198.51.100.9", models.ListWebBlock); err != nil {
		t.Fatal(err)
	}
	if err := rec.Remove(ctx, "198.51.100.9", models.ListWebBlock); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if row, _ := store.Get(ctx, "198.51.100.9", models.ListWebBlock); row != nil {
		t.Error("row must be deleted")
	}
	last := (*calls)[len(*calls)-1]
	if filepath.Base(last.script) != "fw-delete-ipv4-web-block-list.sh" {
		t.Errorf("script = %s", last.script)
	}
	if pub.keys[len(pub.keys)-1] != "DjangoPBX.node-1.FIREWALL.delete.ipv4" {
		t.Errorf("keys = %v", pub.keys)
	}
}

func TestAgeMarksStaleRows(t *testing.T) {
	rec, store, _, _ := newTestReconciler(t)
	ctx := context.Background()
	store.Upsert(ctx, "203.0.113.1", "ipv4", models.ListSIPCustomer, time.Now().Add(-48*time.Hour))
	store.Upsert(ctx, "203.0.113.2", "ipv4", models.ListSIPCustomer, time.Now())

	n, err := rec.Age(ctx, 0)
	if err != nil {
		t.Fatalf("Age() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Age() = %d, want 1", n)
	}
}

func TestReplayBatchesActiveRows(t *testing.T) {
	rec, store, calls, _ := newTestReconciler(t)
	ctx := context.Background()

	want := map[string]bool{}
	for i := 0; i < 250; i++ {
		addr := fmt.Sprintf("203.0.%d.%d", i/250+113, i%250)
		store.Upsert(ctx, addr, "ipv4", models.ListSIPCustomer, time.Now())
		want[addr] = true
	}
	store.Upsert(ctx, "198.51.100.250", "ipv4", models.ListSIPCustomer, time.Now().Add(-48*time.Hour))
	store.MarkObsolete(ctx, time.Now().Add(-24*time.Hour))

	if err := rec.Replay(ctx); err != nil {
		t.Fatalf("Replay() error: %v", err)
	}

	pushed := map[string]bool{}
	for _, call := range *calls {
		if len(call.args) > 100 {
			t.Errorf("batch of %d exceeds the invocation cap", len(call.args))
		}
		if !strings.Contains(call.script, "sip-customer") {
			continue
		}
		for _, a := range call.args {
			pushed[a] = true
		}
	}
	for addr := range want {
		if !pushed[addr] {
			t.Errorf("active row %s missing from replay", addr)
		}
	}
	if pushed["198.51.100.250"] {
		t.Error("obsolete rows must be skipped during replay")
	}
}

func TestConsumerParsesEventBodies(t *testing.T) {
	rec, store, _, _ := newTestReconciler(t)
	c := NewConsumer(rec, testLogger())
	ctx := context.Background()

	c.Handle(ctx, []byte(`{"Event-Name":"CUSTOM","status":"Registered(UDP)","network-ip":"203.0.113.20","username":"201","realm":"t1.example"}`))
	if row, _ := store.Get(ctx, "203.0.113.20", models.ListSIPCustomer); row == nil {
		t.Error("registered event must create a row")
	}

	c.Handle(ctx, []byte(`not json`))
	if rows, _ := store.ListActive(ctx, models.ListSIPCustomer); len(rows) != 1 {
		t.Errorf("malformed bodies must be dropped, rows = %d", len(rows))
	}
}
