package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := c.Get(ctx, "k")
	if !ok || got != "v" {
		t.Errorf("Get = (%q, %v), want (\"v\", true)", got, ok)
	}
}

func TestMemoryMiss(t *testing.T) {
	c := NewMemory()
	if _, ok := c.Get(context.Background(), "absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 after expiry", c.Len())
	}
}

func TestMemoryDeleteMany(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		c.Set(ctx, k, k, 0)
	}
	if err := c.DeleteMany(ctx, []string{"a", "c", "missing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("key a should be gone")
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Error("key b should survive")
	}
}

func TestMemoryDeletePrefix(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"dialplan", "dialplan:t1", "dialplan:t1:context:a", "dialplan:t10", "directory"} {
		c.Set(ctx, k, "v", 0)
	}
	if err := c.DeletePrefix(ctx, "dialplan:t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, k := range []string{"dialplan:t1", "dialplan:t1:context:a"} {
		if _, ok := c.Get(ctx, k); ok {
			t.Errorf("key %s should be gone", k)
		}
	}
	for _, k := range []string{"dialplan", "dialplan:t10", "directory"} {
		if _, ok := c.Get(ctx, k); !ok {
			t.Errorf("key %s should survive", k)
		}
	}
}
