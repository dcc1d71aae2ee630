// Package cache provides the shared key-value cache capability used by the
// settings resolver and the reload coordinator. Values are plain strings;
// well-known key names are owned by the packages that cache under them.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache is the capability injected at the composition root. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
	// DeletePrefix removes the key equal to prefix and every key under
	// "prefix:". Namespaces are colon-delimited, so invalidating
	// "dialplan:t1" never touches "dialplan:t10" entries.
	DeletePrefix(ctx context.Context, prefix string) error
}

// memoryEntry holds a cached value and its expiry deadline (zero = no expiry).
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Cache backed by a map. It is the default backend
// for single-node deployments and the swap-in for tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get returns the cached value for key, honouring expiry.
func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", false
	}
	return e.value, true
}

// Set stores value under key. A zero ttl means no expiry.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Delete removes key from the cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeleteMany removes all the given keys.
func (m *Memory) DeleteMany(_ context.Context, keys []string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// DeletePrefix removes the prefix key itself and every key under it.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for k := range m.entries {
		if matchesPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// matchesPrefix is the shared namespace rule: a key belongs to prefix
// when it is the prefix itself or sits under it at a colon boundary.
func matchesPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+":")
}

// Len returns the number of live entries. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
