package api

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/metrics"
	"github.com/tappbx/tappbx/internal/settings"
)

// Blocker adds an address to a firewall list. The reconciler satisfies it.
type Blocker interface {
	Add(ctx context.Context, address, list string) error
}

// Throttle counts authentication failures per source address and blocks
// offenders at the kernel once they exceed the configured threshold.
type Throttle struct {
	attempts database.LoginAttemptRepository
	resolver *settings.Resolver
	blocker  Blocker
	logger   *slog.Logger
}

// NewThrottle creates a Throttle.
func NewThrottle(attempts database.LoginAttemptRepository, resolver *settings.Resolver, blocker Blocker, logger *slog.Logger) *Throttle {
	return &Throttle{
		attempts: attempts,
		resolver: resolver,
		blocker:  blocker,
		logger:   logger.With("subsystem", "throttle"),
	}
}

// ignored reports whether the address is on the never-count list. Entries
// are exact addresses or CIDR ranges.
func (t *Throttle) ignored(ctx context.Context, address string) bool {
	ip := net.ParseIP(address)
	entries, err := t.resolver.Array(ctx, settings.Scope{}, "security", "ignore-addresses")
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e == address {
			return true
		}
		if _, cidr, err := net.ParseCIDR(e); err == nil && ip != nil && cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Fail records one authentication failure. Past the threshold the address
// goes onto the web-block set.
func (t *Throttle) Fail(ctx context.Context, address string) {
	if address == "" || t.ignored(ctx, address) {
		return
	}
	metrics.AuthFailuresTotal.Inc()

	attempts, err := t.attempts.Increment(ctx, address, time.Now())
	if err != nil {
		t.logger.Error("recording auth failure", "address", address, "err", err)
		return
	}
	max := t.resolver.MaxFailAttempts(ctx)
	if attempts <= max {
		return
	}

	t.logger.Warn("blocking address after repeated auth failures",
		"address", address, "attempts", attempts)
	if err := t.blocker.Add(ctx, address, models.ListWebBlock); err != nil {
		t.logger.Error("blocking address", "address", address, "err", err)
	}
}

// Reset clears the failure count after a successful login.
func (t *Throttle) Reset(ctx context.Context, address string) {
	if err := t.attempts.Reset(ctx, address); err != nil {
		t.logger.Error("resetting auth failures", "address", address, "err", err)
	}
}

// Prune drops failure rows older than the window. Housekeeping calls this.
func (t *Throttle) Prune(ctx context.Context, window time.Duration) (int64, error) {
	return t.attempts.DeleteOlderThan(ctx, time.Now().Add(-window))
}
