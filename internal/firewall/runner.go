// Package firewall keeps the kernel address sets in step with switch
// registrations and administrative block/allow actions.
package firewall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/metrics"
)

// Kernel set actions.
const (
	ActionAdd    = "add"
	ActionDelete = "delete"
	ActionShow   = "show"
)

// Address families.
const (
	FamilyV4 = "ipv4"
	FamilyV6 = "ipv6"
)

// ErrKernelMutation reports that a helper script failed after all retries.
var ErrKernelMutation = errors.New("kernel mutation failed")

var validLists = map[string]bool{
	models.ListBlock:       true,
	models.ListWhite:       true,
	models.ListSIPCustomer: true,
	models.ListSIPGateway:  true,
	models.ListWebBlock:    true,
}

// FamilyOf classifies an address: anything containing a colon is v6.
func FamilyOf(address string) string {
	if strings.Contains(address, ":") {
		return FamilyV6
	}
	return FamilyV4
}

// ScriptName returns the helper script for one (action, family, list)
// triple, e.g. fw-add-ipv4-sip-customer-list.sh.
func ScriptName(action, family, list string) string {
	return fmt.Sprintf("fw-%s-%s-%s-list.sh", action, family, list)
}

// Runner invokes the privileged helper scripts that mutate the kernel
// address sets. A helper succeeds when it exits zero with empty stdout.
type Runner struct {
	scriptDir string
	logger    *slog.Logger

	retries int
	backoff time.Duration

	// run is swapped out in tests.
	run func(ctx context.Context, script string, args []string) ([]byte, error)
}

// NewRunner creates a Runner over the helpers in scriptDir.
func NewRunner(scriptDir string, logger *slog.Logger) *Runner {
	r := &Runner{
		scriptDir: scriptDir,
		logger:    logger.With("subsystem", "firewall"),
		retries:   3,
		backoff:   250 * time.Millisecond,
	}
	r.run = func(ctx context.Context, script string, args []string) ([]byte, error) {
		return exec.CommandContext(ctx, script, args...).Output()
	}
	return r
}

func (r *Runner) validate(family, list string) error {
	if family != FamilyV4 && family != FamilyV6 {
		return fmt.Errorf("unknown address family %q", family)
	}
	if !validLists[list] {
		return fmt.Errorf("unknown firewall list %q", list)
	}
	return nil
}

// Mutate runs the add or delete helper for one address, retrying transient
// failures with exponential backoff.
func (r *Runner) Mutate(ctx context.Context, action, family, list, address string) error {
	return r.MutateBatch(ctx, action, family, list, []string{address})
}

// MutateBatch runs the add or delete helper once for a set of addresses.
func (r *Runner) MutateBatch(ctx context.Context, action, family, list string, addresses []string) error {
	if action != ActionAdd && action != ActionDelete {
		return fmt.Errorf("unknown firewall action %q", action)
	}
	if err := r.validate(family, list); err != nil {
		return err
	}
	if len(addresses) == 0 {
		return nil
	}

	script := filepath.Join(r.scriptDir, ScriptName(action, family, list))
	delay := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		out, err := r.run(ctx, script, addresses)
		if err == nil && len(bytes.TrimSpace(out)) == 0 {
			metrics.FirewallMutationsTotal.WithLabelValues(action, family).Add(float64(len(addresses)))
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("helper output: %s", strings.TrimSpace(string(out)))
		}
		r.logger.Warn("kernel helper failed",
			"script", script, "addresses", len(addresses), "attempt", attempt, "err", lastErr)
		if attempt < r.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrKernelMutation, script, lastErr)
}

// Show returns the kernel's view of one list.
func (r *Runner) Show(ctx context.Context, family, list string) (string, error) {
	if err := r.validate(family, list); err != nil {
		return "", err
	}
	script := filepath.Join(r.scriptDir, ScriptName(ActionShow, family, list))
	out, err := r.run(ctx, script, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", script, err)
	}
	return string(out), nil
}
