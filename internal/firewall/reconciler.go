package firewall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
)

const (
	// DefaultAgingWindow is how long an address stays active without a
	// fresh registration.
	DefaultAgingWindow = 24 * time.Hour

	// replayBatchSize caps how many addresses one helper invocation
	// receives during replay.
	replayBatchSize = 100
)

// Store is the cache-of-truth for kernel address sets. The sqlite
// repository and the postgres store both satisfy it.
type Store interface {
	Upsert(ctx context.Context, address, family, list string, now time.Time) (created bool, err error)
	Get(ctx context.Context, address, list string) (*models.FirewallAddress, error)
	ListActive(ctx context.Context, list string) ([]models.FirewallAddress, error)
	MarkObsolete(ctx context.Context, olderThan time.Time) (int64, error)
	Delete(ctx context.Context, address, list string) error
}

// RegistrationEvent is one registration notification from the switch.
type RegistrationEvent struct {
	Event     string
	Status    string
	NetworkIP string
	User      string
	Realm     string
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Reconciler folds registration events and administrative actions into the
// store and the kernel address sets.
type Reconciler struct {
	store     Store
	runner    *Runner
	announcer *Announcer
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, runner *Runner, announcer *Announcer, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		runner:    runner,
		announcer: announcer,
		logger:    logger.With("subsystem", "firewall"),
		locks:     map[string]*lockEntry{},
	}
}

// lock takes a short-lived per-address mutex so concurrent duplicate events
// cannot fire the kernel helper twice.
func (r *Reconciler) lock(address string) func() {
	r.mu.Lock()
	e, ok := r.locks[address]
	if !ok {
		e = &lockEntry{}
		r.locks[address] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.locks, address)
		}
		r.mu.Unlock()
	}
}

// HandleEvent processes one registration event. A Registered status adds
// the source address to the sip-customer set; anything else is ignored.
// Kernel mutation runs only when the store row is newly created; a
// permanent helper failure is logged, not returned.
func (r *Reconciler) HandleEvent(ctx context.Context, ev RegistrationEvent) error {
	if !strings.HasPrefix(ev.Status, "Registered") || ev.NetworkIP == "" {
		return nil
	}
	return r.add(ctx, ev.NetworkIP, models.ListSIPCustomer)
}

// Add inserts an address into a list and mutates the kernel set when the
// row is new.
func (r *Reconciler) Add(ctx context.Context, address, list string) error {
	return r.add(ctx, address, list)
}

func (r *Reconciler) add(ctx context.Context, address, list string) error {
	family := FamilyOf(address)
	unlock := r.lock(address)
	defer unlock()

	created, err := r.store.Upsert(ctx, address, family, list, time.Now())
	if err != nil {
		return fmt.Errorf("recording %s in %s: %w", address, list, err)
	}
	if !created {
		return nil
	}

	if err := r.runner.Mutate(ctx, ActionAdd, family, list, address); err != nil {
		if errors.Is(err, ErrKernelMutation) {
			r.logger.Error("kernel add failed permanently",
				"address", address, "list", list, "err", err)
			return nil
		}
		return err
	}
	r.announcer.Announce(ctx, ActionAdd, family, list, address)
	return nil
}

// Remove deletes an address from a list in both the store and the kernel.
func (r *Reconciler) Remove(ctx context.Context, address, list string) error {
	family := FamilyOf(address)
	unlock := r.lock(address)
	defer unlock()

	if err := r.store.Delete(ctx, address, list); err != nil {
		return fmt.Errorf("deleting %s from %s: %w", address, list, err)
	}
	if err := r.runner.Mutate(ctx, ActionDelete, family, list, address); err != nil {
		if errors.Is(err, ErrKernelMutation) {
			r.logger.Error("kernel delete failed permanently",
				"address", address, "list", list, "err", err)
			return nil
		}
		return err
	}
	r.announcer.Announce(ctx, ActionDelete, family, list, address)
	return nil
}

// Age marks rows not seen inside the window as obsolete. Obsolete rows stay
// in the kernel set but are skipped on replay.
func (r *Reconciler) Age(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		window = DefaultAgingWindow
	}
	n, err := r.store.MarkObsolete(ctx, time.Now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("aging firewall rows: %w", err)
	}
	if n > 0 {
		r.logger.Info("firewall rows aged out", "count", n)
	}
	return n, nil
}

// Replay pushes every active row back into the kernel sets. It runs at
// startup so a rebooted node recovers the address sets it announced before.
func (r *Reconciler) Replay(ctx context.Context) error {
	for _, list := range []string{
		models.ListBlock,
		models.ListWhite,
		models.ListSIPCustomer,
		models.ListSIPGateway,
		models.ListWebBlock,
	} {
		rows, err := r.store.ListActive(ctx, list)
		if err != nil {
			return fmt.Errorf("listing %s for replay: %w", list, err)
		}
		byFamily := map[string][]string{}
		for _, row := range rows {
			byFamily[row.Family] = append(byFamily[row.Family], row.Address)
		}
		for family, addresses := range byFamily {
			for start := 0; start < len(addresses); start += replayBatchSize {
				end := start + replayBatchSize
				if end > len(addresses) {
					end = len(addresses)
				}
				if err := r.runner.MutateBatch(ctx, ActionAdd, family, list, addresses[start:end]); err != nil {
					if errors.Is(err, ErrKernelMutation) {
						r.logger.Error("replay batch failed",
							"list", list, "family", family, "err", err)
						continue
					}
					return err
				}
			}
		}
		if len(rows) > 0 {
			r.logger.Info("firewall list replayed", "list", list, "rows", len(rows))
		}
	}
	return nil
}
