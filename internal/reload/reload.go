// Package reload keeps the switch and the caches in step with
// administrative writes. Scopes name fixed sets of cache keys; switch-side
// reloads go through the command fabric.
package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/metrics"
	"github.com/tappbx/tappbx/internal/settings"
	"github.com/tappbx/tappbx/internal/switchrpc"
)

// Invalidation scopes.
const (
	ScopeDirectory     = "directory"
	ScopeDialplan      = "dialplan"
	ScopeLanguages     = "languages"
	ScopeConfiguration = "configuration"
	ScopeIVRMenus      = "ivr-menus"
	ScopePhrases       = "phrases"
	ScopeAll           = "all"
)

// scopeKeys maps each scope to the cache-key prefixes it owns. Directory
// and phrase documents are built from the store on every switch lookup and
// never cached, so those scopes carry no keys; they exist for the
// switch-side reload fan-out.
var scopeKeys = map[string][]string{
	ScopeDirectory: nil,
	ScopeDialplan:  {"dialplan"},
	ScopeLanguages: {
		settings.KeyDefaultLanguage,
		settings.KeyDefaultDialect,
		settings.KeyDefaultVoice,
		settings.KeySoundsDir,
	},
	ScopeConfiguration: {
		settings.KeyAllowedAddresses,
		settings.KeyMaxFailAttempts,
		settings.KeyHTTAPIURL,
		settings.KeyProvisionRealm,
	},
	ScopeIVRMenus: {"ivr-menus"},
	ScopePhrases:  nil,
}

// Recompiler re-renders stored dialplan XML that embeds resolved settings.
// The coordinator invokes it when a languages or configuration change would
// otherwise leave stale values baked into compiled records.
type Recompiler interface {
	RecompileSettingsDependent(ctx context.Context, domainID string) error
}

// Coordinator owns cache invalidation and switch-side reloads.
type Coordinator struct {
	cache      cache.Cache
	fabric     *switchrpc.Fabric
	recompiler Recompiler
	logger     *slog.Logger
}

// New creates a Coordinator.
func New(c cache.Cache, fabric *switchrpc.Fabric, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cache:  c,
		fabric: fabric,
		logger: logger.With("subsystem", "reload"),
	}
}

// SetRecompiler installs the hook that refreshes settings-dependent
// dialplan records. Call before Watch.
func (c *Coordinator) SetRecompiler(r Recompiler) {
	c.recompiler = r
}

// dropPrefix removes one owned prefix. A tenant narrows the invalidation
// to the unqualified entry plus the tenant's subtree; without a tenant the
// whole prefix goes.
func (c *Coordinator) dropPrefix(ctx context.Context, prefix, tenant string) error {
	if tenant == "" {
		return c.cache.DeletePrefix(ctx, prefix)
	}
	if err := c.cache.Delete(ctx, prefix); err != nil {
		return err
	}
	return c.cache.DeletePrefix(ctx, prefix+":"+tenant)
}

// Invalidate drops the cache prefixes owned by a scope. A non-empty key
// narrows the invalidation to that single entry; ScopeAll drops every
// owned prefix.
func (c *Coordinator) Invalidate(ctx context.Context, scope, tenant, key string) error {
	if key != "" {
		return c.cache.Delete(ctx, key)
	}

	var prefixes []string
	if scope == ScopeAll {
		for _, base := range scopeKeys {
			prefixes = append(prefixes, base...)
		}
	} else {
		base, ok := scopeKeys[scope]
		if !ok {
			return fmt.Errorf("unknown invalidation scope %q", scope)
		}
		prefixes = base
	}

	for _, p := range prefixes {
		if err := c.dropPrefix(ctx, p, tenant); err != nil {
			return fmt.Errorf("invalidating scope %s: %w", scope, err)
		}
	}
	c.logger.Debug("cache invalidated", "scope", scope, "tenant", tenant, "prefixes", len(prefixes))
	return nil
}

// ReloadXML tells one host, or all hosts when host is empty, to reload the
// routing configuration.
func (c *Coordinator) ReloadXML(ctx context.Context, host string) error {
	return counted(c.fabric.ReloadXML(ctx, host))
}

// ReloadACL tells one host, or all hosts, to reload access lists.
func (c *Coordinator) ReloadACL(ctx context.Context, host string) error {
	return counted(c.fabric.ReloadACL(ctx, host))
}

func counted(err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SwitchCommandsTotal.WithLabelValues(outcome).Inc()
	return err
}

// FlushAndReload invalidates a scope and asks the switch to reload,
// synchronously. Administrative saves use this so reload failures surface
// to the operator.
func (c *Coordinator) FlushAndReload(ctx context.Context, scope, tenant string) error {
	if err := c.Invalidate(ctx, scope, tenant, ""); err != nil {
		return err
	}
	return c.ReloadXML(ctx, "")
}

// AutoFlush invalidates a scope and fires a reload without waiting on the
// result. Failures are logged only.
func (c *Coordinator) AutoFlush(ctx context.Context, scope, tenant string) {
	if err := c.Invalidate(ctx, scope, tenant, ""); err != nil {
		c.logger.Error("auto-flush invalidation failed", "scope", scope, "err", err)
	}
	go func() {
		if err := c.fabric.ReloadXML(context.WithoutCancel(ctx), ""); err != nil {
			c.logger.Error("auto-flush reload failed", "scope", scope, "err", err)
		}
	}()
}

// Watch consumes store change notifications until the context ends. Every
// change invalidates its scope; dialplan and directory changes also reload
// the switch.
func (c *Coordinator) Watch(ctx context.Context, changes <-chan settings.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			tenant := ""
			if ch.DomainID != nil {
				tenant = *ch.DomainID
			}
			if err := c.Invalidate(ctx, ch.Kind, tenant, ch.Key); err != nil {
				c.logger.Error("invalidation failed", "kind", ch.Kind, "err", err)
				continue
			}
			reload := ch.Kind == ScopeDialplan || ch.Kind == ScopeDirectory
			if c.recompiler != nil && (ch.Kind == ScopeLanguages || ch.Kind == ScopeConfiguration) {
				// Compiled records embed the language triple and the
				// httapi URL; re-render them so the stored XML does not
				// keep serving the old values.
				if err := c.recompiler.RecompileSettingsDependent(ctx, tenant); err != nil {
					c.logger.Error("recompile after setting change failed", "kind", ch.Kind, "err", err)
				}
				reload = true
			}
			if reload {
				if err := c.ReloadXML(ctx, ""); err != nil {
					c.logger.Error("reload after change failed", "kind", ch.Kind, "err", err)
				}
			}
		}
	}
}
