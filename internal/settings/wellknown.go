package settings

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Base cache keys for the memoised well-known settings. Tenant-scoped
// lookups memoise under the base qualified with the domain (and user) id,
// so one tenant's value can never answer for another. The reload
// coordinator invalidates each base as a prefix, which covers every
// qualified variant.
const (
	KeyAllowedAddresses = "settings:switch:event-socket-acl"
	KeyDefaultLanguage  = "settings:domain:language"
	KeyDefaultDialect   = "settings:domain:dialect"
	KeyDefaultVoice     = "settings:domain:voice"
	KeySoundsDir        = "settings:switch:sounds-dir"
	KeyProvisionRealm   = "settings:provision:http-auth-realm"
	KeyMaxFailAttempts  = "settings:security:max-fail-attempts"
	KeyHTTAPIURL        = "settings:switch:httapi-url"
)

const memoTTL = 15 * time.Minute

// memoKey qualifies a base key with the scope so memoised values stay
// isolated per tenant and per user.
func memoKey(base string, scope Scope) string {
	key := base
	if scope.DomainID != nil {
		key += ":" + *scope.DomainID
	}
	if scope.UserID != nil {
		key += ":" + *scope.UserID
	}
	return key
}

func (r *Resolver) memoText(ctx context.Context, base string, scope Scope, category, subcategory, def string) string {
	key := memoKey(base, scope)
	if v, ok := r.cache.Get(ctx, key); ok {
		return v
	}
	v := r.DefaultText(ctx, scope, category, subcategory, def)
	if err := r.cache.Set(ctx, key, v, memoTTL); err != nil {
		r.logger.Warn("caching setting failed", "key", key, "error", err)
	}
	return v
}

// AllowedAddresses returns the switch-facing source ACL entries.
func (r *Resolver) AllowedAddresses(ctx context.Context) []string {
	if v, ok := r.cache.Get(ctx, KeyAllowedAddresses); ok {
		if v == "" {
			return nil
		}
		return splitList(v)
	}
	values, err := r.Array(ctx, Scope{}, "switch", "event-socket-acl")
	if err != nil {
		values = nil
	}
	if err := r.cache.Set(ctx, KeyAllowedAddresses, joinList(values), memoTTL); err != nil {
		r.logger.Warn("caching setting failed", "key", KeyAllowedAddresses, "error", err)
	}
	return values
}

// DefaultLanguage returns the tenant's language triple component.
func (r *Resolver) DefaultLanguage(ctx context.Context, scope Scope) string {
	return r.memoText(ctx, KeyDefaultLanguage, scope, "domain", "language", "en")
}

// DefaultDialect returns the tenant's dialect.
func (r *Resolver) DefaultDialect(ctx context.Context, scope Scope) string {
	return r.memoText(ctx, KeyDefaultDialect, scope, "domain", "dialect", "us")
}

// DefaultVoice returns the tenant's TTS voice.
func (r *Resolver) DefaultVoice(ctx context.Context, scope Scope) string {
	return r.memoText(ctx, KeyDefaultVoice, scope, "domain", "voice", "callie")
}

// SoundsDir returns the switch sounds directory.
func (r *Resolver) SoundsDir(ctx context.Context) string {
	return r.memoText(ctx, KeySoundsDir, Scope{}, "switch", "sounds-dir", "/usr/share/freeswitch/sounds")
}

// ProvisionRealm returns the HTTP Basic realm for device provisioning.
func (r *Resolver) ProvisionRealm(ctx context.Context, scope Scope) string {
	return r.memoText(ctx, KeyProvisionRealm, scope, "provision", "http-auth-realm", "provision")
}

// MaxFailAttempts returns the login throttle threshold.
func (r *Resolver) MaxFailAttempts(ctx context.Context) int {
	if v, ok := r.cache.Get(ctx, KeyMaxFailAttempts); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	n := r.DefaultNumeric(ctx, Scope{}, "security", "max-fail-attempts", 5)
	if err := r.cache.Set(ctx, KeyMaxFailAttempts, strconv.Itoa(n), memoTTL); err != nil {
		r.logger.Warn("caching setting failed", "key", KeyMaxFailAttempts, "error", err)
	}
	return n
}

// HTTAPIURL returns the base URL the switch calls back on for httapi work.
func (r *Resolver) HTTAPIURL(ctx context.Context) string {
	return r.memoText(ctx, KeyHTTAPIURL, Scope{}, "switch", "httapi-url", "http://127.0.0.1:8080/app/httapi")
}

func splitList(v string) []string {
	parts := strings.Split(v, "\n")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(values []string) string {
	return strings.Join(values, "\n")
}
