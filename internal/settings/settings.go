// Package settings resolves typed configuration across the three scopes:
// user overrides domain overrides global, first enabled match wins.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

// ErrConfigMissing is returned when a required setting has no enabled value
// at any scope. The wrapped message carries category and subcategory.
var ErrConfigMissing = errors.New("required setting missing")

// Scope narrows resolution to a tenant and optionally a user. The zero value
// resolves global settings only.
type Scope struct {
	DomainID *string
	UserID   *string
}

// ForDomain scopes resolution to one tenant.
func ForDomain(domainID string) Scope {
	return Scope{DomainID: &domainID}
}

// ForUser scopes resolution to one user within a tenant.
func ForUser(domainID, userID string) Scope {
	return Scope{DomainID: &domainID, UserID: &userID}
}

// Resolver reads settings through the repository and memoises well-known
// keys in the cache.
type Resolver struct {
	repo   database.SettingRepository
	cache  cache.Cache
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(repo database.SettingRepository, c cache.Cache, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  c,
		logger: logger.With("subsystem", "settings"),
	}
}

// resolve returns the winning row for (category, subcategory) under scope.
func (r *Resolver) resolve(ctx context.Context, scope Scope, category, subcategory string) (*models.Setting, error) {
	rows, err := r.repo.Lookup(ctx, category, subcategory)
	if err != nil {
		return nil, fmt.Errorf("looking up setting %s/%s: %w", category, subcategory, err)
	}

	for _, pick := range []func(models.Setting) bool{
		func(s models.Setting) bool {
			return s.Scope == models.ScopeUser && scope.UserID != nil &&
				s.UserID != nil && *s.UserID == *scope.UserID
		},
		func(s models.Setting) bool {
			return s.Scope == models.ScopeDomain && scope.DomainID != nil &&
				s.DomainID != nil && *s.DomainID == *scope.DomainID
		},
		func(s models.Setting) bool {
			return s.Scope == models.ScopeGlobal
		},
	} {
		for i := range rows {
			if rows[i].Enabled && pick(rows[i]) {
				return &rows[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrConfigMissing, category, subcategory)
}

// Text returns the resolved text value, or ErrConfigMissing.
func (r *Resolver) Text(ctx context.Context, scope Scope, category, subcategory string) (string, error) {
	s, err := r.resolve(ctx, scope, category, subcategory)
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// DefaultText returns the resolved text value, or def when absent.
func (r *Resolver) DefaultText(ctx context.Context, scope Scope, category, subcategory, def string) string {
	v, err := r.Text(ctx, scope, category, subcategory)
	if err != nil {
		return def
	}
	return v
}

// Numeric returns the resolved numeric value, or ErrConfigMissing.
func (r *Resolver) Numeric(ctx context.Context, scope Scope, category, subcategory string) (int, error) {
	s, err := r.resolve(ctx, scope, category, subcategory)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s.Value)
	if err != nil {
		return 0, fmt.Errorf("setting %s/%s is not numeric: %w", category, subcategory, err)
	}
	return n, nil
}

// DefaultNumeric returns the resolved numeric value, or def when absent or
// malformed. A malformed stored value is logged as a warning.
func (r *Resolver) DefaultNumeric(ctx context.Context, scope Scope, category, subcategory string, def int) int {
	s, err := r.resolve(ctx, scope, category, subcategory)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(s.Value)
	if err != nil {
		r.logger.Warn("malformed numeric setting, using default",
			"category", category, "subcategory", subcategory,
			"value", s.Value, "default", def)
		return def
	}
	return n
}

// Bool returns the resolved boolean value, or ErrConfigMissing. true, 1 and
// yes are truthy.
func (r *Resolver) Bool(ctx context.Context, scope Scope, category, subcategory string) (bool, error) {
	s, err := r.resolve(ctx, scope, category, subcategory)
	if err != nil {
		return false, err
	}
	return truthy(s.Value), nil
}

// DefaultBool returns the resolved boolean value, or def when absent.
func (r *Resolver) DefaultBool(ctx context.Context, scope Scope, category, subcategory string, def bool) bool {
	s, err := r.resolve(ctx, scope, category, subcategory)
	if err != nil {
		return def
	}
	return truthy(s.Value)
}

func truthy(v string) bool {
	switch v {
	case "true", "1", "yes", "enabled":
		return true
	}
	return false
}

// Array returns all enabled values at the winning scope in sequence order.
// Unlike the scalar getters, a single enabled row at a narrower scope masks
// the whole list at wider scopes.
func (r *Resolver) Array(ctx context.Context, scope Scope, category, subcategory string) ([]string, error) {
	rows, err := r.repo.Lookup(ctx, category, subcategory)
	if err != nil {
		return nil, fmt.Errorf("looking up setting %s/%s: %w", category, subcategory, err)
	}

	for _, want := range []string{models.ScopeUser, models.ScopeDomain, models.ScopeGlobal} {
		var values []string
		for _, s := range rows {
			if !s.Enabled || s.Scope != want {
				continue
			}
			switch want {
			case models.ScopeUser:
				if scope.UserID == nil || s.UserID == nil || *s.UserID != *scope.UserID {
					continue
				}
			case models.ScopeDomain:
				if scope.DomainID == nil || s.DomainID == nil || *s.DomainID != *scope.DomainID {
					continue
				}
			}
			values = append(values, s.Value)
		}
		if len(values) > 0 {
			return values, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrConfigMissing, category, subcategory)
}
