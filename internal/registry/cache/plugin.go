package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type unreadCacheKey struct{}

// WithUnreadCacheContext returns a new context carrying the given UnreadCache.
func WithUnreadCacheContext(ctx context.Context, c UnreadCache) context.Context {
	return context.WithValue(ctx, unreadCacheKey{}, c)
}

// UnreadCacheFromContext retrieves the UnreadCache from the context.
// Returns nil if none was set.
func UnreadCacheFromContext(ctx context.Context) UnreadCache {
	c, _ := ctx.Value(unreadCacheKey{}).(UnreadCache)
	return c
}

// UnreadCache caches per-user unread counts for planets. A miss falls through
// to the store; writes to a planet invalidate its members' entries.
type UnreadCache interface {
	Available() bool
	Get(ctx context.Context, planetID uuid.UUID, userID int64) (*int64, error)
	Set(ctx context.Context, planetID uuid.UUID, userID int64, count int64, ttl time.Duration) error
	Remove(ctx context.Context, planetID uuid.UUID, userID int64) error
	// RemovePlanet drops every user's cached count for the planet.
	RemovePlanet(ctx context.Context, planetID uuid.UUID) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (UnreadCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
