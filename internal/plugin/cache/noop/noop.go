package noop

import (
	"context"
	"time"

	"github.com/google/uuid"
	registrycache "github.com/planetrip/planet-chat/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.UnreadCache, error) {
			return &noopCache{}, nil
		},
	})
}

// noopCache satisfies UnreadCache without caching anything. Every read falls
// through to the store.
type noopCache struct{}

func (c *noopCache) Available() bool { return false }

func (c *noopCache) Get(ctx context.Context, planetID uuid.UUID, userID int64) (*int64, error) {
	return nil, nil
}

func (c *noopCache) Set(ctx context.Context, planetID uuid.UUID, userID int64, count int64, ttl time.Duration) error {
	return nil
}

func (c *noopCache) Remove(ctx context.Context, planetID uuid.UUID, userID int64) error {
	return nil
}

func (c *noopCache) RemovePlanet(ctx context.Context, planetID uuid.UUID) error {
	return nil
}

var _ registrycache.UnreadCache = (*noopCache)(nil)
