package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/config"
	registrycache "github.com/planetrip/planet-chat/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UnreadCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: PLANET_CHAT_REDIS_URL is required")
	}
	ttl := cfg.UnreadCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates an UnreadCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.UnreadCache, error) {
	return LoadFromURLWithTTL(ctx, redisURL, defaultTTL)
}

// LoadFromURLWithTTL creates a cache with an explicit unread-count TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.UnreadCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisUnreadCache{client: client, ttl: ttl}, nil
}

type redisUnreadCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// Counts for one planet live in a single hash keyed by user id, so a write
// to the planet invalidates every member with one DEL.
func unreadKey(planetID uuid.UUID) string {
	return "unread:" + planetID.String()
}

func (c *redisUnreadCache) Available() bool {
	return true
}

func (c *redisUnreadCache) Get(ctx context.Context, planetID uuid.UUID, userID int64) (*int64, error) {
	data, err := c.client.HGet(ctx, unreadKey(planetID), strconv.FormatInt(userID, 10)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	count, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis cache: corrupt unread count %q: %w", data, err)
	}
	return &count, nil
}

func (c *redisUnreadCache) Set(ctx context.Context, planetID uuid.UUID, userID int64, count int64, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	key := unreadKey(planetID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(userID, 10), count)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisUnreadCache) Remove(ctx context.Context, planetID uuid.UUID, userID int64) error {
	return c.client.HDel(ctx, unreadKey(planetID), strconv.FormatInt(userID, 10)).Err()
}

func (c *redisUnreadCache) RemovePlanet(ctx context.Context, planetID uuid.UUID) error {
	return c.client.Del(ctx, unreadKey(planetID)).Err()
}

var _ registrycache.UnreadCache = (*redisUnreadCache)(nil)
