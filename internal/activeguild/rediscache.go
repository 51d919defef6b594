package activeguild

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an optional cross-process persistence tier for resolved
// is_active results, so a pod restart (or a second pod) doesn't have to
// re-query the feature-gate for every guild it has already resolved
// recently. Declared as an interface so Set never imports a concrete
// Redis driver type directly.
type Cache interface {
	LoadActive(ctx context.Context, guildID uint64) (isActive bool, found bool, err error)
	SaveActive(ctx context.Context, guildID uint64, isActive bool) error
}

// RedisCache is the production Cache, grounded on the teacher's
// fabric.RedisHubStore (key-prefixed, TTL'd per-entry persistence via
// go-redis), repurposed from spoke-registration JSON blobs to a single
// boolean per guild.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache builds a RedisCache. ttl of zero defaults to 10 minutes,
// matching the teacher's spoke TTL rationale: entries are expected to be
// refreshed well before they'd go stale, so the TTL is a safety net
// against a guild silently going inactive with nobody around to evict it.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "gatewaylogs:activeguild:"
	}
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(guildID uint64) string {
	return fmt.Sprintf("%s%d", c.prefix, guildID)
}

// LoadActive reads a cached is_active value. found is false on a cache
// miss (redis.Nil), which the caller treats the same as "no cache".
func (c *RedisCache) LoadActive(ctx context.Context, guildID uint64) (bool, bool, error) {
	val, err := c.client.Get(ctx, c.key(guildID)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("activeguild: redis get: %w", err)
	}
	return val == "1", true, nil
}

// SaveActive writes-through a resolved is_active value with the
// configured TTL.
func (c *RedisCache) SaveActive(ctx context.Context, guildID uint64, isActive bool) error {
	val := "0"
	if isActive {
		val = "1"
	}
	if err := c.client.Set(ctx, c.key(guildID), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("activeguild: redis set: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
