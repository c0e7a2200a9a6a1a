package tenant

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces existence flags so the cache can share a Redis
// database with other application state.
const redisKeyPrefix = "tenant:exists:"

// redisCache stores existence flags in Redis so all replicas share one
// staleness window and lifecycle invalidations take effect fleet-wide.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache creates an existence cache backed by the given Redis client.
// The client's lifecycle stays with the caller; Close here is a no-op.
func NewRedisCache(client *redis.Client) ExistenceCache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (bool, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		// Treat any Redis failure as a miss; the authoritative catalog
		// lookup still decides the outcome.
		return false, false
	}
	return val == "1", true
}

func (c *redisCache) Set(ctx context.Context, key string, exists bool, ttl time.Duration) {
	val := "0"
	if exists {
		val = "1"
	}
	_ = c.client.Set(ctx, redisKeyPrefix+key, val, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	_ = c.client.Del(ctx, redisKeyPrefix+key).Err()
}

func (c *redisCache) Close() error {
	return nil
}
