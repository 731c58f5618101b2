package cache

import (
	"context"
	"errors"
	"time"

	"github.com/lyzr/flow/common/redis"
)

// RedisCache backs the cache with Redis so cached execution results survive
// restarts and are shared across replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps a connected Redis client. All keys are namespaced
// under the given prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "flow:cache:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Get retrieves a value. A missing key is a cache miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

// Set stores a value with TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), string(value), ttl)
}

// Delete removes a value
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.key(key))
}

// Close is a no-op: the underlying client is owned by the bootstrap layer.
func (c *RedisCache) Close() error {
	return nil
}
