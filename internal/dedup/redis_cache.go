package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares dedup keys between replicas through Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache builds a cache storing keys under prefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) ContainsKey(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Put stores key with the instant it expires as value, which helps when inspecting Redis by hand.
func (c *RedisCache) Put(ctx context.Context, key string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UTC().Format(time.RFC3339)
	return c.client.Set(ctx, c.prefix+key, expiresAt, ttl).Err()
}
