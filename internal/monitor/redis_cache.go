package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the optional read-through cache for computed Health
// snapshots, grounded on internal/cache/redis_cache.go's SimpleRedisCache
// (client + key prefix + TTL, Get/Set/Delete over a single key space).
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache pings addr and returns a ready cache, or an error if
// Redis is unreachable within 5 seconds.
func NewRedisCache(addr, prefix string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("monitor: connect to redis: %w", err)
	}

	if prefix == "" {
		prefix = "detection-loop:health:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisCache) key(ruleID string) string {
	return c.prefix + ruleID
}

// GetHealth returns the cached Health snapshot for ruleID, if present and
// unexpired.
func (c *RedisCache) GetHealth(ruleID string) (Health, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(ruleID)).Bytes()
	if err != nil {
		return Health{}, false
	}
	var health Health
	if err := json.Unmarshal(raw, &health); err != nil {
		return Health{}, false
	}
	return health, true
}

// SetHealth stores health under ruleID with the cache's configured TTL.
func (c *RedisCache) SetHealth(ruleID string, health Health) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := json.Marshal(health)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(ruleID), raw, c.ttl).Err()
}

// DeleteHealth evicts ruleID's cached Health snapshot, if any.
func (c *RedisCache) DeleteHealth(ruleID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.client.Del(ctx, c.key(ruleID)).Err()
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
