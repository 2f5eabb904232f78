package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// --- MemoryCache ---

// MemoryCache is an in-process TTL cache bounded by entry count. Expired
// entries are evicted when the cache reaches capacity.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	name      string
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]memEntry),
	}
}

// Kind implements Cache.
func (c *MemoryCache) Kind() string { return "memory" }

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, id string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok || c.now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.name, true, nil
}

// Set implements Cache. When the cache is full and nothing has expired the
// new entry is dropped.
func (c *MemoryCache) Set(_ context.Context, id, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxEntries {
		c.evictExpired()
		if len(c.entries) >= c.maxEntries {
			return nil
		}
	}
	c.entries[id] = memEntry{name: name, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictExpired must be called with mu held.
func (c *MemoryCache) evictExpired() {
	now := c.now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// --- RedisCache ---

// RedisCache keeps names in Redis under "catalog:status:{id}" so they are
// shared between instances.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Kind implements Cache.
func (c *RedisCache) Kind() string { return "redis" }

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, id string) (string, bool, error) {
	key := redisKey(id)
	name, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return name, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, id, name string) error {
	key := redisKey(id)
	if err := c.client.Set(ctx, key, name, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func redisKey(id string) string {
	return "catalog:status:" + id
}
