// Package cache provides a shared incrementing-counter cache used by the
// rate limiter to avoid a database round trip on every execution. It prefers Redis (github.com/redis/go-redis/v9) when configured,
// and falls back to an in-process counter so the engine still runs without
// an external service.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the minimal interface both backends satisfy.
type Counter interface {
	// Incr increments key, sets its TTL on first creation, and returns the
	// new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current value of key, or 0 if absent.
	Get(ctx context.Context, key string) (int64, error)
	Close() error
}

// NewFromAddr returns a RedisCounter when addr is non-empty, otherwise an
// in-process MemCounter.
func NewFromAddr(addr string) Counter {
	if addr == "" {
		return NewMemCounter()
	}
	return NewRedisCounter(addr)
}

// RedisCounter backs Counter with go-redis INCR/EXPIRE.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(addr string) *RedisCounter {
	return &RedisCounter{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (c *RedisCounter) Close() error { return c.client.Close() }

// MemCounter is the in-process fallback, a mutex-guarded map of
// expiring counters.
type MemCounter struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	value    int64
	expireAt time.Time
}

func NewMemCounter() *MemCounter {
	return &MemCounter{entries: make(map[string]*memEntry)}
}

func (c *MemCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	e, ok := c.entries[key]
	if !ok || now.After(e.expireAt) {
		e = &memEntry{expireAt: now.Add(ttl)}
		c.entries[key] = e
	}
	e.value++
	return e.value, nil
}

func (c *MemCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expireAt) {
		return 0, nil
	}
	return e.value, nil
}

func (c *MemCounter) Close() error { return nil }
