package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aurumlife/enrichment-backend/internal/logger"
)

// Cache is the per-user dashboard cache the cache-invalidate channel clears.
// The enrichment pipeline only ever deletes; reads and writes belong to the
// presentation layer.
type Cache interface {
	InvalidateUser(ctx context.Context, userID string) error
	Close() error
}

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisCache(addr string, log *logger.Logger) (Cache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisCache{log: log.With("service", "RedisCache"), rdb: rdb}, nil
}

func (c *redisCache) InvalidateUser(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("dashboard:%s:*", userID)
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

// memoryCache backs tests and single-process runs.
type memoryCache struct {
	mu      sync.Mutex
	deleted map[string]int
}

func NewMemoryCache() Cache {
	return &memoryCache{deleted: map[string]int{}}
}

func (c *memoryCache) InvalidateUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.deleted[userID]++
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Close() error { return nil }

// Invalidations reports how many times a user's cache was cleared. Only the
// memory cache supports it; tests use this.
func Invalidations(c Cache, userID string) int {
	mc, ok := c.(*memoryCache)
	if !ok {
		return 0
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.deleted[userID]
}
