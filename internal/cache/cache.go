/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache for theme track listings.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/backdrop/internal/telemetry"
)

// DefaultListingTTL is how long a theme listing stays cached.
const DefaultListingTTL = 5 * time.Minute

// KeyListing prefixes cached listings: + scope + ":" + theme.
const KeyListing = "backdrop:cache:listing:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ListingTTL time.Duration

	// DisableOnError trips the breaker on Redis errors. The cache is probed
	// again after RetryAfter.
	DisableOnError bool
	RetryAfter     time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ListingTTL:     DefaultListingTTL,
		DisableOnError: true,
		RetryAfter:     30 * time.Second,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu         sync.RWMutex
	disabled   bool // Circuit breaker state
	disabledAt time.Time
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache, not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = DefaultListingTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	logger = logger.With().Str("component", "cache").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c.client == nil {
		return false
	}
	c.mu.RLock()
	disabled, since := c.disabled, c.disabledAt
	c.mu.RUnlock()
	if !disabled {
		return true
	}
	if c.config.RetryAfter > 0 && time.Since(since) >= c.config.RetryAfter {
		c.mu.Lock()
		c.disabled = false
		c.mu.Unlock()
		c.logger.Info().Msg("re-enabling cache after cool-down")
		return true
	}
	return false
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.disabledAt = time.Now()
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// SCAN rather than KEYS so large keyspaces don't block Redis.
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

// ListingKey returns the Redis key of a listing.
func ListingKey(scope, theme string) string {
	return KeyListing + scope + ":" + theme
}

// GetListing retrieves a cached theme listing.
func (c *Cache) GetListing(ctx context.Context, scope, theme string) ([]string, bool) {
	var files []string
	found, err := c.get(ctx, ListingKey(scope, theme), &files)
	if err != nil || !found {
		telemetry.ListingCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	telemetry.ListingCacheTotal.WithLabelValues("hit").Inc()
	c.logger.Debug().Str("theme", theme).Int("count", len(files)).Msg("listing cache hit")
	return files, true
}

// SetListing caches a theme listing.
func (c *Cache) SetListing(ctx context.Context, scope, theme string, files []string) error {
	c.logger.Debug().Str("theme", theme).Int("count", len(files)).Msg("caching listing")
	return c.set(ctx, ListingKey(scope, theme), files, c.config.ListingTTL)
}

// InvalidateListing removes a theme listing from cache.
func (c *Cache) InvalidateListing(ctx context.Context, scope, theme string) error {
	c.logger.Debug().Str("theme", theme).Msg("invalidating listing cache")
	return c.delete(ctx, ListingKey(scope, theme))
}

// FlushAll removes all cached listings.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, KeyListing+"*")
}
