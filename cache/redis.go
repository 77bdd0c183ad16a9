// Package cache keeps JSON snapshots of read results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect returns a client for addr, or nil when addr is empty or the
// server does not answer. A nil client disables caching.
func Connect(ctx context.Context, addr string, logger *slog.Logger) *redis.Client {
	if addr == "" {
		logger.Warn("REDIS_ADDR is not set, roster caching is disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis is unreachable, roster caching is disabled", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}

	logger.Info("connected to redis", "addr", addr)
	return client
}

// JSONCache stores values as JSON strings. A nil *JSONCache or one built
// on a nil client behaves as an always-empty cache.
type JSONCache struct {
	client *redis.Client
}

func New(client *redis.Client) *JSONCache {
	return &JSONCache{client: client}
}

func (c *JSONCache) enabled() bool {
	return c != nil && c.client != nil
}

// GetJSON decodes the value at key into dest and reports whether it was
// found.
func (c *JSONCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Drop entries written by an older shape.
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *JSONCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *JSONCache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
