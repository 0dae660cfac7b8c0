// Package adapters provides cache adapters for different backends.
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "launchtrack:metrics:"
	// the index outlives every entry it points at
	minIndexTTL = 24 * time.Hour
)

// RedisMetricsCache shares dashboard aggregates across processes. Each account keeps a
// set of its keys so InvalidateAccount can drop them without scanning the keyspace.
type RedisMetricsCache struct {
	rdb *redis.Client
}

var _ interfaces.MetricsCache = (*RedisMetricsCache)(nil)

// NewRedisMetricsCache connects to url and verifies the connection.
func NewRedisMetricsCache(ctx context.Context, url string) (*RedisMetricsCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisMetricsCache{rdb: rdb}, nil
}

// NewRedisMetricsCacheFromClient wraps an existing client.
func NewRedisMetricsCacheFromClient(rdb *redis.Client) *RedisMetricsCache {
	return &RedisMetricsCache{rdb: rdb}
}

// Close releases the client.
func (c *RedisMetricsCache) Close() error {
	return c.rdb.Close()
}

func entryKey(accountID, key string) string {
	return keyPrefix + accountID + ":" + key
}

func indexKey(accountID string) string {
	return keyPrefix + accountID + ":_keys"
}

// Get decodes the cached value into dest.
func (c *RedisMetricsCache) Get(ctx context.Context, accountID, key string, dest any) (bool, error) {
	val, err := c.rdb.Get(ctx, entryKey(accountID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached metrics: %w", err)
	}
	return true, nil
}

// Set stores value with ttl and records the key in the account index.
func (c *RedisMetricsCache) Set(ctx context.Context, accountID, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode metrics for cache: %w", err)
	}

	full := entryKey(accountID, key)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, full, payload, ttl)
	pipe.SAdd(ctx, indexKey(accountID), full)
	pipe.Expire(ctx, indexKey(accountID), max(ttl, minIndexTTL))
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateAccount deletes every indexed key for the account.
func (c *RedisMetricsCache) InvalidateAccount(ctx context.Context, accountID string) error {
	idx := indexKey(accountID)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys = append(keys, idx)
	return c.rdb.Del(ctx, keys...).Err()
}
