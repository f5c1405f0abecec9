package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// scanBatchSize bounds each SCAN page so bulk deletes never stall the shared
// Redis instance the way a blocking KEYS pass would.
const scanBatchSize = 100

// CacheAdapter implements the domain.CacheStore interface using Redis.
// Every operation null-guards on "not connected" and reports a clean miss or
// no-op in that case; the cache is an optimization layer, not a dependency.
type CacheAdapter struct {
	opts   *redis.Options
	logger domain.Logger

	mu     sync.RWMutex
	client *redis.Client
}

// NewCacheAdapter creates a new CacheAdapter. The connection is established
// separately via Connect so bootstrap controls the lifecycle.
func NewCacheAdapter(opts *redis.Options, logger domain.Logger) *CacheAdapter {
	if opts == nil {
		panic("redis options cannot be nil in NewCacheAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewCacheAdapter")
	}
	return &CacheAdapter{
		opts:   opts,
		logger: logger,
	}
}

// Connect establishes the Redis connection. It is idempotent: if the client is
// already up and responding to PING, it is a no-op.
func (a *CacheAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if err := a.client.Ping(ctx).Err(); err == nil {
			a.logger.Debug(ctx, "Redis already connected, Connect is a no-op", "address", a.opts.Addr)
			return nil
		}
		// Stale client, rebuild it below.
		_ = a.client.Close()
		a.client = nil
	}

	client := redis.NewClient(a.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		a.logger.Error(ctx, "Failed to connect to Redis", "address", a.opts.Addr, "error", err.Error())
		return fmt.Errorf("failed to connect to Redis at %s: %w", a.opts.Addr, err)
	}

	a.client = client
	a.logger.Info(ctx, "Successfully connected to Redis", "address", a.opts.Addr)
	return nil
}

// IsConnected reports whether a client is currently established.
func (a *CacheAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil
}

// Disconnect gracefully closes the connection only if one is open.
func (a *CacheAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	a.logger.Info(context.Background(), "Redis connection closed")
	return err
}

// ready returns the live client, or nil when the adapter is not connected.
func (a *CacheAdapter) ready() *redis.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// Set stores a JSON-serialized value under key with the given TTL.
func (a *CacheAdapter) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	client := a.ready()
	if client == nil {
		a.logger.Debug(ctx, "Redis not connected, skipping SET", "key", key)
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal value for caching", "key", key, "error", err.Error())
		return fmt.Errorf("failed to marshal value for key '%s': %w", key, err)
	}

	if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
		a.logger.Error(ctx, "Redis SET failed", "key", key, "error", err.Error())
		return fmt.Errorf("redis SET for key '%s' failed: %w", key, err)
	}
	return nil
}

// Get decodes the value at key into out, reporting whether it was found.
func (a *CacheAdapter) Get(ctx context.Context, key string, out any) (bool, error) {
	client := a.ready()
	if client == nil {
		a.logger.Debug(ctx, "Redis not connected, treating GET as miss", "key", key)
		return false, nil
	}

	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		a.logger.Error(ctx, "Redis GET failed", "key", key, "error", err.Error())
		return false, fmt.Errorf("redis GET for key '%s' failed: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), out); err != nil {
		a.logger.Error(ctx, "Failed to unmarshal cached value", "key", key, "error", err.Error())
		return false, fmt.Errorf("failed to unmarshal cached value for key '%s': %w", key, err)
	}
	return true, nil
}

// Delete removes key.
func (a *CacheAdapter) Delete(ctx context.Context, key string) error {
	client := a.ready()
	if client == nil {
		a.logger.Debug(ctx, "Redis not connected, skipping DEL", "key", key)
		return nil
	}

	if err := client.Del(ctx, key).Err(); err != nil {
		a.logger.Error(ctx, "Redis DEL failed", "key", key, "error", err.Error())
		return fmt.Errorf("redis DEL for key '%s' failed: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes every key matching the glob pattern using
// cursor-based incremental scanning, returning the number of keys deleted.
func (a *CacheAdapter) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	client := a.ready()
	if client == nil {
		a.logger.Debug(ctx, "Redis not connected, skipping pattern delete", "pattern", pattern)
		return 0, nil
	}

	var deleted int64
	var cursor uint64
	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			a.logger.Error(ctx, "Redis SCAN failed", "pattern", pattern, "cursor", cursor, "error", err.Error())
			return deleted, fmt.Errorf("redis SCAN for pattern '%s' failed: %w", pattern, err)
		}

		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				a.logger.Error(ctx, "Redis DEL failed during pattern delete", "pattern", pattern, "error", err.Error())
				return deleted, fmt.Errorf("redis DEL during pattern delete for '%s' failed: %w", pattern, err)
			}
			deleted += n
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	a.logger.Debug(ctx, "Pattern delete completed", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

// Exists reports whether key is present.
func (a *CacheAdapter) Exists(ctx context.Context, key string) (bool, error) {
	client := a.ready()
	if client == nil {
		return false, nil
	}

	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		a.logger.Error(ctx, "Redis EXISTS failed", "key", key, "error", err.Error())
		return false, fmt.Errorf("redis EXISTS for key '%s' failed: %w", key, err)
	}
	return n > 0, nil
}

// Increment atomically increments the integer at key, returning the new value.
func (a *CacheAdapter) Increment(ctx context.Context, key string) (int64, error) {
	client := a.ready()
	if client == nil {
		return 0, nil
	}

	val, err := client.Incr(ctx, key).Result()
	if err != nil {
		a.logger.Error(ctx, "Redis INCR failed", "key", key, "error", err.Error())
		return 0, fmt.Errorf("redis INCR for key '%s' failed: %w", key, err)
	}
	return val, nil
}

// Expire sets a TTL on an existing key, reporting whether the key existed.
func (a *CacheAdapter) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client := a.ready()
	if client == nil {
		return false, nil
	}

	ok, err := client.Expire(ctx, key, ttl).Result()
	if err != nil {
		a.logger.Error(ctx, "Redis EXPIRE failed", "key", key, "error", err.Error())
		return false, fmt.Errorf("redis EXPIRE for key '%s' failed: %w", key, err)
	}
	return ok, nil
}

// SetHashField stores a JSON-serialized value under a field of a hash key.
func (a *CacheAdapter) SetHashField(ctx context.Context, key, field string, value any) error {
	client := a.ready()
	if client == nil {
		a.logger.Debug(ctx, "Redis not connected, skipping HSET", "key", key, "field", field)
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal hash field value", "key", key, "field", field, "error", err.Error())
		return fmt.Errorf("failed to marshal hash field '%s.%s': %w", key, field, err)
	}

	if err := client.HSet(ctx, key, field, payload).Err(); err != nil {
		a.logger.Error(ctx, "Redis HSET failed", "key", key, "field", field, "error", err.Error())
		return fmt.Errorf("redis HSET for '%s.%s' failed: %w", key, field, err)
	}
	return nil
}

// GetHashField decodes the value of a hash field into out, reporting whether it was found.
func (a *CacheAdapter) GetHashField(ctx context.Context, key, field string, out any) (bool, error) {
	client := a.ready()
	if client == nil {
		return false, nil
	}

	val, err := client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		a.logger.Error(ctx, "Redis HGET failed", "key", key, "field", field, "error", err.Error())
		return false, fmt.Errorf("redis HGET for '%s.%s' failed: %w", key, field, err)
	}

	if err := json.Unmarshal([]byte(val), out); err != nil {
		a.logger.Error(ctx, "Failed to unmarshal hash field value", "key", key, "field", field, "error", err.Error())
		return false, fmt.Errorf("failed to unmarshal hash field '%s.%s': %w", key, field, err)
	}
	return true, nil
}

// GetAllHashFields returns every field of a hash key as raw JSON payloads.
func (a *CacheAdapter) GetAllHashFields(ctx context.Context, key string) (map[string]string, error) {
	client := a.ready()
	if client == nil {
		return map[string]string{}, nil
	}

	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		a.logger.Error(ctx, "Redis HGETALL failed", "key", key, "error", err.Error())
		return nil, fmt.Errorf("redis HGETALL for key '%s' failed: %w", key, err)
	}
	return fields, nil
}

// DeleteHashField removes a single field of a hash key.
func (a *CacheAdapter) DeleteHashField(ctx context.Context, key, field string) error {
	client := a.ready()
	if client == nil {
		return nil
	}

	if err := client.HDel(ctx, key, field).Err(); err != nil {
		a.logger.Error(ctx, "Redis HDEL failed", "key", key, "field", field, "error", err.Error())
		return fmt.Errorf("redis HDEL for '%s.%s' failed: %w", key, field, err)
	}
	return nil
}
