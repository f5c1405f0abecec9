package domain

import (
	"context"
	"time"
)

// CacheStore defines the operations the application needs from the shared
// distributed cache. Values are opaque JSON payloads. Implementations treat
// "not connected" as a clean miss/no-op rather than an error; other failures
// are returned so each call-site can decide whether to degrade or fail open.
type CacheStore interface {
	// Connect establishes the connection. It is idempotent: a no-op when the
	// client is already ready.
	Connect(ctx context.Context) error
	// IsConnected reports whether the backend is currently reachable.
	IsConnected() bool
	// Disconnect gracefully closes the connection only if it is open.
	Disconnect() error

	// Set stores a JSON-serialized value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get decodes the value at key into out, reporting whether it was found.
	Get(ctx context.Context, key string, out any) (bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// DeleteByPattern removes every key matching the glob pattern using
	// cursor-based incremental scanning, returning the number deleted.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Increment atomically increments the integer at key, returning the new value.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on an existing key, reporting whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Hash-field variants group related sub-keys under one top-level key.
	SetHashField(ctx context.Context, key, field string, value any) error
	GetHashField(ctx context.Context, key, field string, out any) (bool, error)
	GetAllHashFields(ctx context.Context, key string) (map[string]string, error)
	DeleteHashField(ctx context.Context, key, field string) error
}
