// Package localcache implements the domain.CacheStore contract over the
// bounded in-process cache. It backs single-instance deployments and local
// development where no shared Redis is configured; state is per process and
// lost on restart.
package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/memcache"
)

// Store is an in-process domain.CacheStore. Values are kept as JSON payloads so
// behavior matches the Redis adapter byte for byte.
type Store struct {
	logger domain.Logger
	cache  *memcache.Cache[json.RawMessage]

	// mu serializes read-modify-write operations (Increment, Expire, hash
	// fields) that Redis performs atomically server-side.
	mu sync.Mutex

	connected bool
	connMu    sync.RWMutex
}

// NewStore creates a local cache store bounded at maxEntries.
func NewStore(maxEntries int, defaultTTL time.Duration, logger domain.Logger) *Store {
	if logger == nil {
		panic("logger cannot be nil in localcache.NewStore")
	}
	return &Store{
		logger: logger,
		cache:  memcache.New[json.RawMessage](maxEntries, defaultTTL),
	}
}

// Connect marks the store ready. Idempotent; there is no backend to reach.
func (s *Store) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if !s.connected {
		s.connected = true
		s.logger.Info(ctx, "Local in-process cache ready")
	}
	return nil
}

// IsConnected reports whether Connect has been called.
func (s *Store) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected
}

// Disconnect drops all entries and marks the store closed.
func (s *Store) Disconnect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connected {
		s.cache.Clear()
		s.connected = false
	}
	return nil
}

// noExpiryTTL stands in for "no expiry". The backing cache expires everything,
// so entries stored without a TTL get one far past any process lifetime.
const noExpiryTTL = 10 * 365 * 24 * time.Hour

// Set stores a JSON-serialized value under key. ttl <= 0 means no expiry,
// matching the Redis adapter.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key '%s': %w", key, err)
	}
	if ttl <= 0 {
		ttl = noExpiryTTL
	}
	s.cache.SetWithTTL(key, payload, ttl)
	return nil
}

// Get decodes the value at key into out, reporting whether it was found.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	if !s.IsConnected() {
		return false, nil
	}
	payload, ok := s.cache.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key '%s': %w", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !s.IsConnected() {
		return nil
	}
	s.cache.Delete(key)
	return nil
}

// DeleteByPattern removes every key matching the glob pattern, returning the
// number deleted.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if !s.IsConnected() {
		return 0, nil
	}
	deleted := s.cache.DeleteWhere(func(key string, _ json.RawMessage) bool {
		matched, err := path.Match(pattern, key)
		return err == nil && matched
	})
	return int64(deleted), nil
}

// Exists reports whether key holds an unexpired entry.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if !s.IsConnected() {
		return false, nil
	}
	return s.cache.Has(key), nil
}

// Increment increments the integer at key, returning the new value. A missing
// key starts from zero, matching Redis INCR.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	if !s.IsConnected() {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	payload, ok := s.cache.Get(key)
	if ok {
		parsed, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at key '%s' is not an integer: %w", key, err)
		}
		current = parsed
	}
	current++
	raw := json.RawMessage(strconv.FormatInt(current, 10))
	// Redis INCR leaves the key's TTL untouched, so an existing counter is
	// replaced in place to keep the expiry a prior Expire applied.
	if !ok || !s.cache.Replace(key, raw) {
		s.cache.Set(key, raw)
	}
	return current, nil
}

// Expire re-stamps an existing entry with a new TTL, reporting whether the key
// existed.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.IsConnected() {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.cache.Get(key)
	if !ok {
		return false, nil
	}
	s.cache.SetWithTTL(key, payload, ttl)
	return true, nil
}

// SetHashField stores a JSON-serialized value under a field of a hash key.
func (s *Store) SetHashField(ctx context.Context, key, field string, value any) error {
	if !s.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal hash field '%s.%s': %w", key, field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.loadHash(key)
	fields[field] = payload
	return s.storeHash(key, fields)
}

// GetHashField decodes the value of a hash field into out, reporting whether it
// was found.
func (s *Store) GetHashField(ctx context.Context, key, field string, out any) (bool, error) {
	if !s.IsConnected() {
		return false, nil
	}
	s.mu.Lock()
	fields := s.loadHash(key)
	payload, ok := fields[field]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal hash field '%s.%s': %w", key, field, err)
	}
	return true, nil
}

// GetAllHashFields returns every field of a hash key as raw JSON payloads.
func (s *Store) GetAllHashFields(ctx context.Context, key string) (map[string]string, error) {
	if !s.IsConnected() {
		return map[string]string{}, nil
	}
	s.mu.Lock()
	fields := s.loadHash(key)
	s.mu.Unlock()

	result := make(map[string]string, len(fields))
	for f, payload := range fields {
		result[f] = string(payload)
	}
	return result, nil
}

// DeleteHashField removes a single field of a hash key.
func (s *Store) DeleteHashField(ctx context.Context, key, field string) error {
	if !s.IsConnected() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.loadHash(key)
	if _, ok := fields[field]; !ok {
		return nil
	}
	delete(fields, field)
	if len(fields) == 0 {
		s.cache.Delete(key)
		return nil
	}
	return s.storeHash(key, fields)
}

// SweepExpired drops expired entries eagerly. TTL expiry is otherwise lazy;
// the bootstrap sweep loop calls this to bound memory.
func (s *Store) SweepExpired() int {
	return s.cache.SweepExpired()
}

func (s *Store) loadHash(key string) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if payload, ok := s.cache.Get(key); ok {
		// A corrupt or non-hash payload is treated as an empty hash.
		_ = json.Unmarshal(payload, &fields)
	}
	return fields
}

func (s *Store) storeHash(key string, fields map[string]json.RawMessage) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal hash at key '%s': %w", key, err)
	}
	s.cache.Set(key, payload)
	return nil
}
