// Package repository layers caching and bounded retries over the persistent
// store. Reads go cache-first with store fallback; writes invalidate and then
// repopulate the cache. Cache failures are absorbed here so callers only ever
// see classified store errors.
package repository

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/metrics"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/postgres"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/backoff"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/cachekeys"
)

// FilterKeyFunc derives the cache key addressed by a lookup filter. Returning
// "" marks the lookup as uncacheable and the repository skips the cache.
type FilterKeyFunc func(filter domain.Filter) string

// EntityKeyFunc derives the cache key a stored entity lives under. The filter
// and entity derivations can disagree (e.g. a lookup by secondary field), which
// is why writes touch both keys.
type EntityKeyFunc[T any] func(entity *T) string

// Repository is the generic cache-aside, retrying data-access layer for one
// collection. It is safe for concurrent use as long as its store and cache are.
type Repository[T any] struct {
	collection string
	store      domain.Store
	cache      domain.CacheStore
	logger     domain.Logger
	policy     backoff.Policy
	baseTTL    time.Duration
	filterKey  FilterKeyFunc
	entityKey  EntityKeyFunc[T]
}

// NewRepository creates a Repository for a collection. baseTTL is the nominal
// cache lifetime; each populate jitters it so entries do not expire in lockstep.
func NewRepository[T any](
	collection string,
	store domain.Store,
	cache domain.CacheStore,
	logger domain.Logger,
	baseTTL time.Duration,
	filterKey FilterKeyFunc,
	entityKey EntityKeyFunc[T],
) *Repository[T] {
	if store == nil {
		panic("store cannot be nil in NewRepository")
	}
	if cache == nil {
		panic("cache cannot be nil in NewRepository")
	}
	if logger == nil {
		panic("logger cannot be nil in NewRepository")
	}
	return &Repository[T]{
		collection: collection,
		store:      store,
		cache:      cache,
		logger:     logger,
		policy:     backoff.DefaultPolicy(),
		baseTTL:    baseTTL,
		filterKey:  filterKey,
		entityKey:  entityKey,
	}
}

// Collection returns the collection name this repository serves.
func (r *Repository[T]) Collection() string {
	return r.collection
}

// Create persists a new entity under retry and populates the cache with the
// stored form.
func (r *Repository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	result, err := backoff.Do(ctx, r.retryPolicy(ctx, "insert"), func(ctx context.Context) (*T, error) {
		var out T
		if err := r.store.Insert(ctx, r.collection, entity, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, r.storeError(ctx, "insert", err)
	}

	r.populate(ctx, result)
	return result, nil
}

// FindOne returns the first entity matching the filter, or nil when none does.
// When the filter derives a cache key, the cache is consulted first and a store
// hit is written back. A cache failure degrades to a plain store read.
func (r *Repository[T]) FindOne(ctx context.Context, filter domain.Filter) (*T, error) {
	if key := r.filterCacheKey(filter); key != "" {
		var cached T
		found, err := r.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			metrics.IncrementCacheError(r.collection)
			r.logger.Warn(ctx, "Cache read failed, falling back to store", "collection", r.collection, "key", key, "error", err.Error())
		case found:
			metrics.IncrementCacheHit(r.collection)
			return &cached, nil
		default:
			metrics.IncrementCacheMiss(r.collection)
		}
	}

	result, err := backoff.Do(ctx, r.retryPolicy(ctx, "find_one"), func(ctx context.Context) (*T, error) {
		var out T
		if err := r.store.FindOne(ctx, r.collection, filter, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.storeError(ctx, "find_one", err)
	}

	r.populate(ctx, result)
	return result, nil
}

// Find returns up to limit entities matching the filter (limit <= 0 means all).
// Result sets are never cached; only single-entity reads are.
func (r *Repository[T]) Find(ctx context.Context, filter domain.Filter, limit int) ([]T, error) {
	results, err := backoff.Do(ctx, r.retryPolicy(ctx, "find"), func(ctx context.Context) ([]T, error) {
		var out []T
		if err := r.store.Find(ctx, r.collection, filter, limit, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, r.storeError(ctx, "find", err)
	}
	return results, nil
}

// UpdateOne applies patch to the first entity matching the filter and returns
// the updated form, or nil when nothing matched.
func (r *Repository[T]) UpdateOne(ctx context.Context, filter domain.Filter, patch domain.Update) (*T, error) {
	return r.update(ctx, filter, patch, false)
}

// Upsert applies patch to the first entity matching the filter, creating the
// entity from filter plus patch when nothing matched.
func (r *Repository[T]) Upsert(ctx context.Context, filter domain.Filter, patch domain.Update) (*T, error) {
	return r.update(ctx, filter, patch, true)
}

func (r *Repository[T]) update(ctx context.Context, filter domain.Filter, patch domain.Update, upsert bool) (*T, error) {
	op := "update_one"
	if upsert {
		op = "upsert"
	}

	result, err := backoff.Do(ctx, r.retryPolicy(ctx, op), func(ctx context.Context) (*T, error) {
		var out T
		if err := r.store.UpdateOne(ctx, r.collection, filter, patch, upsert, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.storeError(ctx, op, err)
	}

	// Invalidate the key the filter addresses before repopulating the key the
	// stored entity derives. The two can differ, so both sides are touched.
	r.invalidate(ctx, r.filterCacheKey(filter))
	r.populate(ctx, result)
	return result, nil
}

// DeleteOne removes the first entity matching the filter and returns the number
// deleted. The entity is looked up first so its cache key is known; cache
// entries are only invalidated when a row was actually removed.
func (r *Repository[T]) DeleteOne(ctx context.Context, filter domain.Filter) (int64, error) {
	existing, err := r.FindOne(ctx, filter)
	if err != nil {
		return 0, err
	}

	deleted, err := backoff.Do(ctx, r.retryPolicy(ctx, "delete_one"), func(ctx context.Context) (int64, error) {
		return r.store.DeleteOne(ctx, r.collection, filter)
	})
	if err != nil {
		return 0, r.storeError(ctx, "delete_one", err)
	}
	if deleted == 0 {
		return 0, nil
	}

	filterKey := r.filterCacheKey(filter)
	r.invalidate(ctx, filterKey)
	if existing != nil && r.entityKey != nil {
		if key := r.entityKey(existing); key != "" && key != filterKey {
			r.invalidate(ctx, key)
		}
	}
	return deleted, nil
}

// Count returns the number of entities matching the filter. Never cached.
func (r *Repository[T]) Count(ctx context.Context, filter domain.Filter) (int64, error) {
	count, err := backoff.Do(ctx, r.retryPolicy(ctx, "count"), func(ctx context.Context) (int64, error) {
		return r.store.Count(ctx, r.collection, filter)
	})
	if err != nil {
		return 0, r.storeError(ctx, "count", err)
	}
	return count, nil
}

// ClearCache drops every cached entry of this collection, returning the number
// of keys removed.
func (r *Repository[T]) ClearCache(ctx context.Context) (int64, error) {
	deleted, err := r.cache.DeleteByPattern(ctx, cachekeys.EntityPattern(r.collection))
	if err != nil {
		metrics.IncrementCacheError(r.collection)
		r.logger.Warn(ctx, "Cache clear failed", "collection", r.collection, "error", err.Error())
		return 0, nil
	}
	return deleted, nil
}

func (r *Repository[T]) filterCacheKey(filter domain.Filter) string {
	if r.filterKey == nil {
		return ""
	}
	return r.filterKey(filter)
}

// populate writes an entity back to the cache under its derived key. Failures
// are recorded and absorbed; a cold cache is never worth failing a read for.
func (r *Repository[T]) populate(ctx context.Context, entity *T) {
	if entity == nil || r.entityKey == nil {
		return
	}
	key := r.entityKey(entity)
	if key == "" {
		return
	}
	if err := r.cache.Set(ctx, key, entity, r.jitteredTTL()); err != nil {
		metrics.IncrementCacheError(r.collection)
		r.logger.Warn(ctx, "Cache populate failed", "collection", r.collection, "key", key, "error", err.Error())
	}
}

func (r *Repository[T]) invalidate(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := r.cache.Delete(ctx, key); err != nil {
		metrics.IncrementCacheError(r.collection)
		r.logger.Warn(ctx, "Cache invalidation failed", "collection", r.collection, "key", key, "error", err.Error())
	}
}

// jitteredTTL spreads cache expirations across base TTL ±10% so entities
// written together do not expire together.
func (r *Repository[T]) jitteredTTL() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	factor := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(r.baseTTL) * factor)
}

func (r *Repository[T]) retryPolicy(ctx context.Context, operation string) backoff.Policy {
	return r.policy.
		WithShouldRetry(postgres.ShouldRetry).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			metrics.IncrementStoreRetry(operation)
			r.logger.Warn(ctx, "Retrying store operation",
				"collection", r.collection,
				"operation", operation,
				"failed_attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"error", err.Error(),
			)
		})
}

func (r *Repository[T]) storeError(ctx context.Context, operation string, err error) error {
	classified := postgres.Classify(err)
	metrics.IncrementStoreError(string(classified.Kind))
	r.logger.Error(ctx, "Store operation failed",
		"collection", r.collection,
		"operation", operation,
		"kind", string(classified.Kind),
		"retryable", classified.Retryable,
		"error", classified.Error(),
	)
	return classified
}
