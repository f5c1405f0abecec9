// Package memcache provides a bounded in-process cache with per-entry TTL and
// LRU eviction. It is a purely local, best-effort layer: instances do not share
// state across pods and must never be treated as a source of truth.
package memcache

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	key          string
	data         V
	createdAt    time.Time
	ttl          time.Duration
	lastAccessed time.Time
}

// Cache is a bounded key/value cache. All methods are safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	now        func() time.Time
}

// New creates a Cache holding at most maxSize entries. Entries stored without an
// explicit TTL use defaultTTL.
func New[V any](maxSize int, defaultTTL time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[V]{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Set inserts or replaces the entry for key. A replaced entry keeps a single
// LRU slot; a new entry at capacity evicts the least recently used one first.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL inserts or replaces the entry for key with an explicit TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[V])
		ent.data = value
		ent.createdAt = now
		ent.ttl = ttl
		ent.lastAccessed = now
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}

	ent := &entry[V]{key: key, data: value, createdAt: now, ttl: ttl, lastAccessed: now}
	c.items[key] = c.order.PushFront(ent)
}

// Replace swaps the value of an existing unexpired entry in place, keeping the
// entry's TTL stamp, and reports whether the entry existed. A miss stores
// nothing; Redis-style counters rely on this to increment without touching the
// key's expiry.
func (c *Cache[V]) Replace(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	ent := el.Value.(*entry[V])
	if c.expired(ent) {
		c.removeElement(el)
		return false
	}
	ent.data = value
	ent.lastAccessed = c.now()
	c.order.MoveToFront(el)
	return true
}

// Get returns the value for key if present and unexpired. Expired entries are
// removed lazily on access. A hit refreshes the entry's last-accessed time.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.expired(ent) {
		c.removeElement(el)
		return zero, false
	}
	ent.lastAccessed = c.now()
	c.order.MoveToFront(el)
	return ent.data, true
}

// Has reports whether key holds an unexpired entry, without refreshing LRU order.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	if c.expired(el.Value.(*entry[V])) {
		c.removeElement(el)
		return false
	}
	return true
}

// Delete removes the entry for key, reporting whether it existed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// DeleteWhere removes every entry matching the predicate and returns the count.
// Used for prefix/pattern invalidation of a whole entity class.
func (c *Cache[V]) DeleteWhere(match func(key string, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := 0
	for key, el := range c.items {
		ent := el.Value.(*entry[V])
		if match(key, ent.data) {
			c.removeElement(el)
			deleted++
		}
	}
	return deleted
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// SweepExpired removes every expired entry and returns the count. TTL expiry is
// otherwise lazy, so callers may invoke this periodically to bound memory.
func (c *Cache[V]) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, el := range c.items {
		if c.expired(el.Value.(*entry[V])) {
			c.removeElement(el)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[V]) expired(ent *entry[V]) bool {
	return c.now().Sub(ent.createdAt) > ent.ttl
}

func (c *Cache[V]) evictOldest() {
	el := c.order.Back()
	if el != nil {
		c.removeElement(el)
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	ent := el.Value.(*entry[V])
	c.order.Remove(el)
	delete(c.items, ent.key)
}
