package memcache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newClockedCache[V any](t *testing.T, maxSize int, defaultTTL time.Duration) (*Cache[V], *time.Time) {
	t.Helper()
	c := New[V](maxSize, defaultTTL)
	current := time.Now()
	c.now = func() time.Time { return current }
	return c, &current
}

func TestGetReturnsStoredValue(t *testing.T) {
	c, _ := newClockedCache[string](t, 10, time.Minute)

	c.Set("greeting", "hello")

	got, ok := c.Get("greeting")
	require.True(t, ok)
	require.Equal(t, "hello", got)
}

func TestGetExpiresEntriesLazily(t *testing.T) {
	c, clock := newClockedCache[string](t, 10, 50*time.Millisecond)

	c.Set("k", "v")
	*clock = clock.Add(51 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, c.Len(), "expired entry should be removed on access")
}

func TestSetWithTTLOverridesDefault(t *testing.T) {
	c, clock := newClockedCache[int](t, 10, time.Millisecond)

	c.SetWithTTL("long", 42, time.Hour)
	*clock = clock.Add(time.Minute)

	got, ok := c.Get("long")
	require.True(t, ok)
	require.Equal(t, 42, got)
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c, _ := newClockedCache[string](t, 3, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	// Touch "a" so "b" becomes the oldest.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", "4")

	require.Equal(t, 3, c.Len())
	require.False(t, c.Has("b"), "least recently used entry should be evicted")
	require.True(t, c.Has("a"))
	require.True(t, c.Has("c"))
	require.True(t, c.Has("d"))
}

func TestReplaceDoesNotEvict(t *testing.T) {
	c, _ := newClockedCache[string](t, 2, time.Minute)

	c.Set("a", "1")
	c.Set("a", "updated")
	c.Set("b", "2")

	require.Equal(t, 2, c.Len())
	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "updated", got)
	require.True(t, c.Has("b"))
}

func TestReplaceKeepsTTLStamp(t *testing.T) {
	c, clock := newClockedCache[int](t, 10, time.Minute)

	c.SetWithTTL("counter", 1, 50*time.Millisecond)
	*clock = clock.Add(30 * time.Millisecond)
	require.True(t, c.Replace("counter", 2))

	got, ok := c.Get("counter")
	require.True(t, ok)
	require.Equal(t, 2, got)

	// 60ms past the original stamp: the replace must not have restarted the TTL.
	*clock = clock.Add(30 * time.Millisecond)
	_, ok = c.Get("counter")
	require.False(t, ok, "replacing a value must not extend its lifetime")
}

func TestReplaceMissesAbsentAndExpiredEntries(t *testing.T) {
	c, clock := newClockedCache[int](t, 10, time.Minute)

	require.False(t, c.Replace("missing", 1))

	c.SetWithTTL("stale", 1, 10*time.Millisecond)
	*clock = clock.Add(time.Second)
	require.False(t, c.Replace("stale", 2))
	require.Equal(t, 0, c.Len(), "an expired entry is removed on the failed replace")
}

func TestDeleteReportsExistence(t *testing.T) {
	c, _ := newClockedCache[string](t, 10, time.Minute)

	c.Set("k", "v")
	require.True(t, c.Delete("k"))
	require.False(t, c.Delete("k"))
	require.False(t, c.Has("k"))
}

func TestDeleteWhereRemovesMatching(t *testing.T) {
	c, _ := newClockedCache[string](t, 10, time.Minute)

	c.Set("entity:guilds:1", "g1")
	c.Set("entity:guilds:2", "g2")
	c.Set("entity:users:1", "u1")

	removed := c.DeleteWhere(func(key string, _ string) bool {
		return strings.HasPrefix(key, "entity:guilds:")
	})

	require.Equal(t, 2, removed)
	require.Equal(t, 1, c.Len())
	require.True(t, c.Has("entity:users:1"))
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	c, clock := newClockedCache[string](t, 10, time.Minute)

	c.SetWithTTL("short", "s", 10*time.Millisecond)
	c.SetWithTTL("long", "l", time.Hour)
	*clock = clock.Add(time.Second)

	removed := c.SweepExpired()

	require.Equal(t, 1, removed)
	require.Equal(t, 1, c.Len())
	require.True(t, c.Has("long"))
}

func TestClear(t *testing.T) {
	c, _ := newClockedCache[string](t, 10, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Clear()

	require.Equal(t, 0, c.Len())
	require.False(t, c.Has("a"))
}
