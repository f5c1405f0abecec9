package localcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/logger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(64, time.Minute, logger.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.Set(ctx, "entity:guilds:g1", payload{Name: "Guild One", Count: 3}, time.Minute))

	var out payload
	found, err := s.Get(ctx, "entity:guilds:g1", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Guild One", out.Name)
	assert.Equal(t, 3, out.Count)
}

func TestGetMissesAbsentKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var out string
	found, err := s.Get(ctx, "nope", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOperationsNoOpWhenDisconnected(t *testing.T) {
	ctx := context.Background()
	s := NewStore(64, time.Minute, logger.NewNop())

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	var out string
	found, err := s.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found, "a disconnected store must read as empty")

	count, err := s.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDisconnectDropsEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Connect(ctx))

	var out string
	found, err := s.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteByPatternMatchesGlob(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Set(ctx, "entity:guilds:g1", 1, time.Minute))
	require.NoError(t, s.Set(ctx, "entity:guilds:g2", 2, time.Minute))
	require.NoError(t, s.Set(ctx, "entity:users:u1", 3, time.Minute))

	deleted, err := s.DeleteByPattern(ctx, "entity:guilds:*")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var out int
	found, err := s.Get(ctx, "entity:users:u1", &out)
	require.NoError(t, err)
	assert.True(t, found, "non-matching keys must survive")
}

func TestIncrementStartsFromZero(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "counter")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestIncrementKeepsWindowExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Increment(ctx, "window")
	require.NoError(t, err)
	ok, err := s.Expire(ctx, "window", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Increment(ctx, "window")
	require.NoError(t, err)
	require.EqualValues(t, 2, got)

	time.Sleep(40 * time.Millisecond)

	got, err = s.Increment(ctx, "window")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got, "incrementing must not extend the counter's expiry")
}

func TestSetWithoutTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Set(ctx, "pinned", "v", 0))

	time.Sleep(5 * time.Millisecond)

	var out string
	found, err := s.Get(ctx, "pinned", &out)
	require.NoError(t, err)
	require.True(t, found, "ttl <= 0 stores without expiry")
	assert.Equal(t, "v", out)
}

func TestIncrementRejectsNonInteger(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Set(ctx, "k", "not a number", time.Minute))

	_, err := s.Increment(ctx, "k")
	require.Error(t, err)
}

func TestExpireReportsExistence(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Set(ctx, "k", 1, time.Minute))

	ok, err := s.Expire(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Expire(ctx, "missing", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashFields(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SetHashField(ctx, "routes", "chat", "pod-1"))
	require.NoError(t, s.SetHashField(ctx, "routes", "agent", "pod-2"))

	var owner string
	found, err := s.GetHashField(ctx, "routes", "chat", &owner)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pod-1", owner)

	all, err := s.GetAllHashFields(ctx, "routes")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteHashField(ctx, "routes", "chat"))
	found, err = s.GetHashField(ctx, "routes", "chat", &owner)
	require.NoError(t, err)
	assert.False(t, found)

	// Removing the last field removes the hash key itself.
	require.NoError(t, s.DeleteHashField(ctx, "routes", "agent"))
	exists, err := s.Exists(ctx, "routes")
	require.NoError(t, err)
	assert.False(t, exists)
}
