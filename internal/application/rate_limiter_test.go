package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/localcache"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/logger"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// erroringCache fails every Increment, standing in for a broken cache backend.
type erroringCache struct {
	domain.CacheStore
}

func (c *erroringCache) Increment(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("cache backend unavailable")
}

func rateLimitConfig(windowMs, maxRequests int) config.Provider {
	return config.NewStaticProvider(&config.Config{
		RateLimit: config.RateLimitConfig{
			Tiers: map[string]config.RateLimitTier{
				"api": {WindowMs: windowMs, MaxRequests: maxRequests},
			},
		},
	})
}

func newConnectedLocalCache(t *testing.T) domain.CacheStore {
	t.Helper()
	cache := localcache.NewStore(256, time.Minute, logger.NewNop())
	require.NoError(t, cache.Connect(context.Background()))
	return cache
}

func TestCheckConsumesFixedWindowBudget(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(1000, 3), newConnectedLocalCache(t), logger.NewNop())
	current := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return current }

	for want := 2; want >= 0; want-- {
		decision := limiter.Check(ctx, "api", "client-1")
		require.True(t, decision.Allowed)
		require.Equal(t, want, decision.Remaining)
		require.Equal(t, 3, decision.Limit)
	}

	denied := limiter.Check(ctx, "api", "client-1")
	require.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.Equal(t, current.Add(time.Second).UnixMilli(), denied.ResetAt.UnixMilli())
}

func TestCheckResetAtIsOneWindowAfterFirstRequest(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(1000, 3), newConnectedLocalCache(t), logger.NewNop())
	// Pinned 400ms past a clock second to catch any boundary-aligned window math.
	current := time.Unix(1700000000, 0).Add(400 * time.Millisecond)
	limiter.now = func() time.Time { return current }

	first := limiter.Check(ctx, "api", "client-1")
	require.True(t, first.Allowed)
	require.Equal(t, current.Add(time.Second).UnixMilli(), first.ResetAt.UnixMilli(),
		"the window opens at the first request, not at a clock boundary")

	current = current.Add(300 * time.Millisecond)
	second := limiter.Check(ctx, "api", "client-1")
	require.True(t, second.Allowed)
	assert.Equal(t, first.ResetAt.UnixMilli(), second.ResetAt.UnixMilli(),
		"later hits report the close of the window already open")
}

func TestCheckIsolatesIdentifiersAndTiers(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(1000, 1), newConnectedLocalCache(t), logger.NewNop())
	current := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return current }

	require.True(t, limiter.Check(ctx, "api", "client-1").Allowed)
	require.False(t, limiter.Check(ctx, "api", "client-1").Allowed)
	assert.True(t, limiter.Check(ctx, "api", "client-2").Allowed, "another identifier has its own budget")
}

func TestCheckResetsOnNewWindow(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(50, 1), newConnectedLocalCache(t), logger.NewNop())

	first := limiter.Check(ctx, "api", "client-1")
	require.True(t, first.Allowed)
	require.False(t, limiter.Check(ctx, "api", "client-1").Allowed)

	time.Sleep(80 * time.Millisecond)

	fresh := limiter.Check(ctx, "api", "client-1")
	require.True(t, fresh.Allowed, "an expired window grants a fresh budget")
	assert.True(t, fresh.ResetAt.After(first.ResetAt), "a fresh window closes one window after its own first request")
}

func TestCheckFailsOpenOnCacheError(t *testing.T) {
	ctx := context.Background()
	cache := &erroringCache{CacheStore: newConnectedLocalCache(t)}
	limiter := NewRateLimiter(rateLimitConfig(1000, 3), cache, logger.NewNop())

	for i := 0; i < 10; i++ {
		decision := limiter.Check(ctx, "api", "client-1")
		require.True(t, decision.Allowed, "a broken cache must never throttle traffic")
		require.Equal(t, 3, decision.Remaining, "fail-open reports the full budget")
	}
}

func TestCheckFailsOpenWhenCacheDisconnected(t *testing.T) {
	ctx := context.Background()
	// Never connected: every operation reports a clean no-op.
	cache := localcache.NewStore(256, time.Minute, logger.NewNop())
	limiter := NewRateLimiter(rateLimitConfig(1000, 3), cache, logger.NewNop())

	decision := limiter.Check(ctx, "api", "client-1")
	require.True(t, decision.Allowed)
	assert.Equal(t, 3, decision.Remaining)
}

func TestCheckAllowsUnknownTier(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(1000, 3), newConnectedLocalCache(t), logger.NewNop())

	decision := limiter.Check(ctx, "nonexistent", "client-1")
	require.True(t, decision.Allowed)
}

func TestResetClearsBudget(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(1000, 1), newConnectedLocalCache(t), logger.NewNop())
	current := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return current }

	require.True(t, limiter.Check(ctx, "api", "client-1").Allowed)
	require.False(t, limiter.Check(ctx, "api", "client-1").Allowed)

	removed, err := limiter.Reset(ctx, "api", "client-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed, "the counter and its reset stamp are both cleared")

	assert.True(t, limiter.Check(ctx, "api", "client-1").Allowed)
}

func TestCleanupClearsWholeTier(t *testing.T) {
	ctx := context.Background()
	limiter := NewRateLimiter(rateLimitConfig(1000, 5), newConnectedLocalCache(t), logger.NewNop())
	current := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return current }

	require.True(t, limiter.Check(ctx, "api", "client-1").Allowed)
	require.True(t, limiter.Check(ctx, "api", "client-2").Allowed)

	removed, err := limiter.Cleanup(ctx, "api")
	require.NoError(t, err)
	assert.EqualValues(t, 4, removed, "two keys per identifier")
}
