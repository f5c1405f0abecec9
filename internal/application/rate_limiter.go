package application

import (
	"context"
	"time"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/metrics"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/cachekeys"
)

// RateLimitDecision is the outcome of one rate limit check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter enforces fixed-window request budgets per (tier, identifier)
// against the shared cache. A window opens at an identifier's first request
// and closes exactly one window length later; the counter and its reset stamp
// expire with the window, so the first request after the close starts a fresh
// budget. When the cache is unavailable the limiter fails open with the full
// budget; throttling is protection, not a correctness requirement.
type RateLimiter struct {
	cfgProvider config.Provider
	cache       domain.CacheStore
	logger      domain.Logger

	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the shared cache.
func NewRateLimiter(cfgProvider config.Provider, cache domain.CacheStore, logger domain.Logger) *RateLimiter {
	if cfgProvider == nil {
		panic("config provider cannot be nil in NewRateLimiter")
	}
	if cache == nil {
		panic("cache cannot be nil in NewRateLimiter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewRateLimiter")
	}
	return &RateLimiter{
		cfgProvider: cfgProvider,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// Check consumes one request from the identifier's budget in the given tier
// and returns the decision. An unknown or unconfigured tier always allows.
func (l *RateLimiter) Check(ctx context.Context, tier, identifier string) RateLimitDecision {
	tierCfg, ok := l.cfgProvider.Get().RateLimit.Tiers[tier]
	if !ok || tierCfg.MaxRequests <= 0 || tierCfg.WindowMs <= 0 {
		l.logger.Debug(ctx, "Rate limit tier not configured, allowing", "tier", tier)
		return RateLimitDecision{Allowed: true, Limit: 0, Remaining: 0, ResetAt: l.now()}
	}

	window := time.Duration(tierCfg.WindowMs) * time.Millisecond
	now := l.now()
	counterKey := cachekeys.RateLimitCounterKey(tier, identifier)
	resetKey := cachekeys.RateLimitResetKey(tier, identifier)

	count, err := l.cache.Increment(ctx, counterKey)
	if err != nil || count == 0 {
		// count == 0 means the cache reported a disconnected no-op.
		metrics.IncrementRateLimitDecision(tier, "fail_open")
		if err != nil {
			l.logger.Warn(ctx, "Rate limit check failed, failing open", "tier", tier, "error", err.Error())
		}
		return RateLimitDecision{Allowed: true, Limit: tierCfg.MaxRequests, Remaining: tierCfg.MaxRequests, ResetAt: now.Add(window)}
	}

	resetAt := now.Add(window)
	if count == 1 {
		// The first hit opens the window: it stamps the counter's expiry and
		// records when the window closes for later hits to report.
		l.stampWindow(ctx, tier, counterKey, resetKey, window, resetAt)
	} else {
		var resetMs int64
		if found, gerr := l.cache.Get(ctx, resetKey, &resetMs); gerr == nil && found {
			resetAt = time.UnixMilli(resetMs)
		} else {
			// The counter outlived its reset stamp, so the counter's expiry
			// may have been lost too. Re-stamp a full window to self-heal
			// rather than throttle the identifier forever.
			l.stampWindow(ctx, tier, counterKey, resetKey, window, resetAt)
		}
	}

	if count > int64(tierCfg.MaxRequests) {
		metrics.IncrementRateLimitDecision(tier, "denied")
		l.logger.Debug(ctx, "Rate limit exceeded", "tier", tier, "count", count, "limit", tierCfg.MaxRequests)
		return RateLimitDecision{Allowed: false, Limit: tierCfg.MaxRequests, Remaining: 0, ResetAt: resetAt}
	}

	metrics.IncrementRateLimitDecision(tier, "allowed")
	return RateLimitDecision{
		Allowed:   true,
		Limit:     tierCfg.MaxRequests,
		Remaining: tierCfg.MaxRequests - int(count),
		ResetAt:   resetAt,
	}
}

// Reset clears the window counter and reset stamp of one identifier in a
// tier, returning the number of keys removed.
func (l *RateLimiter) Reset(ctx context.Context, tier, identifier string) (int64, error) {
	return l.cache.DeleteByPattern(ctx, cachekeys.RateLimitIdentifierPattern(tier, identifier))
}

// Cleanup removes every rate limit key of a tier across all identifiers.
func (l *RateLimiter) Cleanup(ctx context.Context, tier string) (int64, error) {
	return l.cache.DeleteByPattern(ctx, cachekeys.RateLimitPattern(tier))
}

// stampWindow marks a window as open: the counter expires when the window
// closes and the reset stamp carries the close time for later hits. Stamp
// failures are logged only; the count alone still throttles correctly.
func (l *RateLimiter) stampWindow(ctx context.Context, tier, counterKey, resetKey string, window time.Duration, resetAt time.Time) {
	if _, err := l.cache.Expire(ctx, counterKey, window); err != nil {
		l.logger.Warn(ctx, "Failed to set rate limit window expiry", "tier", tier, "error", err.Error())
	}
	if err := l.cache.Set(ctx, resetKey, resetAt.UnixMilli(), window); err != nil {
		l.logger.Warn(ctx, "Failed to record rate limit window close", "tier", tier, "error", err.Error())
	}
}
