package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddesk_cache_operations_total",
			Help: "Entity cache lookups by collection and outcome (hit, miss, error).",
		},
		[]string{"collection", "outcome"},
	)

	StoreRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddesk_store_retries_total",
			Help: "Retried persistent-store attempts by operation.",
		},
		[]string{"operation"},
	)

	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddesk_store_errors_total",
			Help: "Classified persistent-store failures by error kind.",
		},
		[]string{"kind"},
	)

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddesk_rate_limit_decisions_total",
			Help: "Rate limiter decisions by tier and outcome (allowed, denied, fail_open).",
		},
		[]string{"tier", "outcome"},
	)

	SessionRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddesk_session_refreshes_total",
			Help: "OAuth token refresh attempts by outcome (success, failure, shared).",
		},
		[]string{"outcome"},
	)

	ActiveSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guilddesk_active_sessions",
			Help: "Number of session records swept as active at the last cleanup pass.",
		},
	)
)

// IncrementCacheHit records an entity cache hit for a collection.
func IncrementCacheHit(collection string) {
	CacheOperationsTotal.WithLabelValues(collection, "hit").Inc()
}

// IncrementCacheMiss records an entity cache miss for a collection.
func IncrementCacheMiss(collection string) {
	CacheOperationsTotal.WithLabelValues(collection, "miss").Inc()
}

// IncrementCacheError records a degraded (errored) cache access for a collection.
func IncrementCacheError(collection string) {
	CacheOperationsTotal.WithLabelValues(collection, "error").Inc()
}

// IncrementStoreRetry records a retried store attempt for an operation.
func IncrementStoreRetry(operation string) {
	StoreRetriesTotal.WithLabelValues(operation).Inc()
}

// IncrementStoreError records a classified store failure.
func IncrementStoreError(kind string) {
	StoreErrorsTotal.WithLabelValues(kind).Inc()
}

// IncrementRateLimitDecision records a limiter decision for a tier.
func IncrementRateLimitDecision(tier, outcome string) {
	RateLimitDecisionsTotal.WithLabelValues(tier, outcome).Inc()
}

// IncrementSessionRefresh records a session refresh outcome.
func IncrementSessionRefresh(outcome string) {
	SessionRefreshesTotal.WithLabelValues(outcome).Inc()
}
