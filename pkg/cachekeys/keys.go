package cachekeys

import (
	"fmt"
	"strings"

	"gitlab.com/chatforge/api/guilddesk-service/pkg/crypto"
)

// EntityKey generates the cache key for a single entity addressed by its natural key,
// e.g. EntityKey("guild", "123") -> "entity:guild:123".
func EntityKey(collection, id string) string {
	return fmt.Sprintf("entity:%s:%s", collection, id)
}

// CompoundEntityKey generates the cache key for an entity addressed by a
// compound natural key, e.g. a guild member keyed by guild and user IDs.
func CompoundEntityKey(collection string, parts ...string) string {
	return fmt.Sprintf("entity:%s:%s", collection, strings.Join(parts, ":"))
}

// EntityPattern generates the glob pattern matching every cached entry of a collection.
func EntityPattern(collection string) string {
	return fmt.Sprintf("entity:%s:*", collection)
}

// RateLimitCounterKey generates the cache key for one rate limit window
// counter. The client identifier is hashed so arbitrary inputs (IPs, user IDs,
// API keys) produce bounded, safe key material.
func RateLimitCounterKey(tier, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s:count", tier, crypto.Sha256Hex(identifier))
}

// RateLimitResetKey generates the cache key holding the Unix-millisecond
// timestamp at which a client's current window closes.
func RateLimitResetKey(tier, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s:reset", tier, crypto.Sha256Hex(identifier))
}

// RateLimitIdentifierPattern generates the glob pattern matching the counter
// and reset stamp of one client within a tier.
func RateLimitIdentifierPattern(tier, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s:*", tier, crypto.Sha256Hex(identifier))
}

// RateLimitPattern generates the glob pattern matching every counter of a tier.
func RateLimitPattern(tier string) string {
	return fmt.Sprintf("ratelimit:%s:*", tier)
}
