package cachekeys

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityKeys(t *testing.T) {
	assert.Equal(t, "entity:guilds:123", EntityKey("guilds", "123"))
	assert.Equal(t, "entity:members:g1:u1", CompoundEntityKey("members", "g1", "u1"))
	assert.Equal(t, "entity:guilds:*", EntityPattern("guilds"))
}

func TestRateLimitKeysHashIdentifier(t *testing.T) {
	key := RateLimitCounterKey("api", "203.0.113.9")

	assert.NotContains(t, key, "203.0.113.9", "raw identifiers must not appear in keys")
	require.Equal(t, key, RateLimitCounterKey("api", "203.0.113.9"), "key derivation must be deterministic")
	assert.NotEqual(t, key, RateLimitCounterKey("api", "203.0.113.10"))
	assert.NotEqual(t, key, RateLimitCounterKey("other", "203.0.113.9"), "tiers use distinct counters")
	assert.NotEqual(t, key, RateLimitResetKey("api", "203.0.113.9"), "the counter and its reset stamp use distinct keys")
}

func TestRateLimitPatternsCoverCounterAndResetKeys(t *testing.T) {
	idPattern := RateLimitIdentifierPattern("api", "203.0.113.9")
	tierPattern := RateLimitPattern("api")

	for _, key := range []string{
		RateLimitCounterKey("api", "203.0.113.9"),
		RateLimitResetKey("api", "203.0.113.9"),
	} {
		matched, err := path.Match(idPattern, key)
		require.NoError(t, err)
		assert.True(t, matched, key)

		matched, err = path.Match(tierPattern, key)
		require.NoError(t, err)
		assert.True(t, matched, key)
	}
}
