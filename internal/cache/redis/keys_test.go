package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyspace(t *testing.T) {
	assert.Equal(t, Keyspace("navledger"), newKeyspace(""))
	assert.Equal(t, Keyspace("staging"), newKeyspace("staging:"))
	assert.Equal(t, "staging:runs", newKeyspace("staging").Key("runs"))
}

func TestLockKey(t *testing.T) {
	lm := newLockManager(nil, newKeyspace(""))
	assert.Equal(t, "navledger:lock:run:2024-03-15", lm.lockKey("run:2024-03-15"))

	lm = newLockManager(nil, newKeyspace("uat"))
	assert.Equal(t, "uat:lock:run:2024-03-15", lm.lockKey("run:2024-03-15"))
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(nil, newKeyspace(""), 0, 0)
	assert.Equal(t, 1, rl.limit)
	assert.Equal(t, time.Second, rl.window)
	assert.Equal(t, "navledger:ratelimit:HFMX", rl.rateLimitKey("HFMX"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
