package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("p1"), "attempt %d", i)
	}
	assert.False(t, rl.Allow("p1"))
}

func TestJoinRateLimiterPerPeer(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("p1"))
	assert.False(t, rl.Allow("p1"))
	assert.True(t, rl.Allow("p2"))
}

func TestJoinRateLimiterWindowSlides(t *testing.T) {
	rl := NewJoinRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("p1"))
	assert.False(t, rl.Allow("p1"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("p1"))
}
