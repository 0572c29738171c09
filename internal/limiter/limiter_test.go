package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(10)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 11; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"), "limit plus burst exhausted")
	assert.True(t, rl.Allow("5.6.7.8"), "keys are independent")

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"), "new window")

	rl.Cleanup(time.Minute)
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("k"))
	}
}

func TestKeyedPacer(t *testing.T) {
	p := NewKeyedPacer(1, 2)
	assert.True(t, p.Allow("wss://a"))
	assert.True(t, p.Allow("wss://a"))
	assert.False(t, p.Allow("wss://a"), "burst spent")
	assert.True(t, p.Allow("wss://b"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx, "wss://a"), "next token is a second away")

	unlimited := NewKeyedPacer(0, 0)
	for i := 0; i < 50; i++ {
		require.NoError(t, unlimited.Wait(context.Background(), "wss://a"))
	}

	p.Cleanup(0)
	assert.Empty(t, p.keys)
}
