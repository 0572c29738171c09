package limiter

import (
	"sync"
	"time"

	"github.com/Shugur-Network/dmsync/internal/logger"
	"go.uber.org/zap"
)

// RateLimit defines the limits for a specific rate limiting key
type RateLimit struct {
	MaxEvents  int           // Maximum number of events allowed per window
	WindowSize time.Duration // Time window for the limit
	BurstSize  int           // Extra events allowed at the start of a window
}

// Counter tracks rate limiting state for a specific key
type Counter struct {
	count      int
	burstCount int
	lastReset  time.Time
	lastSeen   time.Time
}

// RateLimiter is a fixed-window limiter keyed by client, used by the HTTP API.
type RateLimiter struct {
	limit  RateLimit
	counts map[string]*Counter
	mutex  sync.Mutex
	now    func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per key.
// A zero perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit: RateLimit{
			MaxEvents:  perMinute,
			WindowSize: time.Minute,
			BurstSize:  perMinute / 10,
		},
		counts: make(map[string]*Counter),
		now:    time.Now,
	}
}

// Allow checks if an event should be allowed for key
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" || rl.limit.MaxEvents <= 0 {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	counter, exists := rl.counts[key]
	if !exists {
		counter = &Counter{lastReset: now}
		rl.counts[key] = counter
	}
	counter.lastSeen = now

	if now.Sub(counter.lastReset) > rl.limit.WindowSize {
		counter.count = 0
		counter.burstCount = 0
		counter.lastReset = now
	}

	if counter.count < rl.limit.MaxEvents {
		counter.count++
		return true
	}
	if counter.burstCount < rl.limit.BurstSize {
		counter.burstCount++
		return true
	}

	logger.Debug("Rate limit exceeded",
		zap.String("key", key),
		zap.Int("count", counter.count),
		zap.Int("burst_count", counter.burstCount),
	)
	return false
}

// Cleanup removes counters idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, counter := range rl.counts {
		if now.Sub(counter.lastSeen) > maxIdle {
			delete(rl.counts, key)
		}
	}
}

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.counts)
}
