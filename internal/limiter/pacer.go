package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type pacedKey struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// KeyedPacer spaces out requests per key (a relay URL) with a token bucket.
type KeyedPacer struct {
	limit rate.Limit
	burst int

	mu   sync.Mutex
	keys map[string]*pacedKey
}

// NewKeyedPacer allows perSecond requests per key with the given burst.
// A zero perSecond disables pacing.
func NewKeyedPacer(perSecond float64, burst int) *KeyedPacer {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &KeyedPacer{
		limit: limit,
		burst: burst,
		keys:  make(map[string]*pacedKey),
	}
}

func (p *KeyedPacer) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.keys[key]
	if !ok {
		k = &pacedKey{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.keys[key] = k
	}
	k.lastUsed = time.Now()
	return k.limiter
}

// Wait blocks until a request to key is allowed or ctx is done.
func (p *KeyedPacer) Wait(ctx context.Context, key string) error {
	return p.get(key).Wait(ctx)
}

// Allow reports whether a request to key may happen now.
func (p *KeyedPacer) Allow(key string) bool {
	return p.get(key).Allow()
}

// Cleanup forgets keys unused for longer than maxIdle.
func (p *KeyedPacer) Cleanup(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for key, k := range p.keys {
		if k.lastUsed.Before(cutoff) {
			delete(p.keys, key)
		}
	}
}
