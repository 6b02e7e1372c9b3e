package webhooks

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// tokenBucket is the refill state for one rate-limited key. Tokens refill
// continuously at capacity/period and are capped at capacity.
type tokenBucket struct {
	capacity float64
	period   time.Duration
	clock    clockwork.Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// tryAcquire refills the bucket for the elapsed time, then takes one token if
// at least one is available. It never blocks; a denied caller decides for
// itself whether to skip, queue, or delay.
func (b *tokenBucket) tryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() / b.period.Seconds() * b.capacity
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter shapes dispatch load with one token bucket per resource key
// (the engine keys buckets by target URL). Buckets materialize lazily on
// first use; the outer lock only guards the map.
type RateLimiter struct {
	capacity float64
	period   time.Duration
	clock    clockwork.Clock

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter creates a limiter that grants capacity actions per period
// for each distinct key.
func NewRateLimiter(capacity int, period time.Duration, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		capacity: float64(capacity),
		period:   period,
		clock:    clockwork.NewRealClock(),
		buckets:  make(map[string]*tokenBucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire attempts to take one token from the bucket for key.
func (l *RateLimiter) TryAcquire(key string) bool {
	return l.bucket(key).tryAcquire()
}

func (l *RateLimiter) bucket(key string) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{
			capacity:   l.capacity,
			period:     l.period,
			clock:      l.clock,
			tokens:     l.capacity,
			lastRefill: l.clock.Now(),
		}
		l.buckets[key] = b
	}
	return b
}
