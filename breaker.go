package webhooks

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrCircuitOpen marks a delivery that was rejected without a call because the
// target's circuit breaker is open. It is recorded on the delivery, never
// returned to the event producer.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is the current position of a circuit breaker's state machine.
type BreakerState int

const (
	// BreakerClosed lets calls through and counts consecutive failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the recovery timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets exactly one probe call through.
	BreakerHalfOpen
)

// String returns the conventional name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks call outcomes for a single target endpoint and
// decides whether the next call should even be attempted. Transitions happen
// lazily inside Permit; there is no background timer.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	clock            clockwork.Clock
	logger           *zap.Logger

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
}

func newCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, clock clockwork.Clock, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		clock:            clock,
		logger:           logger,
		state:            BreakerClosed,
	}
}

// Permit reports whether a call may proceed. When the breaker is open and the
// recovery timeout has elapsed it moves to half-open as a side effect, so the
// caller's next call becomes the single probe.
func (b *CircuitBreaker) Permit() bool {
	ok, _ := b.permit()
	return ok
}

// permit additionally reports whether the granted call is the half-open
// probe. A probe holder that never makes the call must hand the slot back
// via CancelProbe, or the breaker stays half-open forever.
func (b *CircuitBreaker) permit() (ok, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true, false
	case BreakerHalfOpen:
		// A probe is already in flight; reject everyone else until its
		// outcome is recorded.
		return false, false
	case BreakerOpen:
		if b.clock.Since(b.openedAt) < b.recoveryTimeout {
			return false, false
		}
		b.state = BreakerHalfOpen
		b.logger.Info("Circuit breaker half-open, allowing probe call")
		return true, true
	default:
		return false, false
	}
}

// CancelProbe returns an unused probe slot. The breaker reverts to open but
// keeps its original opening time, so the recovery window stays elapsed and
// the next Permit hands the probe out again. Only the caller that was granted
// the probe may cancel it, and only instead of recording an outcome.
func (b *CircuitBreaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
	}
}

// RecordSuccess resets the breaker after a successful call. A successful
// half-open probe closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerClosed {
		b.logger.Info("Circuit breaker closed")
	}
	b.state = BreakerClosed
	b.consecutiveFailures = 0
}

// RecordFailure counts a failed call. Reaching the failure threshold while
// closed, or failing the half-open probe, opens the circuit.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = b.clock.Now()
		b.logger.Warn("Circuit breaker reopened after failed probe")
	case BreakerClosed:
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = BreakerOpen
			b.openedAt = b.clock.Now()
			b.logger.Warn("Circuit breaker opened",
				zap.Int("consecutive_failures", b.consecutiveFailures))
		}
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// breakerGroup lazily materializes one breaker per target endpoint. The group
// lock only guards the map; each breaker locks independently so unrelated
// endpoints never serialize on each other.
type breakerGroup struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	clock            clockwork.Clock
	logger           *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func newBreakerGroup(failureThreshold int, recoveryTimeout time.Duration, clock clockwork.Clock, logger *zap.Logger) *breakerGroup {
	return &breakerGroup{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		clock:            clock,
		logger:           logger,
		breakers:         make(map[string]*CircuitBreaker),
	}
}

func (g *breakerGroup) get(targetURL string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[targetURL]
	if !ok {
		b = newCircuitBreaker(g.failureThreshold, g.recoveryTimeout, g.clock,
			g.logger.With(zap.String("target_url", targetURL)))
		g.breakers[targetURL] = b
	}
	return b
}
