package webhooks

import "time"

// BackoffStrategy decides how long to wait before retrying a transiently
// failed delivery attempt. attempt is the number of attempts already made,
// starting at 1 for the wait after the first failure.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay for every attempt, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay implements BackoffStrategy.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}

// DefaultBackoffStrategy returns the exponential backoff used when none is
// configured.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{Base: defaultBackoffBase, Max: defaultBackoffMax}
}
