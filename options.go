package webhooks

import (
	"net/http"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/taskplane/webhooks/storage"
)

const (
	defaultMaxAttempts      = 3
	defaultAttemptTimeout   = 30 * time.Second
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
	defaultBackoffBase      = 500 * time.Millisecond
	defaultBackoffMax       = 30 * time.Second
	defaultLimiterCapacity  = 60
	defaultLimiterPeriod    = time.Minute
	defaultAdmissionDelay   = 50 * time.Millisecond
	defaultAdmissionRetries = 3
	defaultStreamBuffer     = 256
	defaultRetention        = 24 * time.Hour
)

//
// Registry Options
//

type RegistryOption func(*Registry)

func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

//
// Subscription Options
//

type SubscriptionOption func(*Subscription)

// WithSecret sets the shared signing secret instead of generating one.
func WithSecret(secret string) SubscriptionOption {
	return func(s *Subscription) {
		s.Secret = secret
	}
}

// WithMaxAttempts bounds the delivery attempt loop. Values below 1 are
// clamped to 1.
func WithMaxAttempts(attempts int) SubscriptionOption {
	return func(s *Subscription) {
		s.MaxAttempts = attempts
	}
}

// WithAttemptTimeout bounds each individual outbound call.
func WithAttemptTimeout(timeout time.Duration) SubscriptionOption {
	return func(s *Subscription) {
		if timeout > 0 {
			s.AttemptTimeout = timeout
		}
	}
}

//
// RateLimiter Options
//

type RateLimiterOption func(*RateLimiter)

func WithRateLimiterClock(clock clockwork.Clock) RateLimiterOption {
	return func(l *RateLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

//
// Stream Options
//

type StreamOption func(*Stream)

func WithStreamLogger(logger *zap.Logger) StreamOption {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStreamBuffer sets the ring buffer capacity for Recent.
func WithStreamBuffer(size int) StreamOption {
	return func(s *Stream) {
		if size > 0 {
			s.ring = make([]Event, size)
		}
	}
}

//
// HTTPSender Options
//

type HTTPSenderOption func(*HTTPSender)

func WithHTTPClient(client *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		if client != nil {
			s.client = client
		}
	}
}

func WithHTTPSenderLogger(logger *zap.Logger) HTTPSenderOption {
	return func(s *HTTPSender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithUserAgent(userAgent string) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.userAgent = userAgent
	}
}

//
// Engine Options
//

type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(metrics MetricsCollector) EngineOption {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

func WithSender(sender Sender) EngineOption {
	return func(e *Engine) {
		if sender != nil {
			e.sender = sender
		}
	}
}

func WithStore(store storage.Store) EngineOption {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

func WithBackoffStrategy(strategy BackoffStrategy) EngineOption {
	return func(e *Engine) {
		if strategy != nil {
			e.backoff = strategy
		}
	}
}

// WithBreakerThresholds configures every lazily created per-endpoint breaker.
func WithBreakerThresholds(failureThreshold int, recoveryTimeout time.Duration) EngineOption {
	return func(e *Engine) {
		if failureThreshold > 0 {
			e.failureThreshold = failureThreshold
		}
		if recoveryTimeout > 0 {
			e.recoveryTimeout = recoveryTimeout
		}
	}
}

func WithRateLimiter(limiter *RateLimiter) EngineOption {
	return func(e *Engine) {
		if limiter != nil {
			e.limiter = limiter
		}
	}
}

// WithAdmissionPolicy tunes how a delivery waits for rate-limit admission:
// up to retries re-checks, delay apart, before the denial counts as a
// transient failure.
func WithAdmissionPolicy(retries int, delay time.Duration) EngineOption {
	return func(e *Engine) {
		if retries >= 0 {
			e.admissionRetries = retries
		}
		if delay > 0 {
			e.admissionDelay = delay
		}
	}
}

func WithClock(clock clockwork.Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithStream makes Trigger mirror every event onto the given live stream.
func WithStream(stream *Stream) EngineOption {
	return func(e *Engine) {
		e.stream = stream
	}
}

//
// KafkaForwarder Options
//

type KafkaForwarderOption func(*KafkaForwarder)

func WithKafkaProducerProps(props kafka.ConfigMap) KafkaForwarderOption {
	return func(f *KafkaForwarder) {
		for k, v := range props {
			f.producerProps[k] = v
		}
	}
}

func WithKafkaTopic(topic string) KafkaForwarderOption {
	return func(f *KafkaForwarder) {
		if topic != "" {
			f.topic = topic
		}
	}
}

func WithKafkaHeaderBuilder(builder KafkaHeaderBuilder) KafkaForwarderOption {
	return func(f *KafkaForwarder) {
		if builder != nil {
			f.headerBuilder = builder
		}
	}
}
