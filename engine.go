package webhooks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/taskplane/webhooks/storage"
)

// Engine turns events into webhook deliveries. Trigger matches an event
// against the registry, records one delivery per match, and runs each
// delivery's attempt loop on its own goroutine so a slow or down endpoint
// only ever delays its own delivery.
//
// All state (breakers, buckets, delivery log) is owned by the engine
// instance; two engines share nothing.
type Engine struct {
	registry *Registry
	store    storage.Store
	sender   Sender
	limiter  *RateLimiter
	backoff  BackoffStrategy
	logger   *zap.Logger
	metrics  MetricsCollector
	clock    clockwork.Clock
	stream   *Stream

	failureThreshold int
	recoveryTimeout  time.Duration
	admissionDelay   time.Duration
	admissionRetries int

	breakers *breakerGroup

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEngine creates an engine for the given registry. Without options it
// delivers over HTTP, logs nowhere, keeps deliveries in memory, and uses the
// default breaker, limiter, and backoff settings.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:         registry,
		store:            storage.NewMemoryStore(),
		logger:           zap.NewNop(),
		metrics:          NewNopMetricsCollector(),
		clock:            clockwork.NewRealClock(),
		failureThreshold: defaultFailureThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
		admissionDelay:   defaultAdmissionDelay,
		admissionRetries: defaultAdmissionRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sender == nil {
		e.sender = NewHTTPSender(WithHTTPSenderLogger(e.logger))
	}
	if e.backoff == nil {
		e.backoff = DefaultBackoffStrategy()
	}
	if e.limiter == nil {
		e.limiter = NewRateLimiter(defaultLimiterCapacity, defaultLimiterPeriod,
			WithRateLimiterClock(e.clock))
	}
	e.breakers = newBreakerGroup(e.failureThreshold, e.recoveryTimeout, e.clock, e.logger)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Trigger schedules delivery of event to every matching subscription and
// returns the IDs of the created delivery records. It never fails and it
// does not wait for any delivery to finish: a notification problem must not
// disrupt the operation that produced the event. Callers poll
// DeliveryStatus for outcomes.
func (e *Engine) Trigger(ctx context.Context, event Event) []string {
	if e.stream != nil {
		e.stream.Emit(ctx, event)
	}

	matched := e.registry.Match(event.Kind)
	e.metrics.IncrementCounter("trigger.events", map[string]string{"kind": event.Kind.String()})
	if len(matched) == 0 {
		return nil
	}

	e.logger.Debug("Event matched subscriptions",
		zap.String("event_id", event.ID),
		zap.String("event_kind", event.Kind.String()),
		zap.Int("match_count", len(matched)))

	ids := make([]string, 0, len(matched))
	for _, sub := range matched {
		now := e.clock.Now()
		rec := storage.DeliveryRecord{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			EventID:        event.ID,
			EventKind:      event.Kind.String(),
			TargetURL:      sub.TargetURL,
			Status:         storage.DeliveryStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.store.CreateDelivery(ctx, rec); err != nil {
			// Store failures are infrastructure bugs, not endpoint
			// problems; drop this delivery and keep going.
			e.logger.Error("Failed to create delivery record",
				zap.String("subscription_id", sub.ID),
				zap.String("event_id", event.ID),
				zap.Error(err))
			e.metrics.IncrementCounter("delivery.store_failed", nil)
			continue
		}
		ids = append(ids, rec.ID)

		e.wg.Add(1)
		go e.deliver(e.ctx, sub, event, rec)
	}
	return ids
}

// WaitForDeliveries blocks until every delivery scheduled so far has reached
// a terminal state. Intended for tests and for shutdown sequencing.
func (e *Engine) WaitForDeliveries() {
	e.wg.Wait()
}

// Close cancels all in-flight attempt loops and waits for them to finish.
// Loops observe the cancellation at their next suspension point (the outbound
// call or a backoff wait) and abandon further retries. Safe to call twice.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
	})
}

// DeliveryStatus aggregates delivery outcomes for a subscription.
func (e *Engine) DeliveryStatus(ctx context.Context, subscriptionID string) (DeliveryStatus, error) {
	counts, err := e.store.CountByStatus(ctx, subscriptionID)
	if err != nil {
		return DeliveryStatus{}, err
	}
	return DeliveryStatus{
		SubscriptionID: subscriptionID,
		Total:          counts.Total,
		Successful:     counts.Succeeded,
		Failed:         counts.Failed,
		Pending:        counts.Pending,
		LastDelivery:   counts.LastDelivery,
	}, nil
}

// Deliveries returns the delivery records for a subscription, oldest first.
func (e *Engine) Deliveries(ctx context.Context, subscriptionID string) ([]Delivery, error) {
	recs, err := e.store.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	deliveries := make([]Delivery, 0, len(recs))
	for _, rec := range recs {
		deliveries = append(deliveries, deliveryFromRecord(rec))
	}
	return deliveries, nil
}

// Breaker returns the circuit breaker for a target URL, materializing it if
// needed. Exposed for status inspection.
func (e *Engine) Breaker(targetURL string) *CircuitBreaker {
	return e.breakers.get(targetURL)
}

// deliver runs the attempt loop for one delivery record.
func (e *Engine) deliver(ctx context.Context, sub Subscription, event Event, rec storage.DeliveryRecord) {
	defer e.wg.Done()

	breaker := e.breakers.get(sub.TargetURL)
	start := e.clock.Now()
	kindTag := map[string]string{"kind": event.Kind.String()}

	defer func() {
		e.metrics.RecordDuration("delivery.duration", e.clock.Since(start), kindTag)
	}()

	for {
		if ctx.Err() != nil {
			e.finalizeFailure(&rec, "delivery cancelled", "delivery.cancelled")
			return
		}

		// Breaker denial is terminal for this delivery and does not count
		// toward the breaker's own tally: no call was made.
		allowed, probe := breaker.permit()
		if !allowed {
			e.finalizeFailure(&rec, ErrCircuitOpen.Error(), "delivery.circuit_open")
			return
		}

		if !e.admit(ctx, sub.TargetURL) {
			// Denied admission is a transient failure of this attempt,
			// not of the endpoint: the breaker tally is untouched. A held
			// probe slot goes back so the next attempt can claim it.
			if probe {
				breaker.CancelProbe()
			}
			rec.Attempts++
			if !e.scheduleRetry(ctx, &rec, sub, "rate limited") {
				return
			}
			continue
		}

		status, err := e.sender.Send(ctx, sub, event)
		rec.Attempts++

		if err == nil && status >= 200 && status < 300 {
			breaker.RecordSuccess()
			e.finalizeSuccess(&rec, status)
			e.logger.Info("Webhook delivered",
				zap.String("delivery_id", rec.ID),
				zap.String("subscription_id", sub.ID),
				zap.String("event_id", event.ID),
				zap.Int("attempts", rec.Attempts))
			return
		}

		if err == nil {
			statusErr := &StatusError{Code: status}
			code := status
			rec.LastStatusCode = &code
			if statusErr.Permanent() {
				// Retrying a client error cannot succeed; the breaker
				// is untouched since the endpoint answered.
				e.finalizeFailure(&rec, statusErr.Error(), "delivery.permanent_failure")
				e.logger.Warn("Webhook rejected by endpoint",
					zap.String("delivery_id", rec.ID),
					zap.String("subscription_id", sub.ID),
					zap.Int("status_code", status))
				return
			}
			breaker.RecordFailure()
			if !e.scheduleRetry(ctx, &rec, sub, statusErr.Error()) {
				return
			}
			continue
		}

		// Transport failure: connect error or timeout. An error caused by
		// our own shutdown says nothing about the endpoint, so the breaker
		// tally is left alone and a held probe slot is handed back.
		if ctx.Err() != nil {
			if probe {
				breaker.CancelProbe()
			}
			e.finalizeFailure(&rec, "delivery cancelled", "delivery.cancelled")
			return
		}
		breaker.RecordFailure()
		if !e.scheduleRetry(ctx, &rec, sub, err.Error()) {
			return
		}
	}
}

// admit waits for rate-limit admission, re-checking a bounded number of
// times. It returns false when admission was not granted in time or the
// context was cancelled.
func (e *Engine) admit(ctx context.Context, key string) bool {
	for i := 0; ; i++ {
		if e.limiter.TryAcquire(key) {
			return true
		}
		if i >= e.admissionRetries {
			e.metrics.IncrementCounter("delivery.rate_limited", nil)
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-e.clock.After(e.admissionDelay):
		}
	}
}

// scheduleRetry records a transient failure and waits out the backoff delay.
// It returns false when the delivery is finished: attempts exhausted, or the
// engine shut down during the wait.
func (e *Engine) scheduleRetry(ctx context.Context, rec *storage.DeliveryRecord, sub Subscription, cause string) bool {
	rec.LastError = cause

	if rec.Attempts >= sub.MaxAttempts {
		e.finalizeFailure(rec, cause, "delivery.exhausted")
		e.logger.Warn("Webhook delivery exhausted",
			zap.String("delivery_id", rec.ID),
			zap.String("subscription_id", rec.SubscriptionID),
			zap.Int("attempts", rec.Attempts),
			zap.String("last_error", cause))
		return false
	}

	delay := e.backoff.Delay(rec.Attempts)
	nextRetry := e.clock.Now().Add(delay)
	rec.NextRetryAt = &nextRetry
	rec.UpdatedAt = e.clock.Now()
	e.updateRecord(*rec)

	e.logger.Debug("Webhook delivery scheduled for retry",
		zap.String("delivery_id", rec.ID),
		zap.Int("attempt", rec.Attempts),
		zap.Duration("delay", delay),
		zap.String("cause", cause))

	select {
	case <-ctx.Done():
		e.finalizeFailure(rec, "delivery cancelled", "delivery.cancelled")
		return false
	case <-e.clock.After(delay):
		return true
	}
}

func (e *Engine) finalizeSuccess(rec *storage.DeliveryRecord, status int) {
	now := e.clock.Now()
	code := status
	rec.Status = storage.DeliveryStatusSucceeded
	rec.LastStatusCode = &code
	rec.LastError = ""
	rec.NextRetryAt = nil
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	e.updateRecord(*rec)
	e.metrics.IncrementCounter("delivery.success", nil)
}

func (e *Engine) finalizeFailure(rec *storage.DeliveryRecord, cause, counter string) {
	rec.Status = storage.DeliveryStatusFailed
	rec.LastError = cause
	rec.NextRetryAt = nil
	rec.UpdatedAt = e.clock.Now()
	e.updateRecord(*rec)
	e.metrics.IncrementCounter(counter, nil)
}

func (e *Engine) updateRecord(rec storage.DeliveryRecord) {
	// Detached from the caller's context: record state must be written even
	// when the delivery is being cancelled.
	if err := e.store.UpdateDelivery(context.Background(), rec); err != nil {
		e.logger.Error("Failed to update delivery record",
			zap.String("delivery_id", rec.ID),
			zap.Error(err))
		e.metrics.IncrementCounter("delivery.store_failed", nil)
	}
}
