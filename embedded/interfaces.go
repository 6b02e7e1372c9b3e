// Package embedded mirrors the integration surface of the webhooks module
// without pulling in its heavier dependencies (the Kafka client requires
// cgo). Implement these interfaces to plug custom senders, metrics, or
// workers into an engine built elsewhere.
package embedded

import (
	"context"
	"time"
)

// Delivery record statuses as persisted by the delivery log.
const (
	DeliveryStatusPending   = 0
	DeliveryStatusSucceeded = 1
	DeliveryStatusFailed    = 2
)

// DeliveryRecord is the stored form of one (subscription, event) delivery
// attempt-series.
type DeliveryRecord struct {
	ID             string
	SubscriptionID string
	EventID        string
	EventKind      string
	TargetURL      string
	Attempts       int
	Status         int
	LastStatusCode *int
	LastError      string
	NextRetryAt    *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Subscription is the delivery target handed to a Sender.
type Subscription struct {
	ID             string
	TargetURL      string
	Kinds          []string
	Active         bool
	CreatedAt      time.Time
	Secret         string
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// Event is the payload handed to a Sender.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   map[string]any
	Metadata  map[string]string
}

// Sender performs one delivery attempt to a subscription's target.
type Sender interface {
	Send(ctx context.Context, sub Subscription, event Event) (int, error)
}

// MetricsCollector receives counters and timings from the delivery pipeline.
type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
}

// Worker is a background maintenance job with a lifecycle.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Name() string
}
