package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDeliveryNotFound is returned when a delivery ID is unknown to the store.
var ErrDeliveryNotFound = errors.New("delivery not found")

// Delivery statuses as persisted.
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

// Terminal reports whether the record reached a final state.
func (r DeliveryRecord) Terminal() bool {
	return r.Status != DeliveryStatusPending
}

// StatusCounts aggregates delivery outcomes for one subscription.
type StatusCounts struct {
	Total        int
	Succeeded    int
	Failed       int
	Pending      int
	LastDelivery *time.Time
}

// Store is the delivery log. The engine appends a record per matched
// subscription and updates it as the attempt loop proceeds; readers get the
// history for a subscription and aggregate counts.
type Store interface {
	// CreateDelivery appends a new delivery record.
	CreateDelivery(ctx context.Context, rec DeliveryRecord) error
	// UpdateDelivery replaces the stored record with the given one.
	UpdateDelivery(ctx context.Context, rec DeliveryRecord) error
	// GetDelivery returns the record with the given ID.
	GetDelivery(ctx context.Context, id string) (DeliveryRecord, error)
	// ListBySubscription returns all records for a subscription, oldest first.
	ListBySubscription(ctx context.Context, subscriptionID string) ([]DeliveryRecord, error)
	// CountByStatus aggregates outcome counts for a subscription.
	CountByStatus(ctx context.Context, subscriptionID string) (StatusCounts, error)
	// DeleteTerminalBefore removes terminal records last updated before
	// cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
