package webhooks

import (
	"time"

	"github.com/taskplane/webhooks/storage"
)

// Delivery is the bookkeeping record of the attempts to deliver one event to
// one subscription. The engine owns and mutates the record while the attempt
// loop runs; values returned to callers are read-only snapshots.
type Delivery struct {
	ID             string
	SubscriptionID string
	EventID        string
	EventKind      EventKind
	Attempts       int
	LastStatusCode *int
	LastError      string
	NextRetryAt    *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// Succeeded reports whether the delivery completed with a 2xx response.
func (d Delivery) Succeeded() bool {
	return d.CompletedAt != nil
}

// DeliveryStatus aggregates delivery outcomes for one subscription.
type DeliveryStatus struct {
	SubscriptionID string
	Total          int
	Successful     int
	Failed         int
	Pending        int
	LastDelivery   *time.Time
}

func deliveryFromRecord(rec storage.DeliveryRecord) Delivery {
	return Delivery{
		ID:             rec.ID,
		SubscriptionID: rec.SubscriptionID,
		EventID:        rec.EventID,
		EventKind:      EventKind(rec.EventKind),
		Attempts:       rec.Attempts,
		LastStatusCode: rec.LastStatusCode,
		LastError:      rec.LastError,
		NextRetryAt:    rec.NextRetryAt,
		CompletedAt:    rec.CompletedAt,
		CreatedAt:      rec.CreatedAt,
	}
}
