package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default delivery log: process-lifetime, mutex-guarded.
// Records are indexed by ID and by subscription in insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]DeliveryRecord
	bySub  map[string][]string
	insert []string
}

// NewMemoryStore creates an empty in-memory delivery log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]DeliveryRecord),
		bySub: make(map[string][]string),
	}
}

// CreateDelivery implements the Store interface.
func (s *MemoryStore) CreateDelivery(_ context.Context, rec DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[rec.ID] = rec
	s.bySub[rec.SubscriptionID] = append(s.bySub[rec.SubscriptionID], rec.ID)
	s.insert = append(s.insert, rec.ID)
	return nil
}

// UpdateDelivery implements the Store interface.
func (s *MemoryStore) UpdateDelivery(_ context.Context, rec DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; !ok {
		return ErrDeliveryNotFound
	}
	s.byID[rec.ID] = rec
	return nil
}

// GetDelivery implements the Store interface.
func (s *MemoryStore) GetDelivery(_ context.Context, id string) (DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return DeliveryRecord{}, ErrDeliveryNotFound
	}
	return rec, nil
}

// ListBySubscription implements the Store interface.
func (s *MemoryStore) ListBySubscription(_ context.Context, subscriptionID string) ([]DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySub[subscriptionID]
	recs := make([]DeliveryRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// CountByStatus implements the Store interface.
func (s *MemoryStore) CountByStatus(_ context.Context, subscriptionID string) (StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts StatusCounts
	for _, id := range s.bySub[subscriptionID] {
		rec, ok := s.byID[id]
		if !ok {
			continue
		}
		counts.Total++
		switch rec.Status {
		case DeliveryStatusSucceeded:
			counts.Succeeded++
			if rec.CompletedAt != nil &&
				(counts.LastDelivery == nil || rec.CompletedAt.After(*counts.LastDelivery)) {
				counts.LastDelivery = rec.CompletedAt
			}
		case DeliveryStatusFailed:
			counts.Failed++
		default:
			counts.Pending++
		}
	}
	return counts, nil
}

// DeleteTerminalBefore implements the Store interface.
func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, rec := range s.byID {
		if !rec.Terminal() || !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.byID, id)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	// Rebuild the indexes without the deleted IDs.
	s.insert = compactIDs(s.insert, s.byID)
	for subID, ids := range s.bySub {
		kept := compactIDs(ids, s.byID)
		if len(kept) == 0 {
			delete(s.bySub, subID)
			continue
		}
		s.bySub[subID] = kept
	}
	return removed, nil
}

func compactIDs(ids []string, byID map[string]DeliveryRecord) []string {
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}
