package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Store interface for tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateDelivery(ctx context.Context, rec DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) UpdateDelivery(ctx context.Context, rec DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) GetDelivery(ctx context.Context, id string) (DeliveryRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(DeliveryRecord)
	return rec, args.Error(1)
}

func (m *MockStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]DeliveryRecord, error) {
	args := m.Called(ctx, subscriptionID)
	recs, _ := args.Get(0).([]DeliveryRecord)
	return recs, args.Error(1)
}

func (m *MockStore) CountByStatus(ctx context.Context, subscriptionID string) (StatusCounts, error) {
	args := m.Called(ctx, subscriptionID)
	counts, _ := args.Get(0).(StatusCounts)
	return counts, args.Error(1)
}

func (m *MockStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
