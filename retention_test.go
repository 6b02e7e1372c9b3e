package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskplane/webhooks/storage"
)

func TestRetentionService_PrunesOldTerminalRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	stale := storage.DeliveryRecord{
		ID:             "stale",
		SubscriptionID: "sub-1",
		Status:         storage.DeliveryStatusSucceeded,
		CreatedAt:      old,
		UpdatedAt:      old,
	}
	fresh := storage.DeliveryRecord{
		ID:             "fresh",
		SubscriptionID: "sub-1",
		Status:         storage.DeliveryStatusSucceeded,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.CreateDelivery(ctx, stale))
	require.NoError(t, store.CreateDelivery(ctx, fresh))

	service := NewRetentionService(store, nil, nil, 24*time.Hour)
	require.NoError(t, service.Prune(ctx))

	_, err := store.GetDelivery(ctx, "stale")
	assert.ErrorIs(t, err, storage.ErrDeliveryNotFound)

	_, err = store.GetDelivery(ctx, "fresh")
	assert.NoError(t, err)
}

func TestRetentionService_CutoffUsesRetentionWindow(t *testing.T) {
	store := &storage.MockStore{}
	retention := 6 * time.Hour

	store.On("DeleteTerminalBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		expected := time.Now().Add(-retention)
		return cutoff.Sub(expected).Abs() < time.Second
	})).Return(int64(0), nil)

	service := NewRetentionService(store, nil, nil, retention)
	require.NoError(t, service.Prune(context.Background()))
	store.AssertExpectations(t)
}

func TestRetentionService_PropagatesStoreError(t *testing.T) {
	store := &storage.MockStore{}
	store.On("DeleteTerminalBefore", mock.Anything, mock.Anything).
		Return(int64(0), assert.AnError)

	service := NewRetentionService(store, nil, nil, time.Hour)
	err := service.Prune(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRetentionService_DefaultWindow(t *testing.T) {
	service := NewRetentionService(storage.NewMemoryStore(), nil, nil, 0)
	assert.Equal(t, defaultRetention, service.retention)
}
