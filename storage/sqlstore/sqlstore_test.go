package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskplane/webhooks/storage"
)

var deliveryColumns = []string{
	"id", "subscription_id", "event_id", "event_kind", "target_url",
	"attempts", "status", "last_status_code", "last_error",
	"next_retry_at", "completed_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, nil), mock
}

func testRecord(id string) storage.DeliveryRecord {
	now := time.Now().UTC()
	return storage.DeliveryRecord{
		ID:             id,
		SubscriptionID: "sub-1",
		EventID:        "event-1",
		EventKind:      "task.completed",
		TargetURL:      "https://example.com/hook",
		Status:         storage.DeliveryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSQLStore_CreateDelivery(t *testing.T) {
	store, mock := newMockStore(t)
	rec := testRecord("d1")

	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(rec.ID, rec.SubscriptionID, rec.EventID, rec.EventKind, rec.TargetURL,
			rec.Attempts, rec.Status, nil, nil, nil, nil, rec.CreatedAt, rec.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateDelivery(context.Background(), rec)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateDeliveryDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	rec := testRecord("d1")

	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := store.CreateDelivery(context.Background(), rec)
	assert.ErrorIs(t, err, ErrDeliveryAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateDelivery(t *testing.T) {
	store, mock := newMockStore(t)

	rec := testRecord("d1")
	code := 200
	completed := time.Now().UTC()
	rec.Attempts = 2
	rec.Status = storage.DeliveryStatusSucceeded
	rec.LastStatusCode = &code
	rec.CompletedAt = &completed

	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs(rec.Attempts, rec.Status, code, nil, nil, completed, rec.UpdatedAt, rec.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateDelivery(context.Background(), rec)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateDeliveryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE webhook_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateDelivery(context.Background(), testRecord("missing"))
	assert.ErrorIs(t, err, storage.ErrDeliveryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetDelivery(t *testing.T) {
	store, mock := newMockStore(t)
	rec := testRecord("d1")

	rows := sqlmock.NewRows(deliveryColumns).
		AddRow(rec.ID, rec.SubscriptionID, rec.EventID, rec.EventKind, rec.TargetURL,
			1, storage.DeliveryStatusFailed, 503, "HTTP 503",
			nil, nil, rec.CreatedAt, rec.UpdatedAt)

	mock.ExpectQuery("SELECT (.+) FROM webhook_deliveries WHERE id").
		WithArgs("d1").
		WillReturnRows(rows)

	got, err := store.GetDelivery(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, storage.DeliveryStatusFailed, got.Status)
	require.NotNil(t, got.LastStatusCode)
	assert.Equal(t, 503, *got.LastStatusCode)
	assert.Equal(t, "HTTP 503", got.LastError)
	assert.Nil(t, got.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetDeliveryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM webhook_deliveries WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetDelivery(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrDeliveryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListBySubscription(t *testing.T) {
	store, mock := newMockStore(t)

	first := testRecord("d1")
	second := testRecord("d2")
	completed := time.Now().UTC()

	rows := sqlmock.NewRows(deliveryColumns).
		AddRow(first.ID, first.SubscriptionID, first.EventID, first.EventKind, first.TargetURL,
			1, storage.DeliveryStatusSucceeded, 200, nil,
			nil, completed, first.CreatedAt, first.UpdatedAt).
		AddRow(second.ID, second.SubscriptionID, second.EventID, second.EventKind, second.TargetURL,
			0, storage.DeliveryStatusPending, nil, nil,
			nil, nil, second.CreatedAt, second.UpdatedAt)

	mock.ExpectQuery("SELECT (.+) FROM webhook_deliveries WHERE subscription_id").
		WithArgs("sub-1").
		WillReturnRows(rows)

	recs, err := store.ListBySubscription(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "d1", recs[0].ID)
	require.NotNil(t, recs[0].CompletedAt)
	assert.Equal(t, "d2", recs[1].ID)
	assert.Nil(t, recs[1].LastStatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CountByStatus(t *testing.T) {
	store, mock := newMockStore(t)
	lastCompleted := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"status", "count", "last_completed"}).
		AddRow(storage.DeliveryStatusSucceeded, 3, lastCompleted).
		AddRow(storage.DeliveryStatusFailed, 2, nil).
		AddRow(storage.DeliveryStatusPending, 1, nil)

	mock.ExpectQuery("SELECT status, COUNT(.+) FROM webhook_deliveries").
		WithArgs("sub-1").
		WillReturnRows(rows)

	counts, err := store.CountByStatus(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 6, counts.Total)
	assert.Equal(t, 3, counts.Succeeded)
	assert.Equal(t, 2, counts.Failed)
	assert.Equal(t, 1, counts.Pending)
	require.NotNil(t, counts.LastDelivery)
	assert.True(t, counts.LastDelivery.Equal(lastCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteTerminalBefore(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM webhook_deliveries").
		WithArgs(storage.DeliveryStatusPending, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := store.DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_EnsureTables(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS webhook_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
