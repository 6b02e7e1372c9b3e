// Package sqlstore provides a MySQL-backed delivery log. It keeps the same
// records as the in-memory store so operators can retain delivery history
// across restarts; in-flight attempt loops themselves are not resumed.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/taskplane/webhooks/storage"
)

const tableDeliveries = "webhook_deliveries"

const (
	createQuery = `
		INSERT INTO %s (id, subscription_id, event_id, event_kind, target_url, attempts, status, last_status_code, last_error, next_retry_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateQuery = `
		UPDATE %s
		SET attempts = ?, status = ?, last_status_code = ?, last_error = ?, next_retry_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`

	getQuery = `
		SELECT id, subscription_id, event_id, event_kind, target_url, attempts, status, last_status_code, last_error, next_retry_at, completed_at, created_at, updated_at
		FROM %s
		WHERE id = ?`

	listBySubscriptionQuery = `
		SELECT id, subscription_id, event_id, event_kind, target_url, attempts, status, last_status_code, last_error, next_retry_at, completed_at, created_at, updated_at
		FROM %s
		WHERE subscription_id = ?
		ORDER BY created_at, id`

	countByStatusQuery = `
		SELECT status, COUNT(*), MAX(completed_at)
		FROM %s
		WHERE subscription_id = ?
		GROUP BY status`

	deleteTerminalQuery = `DELETE FROM %s WHERE status <> ? AND updated_at < ?`

	createTableQuery = `
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			subscription_id VARCHAR(36) NOT NULL,
			event_id VARCHAR(36) NOT NULL,
			event_kind VARCHAR(64) NOT NULL,
			target_url TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			status TINYINT NOT NULL DEFAULT 0,
			last_status_code INT NULL,
			last_error TEXT NULL,
			next_retry_at TIMESTAMP(6) NULL,
			completed_at TIMESTAMP(6) NULL,
			created_at TIMESTAMP(6) NOT NULL,
			updated_at TIMESTAMP(6) NOT NULL,
			INDEX idx_subscription (subscription_id),
			INDEX idx_status_updated (status, updated_at)
		)`
)

// ErrDeliveryAlreadyExists is returned when inserting a delivery with a
// duplicate ID.
var ErrDeliveryAlreadyExists = errors.New("delivery already exists")

// SQLStore implements storage.Store on top of MySQL.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLStore creates a store using the given database handle.
func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		logger: logger,
	}
}

// EnsureTables creates the delivery table if it does not exist.
func (s *SQLStore) EnsureTables(ctx context.Context) error {
	query := fmt.Sprintf(createTableQuery, tableDeliveries)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create deliveries table: %w", err)
	}
	return nil
}

// CreateDelivery implements the storage.Store interface.
func (s *SQLStore) CreateDelivery(ctx context.Context, rec storage.DeliveryRecord) error {
	query := fmt.Sprintf(createQuery, tableDeliveries)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.SubscriptionID,
		rec.EventID,
		rec.EventKind,
		rec.TargetURL,
		rec.Attempts,
		rec.Status,
		nullableInt(rec.LastStatusCode),
		nullableString(rec.LastError),
		nullableTime(rec.NextRetryAt),
		nullableTime(rec.CompletedAt),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDeliveryAlreadyExists
		}
		return fmt.Errorf("failed to save delivery record: %w", err)
	}
	return nil
}

// UpdateDelivery implements the storage.Store interface.
func (s *SQLStore) UpdateDelivery(ctx context.Context, rec storage.DeliveryRecord) error {
	query := fmt.Sprintf(updateQuery, tableDeliveries)
	res, err := s.db.ExecContext(ctx, query,
		rec.Attempts,
		rec.Status,
		nullableInt(rec.LastStatusCode),
		nullableString(rec.LastError),
		nullableTime(rec.NextRetryAt),
		nullableTime(rec.CompletedAt),
		rec.UpdatedAt,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery record: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return storage.ErrDeliveryNotFound
	}
	return nil
}

// GetDelivery implements the storage.Store interface.
func (s *SQLStore) GetDelivery(ctx context.Context, id string) (storage.DeliveryRecord, error) {
	query := fmt.Sprintf(getQuery, tableDeliveries)
	rec, err := scanDelivery(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DeliveryRecord{}, storage.ErrDeliveryNotFound
	}
	if err != nil {
		return storage.DeliveryRecord{}, fmt.Errorf("failed to query delivery: %w", err)
	}
	return rec, nil
}

// ListBySubscription implements the storage.Store interface.
func (s *SQLStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]storage.DeliveryRecord, error) {
	query := fmt.Sprintf(listBySubscriptionQuery, tableDeliveries)
	rows, err := s.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var recs []storage.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountByStatus implements the storage.Store interface.
func (s *SQLStore) CountByStatus(ctx context.Context, subscriptionID string) (storage.StatusCounts, error) {
	query := fmt.Sprintf(countByStatusQuery, tableDeliveries)
	rows, err := s.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return storage.StatusCounts{}, fmt.Errorf("failed to query delivery counts: %w", err)
	}
	defer rows.Close()

	var counts storage.StatusCounts
	for rows.Next() {
		var (
			status        int
			count         int
			lastCompleted sql.NullTime
		)
		if err := rows.Scan(&status, &count, &lastCompleted); err != nil {
			return storage.StatusCounts{}, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts.Total += count
		switch status {
		case storage.DeliveryStatusSucceeded:
			counts.Succeeded += count
			if lastCompleted.Valid {
				t := lastCompleted.Time
				counts.LastDelivery = &t
			}
		case storage.DeliveryStatusFailed:
			counts.Failed += count
		default:
			counts.Pending += count
		}
	}
	return counts, rows.Err()
}

// DeleteTerminalBefore implements the storage.Store interface.
func (s *SQLStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(deleteTerminalQuery, tableDeliveries)
	res, err := s.db.ExecContext(ctx, query, storage.DeliveryStatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal deliveries: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (storage.DeliveryRecord, error) {
	var (
		rec            storage.DeliveryRecord
		lastStatusCode sql.NullInt64
		lastError      sql.NullString
		nextRetryAt    sql.NullTime
		completedAt    sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.SubscriptionID,
		&rec.EventID,
		&rec.EventKind,
		&rec.TargetURL,
		&rec.Attempts,
		&rec.Status,
		&lastStatusCode,
		&lastError,
		&nextRetryAt,
		&completedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return storage.DeliveryRecord{}, err
	}
	if lastStatusCode.Valid {
		code := int(lastStatusCode.Int64)
		rec.LastStatusCode = &code
	}
	rec.LastError = lastError.String
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		rec.NextRetryAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
