package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/taskplane/webhooks/storage"
)

// RetentionService prunes terminal delivery records older than the retention
// window. The in-memory delivery log would otherwise grow for the life of the
// process. Run Prune as an IntervalWorker's work function.
type RetentionService struct {
	store     storage.Store
	logger    *zap.Logger
	metrics   MetricsCollector
	clock     clockwork.Clock
	retention time.Duration
}

// NewRetentionService creates a retention service. A non-positive retention
// falls back to the default window.
func NewRetentionService(store storage.Store, logger *zap.Logger, metrics MetricsCollector, retention time.Duration) *RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RetentionService{
		store:     store,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		retention: retention,
	}
}

// Prune removes terminal delivery records last touched before the retention
// cutoff.
func (s *RetentionService) Prune(ctx context.Context) error {
	start := s.clock.Now()
	defer func() {
		s.metrics.RecordDuration("retention.duration", s.clock.Since(start), nil)
	}()

	cutoff := s.clock.Now().Add(-s.retention)
	removed, err := s.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune delivery records: %w", err)
	}
	if removed > 0 {
		s.logger.Info("Pruned delivery records", zap.Int64("removed", removed))
		s.metrics.IncrementCounter("retention.pruned", nil)
	}
	return nil
}
