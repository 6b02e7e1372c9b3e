package webhooks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is a background maintenance job with a lifecycle.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Name() string
}

// IntervalWorker runs a function on a fixed interval and shuts down
// gracefully: Stop waits for an in-progress run to finish.
type IntervalWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	workFunc func(ctx context.Context) error

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
	stopChan chan struct{}
	started  bool
}

// NewIntervalWorker creates a ticker-driven worker around workFunc.
func NewIntervalWorker(name string, interval time.Duration, logger *zap.Logger, workFunc func(ctx context.Context) error) *IntervalWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalWorker{
		name:     name,
		interval: interval,
		logger:   logger,
		workFunc: workFunc,
		stopChan: make(chan struct{}),
	}
}

// Start runs the worker loop. It blocks until the context is cancelled or
// Stop is called.
func (w *IntervalWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Warn("Worker already started", zap.String("name", w.name))
		return
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("Worker starting", zap.String("name", w.name), zap.Duration("interval", w.interval))
	defer w.logger.Info("Worker finished", zap.String("name", w.name))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			// A stop may have raced the tick; check before starting work.
			select {
			case <-w.stopChan:
				return
			default:
			}
			w.runOnce(ctx)
		}
	}
}

func (w *IntervalWorker) runOnce(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	if err := w.workFunc(ctx); err != nil {
		w.logger.Error("Worker run failed", zap.String("name", w.name), zap.Error(err))
	}
}

// Stop shuts the worker down and waits for any in-progress run to complete.
// Safe to call more than once.
func (w *IntervalWorker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.RLock()
		defer w.mu.RUnlock()
		if !w.started {
			return
		}
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Name returns the worker's name.
func (w *IntervalWorker) Name() string {
	return w.name
}
