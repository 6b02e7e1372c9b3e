package webhooks

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher starts and stops a set of maintenance workers as a unit.
type Dispatcher struct {
	logger *zap.Logger
	wg     sync.WaitGroup

	mu       sync.RWMutex
	workers  []Worker
	stopOnce sync.Once
	stopChan chan struct{}
	started  bool
}

// NewDispatcher creates a dispatcher managing the given workers.
func NewDispatcher(logger *zap.Logger, workers ...Worker) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:   logger,
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// Start runs all workers and blocks until the context is cancelled or Stop
// is called, then waits for every worker to finish shutting down.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		d.logger.Warn("Dispatcher already started")
		return
	}
	d.started = true
	d.mu.Unlock()

	d.logger.Info("Starting dispatcher", zap.Int("worker_count", len(d.workers)))

	for _, w := range d.workers {
		d.wg.Add(1)
		go func(worker Worker) {
			defer d.wg.Done()
			d.logger.Info("Starting worker", zap.String("worker_name", worker.Name()))
			worker.Start(ctx)
			d.logger.Info("Worker stopped", zap.String("worker_name", worker.Name()))
		}(w)
	}

	select {
	case <-ctx.Done():
		d.logger.Info("Context cancelled, stopping dispatcher")
		d.Stop()
	case <-d.stopChan:
		d.logger.Info("Stop signal received, stopping dispatcher")
	}

	d.wg.Wait()
	d.logger.Info("All workers stopped")

	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

// Stop shuts down the dispatcher and all its workers. Safe to call more than
// once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if !d.started {
			d.logger.Warn("Attempted to stop a dispatcher that was not started")
			return
		}
		close(d.stopChan)

		for _, worker := range d.workers {
			worker.Stop()
		}
	})
}

// IsStarted reports whether the dispatcher is currently running.
func (d *Dispatcher) IsStarted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.started
}
