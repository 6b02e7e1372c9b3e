package webhooks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalWorker_RunsOnInterval(t *testing.T) {
	var runs atomic.Int64
	worker := NewIntervalWorker("counter", 5*time.Millisecond, nil, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		worker.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, time.Millisecond)

	worker.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestIntervalWorker_StopWaitsForInProgressRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	worker := NewIntervalWorker("slow", time.Millisecond, nil, func(context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		finished.Store(true)
		return nil
	})

	go worker.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still in progress")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
	assert.True(t, finished.Load())
}

func TestIntervalWorker_ContextCancelStopsLoop(t *testing.T) {
	worker := NewIntervalWorker("ctx", time.Millisecond, nil, func(context.Context) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestIntervalWorker_WorkErrorsDoNotStopLoop(t *testing.T) {
	var runs atomic.Int64
	worker := NewIntervalWorker("flaky", time.Millisecond, nil, func(context.Context) error {
		runs.Add(1)
		return assert.AnError
	})

	go worker.Start(context.Background())
	defer worker.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, time.Millisecond)
}

func TestIntervalWorker_Name(t *testing.T) {
	worker := NewIntervalWorker("retention", time.Hour, nil, func(context.Context) error { return nil })
	assert.Equal(t, "retention", worker.Name())
}
