// Package schedule provides cancellable periodic tasks owned by the state machines
// that drive detection, capture, and recording cadences.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunning is returned when starting a task that is already running.
var ErrRunning = errors.New("task already running")

// ErrInvalidPeriod is returned when starting a task whose period is not positive.
var ErrInvalidPeriod = errors.New("task period must be positive")

// Task invokes a callback at a fixed period on a dedicated goroutine.
// Callbacks of one task never overlap: a slow callback causes ticks to be dropped, not queued.
type Task struct {
	period time.Duration
	fn     func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Every creates a stopped task that calls fn once per period.
func Every(period time.Duration, fn func(ctx context.Context)) *Task {
	return &Task{period: period, fn: fn}
}

// Start launches the ticking goroutine. The context passed to fn is cancelled by Stop.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return ErrRunning
	}
	if t.period <= 0 {
		return ErrInvalidPeriod
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Re-check so a tick racing with Stop never runs after cancellation
				if ctx.Err() != nil {
					return
				}
				t.fn(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels the task and blocks until any in-flight callback has returned.
// Safe to call on a stopped task. Must not be called from inside the callback.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the task has been started and not stopped.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
