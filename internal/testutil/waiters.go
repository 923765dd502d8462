// Package testutil provides polling and retry helpers shared by package
// tests that exercise the Writer's asynchronous persistence and the
// Coordinator's multi-phase run loop.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
)

// Waiter polls a condition on a fixed interval until it becomes true or
// the timeout elapses.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter builds a Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a Waiter tuned for in-process BoltDB tests, where
// writes settle in milliseconds rather than seconds.
func DefaultWaiter() *Waiter {
	return NewWaiter(5*time.Second, 10*time.Millisecond)
}

// WaitFor blocks until condition returns true, the timeout elapses, or
// ctx is cancelled.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if condition() {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForTaskStatus waits for the task identified by taskID to reach one
// of the given statuses, as the Writer's queue drains asynchronously.
func (w *Waiter) WaitForTaskStatus(ctx context.Context, store storage.Store, taskID string, statuses ...types.TaskStatus) error {
	return w.WaitFor(ctx, func() bool {
		task, err := store.GetTask(taskID)
		if err != nil || task == nil {
			return false
		}
		for _, s := range statuses {
			if task.Status == s {
				return true
			}
		}
		return false
	}, fmt.Sprintf("task %s to reach status in %v", taskID, statuses))
}

// Retry retries operation with exponential backoff, up to attempts times.
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < attempts; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}
