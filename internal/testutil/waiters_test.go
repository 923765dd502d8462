package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWaitForReturnsImmediatelyWhenConditionAlreadyTrue tests the
// fast-path that skips polling entirely.
func TestWaitForReturnsImmediatelyWhenConditionAlreadyTrue(t *testing.T) {
	w := NewWaiter(time.Second, time.Millisecond)
	err := w.WaitFor(context.Background(), func() bool { return true }, "always true")
	assert.NoError(t, err)
}

// TestWaitForPollsUntilConditionBecomesTrue tests that a condition
// flipping true after a few polls is observed before the timeout.
func TestWaitForPollsUntilConditionBecomesTrue(t *testing.T) {
	var calls int32
	w := NewWaiter(time.Second, 5*time.Millisecond)

	err := w.WaitFor(context.Background(), func() bool {
		return atomic.AddInt32(&calls, 1) >= 3
	}, "becomes true on third poll")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

// TestWaitForTimesOutWhenConditionNeverTrue tests the timeout error path.
func TestWaitForTimesOutWhenConditionNeverTrue(t *testing.T) {
	w := NewWaiter(20*time.Millisecond, 5*time.Millisecond)
	err := w.WaitFor(context.Background(), func() bool { return false }, "never true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never true")
}

// TestWaitForTaskStatusObservesAsyncTransition tests the task-specific
// helper against a real BoltDB store updated from a background goroutine,
// mirroring how the Writer settles state asynchronously.
func TestWaitForTaskStatusObservesAsyncTransition(t *testing.T) {
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	task := &types.Task{TaskID: "task-1", EndpointName: "contratos", Status: types.TaskPending}
	_, err = store.CreateTaskIfAbsent(task)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		task.Status = types.TaskComplete
		_ = store.UpdateTask(task)
	}()

	w := DefaultWaiter()
	err = w.WaitForTaskStatus(context.Background(), store, "task-1", types.TaskComplete, types.TaskFailed)
	assert.NoError(t, err)
}

// TestRetrySucceedsAfterTransientFailures tests that Retry returns nil
// once operation finally succeeds within the attempt budget.
func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

// TestRetryExhaustsAttemptsAndReturnsError tests that Retry gives up and
// wraps the last error after the attempt budget is spent.
func TestRetryExhaustsAttemptsAndReturnsError(t *testing.T) {
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		return errors.New("persistent")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent")
}
