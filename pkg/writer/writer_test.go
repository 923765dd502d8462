package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestSubmitPersistsSuccessfulResult tests that a 200 result with a body
// becomes a content blob and request log entry.
func TestSubmitPersistsSuccessfulResult(t *testing.T) {
	store := newTestStore(t)
	w := New(store, 8)
	w.Start(context.Background())
	defer w.Shutdown()

	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Submit(&types.FetchResult{
		TaskID:       "task-1",
		EndpointName: "contratos",
		DataDate:     date,
		Page:         1,
		PageSize:     50,
		RunID:        "run-1",
		StatusCode:   200,
		Body:         []byte(`{"id":1}`),
	}))
	w.Flush()

	blobs, err := store.ListContent()
	require.NoError(t, err)
	require.Len(t, blobs, 1)

	requests, err := store.ListRequestsForTask("contratos", "20260101", nil)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, 200, requests[0].ResponseCode)
}

// TestSubmitPersistsErrorResultWithoutContent tests that a failed fetch
// still produces a request log entry, with no content blob.
func TestSubmitPersistsErrorResultWithoutContent(t *testing.T) {
	store := newTestStore(t)
	w := New(store, 8)
	w.Start(context.Background())
	defer w.Shutdown()

	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Submit(&types.FetchResult{
		TaskID:       "task-1",
		EndpointName: "contratos",
		DataDate:     date,
		Page:         1,
		PageSize:     50,
		RunID:        "run-1",
		StatusCode:   500,
		Err:          assert.AnError,
	}))
	w.Flush()

	blobs, err := store.ListContent()
	require.NoError(t, err)
	assert.Empty(t, blobs)

	requests, err := store.ListRequestsForTask("contratos", "20260102", nil)
	require.NoError(t, err)
	require.Len(t, requests, 1)
}

// TestSubmitBatchForwardsEveryResult is a smoke test that SubmitBatch
// forwards every item to Submit in order.
func TestSubmitBatchForwardsEveryResult(t *testing.T) {
	store := newTestStore(t)
	w := New(store, 8)
	w.Start(context.Background())
	defer w.Shutdown()

	date := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	results := []*types.FetchResult{
		{TaskID: "t1", EndpointName: "contratos", DataDate: date, Page: 1, StatusCode: 200, Body: []byte(`{"id":1}`)},
		{TaskID: "t1", EndpointName: "contratos", DataDate: date, Page: 2, StatusCode: 200, Body: []byte(`{"id":2}`)},
	}
	require.NoError(t, w.SubmitBatch(results))
	w.Flush()

	requests, err := store.ListRequestsForTask("contratos", "20260103", nil)
	require.NoError(t, err)
	assert.Len(t, requests, 2)
}

// TestCreateTaskIfAbsentPassesThroughToStore tests the Writer's direct
// (non-queued) control-operation path.
func TestCreateTaskIfAbsentPassesThroughToStore(t *testing.T) {
	store := newTestStore(t)
	w := New(store, 8)
	w.Start(context.Background())
	defer w.Shutdown()

	task := &types.Task{TaskID: "task-1", EndpointName: "contratos", Status: types.TaskPending}
	created, err := w.CreateTaskIfAbsent(task)
	require.NoError(t, err)
	assert.True(t, created)

	again, err := w.CreateTaskIfAbsent(task)
	require.NoError(t, err)
	assert.False(t, again)
}

// TestUpdateTaskBumpsUpdatedAt tests that UpdateTask refreshes the
// timestamp before writing through.
func TestUpdateTaskBumpsUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	w := New(store, 8)
	w.Start(context.Background())
	defer w.Shutdown()

	original := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &types.Task{TaskID: "task-1", EndpointName: "contratos", Status: types.TaskPending, UpdatedAt: original}
	_, err := w.CreateTaskIfAbsent(task)
	require.NoError(t, err)

	require.NoError(t, w.UpdateTask(task))
	assert.True(t, task.UpdatedAt.After(original))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(original))
}

// TestShutdownDrainsQueueBeforeStopping tests that every submitted
// result is persisted even when Shutdown is called immediately after.
func TestShutdownDrainsQueueBeforeStopping(t *testing.T) {
	store := newTestStore(t)
	w := New(store, 16)
	w.Start(context.Background())

	date := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, w.Submit(&types.FetchResult{
			TaskID: "t1", EndpointName: "contratos", DataDate: date,
			Page: i, StatusCode: 200, Body: []byte(`{"id":1}`),
		}))
	}
	w.Shutdown()

	requests, err := store.ListRequestsForTask("contratos", "20260104", nil)
	require.NoError(t, err)
	assert.Len(t, requests, 5)
}
