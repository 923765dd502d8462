// Package reconciler is the sole authority that transitions tasks out of
// FETCHING/PARTIAL: it diffs the Request Log's persisted pages against
// each task's original plan and updates missing_pages and status
// accordingly. Idempotent; safe to re-run at any time.
package reconciler

import (
	"sync"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/franklinbaldo/baliza/pkg/writer"
	"github.com/rs/zerolog"
)

// Reconciler reads the Request Log and Task Store and writes updated
// task state via the Writer.
type Reconciler struct {
	store  storage.Store
	writer *writer.Writer
	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

// New constructs a Reconciler over store, writing transitions through w.
func New(store storage.Store, w *writer.Writer) *Reconciler {
	return &Reconciler{
		store:  store,
		writer: w,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins a periodic reconciliation loop, used by long-running
// Coordinator runs that want progressive status updates between
// Executor passes.
func (r *Reconciler) Start(interval time.Duration) {
	go r.run(interval)
}

// Stop ends the periodic loop started by Start.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile runs one full pass over every task in {FETCHING, PARTIAL}.
func (r *Reconciler) Reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, err := r.store.ListTasksByStatus(types.TaskFetching, types.TaskPartial)
	if err != nil {
		return errz.StorageError("reconciler.Reconcile", err)
	}

	for _, task := range tasks {
		if err := r.reconcileTask(task); err != nil {
			r.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to reconcile task")
		}
	}
	return nil
}

// reconcileTask implements §4.8's diff: query persisted pages, subtract
// from the original plan, and set COMPLETE or PARTIAL accordingly (a
// FETCHING task with pages still missing becomes PARTIAL).
func (r *Reconciler) reconcileTask(task *types.Task) error {
	dateKey := task.DataDate.Format("20060102")
	entries, err := r.store.ListRequestsForTask(task.EndpointName, dateKey, task.Modality)
	if err != nil {
		return errz.StorageError("reconciler.reconcileTask", err)
	}

	persisted := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.ResponseCode == 200 {
			persisted[e.CurrentPage] = true
		}
	}

	originalPages := originalPlanPages(task)
	var newMissing []int
	for _, page := range originalPages {
		if !persisted[page] {
			newMissing = append(newMissing, page)
		}
	}

	previousStatus := task.Status
	previousMissingCount := len(task.MissingPages)
	shrunk := len(newMissing) < previousMissingCount

	switch {
	case len(newMissing) == 0:
		task.Status = types.TaskComplete
	case shrunk || previousStatus == types.TaskFetching:
		task.Status = types.TaskPartial
	default:
		task.Status = previousStatus
	}
	task.MissingPages = newMissing

	if task.Status == previousStatus && len(newMissing) == previousMissingCount {
		return nil // no progress this cycle, nothing to persist
	}

	if err := r.writer.UpdateTask(task); err != nil {
		return errz.StorageError("reconciler.reconcileTask", err)
	}
	metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
	return nil
}

// originalPlanPages reconstructs [1..total_pages] from the task's
// discovered total_pages; page 1 is always part of the plan once
// discovery has run.
func originalPlanPages(task *types.Task) []int {
	if task.TotalPages == nil || *task.TotalPages <= 0 {
		return nil
	}
	pages := make([]int, *task.TotalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}
