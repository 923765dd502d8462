// Package discoverer fetches page 1 of every PENDING task to learn its
// pagination metadata and seed the missing-pages list the Executor will
// later drain.
package discoverer

import (
	"context"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/httpclient"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/registry"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/franklinbaldo/baliza/pkg/writer"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Discoverer drives PENDING tasks to FETCHING or a terminal state by
// fetching their first page.
type Discoverer struct {
	store       storage.Store
	writer      *writer.Writer
	client      *httpclient.Client
	registry    *registry.Registry
	concurrency int
	logger      zerolog.Logger
}

// New constructs a Discoverer with the given global worker concurrency.
func New(store storage.Store, w *writer.Writer, client *httpclient.Client, reg *registry.Registry, concurrency int) *Discoverer {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Discoverer{
		store:       store,
		writer:      w,
		client:      client,
		registry:    reg,
		concurrency: concurrency,
		logger:      log.WithComponent("discoverer"),
	}
}

// Run discovers every PENDING task up to the configured bounded
// concurrency. Discovery results may land in any order; each task
// transition is independent.
func (d *Discoverer) Run(ctx context.Context, runID string) error {
	tasks, err := d.store.ListTasksByStatus(types.TaskPending)
	if err != nil {
		return errz.StorageError("discoverer.Run", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			d.discoverOne(gctx, task, runID)
			return nil
		})
	}

	return g.Wait()
}

// discoverOne never returns a Go error to the caller: a single task's
// discovery failure is recorded on the task itself, not raised, per the
// spec's "permanent per-request failures are persisted, not raised"
// propagation policy.
func (d *Discoverer) discoverOne(ctx context.Context, task *types.Task, runID string) {
	logger := d.logger.With().Str("task_id", task.TaskID).Str("endpoint", task.EndpointName).Logger()

	if ctx.Err() != nil {
		return
	}

	ep, err := d.registry.Get(task.EndpointName)
	if err != nil {
		task.Status = types.TaskFailed
		task.LastError = err.Error()
		d.persist(task, logger)
		return
	}

	task.Status = types.TaskDiscovering
	d.persist(task, logger)

	result := d.client.Fetch(ctx, task.TaskID, &ep, task.DataDate, 1, task.Modality, runID)
	if err := d.writer.Submit(result); err != nil {
		task.Status = types.TaskFailed
		task.LastError = err.Error()
		d.persist(task, logger)
		return
	}

	if result.Err != nil {
		kind := errz.KindOf(result.Err)
		if kind == errz.KindCancelled {
			return
		}
		task.Status = types.TaskFailed
		task.LastError = result.Err.Error()
		d.persist(task, logger)
		logger.Warn().Err(result.Err).Msg("discovery failed")
		return
	}

	totalPages := 0
	if result.TotalPages != nil {
		totalPages = *result.TotalPages
	}
	task.TotalRecords = result.TotalRecords
	task.TotalPages = result.TotalPages

	if totalPages <= 0 {
		task.Status = types.TaskComplete
		task.MissingPages = nil
		d.persist(task, logger)
		return
	}

	missing := make([]int, 0, totalPages-1)
	for page := 2; page <= totalPages; page++ {
		missing = append(missing, page)
	}
	task.Status = types.TaskFetching
	task.MissingPages = missing
	d.persist(task, logger)
}

func (d *Discoverer) persist(task *types.Task, logger zerolog.Logger) {
	if err := d.writer.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("failed to persist task transition")
	}
	metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
}
