// Package executor fans out concurrent page downloads across every task
// in FETCHING or PARTIAL state and hands results to the Writer. The
// Executor never mutates task state itself — the Reconciler is the sole
// authority for status and missing_pages transitions.
package executor

import (
	"context"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/httpclient"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/registry"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/franklinbaldo/baliza/pkg/writer"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// workItem is one (task, page) unit of download work.
type workItem struct {
	task *types.Task
	page int
}

// Executor drains the global {FETCHING, PARTIAL} work set with a bounded
// worker pool.
type Executor struct {
	store       storage.Store
	writer      *writer.Writer
	client      *httpclient.Client
	registry    *registry.Registry
	concurrency int
	logger      zerolog.Logger
}

// New constructs an Executor with the given global worker concurrency.
func New(store storage.Store, w *writer.Writer, client *httpclient.Client, reg *registry.Registry, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 16
	}
	return &Executor{
		store:       store,
		writer:      w,
		client:      client,
		registry:    reg,
		concurrency: concurrency,
		logger:      log.WithComponent("executor"),
	}
}

// Run gathers the global work set and dispatches it across the worker
// pool, stopping early on the first fatal Writer error or context
// cancellation.
func (e *Executor) Run(ctx context.Context, runID string) error {
	items, err := e.buildWorkSet()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			return e.runOne(gctx, item, runID)
		})
	}

	return g.Wait()
}

func (e *Executor) buildWorkSet() ([]workItem, error) {
	tasks, err := e.store.ListTasksByStatus(types.TaskFetching, types.TaskPartial)
	if err != nil {
		return nil, errz.StorageError("executor.buildWorkSet", err)
	}

	var items []workItem
	for _, task := range tasks {
		for _, page := range task.MissingPages {
			items = append(items, workItem{task: task, page: page})
		}
	}
	return items, nil
}

func (e *Executor) runOne(ctx context.Context, item workItem, runID string) error {
	if err := ctx.Err(); err != nil {
		return nil
	}

	ep, err := e.registry.Get(item.task.EndpointName)
	if err != nil {
		e.logger.Error().Err(err).Str("endpoint", item.task.EndpointName).Msg("unknown endpoint for queued task")
		return nil
	}

	result := e.client.Fetch(ctx, item.task.TaskID, &ep, item.task.DataDate, item.page, item.task.Modality, runID)
	if err := e.writer.Submit(result); err != nil {
		return err // fatal: propagate to Coordinator via errgroup cancellation
	}

	if result.Err != nil && errz.KindOf(result.Err) != errz.KindCancelled {
		e.logger.Warn().Err(result.Err).Str("task_id", item.task.TaskID).Int("page", item.page).Msg("page fetch failed, leaving in missing_pages for Reconciler")
	}
	return nil
}
