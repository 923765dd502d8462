// Package coordinator implements the CEE's top-level run state machine:
// INIT -> PLANNED -> DISCOVERED -> EXECUTED -> RECONCILED -> DONE, with a
// CANCELLED branch reachable from any non-terminal state. It owns the DB
// connection and Writer lifecycle and sequences every other component.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/franklinbaldo/baliza/pkg/config"
	"github.com/franklinbaldo/baliza/pkg/discoverer"
	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/events"
	"github.com/franklinbaldo/baliza/pkg/executor"
	"github.com/franklinbaldo/baliza/pkg/httpclient"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/planner"
	"github.com/franklinbaldo/baliza/pkg/reconciler"
	"github.com/franklinbaldo/baliza/pkg/registry"
	"github.com/franklinbaldo/baliza/pkg/statusserver"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/franklinbaldo/baliza/pkg/writer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Params configures one Coordinator run.
type Params struct {
	StartDate           time.Time
	EndDate             time.Time
	GranularityOverride types.Granularity
	BaseURL             string
	AllowRePlan         bool // explicit caller approval to proceed past a plan-fingerprint mismatch
}

// Coordinator sequences Planner -> Discoverer -> Executor -> Reconciler,
// owns construct-on-INIT / teardown-on-DONE lifecycle for the Writer and
// DB, and emits progress events.
type Coordinator struct {
	cfg    *config.Config
	store  storage.Store
	writer *writer.Writer
	broker *events.Broker
	logger zerolog.Logger

	phase types.RunPhase
}

// New wires a Coordinator from a loaded config: opens the BoltDB store
// and starts the event broker. Run starts a Writer's consumer goroutine
// for each run.
func New(cfg *config.Config) (*Coordinator, error) {
	store, err := storage.NewBoltStore(cfg.DBPath)
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return nil, errz.StorageError("coordinator.New", err)
	}
	metrics.RegisterComponent("storage", true, "")

	w := writer.New(store, 0)
	broker := events.NewBroker()
	broker.Start()
	metrics.RegisterComponent("writer", true, "")

	return &Coordinator{
		cfg:    cfg,
		store:  store,
		writer: w,
		broker: broker,
		logger: log.WithComponent("coordinator"),
		phase:  types.PhaseInit,
	}, nil
}

// Subscribe returns a channel of progress events for callers that want a
// live feed; the CLI's status command and the status server do not use it.
func (c *Coordinator) Subscribe() events.Subscriber {
	return c.broker.Subscribe()
}

// Run drives one full extraction run through every phase, returning DONE
// or CANCELLED, or, on a fatal error, the last phase this run reached
// together with that error.
func (c *Coordinator) Run(ctx context.Context, params Params) (types.RunPhase, error) {
	runID := c.cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A Writer cannot be restarted after Shutdown, so every run gets its own.
	c.phase = types.PhaseInit
	c.writer = writer.New(c.store, 0)
	c.writer.Start(ctx)
	defer c.writer.Shutdown()

	if c.cfg.StatusAddr != "" {
		srv := statusserver.New(c.store)
		go func() {
			if err := srv.Start(c.cfg.StatusAddr); err != nil {
				c.logger.Warn().Err(err).Str("addr", c.cfg.StatusAddr).Msg("status server stopped")
			}
		}()
	}

	c.emit(events.EventRunStarted, runID, "run started", nil)

	reg, err := registry.Load(c.cfg.ConfigPath)
	if err != nil {
		return c.fail(runID, err)
	}

	client, err := httpclient.New(httpclient.DefaultOptions(params.BaseURL, c.cfg.MaxRPS, c.cfg.MinRPS, time.Duration(c.cfg.HTTPTimeoutSeconds)*time.Second))
	if err != nil {
		metrics.RegisterComponent("httpclient", false, err.Error())
		return c.fail(runID, err)
	}
	metrics.RegisterComponent("httpclient", true, "")

	if err := c.runPlanner(reg, params, runID); err != nil {
		return c.fail(runID, err)
	}
	if ctx.Err() != nil {
		return c.cancelled(runID)
	}

	disc := discoverer.New(c.store, c.writer, client, reg, c.cfg.ExtractConcurrency)
	if err := disc.Run(ctx, runID); err != nil {
		return c.fail(runID, err)
	}
	c.transition(types.PhaseDiscovered, runID)
	if ctx.Err() != nil {
		return c.cancelled(runID)
	}

	exec := executor.New(c.store, c.writer, client, reg, c.cfg.ExtractConcurrency)
	if err := exec.Run(ctx, runID); err != nil {
		return c.fail(runID, err)
	}
	c.transition(types.PhaseExecuted, runID)
	if ctx.Err() != nil {
		return c.cancelled(runID)
	}

	c.writer.Flush()

	rec := reconciler.New(c.store, c.writer)
	if err := rec.Reconcile(); err != nil {
		return c.fail(runID, err)
	}
	c.transition(types.PhaseReconciled, runID)

	c.writer.Shutdown()
	c.transition(types.PhaseDone, runID)
	c.emit(events.EventRunDone, runID, c.summary(), nil)
	return types.PhaseDone, nil
}

func (c *Coordinator) runPlanner(reg *registry.Registry, params Params, runID string) error {
	p := planner.New(reg, c.writer)

	if err := c.checkPlanDrift(reg, params, runID); err != nil {
		return err
	}

	result, err := p.Plan(params.StartDate, params.EndDate, params.GranularityOverride, runID)
	if err != nil {
		return err
	}
	c.logger.Info().Str("run_id", runID).Int("tasks_new", result.TasksNew).Msg("plan committed")
	c.transition(types.PhasePlanned, runID)
	return nil
}

// checkPlanDrift compares the fingerprint the current inputs would
// produce against any already-persisted tasks' fingerprint. A mismatch
// is fatal unless the caller explicitly approves a re-plan.
func (c *Coordinator) checkPlanDrift(reg *registry.Registry, params Params, runID string) error {
	existing, err := c.store.ListTasks()
	if err != nil {
		return errz.StorageError("coordinator.checkPlanDrift", err)
	}
	if len(existing) == 0 {
		return nil
	}

	want := planner.Fingerprint(reg.ListActive(), params.StartDate, params.EndDate)
	got := existing[0].PlanFingerprint
	if want == got {
		return nil
	}
	if params.AllowRePlan {
		c.logger.Warn().Str("run_id", runID).Str("previous_fingerprint", got).Str("new_fingerprint", want).Msg("plan drift override accepted")
		return nil
	}
	return errz.PlanDriftError("coordinator.checkPlanDrift", "persisted plan fingerprint %s does not match current inputs %s", got, want)
}

func (c *Coordinator) transition(phase types.RunPhase, runID string) {
	c.phase = phase
	c.logger.Info().Str("run_id", runID).Str("phase", string(phase)).Msg("phase transition")
}

func (c *Coordinator) fail(runID string, err error) (types.RunPhase, error) {
	if errz.KindOf(err) == errz.KindCancelled {
		return c.cancelled(runID)
	}
	c.logger.Error().Str("run_id", runID).Err(err).Msg("run failed")
	c.emit(events.EventRunCancelled, runID, err.Error(), nil)
	return c.phase, err
}

func (c *Coordinator) cancelled(runID string) (types.RunPhase, error) {
	c.phase = types.PhaseCancelled
	c.emit(events.EventRunCancelled, runID, "cancelled", nil)
	return types.PhaseCancelled, errz.Cancelled("coordinator.Run")
}

func (c *Coordinator) emit(t events.EventType, runID, message string, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["run_id"] = runID
	c.broker.Publish(&events.Event{
		ID:       uuid.New().String(),
		Type:     t,
		Message:  message,
		Metadata: metadata,
	})
}

// summary builds the user-visible end-of-run summary: task counts by
// status. It does not include pages persisted or per-endpoint error counts.
func (c *Coordinator) summary() string {
	tasks, err := c.store.ListTasks()
	if err != nil {
		return "summary unavailable"
	}
	counts := make(map[types.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	return fmt.Sprintf("tasks: complete=%d partial=%d fetching=%d failed=%d pending=%d",
		counts[types.TaskComplete], counts[types.TaskPartial], counts[types.TaskFetching], counts[types.TaskFailed], counts[types.TaskPending])
}

// Close releases the underlying store. Call after Run returns.
func (c *Coordinator) Close() error {
	c.broker.Stop()
	return c.store.Close()
}

