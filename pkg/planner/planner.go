// Package planner computes the CEE's deterministic task set: the
// Cartesian product of active endpoints, time buckets, and modalities,
// plus the plan fingerprint used to detect drift on resume.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/pncp"
	"github.com/franklinbaldo/baliza/pkg/registry"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/franklinbaldo/baliza/pkg/writer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// taskNamespace is the fixed namespace the task id is hashed against,
// mirroring the writer package's deterministic content id scheme.
var taskNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// Planner turns a date range and an Endpoint Registry into a persisted,
// idempotent set of PENDING tasks.
type Planner struct {
	registry *registry.Registry
	writer   *writer.Writer
	logger   zerolog.Logger
}

// New constructs a Planner over reg, submitting new tasks through w.
func New(reg *registry.Registry, w *writer.Writer) *Planner {
	return &Planner{
		registry: reg,
		writer:   w,
		logger:   log.WithComponent("planner"),
	}
}

// Result summarizes one planning run.
type Result struct {
	Fingerprint string
	TasksTotal  int
	TasksNew    int
}

// Plan computes the deterministic task set for [start, end] and inserts
// every task that doesn't already exist. Re-running with identical
// inputs produces no new rows.
func (p *Planner) Plan(start, end time.Time, granularityOverride types.Granularity, runID string) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlannerDuration)

	endpoints := p.registry.ListActive()
	if len(endpoints) == 0 {
		return nil, errz.ConfigError("planner.Plan", "no active endpoints in registry")
	}
	if end.Before(start) {
		return nil, errz.ConfigError("planner.Plan", "end date %s precedes start date %s", pncp.FormatDate(end), pncp.FormatDate(start))
	}

	fingerprint := Fingerprint(endpoints, start, end)

	result := &Result{Fingerprint: fingerprint}
	for _, ep := range endpoints {
		granularity := ep.Granularity
		if granularityOverride != "" {
			granularity = granularityOverride
		}
		buckets, err := pncp.TimeBuckets(start, end, granularity)
		if err != nil {
			return nil, err
		}

		modalities := ep.Modalities
		if len(modalities) == 0 {
			modalities = []int{} // sentinel: exactly one task with modality=nil
		}

		for _, bucket := range buckets {
			if len(ep.Modalities) == 0 {
				created, err := p.createTask(ep.Name, bucket, nil, fingerprint)
				if err != nil {
					return nil, err
				}
				result.TasksTotal++
				if created {
					result.TasksNew++
				}
				continue
			}
			for _, m := range modalities {
				mCopy := m
				created, err := p.createTask(ep.Name, bucket, &mCopy, fingerprint)
				if err != nil {
					return nil, err
				}
				result.TasksTotal++
				if created {
					result.TasksNew++
				}
			}
		}
	}

	p.logger.Info().
		Str("run_id", runID).
		Str("plan_fingerprint", fingerprint).
		Int("tasks_total", result.TasksTotal).
		Int("tasks_new", result.TasksNew).
		Msg("planning complete")

	return result, nil
}

func (p *Planner) createTask(endpointName string, dataDate time.Time, modality *int, fingerprint string) (bool, error) {
	task := &types.Task{
		TaskID:          TaskID(endpointName, dataDate, modality),
		EndpointName:    endpointName,
		DataDate:        dataDate,
		Modality:        modality,
		Status:          types.TaskPending,
		MissingPages:    nil,
		PlanFingerprint: fingerprint,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	created, err := p.writer.CreateTaskIfAbsent(task)
	if err != nil {
		return false, errz.StorageError("planner.createTask", err)
	}
	if created {
		metrics.TasksTotal.WithLabelValues(string(types.TaskPending)).Inc()
	}
	return created, nil
}

// TaskID derives the deterministic primary key for (endpoint_name,
// data_date, modality). Recomputing it from the same inputs always
// yields the same id, and a nil modality produces a distinct id from any
// concrete integer.
func TaskID(endpointName string, dataDate time.Time, modality *int) string {
	name := fmt.Sprintf("%s\x1f%s\x1f%s", endpointName, pncp.FormatDate(dataDate), pncp.ModalityKey(modality))
	return uuid.NewSHA1(taskNamespace, []byte(name)).String()
}

// Fingerprint hashes the sorted endpoint descriptors, their modality
// sets, granularity, and the requested date range. It is stable under
// permutation of endpoint order in the config, satisfying the plan
// drift detection contract.
func Fingerprint(endpoints []types.Endpoint, start, end time.Time) string {
	sorted := make([]types.Endpoint, len(endpoints))
	copy(sorted, endpoints)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s\n", pncp.FormatDate(start), pncp.FormatDate(end))
	for _, ep := range sorted {
		modalities := make([]int, len(ep.Modalities))
		copy(modalities, ep.Modalities)
		sort.Ints(modalities)
		fmt.Fprintf(&sb, "%s|%s|%s|%v\n", ep.Name, ep.PathTemplate, ep.Granularity, modalities)
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
