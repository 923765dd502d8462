// Package writer implements the CEE's single authoritative mutator over
// the Content Store, Request Log, and Task Store. Every other component
// holds a read-only storage handle and enqueues mutations here instead of
// writing directly.
package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contentNamespace is the fixed namespace the v5-style content id is hashed
// against, so identical payload bytes always resolve to the same id across
// runs and processes.
var contentNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

const (
	defaultQueueSize  = 256
	defaultRetries    = 5
	defaultRetryDelay = 200 * time.Millisecond
)

// Writer owns the DB connection and serializes every persistence mutation
// through a single consumer goroutine reading a bounded channel.
type Writer struct {
	store  storage.Store
	logger zerolog.Logger

	queue    chan *types.FetchResult
	wg       sync.WaitGroup
	stopped  chan struct{}
	fatalErr chan error
	once     sync.Once

	retries    int
	retryDelay time.Duration
}

// New constructs a Writer over store with the given bounded queue size.
// Start must be called before Submit.
func New(store storage.Store, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Writer{
		store:      store,
		logger:     log.WithComponent("writer"),
		queue:      make(chan *types.FetchResult, queueSize),
		stopped:    make(chan struct{}),
		fatalErr:   make(chan error, 1),
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
	}
}

// Start launches the single consumer goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Submit enqueues one HTTP result for persistence. It blocks once the
// queue is full, which backpressures the Executor naturally.
func (w *Writer) Submit(result *types.FetchResult) error {
	select {
	case w.queue <- result:
		metrics.WriterQueueDepth.Set(float64(len(w.queue)))
		return nil
	case err := <-w.fatalErr:
		w.fatalErr <- err // keep it available for other callers
		return err
	}
}

// SubmitBatch submits every result in order; it stops at the first error.
func (w *Writer) SubmitBatch(results []*types.FetchResult) error {
	for _, r := range results {
		if err := w.Submit(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush waits until the queue is fully drained.
func (w *Writer) Flush() {
	for len(w.queue) > 0 {
		time.Sleep(10 * time.Millisecond)
	}
}

// Shutdown flushes then stops the consumer goroutine.
func (w *Writer) Shutdown() {
	w.Flush()
	w.once.Do(func() { close(w.queue) })
	w.wg.Wait()
}

// CreateTaskIfAbsent inserts task with insert-if-not-exists semantics.
// Task mutations are low-volume control operations, unlike the bulk
// FetchResult stream, so they go straight through to the store rather
// than the bounded queue — bbolt's own transaction serialization still
// gives the single-writer guarantee the spec requires.
func (w *Writer) CreateTaskIfAbsent(task *types.Task) (bool, error) {
	return w.store.CreateTaskIfAbsent(task)
}

// UpdateTask persists a task's new state. Called by the Discoverer and
// Reconciler, never by the Executor.
func (w *Writer) UpdateTask(task *types.Task) error {
	task.UpdatedAt = time.Now()
	return w.store.UpdateTask(task)
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case result, ok := <-w.queue:
			if !ok {
				return
			}
			metrics.WriterQueueDepth.Set(float64(len(w.queue)))
			w.persist(ctx, result)
		case <-ctx.Done():
			w.drainRemaining(ctx)
			return
		}
	}
}

// drainRemaining persists whatever is still queued after cancellation, so
// the Writer never silently drops a submitted result.
func (w *Writer) drainRemaining(ctx context.Context) {
	for {
		select {
		case result, ok := <-w.queue:
			if !ok {
				return
			}
			w.persist(context.Background(), result)
		default:
			return
		}
	}
}

func (w *Writer) persist(ctx context.Context, result *types.FetchResult) {
	op := func() error { return w.persistOnce(result) }

	retryErr := retry(ctx, w.retries, w.retryDelay, op)
	if retryErr == nil {
		return
	}
	err := errz.StorageError("writer.persist", retryErr)
	w.logger.Error().Err(err).Str("task_id", result.TaskID).Msg("writer exhausted retries, surfacing fatal error")
	select {
	case w.fatalErr <- err:
	default:
	}
}

func (w *Writer) persistOnce(result *types.FetchResult) error {
	entry := &types.RequestLogEntry{
		RequestID:    uuid.New().String(),
		EndpointName: result.EndpointName,
		EndpointURL:  result.URL,
		Modality:     result.Modality,
		ResponseCode: result.StatusCode,
		ResponseHeaders: result.Headers,
		DataDate:     result.DataDate,
		RunID:        result.RunID,
		TotalRecords: result.TotalRecords,
		TotalPages:   result.TotalPages,
		CurrentPage:  result.Page,
		PageSize:     result.PageSize,
		ExtractedAt:  time.Now(),
	}

	if result.Err == nil && result.StatusCode == 200 && len(result.Body) > 0 {
		blob := buildContentBlob(result.Body)
		if err := w.store.PersistSuccess(entry, blob); err != nil {
			return err
		}
		metrics.PagesPersistedTotal.WithLabelValues(result.EndpointName).Inc()
		return nil
	}

	return w.store.PersistError(entry)
}

// buildContentBlob normalizes payload by trimming leading/trailing
// whitespace only (never re-serializing JSON, per the spec's explicit
// canonicalization mandate) and derives a deterministic content id.
func buildContentBlob(body []byte) *types.ContentBlob {
	normalized := []byte(strings.TrimSpace(string(body)))
	sum := sha256.Sum256(normalized)
	hexSum := hex.EncodeToString(sum[:])
	now := time.Now()
	return &types.ContentBlob{
		ContentID:      ContentID(hexSum),
		Payload:        normalized,
		ContentSHA256:  hexSum,
		ByteSize:       int64(len(normalized)),
		ReferenceCount: 1,
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}
}

// ContentID derives the deterministic v5 name-hash content id for a given
// SHA-256 hex digest, namespaced so two different producers never collide
// on an id by coincidence.
func ContentID(sha256hex string) string {
	return uuid.NewSHA1(contentNamespace, []byte(sha256hex)).String()
}

// retry is the Writer's retry-with-backoff helper, grounded on the same
// exponential-backoff shape used throughout the test harness.
func retry(ctx context.Context, attempts int, initialDelay time.Duration, operation func() error) error {
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
				metrics.StorageRetriesTotal.Inc()
			}
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}
