// Package batch buffers documents and writes them to a store in
// transactional batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/cenkalti/backoff/v4"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/internal/config"
)

// ErrRetriesExhausted is returned when a batch still conflicts after the
// last permitted attempt.
var ErrRetriesExhausted = errors.New("batch retries exhausted")

// errJobPending keeps the poll loop going.
var errJobPending = errors.New("batch job pending")

// ConflictFunc classifies errors that a retry may resolve.
type ConflictFunc func(error) bool

// Writer accumulates documents and writes them with Store.WriteBatch. A
// Writer belongs to a single goroutine.
type Writer struct {
	store      document.Store
	isConflict ConflictFunc
	sink       progress.Sink
	logger     *slog.Logger
	threshold  int
	retry      config.RetryConfig
	poll       config.PollConfig

	pending []document.Document
	dedup   map[string]int
	written int
	dropped int
}

// Option configures a Writer.
type Option func(*Writer)

// WithThreshold sets the number of pending documents that triggers a flush.
func WithThreshold(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.threshold = n
		}
	}
}

// WithRetry sets the conflict retry policy.
func WithRetry(r config.RetryConfig) Option {
	return func(w *Writer) { w.retry = r }
}

// WithPoll sets the async job poll policy.
func WithPoll(p config.PollConfig) Option {
	return func(w *Writer) { w.poll = p }
}

// WithSink sets where progress messages go.
func WithSink(s progress.Sink) Option {
	return func(w *Writer) {
		if s != nil {
			w.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter creates a Writer. A nil isConflict never retries.
func NewWriter(store document.Store, isConflict ConflictFunc, opts ...Option) *Writer {
	if isConflict == nil {
		isConflict = func(error) bool { return false }
	}
	w := &Writer{
		store:      store,
		isConflict: isConflict,
		sink:       progress.Discard{},
		logger:     slog.Default(),
		threshold:  config.DefaultBatchSize,
		retry:      config.NewRetryConfig(),
		poll:       config.NewPollConfig(),
		dedup:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add queues docs, flushing whenever the threshold is reached.
func (w *Writer) Add(ctx context.Context, docs ...document.Document) error {
	for _, doc := range docs {
		w.pending = append(w.pending, doc)
		if len(w.pending) >= w.threshold {
			if err := w.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pending returns the number of queued documents.
func (w *Writer) Pending() int {
	return len(w.pending)
}

// Written returns the number of documents flushed so far.
func (w *Writer) Written() int {
	return w.written
}

// Flush writes every queued document as one batch. On error the queue is
// kept so the caller may decide what to do with it.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	result, err := w.writeWithRetry(ctx, w.pending)
	if err != nil {
		return err
	}
	if result.Job != nil {
		if err := w.await(ctx, result.Job); err != nil {
			return err
		}
	}

	n := len(w.pending)
	w.pending = w.pending[:0]
	w.written += n
	for coll, hits := range result.Deduplicated {
		w.dedup[coll] += hits
	}
	w.report(n)
	return nil
}

// TakeDedupStats returns and resets the dedup counts accumulated by flushes.
func (w *Writer) TakeDedupStats() map[string]int {
	out := maps.Clone(w.dedup)
	clear(w.dedup)
	return out
}

// Reset drops queued documents and dedup counts.
func (w *Writer) Reset() {
	w.pending = w.pending[:0]
	clear(w.dedup)
}

func (w *Writer) writeWithRetry(ctx context.Context, docs []document.Document) (document.BatchResult, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.retry.InitialInterval()
	bo.MaxInterval = w.retry.MaxInterval()
	bo.MaxElapsedTime = 0

	var (
		result  document.BatchResult
		lastErr error
		attempt int
	)
	operation := func() error {
		attempt++
		var err error
		result, err = w.store.WriteBatch(ctx, docs)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !w.isConflict(err) {
			return backoff.Permanent(err)
		}
		w.logger.Debug("batch write conflict, retrying",
			slog.Int("attempt", attempt),
			slog.Int("documents", len(docs)),
			slog.String("error", err.Error()),
		)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(w.retry.MaxAttempts()-1, 0))), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if lastErr != nil && w.isConflict(lastErr) && ctx.Err() == nil {
			return document.BatchResult{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
		}
		return document.BatchResult{}, err
	}
	return result, nil
}

// await polls an asynchronous job until it reports completion.
func (w *Writer) await(ctx context.Context, job document.Job) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = w.poll.MaxInterval()
	bo.MaxElapsedTime = w.poll.MaxElapsed()

	err := backoff.Retry(func() error {
		done, err := job.Done(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errJobPending
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("await batch job: %w", err)
	}
	return nil
}

// report sends the written count without blocking. Counts from dropped
// sends are carried into the next one.
func (w *Writer) report(n int) {
	total := n + w.dropped
	if w.sink.Send(progress.Written(total)) {
		w.dropped = 0
		return
	}
	w.dropped = total
}
