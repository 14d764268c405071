package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/internal/config"
)

var errConflict = errors.New("serialization failure")

func isTestConflict(err error) bool { return errors.Is(err, errConflict) }

type fakeJob struct {
	polls     atomic.Int32
	doneAfter int32
	err       error
}

func (j *fakeJob) Done(context.Context) (bool, error) {
	if j.err != nil {
		return false, j.err
	}
	return j.polls.Add(1) >= j.doneAfter, nil
}

type fakeStore struct {
	batches   [][]document.Document
	conflicts int
	err       error
	job       document.Job
	dedup     map[string]int
	calls     int
}

func (s *fakeStore) Insert(context.Context, document.Document) (document.InsertResult, error) {
	return document.InsertResult{}, nil
}

func (s *fakeStore) Get(context.Context, string, string) (document.Document, error) {
	return nil, document.ErrNotFound
}

func (s *fakeStore) WriteBatch(_ context.Context, docs []document.Document) (document.BatchResult, error) {
	s.calls++
	if s.conflicts > 0 {
		s.conflicts--
		return document.BatchResult{}, errConflict
	}
	if s.err != nil {
		return document.BatchResult{}, s.err
	}
	s.batches = append(s.batches, append([]document.Document(nil), docs...))
	return document.BatchResult{Job: s.job, Deduplicated: s.dedup}, nil
}

func (s *fakeStore) SaveRepository(context.Context, document.Repository) error { return nil }

func (s *fakeStore) SetError(context.Context, document.Kind, string, string) error { return nil }

func fastRetry() config.RetryConfig {
	return config.NewRetryConfig().
		WithMaxAttempts(3).
		WithInitialInterval(time.Millisecond).
		WithMaxInterval(2 * time.Millisecond)
}

func newTestWriter(store document.Store, opts ...Option) *Writer {
	base := []Option{
		WithRetry(fastRetry()),
		WithPoll(config.NewPollConfig().WithMaxInterval(time.Millisecond).WithMaxElapsed(time.Second)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewWriter(store, isTestConflict, append(base, opts...)...)
}

func texts(n int) []document.Document {
	out := make([]document.Document, n)
	for i := range out {
		out[i] = document.NewText(string(rune('a' + i)))
	}
	return out
}

func TestWriter_ThresholdFlush(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	sink := progress.NewChannel(10)
	w := newTestWriter(store, WithThreshold(3), WithSink(sink))

	require.NoError(t, w.Add(ctx, texts(7)...))
	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 3)
	assert.Len(t, store.batches[1], 3)
	assert.Equal(t, 1, w.Pending())

	require.NoError(t, w.Flush(ctx))
	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[2], 1)
	assert.Equal(t, 7, w.Written())
	assert.Equal(t, 0, w.Pending())

	require.Len(t, sink, 3)
	total := 0
	for range 3 {
		msg := <-sink
		assert.Equal(t, progress.KindWritten, msg.Kind)
		total += msg.Count
	}
	assert.Equal(t, 7, total)
}

func TestWriter_FlushEmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	w := newTestWriter(store)
	require.NoError(t, w.Flush(context.Background()))
	assert.Zero(t, store.calls)
}

func TestWriter_RetriesConflicts(t *testing.T) {
	store := &fakeStore{conflicts: 2}
	w := newTestWriter(store)

	require.NoError(t, w.Add(context.Background(), texts(2)...))
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 3, store.calls)
	require.Len(t, store.batches, 1)
}

func TestWriter_RetriesExhausted(t *testing.T) {
	store := &fakeStore{conflicts: 10}
	w := newTestWriter(store)

	require.NoError(t, w.Add(context.Background(), texts(2)...))
	err := w.Flush(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 2, w.Pending())
}

func TestWriter_NonConflictErrorIsNotRetried(t *testing.T) {
	mismatch := &document.MismatchError{Collection: "wstnodes", Key: "k"}
	store := &fakeStore{err: mismatch}
	w := newTestWriter(store)

	require.NoError(t, w.Add(context.Background(), texts(1)...))
	err := w.Flush(context.Background())
	require.ErrorIs(t, err, document.ErrDeduplicatedObjectMismatch)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, store.calls)
}

func TestWriter_PollsAsyncJob(t *testing.T) {
	job := &fakeJob{doneAfter: 3}
	store := &fakeStore{job: job}
	w := newTestWriter(store)

	require.NoError(t, w.Add(context.Background(), texts(1)...))
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, int32(3), job.polls.Load())
}

func TestWriter_AsyncJobFailure(t *testing.T) {
	boom := errors.New("job failed")
	store := &fakeStore{job: &fakeJob{err: boom}}
	w := newTestWriter(store)

	require.NoError(t, w.Add(context.Background(), texts(1)...))
	assert.ErrorIs(t, w.Flush(context.Background()), boom)
}

func TestWriter_DedupStats(t *testing.T) {
	store := &fakeStore{dedup: map[string]int{"wsttexts": 2}}
	w := newTestWriter(store, WithThreshold(2))

	require.NoError(t, w.Add(context.Background(), texts(4)...))
	assert.Equal(t, map[string]int{"wsttexts": 4}, w.TakeDedupStats())
	assert.Empty(t, w.TakeDedupStats())
}

func TestWriter_FoldsDroppedProgress(t *testing.T) {
	store := &fakeStore{}
	sink := progress.NewChannel(1)
	w := newTestWriter(store, WithThreshold(1), WithSink(sink))

	require.NoError(t, w.Add(context.Background(), texts(3)...))
	first := <-sink
	assert.Equal(t, 1, first.Count)

	require.NoError(t, w.Add(context.Background(), texts(1)...))
	second := <-sink
	// Two flushes were dropped while the channel was full.
	assert.Equal(t, 3, second.Count)
}

func TestWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{conflicts: 1}
	w := newTestWriter(store)

	require.NoError(t, w.Add(ctx, texts(1)...))
	err := w.Flush(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
}
