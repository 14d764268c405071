package tracking

import (
	"context"
	"log/slog"
	"sync"

	"github.com/helixml/syntree/domain/progress"
)

// Aggregator is the single consumer of a progress channel. It folds messages
// into Totals and notifies its reporters after each one. Reporters are never
// called concurrently and see snapshots in the order they were taken.
type Aggregator struct {
	ch          progress.Channel
	logger      *slog.Logger
	notifyMu    sync.Mutex
	mu          sync.RWMutex
	totals      Totals
	subscribers []Reporter
}

// NewAggregator creates an Aggregator reading from ch for the run id.
func NewAggregator(ch progress.Channel, run string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		ch:     ch,
		logger: logger,
		totals: Totals{Run: run, Dedup: make(map[string]int)},
	}
}

// Subscribe adds a reporter.
func (a *Aggregator) Subscribe(reporter Reporter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, reporter)
}

// SetTotal records how many files the run will process. It may be called
// from any goroutine.
func (a *Aggregator) SetTotal(ctx context.Context, total int) {
	a.update(ctx, func(t *Totals) { t.Total = total })
}

// Totals returns the current snapshot.
func (a *Aggregator) Totals() Totals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totals.clone()
}

// Run consumes messages until the channel is closed, then delivers the final
// snapshot. If ctx ends first, Run drains what is already buffered and
// returns the context error.
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-a.ch:
			if !ok {
				a.finish(context.WithoutCancel(ctx))
				return nil
			}
			a.apply(ctx, msg)
		case <-ctx.Done():
			a.drain(ctx)
			a.finish(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

func (a *Aggregator) drain(ctx context.Context) {
	for {
		select {
		case msg, ok := <-a.ch:
			if !ok {
				return
			}
			a.apply(ctx, msg)
		default:
			return
		}
	}
}

func (a *Aggregator) apply(ctx context.Context, msg progress.Message) {
	switch msg.Kind {
	case progress.KindWritten:
		a.update(ctx, func(t *Totals) { t.Written += msg.Count })
	case progress.KindDedupStats:
		a.update(ctx, func(t *Totals) { t.Dedup[msg.Collection] += msg.Count })
	case progress.KindCacheStats:
		a.update(ctx, func(t *Totals) {
			t.CacheHits += msg.Hits
			t.CacheMisses += msg.Misses
		})
	case progress.KindFileDone:
		a.update(ctx, func(t *Totals) { t.Files += msg.Count })
	default:
		a.logger.Warn("unknown progress message", slog.String("kind", string(msg.Kind)))
	}
}

func (a *Aggregator) finish(ctx context.Context) {
	a.update(ctx, func(t *Totals) { t.Final = true })
}

// update applies fn and notifies reporters with the resulting snapshot.
func (a *Aggregator) update(ctx context.Context, fn func(*Totals)) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	fn(&a.totals)
	totals := a.totals.clone()
	subscribers := make([]Reporter, len(a.subscribers))
	copy(subscribers, a.subscribers)
	a.mu.Unlock()

	a.notify(ctx, totals, subscribers)
}

func (a *Aggregator) notify(ctx context.Context, totals Totals, subscribers []Reporter) {
	for _, subscriber := range subscribers {
		if err := subscriber.OnChange(ctx, totals); err != nil {
			a.logger.Error("failed to notify reporter",
				slog.String("error", err.Error()),
				slog.String("run", totals.Run),
			)
		}
	}
}
