package tracking

import (
	"context"
	"log/slog"
)

// LoggingReporter implements Reporter by logging snapshots. The final one is
// logged as the run summary.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a new LoggingReporter.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	return &LoggingReporter{
		logger: logger,
	}
}

// OnChange logs the snapshot.
func (r *LoggingReporter) OnChange(_ context.Context, totals Totals) error {
	attrs := []any{
		slog.String("run", totals.Run),
		slog.Int("files", totals.Files),
		slog.Int("total", totals.Total),
		slog.Int("written", totals.Written),
		slog.Int("deduplicated", totals.DedupTotal()),
	}

	if !totals.Final {
		r.logger.Debug("progress", attrs...)
		return nil
	}

	for coll, n := range totals.Dedup {
		attrs = append(attrs, slog.Int("dedup_"+coll, n))
	}
	attrs = append(attrs,
		slog.Int("text_cache_hits", totals.CacheHits),
		slog.Int("text_cache_misses", totals.CacheMisses),
		slog.Float64("text_cache_hit_rate", totals.CacheHitRate()),
	)
	r.logger.Info("run summary", attrs...)
	return nil
}
