package tracking

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports run totals as prometheus counters. Snapshots are cumulative
// per run, so each one adds only its delta over the previous snapshot.
type Metrics struct {
	registry *prometheus.Registry

	files       prometheus.Counter
	written     prometheus.Counter
	dedup       *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	runs        prometheus.Counter

	mu   sync.Mutex
	last map[string]Totals
}

// NewMetrics creates counters registered on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syntree_files_processed_total", Help: "Files finished by workers",
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syntree_documents_written_total", Help: "Documents sent to storage",
		}),
		dedup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syntree_dedup_hits_total", Help: "Documents that already existed",
		}, []string{"collection"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syntree_text_cache_hits_total", Help: "Text lookups served by the worker cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syntree_text_cache_misses_total", Help: "Text lookups missing the worker cache",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syntree_runs_finished_total", Help: "Analysis runs that finished",
		}),
		last: make(map[string]Totals),
	}
	m.registry.MustRegister(m.files, m.written, m.dedup, m.cacheHits, m.cacheMisses, m.runs)
	return m
}

// Registry returns the registry the counters live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// OnChange adds the growth since the previous snapshot of the same run.
func (m *Metrics) OnChange(_ context.Context, totals Totals) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.last[totals.Run]
	m.files.Add(float64(max(0, totals.Files-prev.Files)))
	m.written.Add(float64(max(0, totals.Written-prev.Written)))
	m.cacheHits.Add(float64(max(0, totals.CacheHits-prev.CacheHits)))
	m.cacheMisses.Add(float64(max(0, totals.CacheMisses-prev.CacheMisses)))
	for coll, n := range totals.Dedup {
		if d := n - prev.Dedup[coll]; d > 0 {
			m.dedup.WithLabelValues(coll).Add(float64(d))
		}
	}

	if totals.Final {
		m.runs.Inc()
		delete(m.last, totals.Run)
		return nil
	}
	m.last[totals.Run] = totals.clone()
	return nil
}
