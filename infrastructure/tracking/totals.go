// Package tracking aggregates worker progress messages and fans snapshots out
// to reporters: a progress bar, prometheus counters and the log.
package tracking

import (
	"context"
	"maps"
)

// Reporter receives progress snapshots.
type Reporter interface {
	OnChange(ctx context.Context, totals Totals) error
}

// Totals is a snapshot of a run's progress.
type Totals struct {
	// Run identifies the run the snapshot belongs to.
	Run string
	// Files is the number of files the workers finished.
	Files int
	// Total is the number of files the run will process, 0 if unknown.
	Total int
	// Written counts documents sent to storage.
	Written int
	// Dedup counts dedup hits per collection.
	Dedup       map[string]int
	CacheHits   int
	CacheMisses int
	// Final is set on the last snapshot of a run.
	Final bool
}

// DedupTotal sums dedup hits over every collection.
func (t Totals) DedupTotal() int {
	n := 0
	for _, v := range t.Dedup {
		n += v
	}
	return n
}

// CacheHitRate is the fraction of text lookups served by the cache.
func (t Totals) CacheHitRate() float64 {
	lookups := t.CacheHits + t.CacheMisses
	if lookups == 0 {
		return 0
	}
	return float64(t.CacheHits) / float64(lookups)
}

func (t Totals) clone() Totals {
	t.Dedup = maps.Clone(t.Dedup)
	return t
}
