package jsonl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixml/syntree/domain/document"
)

// ImportStats summarises an import.
type ImportStats struct {
	// Read counts lines decoded per collection.
	Read map[string]int
	// Deduplicated counts documents the target already held.
	Deduplicated map[string]int
}

// Importer loads JSONL files into a document.Store.
type Importer struct {
	logger    *slog.Logger
	chunkSize int
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithChunkSize sets how many documents go into one WriteBatch call.
func WithChunkSize(n int) ImporterOption {
	return func(i *Importer) {
		if n > 0 {
			i.chunkSize = n
		}
	}
}

// NewImporter creates an Importer.
func NewImporter(logger *slog.Logger, opts ...ImporterOption) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Importer{logger: logger, chunkSize: 1000}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import reads every collection file under dir, vertices before edges, and
// writes the documents to store. Missing files are skipped.
//
// Repositories are saved with their last recorded state. A File or CodeTree
// line for a key already in store updates its error when it differs, so an
// append-only log replays to its final state.
func (i *Importer) Import(ctx context.Context, dir string, store document.Store) (ImportStats, error) {
	stats := ImportStats{Read: make(map[string]int), Deduplicated: make(map[string]int)}
	for _, coll := range document.Registry().Collections() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := i.importCollection(ctx, dir, coll, store, stats); err != nil {
			return stats, fmt.Errorf("import %s: %w", coll, err)
		}
		if n := stats.Read[coll]; n > 0 {
			i.logger.Debug("imported collection", "collection", coll, "documents", n,
				"deduplicated", stats.Deduplicated[coll])
		}
	}
	return stats, nil
}

func (i *Importer) importCollection(ctx context.Context, dir, coll string, store document.Store, stats ImportStats) error {
	kind, isVertex := document.Registry().KindByCollection(coll)
	mutable := isVertex && len(document.Registry().MutableFields(coll)) > 0

	var chunk []document.Document
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		res, err := store.WriteBatch(ctx, chunk)
		if err != nil {
			return err
		}
		for c, n := range res.Deduplicated {
			stats.Deduplicated[c] += n
		}
		chunk = chunk[:0]
		return nil
	}

	err := scan(Path(dir, coll), func(line []byte) error {
		doc, err := document.Decode(coll, line)
		if err != nil {
			return err
		}
		stats.Read[coll]++
		if !mutable {
			chunk = append(chunk, doc)
			if len(chunk) >= i.chunkSize {
				return flush()
			}
			return nil
		}
		if repo, ok := doc.(document.Repository); ok {
			return store.SaveRepository(ctx, repo)
		}
		return i.replay(ctx, store, kind, doc, stats)
	})
	if err != nil {
		return err
	}
	return flush()
}

// replay inserts a document with a mutable error field, carrying a changed
// error over to the stored copy.
func (i *Importer) replay(ctx context.Context, store document.Store, kind document.Kind, doc document.Document, stats ImportStats) error {
	res, err := store.Insert(ctx, doc)
	if err != nil {
		return err
	}
	if !res.Deduplicated {
		return nil
	}
	stats.Deduplicated[doc.Collection()]++

	want, have := errorOf(doc), errorOf(res.Document)
	if want == have {
		return nil
	}
	if err := store.SetError(ctx, kind, doc.Key(), want); err != nil && !errors.Is(err, document.ErrNotFound) {
		return err
	}
	return nil
}

func errorOf(doc document.Document) string {
	switch d := doc.(type) {
	case document.File:
		return d.Error()
	case document.CodeTree:
		return d.Error()
	}
	return ""
}
