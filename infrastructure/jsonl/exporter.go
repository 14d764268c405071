package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/helixml/syntree/domain/document"
)

// Source iterates the documents of a collection.
type Source interface {
	Each(ctx context.Context, collection string, fn func(document.Document) error) error
}

// Exporter dumps every collection of a Source into JSONL files.
type Exporter struct {
	logger *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Export writes one file per registered collection under dir and returns the
// number of documents written per collection. Existing files are replaced.
func (e *Exporter) Export(ctx context.Context, src Source, dir string) (map[string]int, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	counts := make(map[string]int)
	for _, coll := range document.Registry().Collections() {
		n, err := e.exportCollection(ctx, src, dir, coll)
		if err != nil {
			return counts, err
		}
		counts[coll] = n
		e.logger.Debug("exported collection", "collection", coll, "documents", n)
	}
	return counts, nil
}

func (e *Exporter) exportCollection(ctx context.Context, src Source, dir, coll string) (int, error) {
	path := Path(dir, coll)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", coll, err)
	}
	defer func() { _ = os.Remove(tmp) }()

	buf := bufio.NewWriterSize(f, 1<<20)
	n := 0
	err = src.Each(ctx, coll, func(doc document.Document) error {
		line, err := encode(doc)
		if err != nil {
			return err
		}
		if _, err := buf.Write(line); err != nil {
			return err
		}
		n++
		return nil
	})
	if err == nil {
		err = buf.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("export %s: %w", coll, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return n, fmt.Errorf("export %s: %w", coll, err)
	}
	return n, nil
}
