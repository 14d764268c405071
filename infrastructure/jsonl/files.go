// Package jsonl stores documents as one JSON object per line, one file per
// collection.
package jsonl

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helixml/syntree/domain/document"
)

const (
	vertexSuffix = ".vert.jsonl"
	edgeSuffix   = ".edge.jsonl"
	// maxLine bounds a single document line; Text documents can be large.
	maxLine = 64 << 20
)

// FileName returns the file a collection is stored in.
func FileName(collection string) string {
	if document.Registry().IsEdge(collection) {
		return collection + edgeSuffix
	}
	return collection + vertexSuffix
}

// Path returns the path of a collection's file under dir.
func Path(dir, collection string) string {
	return filepath.Join(dir, FileName(collection))
}

// encode renders doc as one line with sorted keys.
func encode(doc document.Document) ([]byte, error) {
	line, err := document.MarshalPayload(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", document.ID(doc), err)
	}
	return append(line, '\n'), nil
}

// scan calls fn for every non-empty line of the file at path. A missing file
// has no lines.
func scan(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
