package jsonl

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/gofrs/flock"

	"github.com/helixml/syntree/domain/document"
)

// Store implements document.Store by appending to JSONL files. Keys already
// present in the directory when the store opens are deduplicated against.
//
// Every key has exactly one line. Repositories are buffered and written
// once, on Close, with their final status. Files and CodeTrees inserted as
// PENDING are held until SetError gives them a final error, or until Close.
type Store struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	files  map[string]*collectionFile
	seen   map[string]map[string][sha1.Size]byte
	kept   map[string]map[string]document.Document
	held   map[string]map[string]document.Document
	repos  map[string]document.Repository
	dedup  map[string]int64
	closed bool
}

// collectionFile is an append handle guarded by an inter-process lock.
type collectionFile struct {
	file *os.File
	buf  *bufio.Writer
	lock *flock.Flock
}

// keptKinds are held in memory so a dedup hit can return the stored document.
var keptKinds = map[string]bool{
	string(document.KindCommit):   true,
	string(document.KindFile):     true,
	string(document.KindCodeTree): true,
}

// NewStore opens dir, creating it if needed, and indexes existing keys.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("create jsonl dir: %w", err)
	}
	s := &Store{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*collectionFile),
		seen:   make(map[string]map[string][sha1.Size]byte),
		kept:   make(map[string]map[string]document.Document),
		held:   make(map[string]map[string]document.Document),
		repos:  make(map[string]document.Repository),
		dedup:  make(map[string]int64),
	}
	for _, coll := range document.Registry().Collections() {
		s.seen[coll] = make(map[string][sha1.Size]byte)
		s.kept[coll] = make(map[string]document.Document)
		s.held[coll] = make(map[string]document.Document)
		if err := s.index(coll); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) index(coll string) error {
	return scan(Path(s.dir, coll), func(line []byte) error {
		doc, err := document.Decode(coll, line)
		if err != nil {
			return err
		}
		if repo, ok := doc.(document.Repository); ok {
			s.repos[repo.Key()] = repo
			return nil
		}
		s.remember(doc)
		return nil
	})
}

// Insert appends doc unless an equal document is already stored.
func (s *Store) Insert(_ context.Context, doc document.Document) (document.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return document.InsertResult{}, err
	}

	if repo, ok := doc.(document.Repository); ok {
		if prior, ok := s.repos[repo.Key()]; ok {
			if !document.Equal(prior, repo) {
				return document.InsertResult{}, &document.MismatchError{Collection: repo.Collection(), Key: repo.Key()}
			}
			s.dedup[repo.Collection()]++
			return document.InsertResult{Document: prior, Deduplicated: true}, nil
		}
		s.repos[repo.Key()] = repo
		return document.InsertResult{Document: repo}, nil
	}

	fresh, hits, err := s.filter([]document.Document{doc})
	if err != nil {
		return document.InsertResult{}, err
	}
	if err := s.append(s.hold(fresh)); err != nil {
		return document.InsertResult{}, err
	}
	if len(hits) > 0 {
		if kept, ok := s.kept[doc.Collection()][doc.Key()]; ok {
			return document.InsertResult{Document: kept, Deduplicated: true}, nil
		}
		return document.InsertResult{Document: doc, Deduplicated: true}, nil
	}
	return document.InsertResult{Document: doc}, nil
}

// Get returns a buffered repository or a kept document. Nodes, texts and
// edges are not held in memory and are reported missing.
func (s *Store) Get(_ context.Context, collection, key string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collection == string(document.KindRepository) {
		if repo, ok := s.repos[key]; ok {
			return repo, nil
		}
	} else if doc, ok := s.kept[collection][key]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("get %s/%s: %w", collection, key, document.ErrNotFound)
}

// WriteBatch appends every new document in docs. Collections are written in
// registration order.
func (s *Store) WriteBatch(_ context.Context, docs []document.Document) (document.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return document.BatchResult{}, err
	}

	var rest []document.Document
	for _, doc := range docs {
		if repo, ok := doc.(document.Repository); ok {
			s.repos[repo.Key()] = repo
			continue
		}
		rest = append(rest, doc)
	}

	fresh, hits, err := s.filter(rest)
	if err != nil {
		return document.BatchResult{}, err
	}
	if err := s.append(s.hold(fresh)); err != nil {
		return document.BatchResult{}, err
	}
	return document.BatchResult{Deduplicated: hits}, nil
}

// SaveRepository records the latest state of repo for Close.
func (s *Store) SaveRepository(_ context.Context, repo document.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	s.repos[repo.Key()] = repo
	return nil
}

// SetError replaces the error of the File or CodeTree under key. A held
// document is written once its error is final; a document already on disk
// has its line rewritten.
func (s *Store) SetError(_ context.Context, kind document.Kind, key string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	coll := string(kind)
	prior, ok := s.kept[coll][key]
	if !ok {
		return fmt.Errorf("set error on %s/%s: %w", kind, key, document.ErrNotFound)
	}
	var doc document.Document
	switch d := prior.(type) {
	case document.File:
		doc = d.WithError(errText)
	case document.CodeTree:
		doc = d.WithError(errText)
	default:
		return fmt.Errorf("set error on %s: error is immutable for this kind", kind)
	}
	s.kept[coll][key] = doc

	if _, ok := s.held[coll][key]; ok {
		if errText == document.ErrorPending {
			s.held[coll][key] = doc
			return nil
		}
		delete(s.held[coll], key)
		return s.append([]document.Document{doc})
	}
	if before, _ := mutableError(prior); before == errText {
		return nil
	}
	return s.replace(doc)
}

// DedupStats returns dedup hits per collection since the store opened.
func (s *Store) DedupStats() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.dedup)
}

// Close writes held documents and buffered repositories, then closes every
// file. Documents still PENDING are written as they are.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var held []document.Document
	for _, coll := range document.Registry().Collections() {
		for _, key := range slices.Sorted(maps.Keys(s.held[coll])) {
			held = append(held, s.held[coll][key])
		}
		clear(s.held[coll])
	}
	if err := s.append(held); err != nil {
		return err
	}
	if err := s.writeRepositories(); err != nil {
		return err
	}
	var firstErr error
	for coll, f := range s.files {
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", coll, err)
		}
	}
	return firstErr
}

// writeRepositories rewrites the repository file with the final state of
// every repository.
func (s *Store) writeRepositories() error {
	coll := string(document.KindRepository)
	path := Path(s.dir, coll)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", coll, err)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have added repositories since we opened.
	onDisk := make(map[string]document.Repository)
	if err := scan(path, func(line []byte) error {
		doc, err := document.Decode(coll, line)
		if err != nil {
			return err
		}
		onDisk[doc.Key()] = doc.(document.Repository)
		return nil
	}); err != nil {
		return err
	}
	maps.Copy(onDisk, s.repos)

	lines := make([][]byte, 0, len(onDisk))
	for _, key := range slices.Sorted(maps.Keys(onDisk)) {
		line, err := encode(onDisk[key])
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	return writeLines(path, lines)
}

// replace rewrites the collection file of doc with doc in place of the line
// for its key.
func (s *Store) replace(doc document.Document) error {
	coll := doc.Collection()
	if f, ok := s.files[coll]; ok {
		delete(s.files, coll)
		if err := f.buf.Flush(); err != nil {
			_ = f.file.Close()
			return fmt.Errorf("write %s: %w", coll, err)
		}
		if err := f.file.Close(); err != nil {
			return fmt.Errorf("close %s: %w", coll, err)
		}
	}

	path := Path(s.dir, coll)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", coll, err)
	}
	defer func() { _ = lock.Unlock() }()

	var lines [][]byte
	if err := scan(path, func(line []byte) error {
		prior, err := document.Decode(coll, line)
		if err != nil {
			return err
		}
		if prior.Key() == doc.Key() {
			updated, err := encode(doc)
			if err != nil {
				return err
			}
			lines = append(lines, updated)
			return nil
		}
		lines = append(lines, append(slices.Clone(line), '\n'))
		return nil
	}); err != nil {
		return err
	}
	return writeLines(path, lines)
}

// writeLines replaces the file at path with lines through a rename.
func writeLines(path string, lines [][]byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := buf.Write(line); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Store) usable() error {
	if s.closed {
		return fmt.Errorf("jsonl store %s is closed", s.dir)
	}
	return nil
}

// filter drops documents already stored or repeated within docs, applying
// each collection's insert mode. It records the survivors as seen.
func (s *Store) filter(docs []document.Document) ([]document.Document, map[string]int, error) {
	registry := document.Registry()
	hits := make(map[string]int)
	batchSeen := make(map[string]map[string][sha1.Size]byte)
	var fresh []document.Document

	for _, doc := range docs {
		coll := doc.Collection()
		seen, ok := s.seen[coll]
		if !ok {
			return nil, nil, fmt.Errorf("unknown collection %q: %w", coll, document.ErrInvalidRelation)
		}
		if batchSeen[coll] == nil {
			batchSeen[coll] = make(map[string][sha1.Size]byte)
		}
		digest, err := document.Fingerprint(doc)
		if err != nil {
			return nil, nil, err
		}
		prior, ok := seen[doc.Key()]
		if !ok {
			prior, ok = batchSeen[coll][doc.Key()]
		}
		if ok {
			if registry.Mode(coll) == document.ModeCompare && prior != digest {
				return nil, nil, &document.MismatchError{Collection: coll, Key: doc.Key()}
			}
			hits[coll]++
			continue
		}
		batchSeen[coll][doc.Key()] = digest
		fresh = append(fresh, doc)
	}

	for coll, keys := range batchSeen {
		maps.Copy(s.seen[coll], keys)
	}
	for _, doc := range fresh {
		if keptKinds[doc.Collection()] {
			s.kept[doc.Collection()][doc.Key()] = doc
		}
	}
	for coll, n := range hits {
		s.dedup[coll] += int64(n)
	}
	return fresh, hits, nil
}

// hold keeps PENDING Files and CodeTrees back and returns the documents to
// write now.
func (s *Store) hold(docs []document.Document) []document.Document {
	ready := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if errText, ok := mutableError(doc); ok && errText == document.ErrorPending {
			s.held[doc.Collection()][doc.Key()] = doc
			continue
		}
		ready = append(ready, doc)
	}
	return ready
}

func mutableError(doc document.Document) (string, bool) {
	switch d := doc.(type) {
	case document.File:
		return d.Error(), true
	case document.CodeTree:
		return d.Error(), true
	}
	return "", false
}

// remember indexes a document read back from disk. A later line for the
// same key replaces the kept mutable state.
func (s *Store) remember(doc document.Document) {
	coll := doc.Collection()
	if digest, err := document.Fingerprint(doc); err == nil {
		s.seen[coll][doc.Key()] = digest
	}
	if keptKinds[coll] {
		s.kept[coll][doc.Key()] = doc
	}
}

// append writes docs grouped by collection in registration order.
func (s *Store) append(docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	groups := make(map[string][]document.Document)
	for _, doc := range docs {
		groups[doc.Collection()] = append(groups[doc.Collection()], doc)
	}
	for _, coll := range document.Registry().Collections() {
		group, ok := groups[coll]
		if !ok {
			continue
		}
		if err := s.appendCollection(coll, group); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appendCollection(coll string, docs []document.Document) error {
	f, err := s.open(coll)
	if err != nil {
		return err
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", coll, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	for _, doc := range docs {
		line, err := encode(doc)
		if err != nil {
			return err
		}
		if _, err := f.buf.Write(line); err != nil {
			return fmt.Errorf("write %s: %w", coll, err)
		}
	}
	if err := f.buf.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", coll, err)
	}
	return nil
}

func (s *Store) open(coll string) (*collectionFile, error) {
	if f, ok := s.files[coll]; ok {
		return f, nil
	}
	path := Path(s.dir, coll)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f := &collectionFile{
		file: file,
		buf:  bufio.NewWriterSize(file, 1<<20),
		lock: flock.New(path + ".lock"),
	}
	s.files[coll] = f
	return f, nil
}

var _ document.Store = (*Store)(nil)
