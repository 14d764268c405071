package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/internal/database"
)

var keyColumn = []clause.Column{{Name: "key"}}

// DocumentStore implements document.Store over SQL tables.
type DocumentStore struct {
	db          database.Database
	logger      *slog.Logger
	collections map[string]collection
	order       []string

	mu    sync.Mutex
	dedup map[string]int64
}

// NewDocumentStore creates a DocumentStore. Tables must exist; see AutoMigrate.
func NewDocumentStore(db database.Database, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	registry := document.Registry()
	colls := map[string]collection{
		string(document.KindRepository): newTable[document.Repository, RepositoryModel](db, RepositoryMapper{}, string(document.KindRepository)),
		string(document.KindCommit):     newTable[document.Commit, CommitModel](db, CommitMapper{}, string(document.KindCommit)),
		string(document.KindFile):       newTable[document.File, FileModel](db, FileMapper{}, string(document.KindFile)),
		string(document.KindCodeTree):   newTable[document.CodeTree, CodeTreeModel](db, CodeTreeMapper{}, string(document.KindCodeTree)),
		string(document.KindNode):       newTable[document.Node, NodeModel](db, NodeMapper{}, string(document.KindNode)),
		string(document.KindText):       newTable[document.Text, TextModel](db, TextMapper{}, string(document.KindText)),
	}
	for _, edge := range registry.EdgeCollections() {
		colls[edge] = newEdgeTable(db, edge)
	}
	return &DocumentStore{
		db:          db,
		logger:      logger,
		collections: colls,
		order:       registry.Collections(),
		dedup:       make(map[string]int64),
	}
}

// Database returns the underlying database.
func (s *DocumentStore) Database() database.Database {
	return s.db
}

// Insert stores one document, resolving key conflicts by the collection's
// insert mode.
func (s *DocumentStore) Insert(ctx context.Context, doc document.Document) (document.InsertResult, error) {
	coll, err := s.collection(doc.Collection())
	if err != nil {
		return document.InsertResult{}, err
	}
	out, err := database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (groupResult, error) {
		return s.apply(tx, coll, []document.Document{doc})
	})
	if err != nil {
		return document.InsertResult{}, err
	}
	s.count(coll.name(), out.deduplicated)
	if existing, ok := out.existing[doc.Key()]; ok {
		return document.InsertResult{Document: existing, Deduplicated: true}, nil
	}
	return document.InsertResult{Document: doc, Deduplicated: out.deduplicated > 0}, nil
}

// Get loads the document stored under key.
func (s *DocumentStore) Get(ctx context.Context, collectionName, key string) (document.Document, error) {
	coll, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}
	found, err := coll.find(s.db.Session(ctx), []string{key})
	if err != nil {
		return nil, err
	}
	doc, ok := found[key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", collectionName, key, document.ErrNotFound)
	}
	return doc, nil
}

// WriteBatch applies docs in one transaction. Collections are written in
// registration order and keys in sorted order so that concurrent batches
// take row locks in the same sequence.
func (s *DocumentStore) WriteBatch(ctx context.Context, docs []document.Document) (document.BatchResult, error) {
	if len(docs) == 0 {
		return document.BatchResult{}, nil
	}

	groups := make(map[string][]document.Document)
	for _, doc := range docs {
		groups[doc.Collection()] = append(groups[doc.Collection()], doc)
	}
	for name := range groups {
		if _, err := s.collection(name); err != nil {
			return document.BatchResult{}, err
		}
	}

	dedup, err := database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (map[string]int, error) {
		counts := make(map[string]int)
		for _, name := range s.order {
			group, ok := groups[name]
			if !ok {
				continue
			}
			out, err := s.apply(tx, s.collections[name], group)
			if err != nil {
				return nil, err
			}
			if out.deduplicated > 0 {
				counts[name] = out.deduplicated
			}
		}
		return counts, nil
	})
	if err != nil {
		return document.BatchResult{}, fmt.Errorf("write batch: %w", err)
	}

	for name, n := range dedup {
		s.count(name, n)
	}
	return document.BatchResult{Deduplicated: dedup}, nil
}

// SaveRepository creates the repository or advances its status, analyzed
// time, path and extra.
func (s *DocumentStore) SaveRepository(ctx context.Context, repo document.Repository) error {
	model := RepositoryMapper{}.ToModel(repo)
	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   keyColumn,
		DoUpdates: clause.AssignmentColumns([]string{"path", "commit_sha", "status", "analyzed_time", "extra"}),
	}).Create(&model)
	if result.Error != nil {
		return fmt.Errorf("save repository: %w", result.Error)
	}
	return nil
}

// SetError records errText on a File or CodeTree. An empty errText clears it.
func (s *DocumentStore) SetError(ctx context.Context, kind document.Kind, key string, errText string) error {
	var model any
	switch kind {
	case document.KindFile:
		model = &FileModel{}
	case document.KindCodeTree:
		model = &CodeTreeModel{}
	default:
		return fmt.Errorf("set error on %s: error is immutable for this kind", kind)
	}
	result := s.db.Session(ctx).Model(model).
		Where("key = ?", key).
		Update("error", ptr(errText))
	if result.Error != nil {
		return fmt.Errorf("set error on %s/%s: %w", kind, key, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("set error on %s/%s: %w", kind, key, document.ErrNotFound)
	}
	return nil
}

// DedupStats returns the number of dedup hits per collection since the
// store was created.
func (s *DocumentStore) DedupStats() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.dedup)
}

// Count returns the number of rows in a collection.
func (s *DocumentStore) Count(ctx context.Context, collectionName string) (int64, error) {
	if _, err := s.collection(collectionName); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.Session(ctx).Table(collectionName).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", collectionName, err)
	}
	return n, nil
}

// Each streams every document of a collection in key order.
func (s *DocumentStore) Each(ctx context.Context, collectionName string, fn func(document.Document) error) error {
	coll, err := s.collection(collectionName)
	if err != nil {
		return err
	}
	return coll.each(ctx, fn)
}

func (s *DocumentStore) collection(name string) (collection, error) {
	coll, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q: %w", name, document.ErrInvalidRelation)
	}
	return coll, nil
}

func (s *DocumentStore) count(collectionName string, n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	s.dedup[collectionName] += int64(n)
	s.mu.Unlock()
}

// groupResult is the outcome of applying one collection's documents.
type groupResult struct {
	existing     map[string]document.Document
	deduplicated int
}

// apply writes docs of a single collection inside tx.
func (s *DocumentStore) apply(tx *gorm.DB, coll collection, docs []document.Document) (groupResult, error) {
	unique, dupes, err := uniqueByKey(docs, document.Registry().Mode(coll.name()))
	if err != nil {
		return groupResult{}, err
	}
	keys := slices.Sorted(maps.Keys(unique))
	ordered := make([]document.Document, len(keys))
	for i, k := range keys {
		ordered[i] = unique[k]
	}

	switch document.Registry().Mode(coll.name()) {
	case document.ModeOverwrite:
		// Equal keys imply equal content, so the rows are upserted without
		// being read. Only repeats within docs are counted as dedup hits.
		if _, err := coll.create(tx, ordered, clause.OnConflict{Columns: keyColumn, UpdateAll: true}); err != nil {
			return groupResult{}, err
		}
		return groupResult{deduplicated: dupes}, nil

	case document.ModeIgnore:
		written, err := coll.create(tx, ordered, clause.OnConflict{Columns: keyColumn, DoNothing: true})
		if err != nil {
			return groupResult{}, err
		}
		return groupResult{deduplicated: dupes + len(ordered) - int(written)}, nil
	}

	existing, err := coll.find(tx, keys)
	if err != nil {
		return groupResult{}, err
	}
	fresh := make([]document.Document, 0, len(ordered))
	for _, doc := range ordered {
		if prior, ok := existing[doc.Key()]; ok {
			if !document.Equal(prior, doc) {
				return groupResult{}, &document.MismatchError{Collection: coll.name(), Key: doc.Key()}
			}
			continue
		}
		fresh = append(fresh, doc)
	}

	written, err := coll.create(tx, fresh, clause.OnConflict{Columns: keyColumn, DoNothing: true})
	if err != nil {
		return groupResult{}, err
	}
	deduplicated := dupes + len(existing)
	if raced := len(fresh) - int(written); raced > 0 {
		// Another writer committed some of these keys after our read.
		stored, err := verifyRaced(tx, coll, fresh)
		if err != nil {
			return groupResult{}, err
		}
		s.logger.Debug("resolved insert race",
			slog.String("collection", coll.name()),
			slog.Int("rows", raced),
		)
		if written == 0 {
			maps.Copy(existing, stored)
		}
		deduplicated += raced
	}
	return groupResult{existing: existing, deduplicated: deduplicated}, nil
}

// verifyRaced reloads fresh documents after a partially ignored insert and
// checks each stored row is equal to ours.
func verifyRaced(tx *gorm.DB, coll collection, fresh []document.Document) (map[string]document.Document, error) {
	keys := make([]string, len(fresh))
	for i, doc := range fresh {
		keys[i] = doc.Key()
	}
	stored, err := coll.find(tx, keys)
	if err != nil {
		return nil, err
	}
	for _, doc := range fresh {
		prior, ok := stored[doc.Key()]
		if !ok {
			return nil, fmt.Errorf("insert %s/%s: row missing after conflict", coll.name(), doc.Key())
		}
		if !document.Equal(prior, doc) {
			return nil, &document.MismatchError{Collection: coll.name(), Key: doc.Key()}
		}
	}
	return stored, nil
}

// uniqueByKey drops repeated keys within a batch. In compare mode the
// repeats must be equal.
func uniqueByKey(docs []document.Document, mode document.InsertMode) (map[string]document.Document, int, error) {
	unique := make(map[string]document.Document, len(docs))
	dupes := 0
	for _, doc := range docs {
		key := doc.Key()
		prior, ok := unique[key]
		if !ok {
			unique[key] = doc
			continue
		}
		if mode == document.ModeCompare && !document.Equal(prior, doc) {
			return nil, 0, &document.MismatchError{Collection: doc.Collection(), Key: key}
		}
		dupes++
	}
	return unique, dupes, nil
}

var _ document.Store = (*DocumentStore)(nil)
