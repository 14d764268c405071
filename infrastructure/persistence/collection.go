package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/internal/database"
)

// keyChunk bounds IN lists and multi-row inserts to stay under SQLite's
// bound-variable limit.
const keyChunk = 500

// collection is the per-table half of DocumentStore.
type collection interface {
	name() string
	// find loads the documents stored under keys.
	find(tx *gorm.DB, keys []string) (map[string]document.Document, error)
	// create inserts docs with the given conflict clause and returns the
	// number of rows written.
	create(tx *gorm.DB, docs []document.Document, onConflict clause.OnConflict) (int64, error)
	// each streams every stored document in key order.
	each(ctx context.Context, fn func(document.Document) error) error
}

// table adapts a typed database.Repository to collection.
type table[D document.Document, E any] struct {
	database.Repository[D, E]
	collection string
}

func newTable[D document.Document, E any](db database.Database, mapper database.EntityMapper[D, E], collection string) table[D, E] {
	return table[D, E]{
		Repository: database.NewRepository[D, E](db, mapper, collection),
		collection: collection,
	}
}

func newEdgeTable(db database.Database, collection string) table[document.Edge, EdgeModel] {
	return table[document.Edge, EdgeModel]{
		Repository: database.NewRepositoryForTable[document.Edge, EdgeModel](db, EdgeMapper{}, collection, collection),
		collection: collection,
	}
}

func (t table[D, E]) name() string { return t.collection }

func (t table[D, E]) target(tx *gorm.DB) *gorm.DB {
	if t.Table() != "" {
		return tx.Table(t.Table())
	}
	return tx
}

func (t table[D, E]) find(tx *gorm.DB, keys []string) (map[string]document.Document, error) {
	rows, err := t.ByKeys(tx, keys, keyChunk)
	if err != nil {
		return nil, err
	}
	found := make(map[string]document.Document, len(rows))
	for _, d := range rows {
		found[d.Key()] = d
	}
	return found, nil
}

func (t table[D, E]) create(tx *gorm.DB, docs []document.Document, onConflict clause.OnConflict) (int64, error) {
	models := make([]E, 0, len(docs))
	for _, doc := range docs {
		d, ok := doc.(D)
		if !ok {
			return 0, fmt.Errorf("insert %s: unexpected document type %T", t.collection, doc)
		}
		models = append(models, t.Mapper().ToModel(d))
	}
	if len(models) == 0 {
		return 0, nil
	}
	result := t.target(tx).Clauses(onConflict).CreateInBatches(&models, keyChunk)
	if result.Error != nil {
		return 0, fmt.Errorf("insert %s: %w", t.collection, result.Error)
	}
	return result.RowsAffected, nil
}

func (t table[D, E]) each(ctx context.Context, fn func(document.Document) error) error {
	return t.Each(ctx, keyChunk, func(d D) error { return fn(d) })
}
