package database

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
)

// KeyColumn is the primary key column of every document table.
const KeyColumn = "key"

// Keyed is a domain value addressed by its key.
type Keyed interface {
	Key() string
}

// EntityMapper maps between domain values and database models.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) (D, error)
	ToModel(domain D) E
}

// Repository reads one key-addressed table as domain values.
type Repository[D Keyed, E any] struct {
	db        Database
	mapper    EntityMapper[D, E]
	label     string
	tableName string
}

// NewRepository creates a Repository on the table of model E.
func NewRepository[D Keyed, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{db: db, mapper: mapper, label: label}
}

// NewRepositoryForTable creates a Repository on tableName. GORM caches
// schemas by type, so one model serving several tables needs the name
// applied on every statement.
func NewRepositoryForTable[D Keyed, E any](db Database, mapper EntityMapper[D, E], label string, tableName string) Repository[D, E] {
	return Repository[D, E]{db: db, mapper: mapper, label: label, tableName: tableName}
}

// Table returns the explicit table name, or empty for the model's own.
func (r Repository[D, E]) Table() string {
	return r.tableName
}

// Label returns the name used in error messages.
func (r Repository[D, E]) Label() string {
	return r.label
}

// Mapper returns the entity mapper.
func (r Repository[D, E]) Mapper() EntityMapper[D, E] {
	return r.mapper
}

// Scoped limits db to this repository's table. The trailing Session resets
// the clone counter so callers get a fresh chainable session.
func (r Repository[D, E]) Scoped(db *gorm.DB) *gorm.DB {
	db = db.Model(new(E))
	if r.tableName != "" {
		db = db.Table(r.tableName).Session(&gorm.Session{})
	}
	return db
}

// ByKeys loads the rows whose key is in keys, querying at most chunk keys
// per statement. Missing keys are absent from the result.
func (r Repository[D, E]) ByKeys(db *gorm.DB, keys []string, chunk int) ([]D, error) {
	if chunk <= 0 {
		chunk = len(keys)
	}
	out := make([]D, 0, len(keys))
	for part := range slices.Chunk(keys, max(chunk, 1)) {
		var entities []E
		if err := r.Scoped(db).Where(KeyColumn+" IN ?", part).Find(&entities).Error; err != nil {
			return nil, fmt.Errorf("find %s: %w", r.label, err)
		}
		domains, err := r.toDomain(entities)
		if err != nil {
			return nil, err
		}
		out = append(out, domains...)
	}
	return out, nil
}

// Each streams every row to fn in key order, size rows per query. Pages
// start after the last key seen, so rows inserted behind the cursor are not
// revisited. Iteration stops at the first error from fn.
func (r Repository[D, E]) Each(ctx context.Context, size int, fn func(D) error) error {
	if size <= 0 {
		size = 1000
	}
	after := ""
	first := true
	for {
		var entities []E
		db := r.Scoped(r.db.Session(ctx)).Order(KeyColumn).Limit(size)
		if !first {
			db = db.Where(KeyColumn+" > ?", after)
		}
		if err := db.Find(&entities).Error; err != nil {
			return fmt.Errorf("iterate %s: %w", r.label, err)
		}
		domains, err := r.toDomain(entities)
		if err != nil {
			return err
		}
		for _, d := range domains {
			if err := fn(d); err != nil {
				return err
			}
		}
		if len(domains) < size {
			return nil
		}
		after, first = domains[len(domains)-1].Key(), false
	}
}

// Count returns the number of rows.
func (r Repository[D, E]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.Scoped(r.db.Session(ctx)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return n, nil
}

func (r Repository[D, E]) toDomain(entities []E) ([]D, error) {
	domains := make([]D, len(entities))
	for i, entity := range entities {
		d, err := r.mapper.ToDomain(entity)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", r.label, err)
		}
		domains[i] = d
	}
	return domains, nil
}
