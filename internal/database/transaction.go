package database

import (
	"context"

	"gorm.io/gorm"
)

// WithTransactionResult runs fn in one transaction. The transaction commits
// when fn returns nil and rolls back otherwise; a panic in fn rolls back and
// re-panics.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var out T
	err := db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = fn(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
