// Package testdb provides a shared test database helper for fast,
// realistic testing against an in-memory SQLite database.
package testdb

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/helixml/syntree/infrastructure/persistence"
	"github.com/helixml/syntree/internal/database"
)

// New creates an in-memory SQLite database with every registered collection
// migrated. The database is automatically closed when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb.New: open database: %v", err)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		_ = db.Close()
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewStore returns a DocumentStore over a fresh database from New.
func NewStore(t *testing.T) *persistence.DocumentStore {
	t.Helper()
	return persistence.NewDocumentStore(New(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}
