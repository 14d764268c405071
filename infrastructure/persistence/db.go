// Package persistence stores documents and edges in SQL tables through GORM.
package persistence

import (
	"fmt"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/internal/database"
)

// vertexModels maps each vertex collection to its model.
var vertexModels = map[document.Kind]any{
	document.KindRepository: &RepositoryModel{},
	document.KindCommit:     &CommitModel{},
	document.KindFile:       &FileModel{},
	document.KindCodeTree:   &CodeTreeModel{},
	document.KindNode:       &NodeModel{},
	document.KindText:       &TextModel{},
}

// AutoMigrate creates one table per registered vertex and edge collection.
// It is idempotent.
func AutoMigrate(db database.Database) error {
	registry := document.Registry()
	gdb := db.GORM()

	for _, kind := range registry.Kinds() {
		model, ok := vertexModels[kind]
		if !ok {
			return fmt.Errorf("migrate %s: no model registered", kind)
		}
		if err := gdb.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %s: %w", kind, err)
		}
	}

	for _, edge := range registry.EdgeCollections() {
		if err := gdb.Table(edge).AutoMigrate(&EdgeModel{}); err != nil {
			return fmt.Errorf("migrate %s: %w", edge, err)
		}
		for _, column := range []string{"from_id", "to_id"} {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", edge, column, edge, column)
			if err := gdb.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index %s.%s: %w", edge, column, err)
			}
		}
	}

	return nil
}

// IsConflict reports whether err is a transient write-write conflict that a
// batch retry can resolve.
func IsConflict(err error) bool {
	return database.IsConflict(err)
}
