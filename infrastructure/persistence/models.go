package persistence

import (
	"github.com/helixml/syntree/domain/document"
)

// RepositoryModel is a row of the repository collection.
type RepositoryModel struct {
	Key          string  `gorm:"column:key;primaryKey;size:40"`
	URL          string  `gorm:"column:url;size:2048"`
	Path         *string `gorm:"column:path;size:4096"`
	Commit       *string `gorm:"column:commit_sha;size:64"`
	Status       string  `gorm:"column:status;index;size:16"`
	AnalyzedTime *int64  `gorm:"column:analyzed_time"`
	Extra        *string `gorm:"column:extra;type:text"`
}

// TableName returns the table name.
func (RepositoryModel) TableName() string { return string(document.KindRepository) }

// CommitModel is a row of the commit collection.
type CommitModel struct {
	Key              string `gorm:"column:key;primaryKey;size:64"`
	CommitTime       int64  `gorm:"column:commit_time"`
	CommitTimeOffset int    `gorm:"column:commit_time_offset"`
	Parents          string `gorm:"column:parents;type:text"`
	Tree             string `gorm:"column:tree;size:64"`
}

// TableName returns the table name.
func (CommitModel) TableName() string { return string(document.KindCommit) }

// FileModel is a row of the file collection.
type FileModel struct {
	Key             string  `gorm:"column:key;primaryKey;size:40"`
	Path            string  `gorm:"column:path;type:text"`
	Mode            uint32  `gorm:"column:mode"`
	Size            int64   `gorm:"column:size"`
	GitOID          string  `gorm:"column:git_oid;size:64"`
	Language        *string `gorm:"column:language;size:32"`
	ContentHash     string  `gorm:"column:content_hash;index;size:128"`
	Error           *string `gorm:"column:error;size:64"`
	SymlinkTarget   *string `gorm:"column:symlink_target;type:text"`
	SymlinkRelative *string `gorm:"column:symlink_relative;type:text"`
}

// TableName returns the table name.
func (FileModel) TableName() string { return string(document.KindFile) }

// CodeTreeModel is a row of the code tree collection.
type CodeTreeModel struct {
	Key         string  `gorm:"column:key;primaryKey;size:160"`
	Language    string  `gorm:"column:language;size:32"`
	LangVersion *string `gorm:"column:lang_version;size:64"`
	ContentHash string  `gorm:"column:content_hash;size:128"`
	GitOID      *string `gorm:"column:git_oid;size:64"`
	Error       *string `gorm:"column:error;index;size:64"`
}

// TableName returns the table name.
func (CodeTreeModel) TableName() string { return string(document.KindCodeTree) }

// NodeModel is a row of the node collection.
type NodeModel struct {
	Key         string `gorm:"column:key;primaryKey;size:180"`
	CodeTreeKey string `gorm:"column:code_tree_key;index;size:160"`
	X1          int    `gorm:"column:x1"`
	Y1          int    `gorm:"column:y1"`
	X2          int    `gorm:"column:x2"`
	Y2          int    `gorm:"column:y2"`
	Preorder    int    `gorm:"column:preorder"`
	Named       bool   `gorm:"column:named"`
	Type        string `gorm:"column:type;index;size:128"`
}

// TableName returns the table name.
func (NodeModel) TableName() string { return string(document.KindNode) }

// TextModel is a row of the text collection.
type TextModel struct {
	Key    string `gorm:"column:key;primaryKey;size:40"`
	Length int    `gorm:"column:length"`
	Text   string `gorm:"column:text;type:text"`
}

// TableName returns the table name.
func (TextModel) TableName() string { return string(document.KindText) }

// EdgeModel is a row of any edge collection. The table is chosen per
// relation with NewRepositoryForTable. Endpoint indexes are created by
// AutoMigrate because tag-derived index names would collide across tables.
type EdgeModel struct {
	Key  string `gorm:"column:key;primaryKey;size:40"`
	From string `gorm:"column:from_id;size:200"`
	To   string `gorm:"column:to_id;size:200"`
}
