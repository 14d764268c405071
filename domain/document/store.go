package document

import "context"

// InsertResult is the outcome of a single insert.
type InsertResult struct {
	// Document is the stored document: the argument on a fresh insert, the
	// pre-existing one on a dedup hit.
	Document Document
	// Deduplicated is true when an equal document already existed.
	Deduplicated bool
}

// Job is a handle for a batch the backend completes asynchronously.
type Job interface {
	// Done reports whether the batch has been applied.
	Done(ctx context.Context) (bool, error)
}

// BatchResult is the outcome of WriteBatch.
type BatchResult struct {
	// Job is nil when the batch was applied before WriteBatch returned.
	Job Job
	// Deduplicated counts, per collection, documents that already existed.
	Deduplicated map[string]int
}

// Store persists documents by key.
//
// Insert and WriteBatch apply the collection's InsertMode. A compare-mode
// conflict with different content returns an error wrapping
// ErrDeduplicatedObjectMismatch.
type Store interface {
	Insert(ctx context.Context, doc Document) (InsertResult, error)
	Get(ctx context.Context, collection, key string) (Document, error)
	// WriteBatch applies docs atomically.
	WriteBatch(ctx context.Context, docs []Document) (BatchResult, error)
	// SaveRepository creates the repository or advances its mutable fields.
	SaveRepository(ctx context.Context, repo Repository) error
	// SetError sets the error field of a File or CodeTree.
	SetError(ctx context.Context, kind Kind, key string, errText string) error
}
