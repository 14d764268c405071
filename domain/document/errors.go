package document

import (
	"errors"
	"fmt"
)

// Storage errors.
var (
	// ErrNotFound indicates no document exists under a key.
	ErrNotFound = errors.New("document not found")

	// ErrDeduplicatedObjectMismatch indicates a document was inserted under
	// an existing key with different content. The content-addressing
	// invariant is broken and the run must stop.
	ErrDeduplicatedObjectMismatch = errors.New("deduplicated object mismatch")

	// ErrInvalidRelation indicates an edge between kinds that are not related.
	ErrInvalidRelation = errors.New("invalid relation")

	// ErrRepositoryExists indicates the repository was already analyzed.
	ErrRepositoryExists = errors.New("repository already exists")
)

// Per-file failures. These end processing of one file and are kept as data.
var (
	ErrLocalCopyOutOfSync = errors.New("local copy out of sync")
	ErrUnhandledFileMode  = errors.New("unhandled file mode")
	ErrRootParseFailed    = errors.New("root parse failed")
	ErrUnicodeDecode      = errors.New("unicode decode error")
)

// ErrBadTreeIteration indicates the tree walk ascended more than it descended.
var ErrBadTreeIteration = errors.New("bad tree iteration")

// Error values recorded on File and CodeTree documents.
const (
	ErrorNoLanguageSupport  = "NO_LANGUAGE_SUPPORT"
	ErrorIsSymlink          = "IS_SYMLINK"
	ErrorLocalCopyOutOfSync = "LocalCopyOutOfSync"
	ErrorUnhandledFileMode  = "UnhandledFileMode"
	ErrorRootParseFailed    = "RootParseFailed"
	ErrorUnicodeDecode      = "UnicodeDecodeError"
	ErrorBadTreeIteration   = "BadTreeIteration"
	ErrorCancelled          = "Cancelled"
	ErrorPending            = "PENDING"
)

// MismatchError describes a dedup conflict on a specific document.
type MismatchError struct {
	Collection string
	Key        string
}

// Error implements error.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s/%s", ErrDeduplicatedObjectMismatch, e.Collection, e.Key)
}

// Unwrap returns ErrDeduplicatedObjectMismatch.
func (e *MismatchError) Unwrap() error { return ErrDeduplicatedObjectMismatch }

// FileError carries a per-file failure together with the file it belongs to.
type FileError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error { return e.Err }

// ErrorText maps a per-file failure to the value recorded on documents.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocalCopyOutOfSync):
		return ErrorLocalCopyOutOfSync
	case errors.Is(err, ErrUnhandledFileMode):
		return ErrorUnhandledFileMode
	case errors.Is(err, ErrRootParseFailed):
		return ErrorRootParseFailed
	case errors.Is(err, ErrUnicodeDecode):
		return ErrorUnicodeDecode
	case errors.Is(err, ErrBadTreeIteration):
		return ErrorBadTreeIteration
	default:
		return err.Error()
	}
}
