// Package git reads commits and their tree entries from local clones.
package git

import (
	"context"
	"errors"
	"time"

	"github.com/helixml/syntree/domain/document"
)

// ErrCommitNotFound indicates a revision that does not resolve to a commit.
var ErrCommitNotFound = errors.New("commit not found")

// CommitInfo describes one commit.
type CommitInfo struct {
	SHA     string
	Time    time.Time
	Parents []string
	Tree    string
}

// OffsetMinutes returns the committer timezone offset east of UTC.
func (c CommitInfo) OffsetMinutes() int {
	_, seconds := c.Time.Zone()
	return seconds / 60
}

// Document converts c to the stored Commit.
func (c CommitInfo) Document() document.Commit {
	return document.NewCommit(c.SHA, c.Time.Unix(), c.OffsetMinutes(), c.Parents, c.Tree)
}

// Entry is a file recorded in a commit tree.
type Entry struct {
	Path string
	Mode document.FileMode
	Size int64
	OID  string
}

// Adapter reads git repositories.
type Adapter interface {
	// ResolveCommit resolves rev (a sha, branch, tag or HEAD) in the clone at path.
	ResolveCommit(ctx context.Context, path, rev string) (CommitInfo, error)
	// Entries lists the non-directory entries of a commit in path order.
	// Submodules are skipped.
	Entries(ctx context.Context, path, sha string) ([]Entry, error)
	// EnsureCheckout clones url into dir when missing and checks out sha.
	EnsureCheckout(ctx context.Context, url, dir, sha string) error
	// RepositoryExists reports whether path holds a git repository.
	RepositoryExists(ctx context.Context, path string) (bool, error)
}
