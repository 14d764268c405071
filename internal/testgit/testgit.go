// Package testgit builds throwaway git repositories for tests.
package testgit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// File is one worktree file.
type File struct {
	Content    string
	Executable bool
	// Link makes the file a symlink to Link instead of a regular file.
	Link string
}

// When is the commit time used by New.
var When = time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 60*60))

// New creates a repository in a temporary directory with files committed
// once. It returns the worktree path and the commit sha.
func New(t *testing.T, files map[string]File) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("testgit: init: %v", err)
	}
	return dir, Commit(t, repo, dir, files, "initial")
}

// Commit writes files into the worktree at dir and commits them.
func Commit(t *testing.T, repo *gogit.Repository, dir string, files map[string]File, message string) string {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("testgit: worktree: %v", err)
	}
	for name, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("testgit: mkdir: %v", err)
		}
		_ = os.Remove(path)
		if f.Link != "" {
			if err := os.Symlink(f.Link, path); err != nil {
				t.Fatalf("testgit: symlink %s: %v", name, err)
			}
		} else {
			mode := os.FileMode(0o644)
			if f.Executable {
				mode = 0o755
			}
			if err := os.WriteFile(path, []byte(f.Content), mode); err != nil {
				t.Fatalf("testgit: write %s: %v", name, err)
			}
			if err := os.Chmod(path, mode); err != nil {
				t.Fatalf("testgit: chmod %s: %v", name, err)
			}
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("testgit: add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: When},
	})
	if err != nil {
		t.Fatalf("testgit: commit: %v", err)
	}
	return hash.String()
}
