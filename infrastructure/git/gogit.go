package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/helixml/syntree/domain/document"
)

// GoGitAdapter implements Adapter using go-git library.
type GoGitAdapter struct {
	logger *slog.Logger
}

// NewGoGitAdapter creates a new GoGitAdapter.
func NewGoGitAdapter(logger *slog.Logger) *GoGitAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoGitAdapter{logger: logger}
}

// Open opens the repository containing path.
func (g *GoGitAdapter) Open(path string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

// ResolveCommit resolves rev to a commit.
func (g *GoGitAdapter) ResolveCommit(_ context.Context, path, rev string) (CommitInfo, error) {
	repo, err := g.Open(path)
	if err != nil {
		return CommitInfo{}, err
	}
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("resolve %s: %w: %w", rev, ErrCommitNotFound, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("get commit %s: %w: %w", rev, ErrCommitNotFound, err)
	}
	return commitToInfo(commit), nil
}

// Entries lists the files of a commit.
func (g *GoGitAdapter) Entries(ctx context.Context, path, sha string) ([]Entry, error) {
	repo, err := g.Open(path)
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	var entries []Entry
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree: %w", err)
		}
		if entry.Mode == filemode.Dir || entry.Mode == filemode.Submodule {
			continue
		}
		size, err := repo.Storer.EncodedObjectSize(entry.Hash)
		if err != nil {
			return nil, fmt.Errorf("size of %s: %w", name, err)
		}
		entries = append(entries, Entry{
			Path: name,
			Mode: document.FileMode(entry.Mode),
			Size: size,
			OID:  entry.Hash.String(),
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return entries, nil
}

// CloneRepository clones a repository to local path.
func (g *GoGitAdapter) CloneRepository(ctx context.Context, remoteURI string, localPath string) error {
	g.logger.Info("cloning repository",
		slog.String("uri", remoteURI),
		slog.String("path", localPath),
	)

	// Remove existing directory if it exists
	if _, err := os.Stat(localPath); err == nil {
		g.logger.Warn("removing existing directory", slog.String("path", localPath))
		if err := os.RemoveAll(localPath); err != nil {
			return fmt.Errorf("remove existing directory: %w", err)
		}
	}

	_, err := gogit.PlainCloneContext(ctx, localPath, false, &gogit.CloneOptions{
		URL: remoteURI,
	})
	if err != nil {
		return fmt.Errorf("clone repository: %w", err)
	}

	return nil
}

// FetchRepository fetches latest changes for existing repository.
func (g *GoGitAdapter) FetchRepository(ctx context.Context, localPath string) error {
	repo, err := g.Open(localPath)
	if err != nil {
		return err
	}

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch repository: %w", err)
	}

	return nil
}

// CheckoutCommit checks out a specific commit, detaching HEAD.
func (g *GoGitAdapter) CheckoutCommit(_ context.Context, localPath string, commitSHA string) error {
	repo, err := g.Open(localPath)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	err = worktree.Checkout(&gogit.CheckoutOptions{
		Hash:  plumbing.NewHash(commitSHA),
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("checkout commit: %w", err)
	}

	return nil
}

// EnsureCheckout clones url into dir when it holds no repository, fetches
// when sha is unknown locally, and checks sha out.
func (g *GoGitAdapter) EnsureCheckout(ctx context.Context, url, dir, sha string) error {
	exists, err := g.RepositoryExists(ctx, dir)
	if err != nil {
		return err
	}
	if !exists {
		if err := g.CloneRepository(ctx, url, dir); err != nil {
			return err
		}
	}
	if sha == "" {
		return nil
	}

	head, err := g.ResolveCommit(ctx, dir, "HEAD")
	if err == nil && head.SHA == sha {
		g.logger.Debug("repository already at commit", slog.String("sha", shortSHA(sha)))
		return nil
	}

	if _, err := g.ResolveCommit(ctx, dir, sha); err != nil {
		g.logger.Info("commit not present locally, fetching", slog.String("sha", shortSHA(sha)))
		if err := g.FetchRepository(ctx, dir); err != nil {
			return err
		}
	}
	return g.CheckoutCommit(ctx, dir, sha)
}

// RepositoryExists checks if repository exists at local path.
func (g *GoGitAdapter) RepositoryExists(_ context.Context, localPath string) (bool, error) {
	_, err := gogit.PlainOpen(localPath)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return false, nil
		}
		return false, fmt.Errorf("check repository: %w", err)
	}
	return true, nil
}

func commitToInfo(c *object.Commit) CommitInfo {
	parents := make([]string, len(c.ParentHashes))
	for i, p := range c.ParentHashes {
		parents[i] = p.String()
	}
	return CommitInfo{
		SHA:     c.Hash.String(),
		Time:    c.Committer.When,
		Parents: parents,
		Tree:    c.TreeHash.String(),
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// Ensure GoGitAdapter implements Adapter.
var _ Adapter = (*GoGitAdapter)(nil)
