package git

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// RepositoryCloner keeps clones under a directory laid out by host and path.
type RepositoryCloner struct {
	adapter  Adapter
	cloneDir string
	logger   *slog.Logger
}

// NewRepositoryCloner creates a new RepositoryCloner with the specified adapter and clone directory.
func NewRepositoryCloner(adapter Adapter, cloneDir string, logger *slog.Logger) *RepositoryCloner {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositoryCloner{
		adapter:  adapter,
		cloneDir: cloneDir,
		logger:   logger,
	}
}

// ClonePathFromURI returns {cloneDir}/{host}/{path} for a repository URI.
func (c *RepositoryCloner) ClonePathFromURI(uri string) string {
	host, path := splitURI(uri)
	parts := []string{c.cloneDir, sanitizeSegment(host)}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, sanitizeSegment(seg))
	}
	return filepath.Join(parts...)
}

// Ensure clones the repository when missing and checks out sha. It returns
// the clone path.
func (c *RepositoryCloner) Ensure(ctx context.Context, remoteURI, sha string) (string, error) {
	clonePath := c.ClonePathFromURI(remoteURI)

	c.logger.Info("ensuring repository checkout",
		slog.String("uri", remoteURI),
		slog.String("path", clonePath),
		slog.String("sha", shortSHA(sha)),
	)

	if err := os.MkdirAll(filepath.Dir(clonePath), 0o770); err != nil {
		return "", fmt.Errorf("create clone dir: %w", err)
	}

	exists, err := c.adapter.RepositoryExists(ctx, clonePath)
	if err != nil {
		return "", err
	}
	if err := c.adapter.EnsureCheckout(ctx, remoteURI, clonePath, sha); err != nil {
		if !exists {
			// Clean up on failure
			_ = os.RemoveAll(clonePath)
		}
		return "", fmt.Errorf("ensure checkout: %w", err)
	}

	return clonePath, nil
}

// splitURI returns host and path for URLs and scp-like git addresses.
func splitURI(uri string) (string, string) {
	if u, err := url.Parse(uri); err == nil && u.Host != "" {
		return u.Hostname(), strings.TrimSuffix(u.Path, ".git")
	}
	// git@host:owner/repo.git
	if at := strings.Index(uri, "@"); at >= 0 {
		if colon := strings.Index(uri[at:], ":"); colon > 0 {
			return uri[at+1 : at+colon], strings.TrimSuffix(uri[at+colon+1:], ".git")
		}
	}
	return "local", strings.TrimSuffix(strings.TrimPrefix(uri, "file://"), ".git")
}

func sanitizeSegment(s string) string {
	result := make([]byte, 0, len(s))

	for _, b := range []byte(s) {
		switch b {
		case '\\', ':', '*', '?', '"', '<', '>', '|', '@':
			result = append(result, '_')
		default:
			result = append(result, b)
		}
	}

	// Keep each segment short enough that deep clone paths stay usable on
	// filesystems with a low path limit.
	const maxLen = 80
	out := string(result)
	if len(out) > maxLen {
		hash := sha256.Sum256([]byte(s))
		suffix := hex.EncodeToString(hash[:8])
		out = out[:maxLen-len(suffix)-1] + "-" + suffix
	}

	return out
}
