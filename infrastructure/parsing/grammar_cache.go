package parsing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	manifestName   = "grammar.json"
	lockName       = ".lock"
	grammarModule  = "github.com/smacker/go-tree-sitter"
	lockRetryDelay = 50 * time.Millisecond
)

// Manifest records the grammar a language directory was materialised from.
type Manifest struct {
	Language   string    `json:"language"`
	Version    string    `json:"version"`
	Extensions []string  `json:"extensions"`
	CreatedAt  time.Time `json:"created_at"`
}

// GrammarCache keeps one directory per language under dir. Concurrent
// processes coordinate through a lock file in each language directory.
type GrammarCache struct {
	dir     string
	version string

	mu        sync.Mutex
	manifests map[string]Manifest
}

// NewGrammarCache creates a cache rooted at dir.
func NewGrammarCache(dir string) *GrammarCache {
	return &GrammarCache{
		dir:       dir,
		version:   GrammarVersion(),
		manifests: make(map[string]Manifest),
	}
}

// Dir returns the cache root.
func (c *GrammarCache) Dir() string { return c.dir }

// Manifest returns the manifest for lang, writing it on first use.
func (c *GrammarCache) Manifest(ctx context.Context, lang Language) (Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.manifests[lang.Name()]; ok {
		return m, nil
	}

	langDir := filepath.Join(c.dir, lang.Name())
	if err := os.MkdirAll(langDir, 0o770); err != nil {
		return Manifest{}, fmt.Errorf("create grammar dir: %w", err)
	}

	lock := flock.New(filepath.Join(langDir, lockName))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return Manifest{}, fmt.Errorf("lock grammar dir %s: %w", lang.Name(), err)
	}
	if !locked {
		return Manifest{}, fmt.Errorf("lock grammar dir %s: not acquired", lang.Name())
	}
	defer func() { _ = lock.Unlock() }()

	path := filepath.Join(langDir, manifestName)
	m, err := readManifest(path)
	if errors.Is(err, fs.ErrNotExist) {
		m = Manifest{
			Language:   lang.Name(),
			Version:    c.version,
			Extensions: lang.Extensions(),
			CreatedAt:  time.Now().UTC(),
		}
		err = writeManifest(path, m)
	}
	if err != nil {
		return Manifest{}, err
	}

	c.manifests[lang.Name()] = m
	return m, nil
}

// Version returns the grammar version recorded for lang.
func (c *GrammarCache) Version(ctx context.Context, lang Language) (string, error) {
	m, err := c.Manifest(ctx, lang)
	if err != nil {
		return "", err
	}
	return m.Version, nil
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// GrammarVersion returns the version of the compiled-in grammar module.
func GrammarVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == grammarModule {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "devel"
}
