package service

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/infrastructure/batch"
	"github.com/helixml/syntree/infrastructure/git"
	"github.com/helixml/syntree/infrastructure/parsing"
)

// readChunk is the size of each read while hashing a file.
const readChunk = 64 * 1024

// DefaultTextCacheSize is the number of text keys a worker remembers.
const DefaultTextCacheSize = 4096

// VersionSource resolves the grammar version recorded on CodeTrees.
type VersionSource interface {
	Version(ctx context.Context, lang parsing.Language) (string, error)
}

// SourceParser parses file content into a tree.
type SourceParser interface {
	Parse(ctx context.Context, lang parsing.Language, src []byte) (*parsing.Tree, error)
}

// FileResult is the outcome of processing one file.
type FileResult struct {
	Path string
	// File is the stored File. It is zero when Err stopped processing before
	// anything was written.
	File document.File
	// CodeTree is set when the file has a tree, fresh or shared.
	CodeTree *document.CodeTree
	// Nodes counts the Nodes this call generated.
	Nodes int
	// FileDeduplicated is set when an equal File already existed.
	FileDeduplicated bool
	// CodeTreeDeduplicated is set when the tree was generated elsewhere.
	CodeTreeDeduplicated bool
	// Err is a per-file failure recorded as data, a *document.FileError.
	Err error
}

// FileWorkerConfig holds the collaborators of a FileWorker.
type FileWorkerConfig struct {
	// Root is the checkout directory entry paths are relative to.
	Root          string
	Languages     parsing.Languages
	Parser        SourceParser
	Versions      VersionSource
	TextCacheSize int
	Sink          progress.Sink
	Logger        *slog.Logger
}

// FileWorker turns one file of a commit into File, CodeTree, Node and Text
// documents. A FileWorker belongs to a single goroutine.
type FileWorker struct {
	store     document.Store
	writer    *batch.Writer
	root      string
	languages parsing.Languages
	parser    SourceParser
	versions  VersionSource
	texts     *lru.Cache[string, struct{}]
	sink      progress.Sink
	logger    *slog.Logger
}

// NewFileWorker creates a FileWorker writing Nodes and Texts through writer.
func NewFileWorker(store document.Store, writer *batch.Writer, cfg FileWorkerConfig) (*FileWorker, error) {
	size := cfg.TextCacheSize
	if size <= 0 {
		size = DefaultTextCacheSize
	}
	texts, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create text cache: %w", err)
	}
	w := &FileWorker{
		store:     store,
		writer:    writer,
		root:      cfg.Root,
		languages: cfg.Languages,
		parser:    cfg.Parser,
		versions:  cfg.Versions,
		texts:     texts,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
	}
	if len(w.languages.Names()) == 0 {
		w.languages = parsing.DefaultLanguages()
	}
	if w.parser == nil {
		w.parser = parsing.NewParser()
	}
	if w.sink == nil {
		w.sink = progress.Discard{}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Process stores entry as a File of commit and, for a supported language,
// the tree of its content. Per-file failures are returned in FileResult.Err;
// a returned error ends the run.
func (w *FileWorker) Process(ctx context.Context, commit document.Commit, entry git.Entry) (FileResult, error) {
	result := FileResult{Path: entry.Path}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if !entry.Mode.IsSupported() {
		result.Err = &document.FileError{Path: entry.Path, Err: document.ErrUnhandledFileMode}
		return result, nil
	}

	content, err := w.read(entry)
	if err != nil {
		var fileErr *document.FileError
		if errors.As(err, &fileErr) {
			result.Err = fileErr
			return result, nil
		}
		return result, err
	}

	file := document.NewFile(entry.Path, entry.Mode, int64(len(content.data)), entry.OID).
		WithContentHash(content.sha512)

	lang, supported := w.languages.ByPath(entry.Path)
	switch {
	case entry.Mode.IsLink():
		file = file.WithSymlink(w.symlink(entry.Path, string(content.data))).
			WithError(document.ErrorIsSymlink)
	case !supported:
		file = file.WithError(document.ErrorNoLanguageSupport)
	default:
		file = file.WithLanguage(lang.Name())
	}

	stored, err := w.store.Insert(ctx, file)
	if err != nil {
		return result, fmt.Errorf("insert file %s: %w", entry.Path, err)
	}
	if _, err := w.store.Insert(ctx, document.MustLink(commit, file)); err != nil {
		return result, fmt.Errorf("link commit to %s: %w", entry.Path, err)
	}
	result.File = stored.Document.(document.File)
	result.FileDeduplicated = stored.Deduplicated
	if stored.Deduplicated {
		w.sink.Send(progress.DedupStats(file.Collection(), 1))
	}
	if stored.Deduplicated || file.Error() != "" {
		return result, nil
	}

	return w.processTree(ctx, file, lang, content.data, result)
}

func (w *FileWorker) processTree(
	ctx context.Context,
	file document.File,
	lang parsing.Language,
	src []byte,
	result FileResult,
) (FileResult, error) {
	version := ""
	if w.versions != nil {
		v, err := w.versions.Version(ctx, lang)
		if err != nil {
			return result, fmt.Errorf("grammar version for %s: %w", lang.Name(), err)
		}
		version = v
	}

	tree := document.NewCodeTree(lang.Name(), version, file.ContentHash(), file.GitOID()).
		WithError(document.ErrorPending)
	stored, err := w.store.Insert(ctx, tree)
	if err != nil {
		return result, fmt.Errorf("insert code tree for %s: %w", file.Path(), err)
	}
	if _, err := w.store.Insert(ctx, document.MustLink(file, tree)); err != nil {
		return result, fmt.Errorf("link %s to code tree: %w", file.Path(), err)
	}
	shared := stored.Document.(document.CodeTree)
	result.CodeTree = &shared
	if stored.Deduplicated {
		result.CodeTreeDeduplicated = true
		w.sink.Send(progress.DedupStats(tree.Collection(), 1))
		return result, nil
	}

	parsed, err := w.parser.Parse(ctx, lang, src)
	if err != nil {
		if ctx.Err() != nil {
			return result, w.cancelled(ctx, tree)
		}
		return result, fmt.Errorf("parse %s: %w", file.Path(), err)
	}
	defer parsed.Close()

	if parsed.RootFailed() {
		if err := w.setTreeError(ctx, tree, document.ErrorRootParseFailed); err != nil {
			return result, err
		}
		result.Err = &document.FileError{Path: file.Path(), Err: document.ErrRootParseFailed}
		return result, nil
	}

	nodes, err := w.emit(ctx, tree, parsed)
	result.Nodes = nodes
	switch {
	case err == nil:
	case errors.Is(err, document.ErrUnicodeDecode):
		if err := w.writer.Flush(ctx); err != nil {
			return result, err
		}
		if err := w.setTreeError(ctx, tree, document.ErrorUnicodeDecode); err != nil {
			return result, err
		}
		w.logger.Warn("failed to decode node text", slog.String("path", file.Path()), slog.Int("nodes", nodes))
		result.Err = &document.FileError{Path: file.Path(), Err: err}
		return result, nil
	case ctx.Err() != nil:
		return result, w.cancelled(ctx, tree)
	case errors.Is(err, document.ErrBadTreeIteration):
		w.writer.Reset()
		if setErr := w.setTreeError(ctx, tree, document.ErrorBadTreeIteration); setErr != nil {
			return result, errors.Join(err, setErr)
		}
		return result, fmt.Errorf("walk %s: %w", file.Path(), err)
	default:
		return result, err
	}

	if err := w.writer.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			return result, w.cancelled(ctx, tree)
		}
		return result, err
	}
	if err := w.setTreeError(ctx, tree, ""); err != nil {
		return result, err
	}
	cleared := tree.WithError("")
	result.CodeTree = &cleared

	for coll, n := range w.writer.TakeDedupStats() {
		w.sink.Send(progress.DedupStats(coll, n))
	}
	return result, nil
}

// emit walks the tree and queues its Nodes, Texts and edges. It returns the
// number of Nodes queued.
func (w *FileWorker) emit(ctx context.Context, tree document.CodeTree, parsed *parsing.Tree) (int, error) {
	cursor := parsing.NewTreeCursor(parsed)
	defer cursor.Close()

	seen := make(map[string]struct{})
	hits, misses := 0, 0
	defer func() { w.sink.Send(progress.CacheStats(hits, misses)) }()

	walker := parsing.NewWalker[*sitter.Node](cursor)
	err := walker.Walk(func(v parsing.Visit[*sitter.Node]) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := parsed.Text(v.Node)
		if !utf8.Valid(raw) {
			return fmt.Errorf("node %d: %w", v.Preorder, document.ErrUnicodeDecode)
		}
		text := string(raw)

		start, end := v.Node.StartPoint(), v.Node.EndPoint()
		node := document.NewNode(
			tree.Key(),
			v.Preorder,
			document.Point{Row: int(start.Row), Column: int(start.Column)},
			document.Point{Row: int(end.Row), Column: int(end.Column)},
			v.Node.IsNamed(),
			v.Node.Type(),
		)
		docs := []document.Document{node}

		if v.Parent < 0 {
			docs = append(docs, document.MustLink(tree, node))
		} else {
			parent := document.Ref{Kind: document.KindNode, Key: document.NodeKey(tree.Key(), v.Parent)}
			edge, err := document.LinkRefs(parent, nodeRef(node))
			if err != nil {
				return err
			}
			docs = append(docs, edge)
		}

		textKey := document.TextKey(text)
		if _, ok := seen[textKey]; !ok {
			seen[textKey] = struct{}{}
			if w.texts.Contains(textKey) {
				hits++
			} else {
				misses++
				w.texts.Add(textKey, struct{}{})
				docs = append(docs, document.NewText(text))
			}
		}
		edge, err := document.LinkRefs(nodeRef(node), document.Ref{Kind: document.KindText, Key: textKey})
		if err != nil {
			return err
		}
		docs = append(docs, edge)

		return w.writer.Add(ctx, docs...)
	})
	return walker.Preorder(), err
}

func nodeRef(n document.Node) document.Ref {
	return document.Ref{Kind: document.KindNode, Key: n.Key()}
}

// cancelled marks the tree and returns the context error.
func (w *FileWorker) cancelled(ctx context.Context, tree document.CodeTree) error {
	w.writer.Reset()
	if err := w.setTreeError(context.WithoutCancel(ctx), tree, document.ErrorCancelled); err != nil {
		return errors.Join(ctx.Err(), err)
	}
	return ctx.Err()
}

func (w *FileWorker) setTreeError(ctx context.Context, tree document.CodeTree, errText string) error {
	if err := w.store.SetError(ctx, document.KindCodeTree, tree.Key(), errText); err != nil {
		return fmt.Errorf("set code tree error: %w", err)
	}
	return nil
}

type fileContent struct {
	data   []byte
	sha512 string
}

// read loads the entry from the checkout, hashing as it goes, and verifies
// the git object id. A symlink yields its target string.
func (w *FileWorker) read(entry git.Entry) (fileContent, error) {
	full := filepath.Join(w.root, filepath.FromSlash(entry.Path))

	var src io.Reader
	var size int64
	if entry.Mode.IsLink() {
		target, err := os.Readlink(full)
		if err != nil {
			return fileContent{}, fmt.Errorf("read link %s: %w", entry.Path, err)
		}
		src = strings.NewReader(target)
		size = int64(len(target))
	} else {
		f, err := os.Open(full)
		if err != nil {
			return fileContent{}, fmt.Errorf("open %s: %w", entry.Path, err)
		}
		defer func() { _ = f.Close() }()
		info, err := f.Stat()
		if err != nil {
			return fileContent{}, fmt.Errorf("stat %s: %w", entry.Path, err)
		}
		src = f
		size = info.Size()
	}

	digest := sha512.New()
	oid := git.NewBlobHasher(size)
	var buf bytes.Buffer
	buf.Grow(int(size))
	sink := io.MultiWriter(digest, oid, &buf)

	chunk := make([]byte, readChunk)
	if _, err := io.CopyBuffer(sink, io.LimitReader(src, size), chunk); err != nil {
		return fileContent{}, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	if int64(buf.Len()) != size || oid.OID() != entry.OID {
		return fileContent{}, &document.FileError{Path: entry.Path, Err: document.ErrLocalCopyOutOfSync}
	}
	return fileContent{data: buf.Bytes(), sha512: hex.EncodeToString(digest.Sum(nil))}, nil
}

// symlink resolves target against the link's directory. Relative is empty
// when the result leaves the checkout.
func (w *FileWorker) symlink(linkPath, target string) document.Symlink {
	link := document.Symlink{Target: target}
	if path.IsAbs(target) || filepath.IsAbs(target) {
		rel, err := filepath.Rel(w.root, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return link
		}
		link.Relative = filepath.ToSlash(rel)
		return link
	}
	resolved := path.Clean(path.Join(path.Dir(linkPath), target))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return link
	}
	link.Relative = resolved
	return link
}
