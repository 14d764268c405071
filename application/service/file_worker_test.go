package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/syntree/application/service"
	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/infrastructure/batch"
	"github.com/helixml/syntree/infrastructure/git"
	"github.com/helixml/syntree/infrastructure/jsonl"
	"github.com/helixml/syntree/infrastructure/parsing"
	"github.com/helixml/syntree/infrastructure/persistence"
	"github.com/helixml/syntree/internal/testdb"
	"github.com/helixml/syntree/internal/testgit"
)

const pythonSource = `def greet(name):
    return "hello " + name


print(greet("world"))
`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ctx     context.Context
	store   *persistence.DocumentStore
	dir     string
	commit  document.Commit
	entries map[string]git.Entry
}

func newFixture(t *testing.T, files map[string]testgit.File) fixture {
	t.Helper()
	ctx := context.Background()
	dir, sha := testgit.New(t, files)

	adapter := git.NewGoGitAdapter(quiet())
	info, err := adapter.ResolveCommit(ctx, dir, sha)
	require.NoError(t, err)
	list, err := adapter.Entries(ctx, dir, sha)
	require.NoError(t, err)

	entries := make(map[string]git.Entry, len(list))
	for _, e := range list {
		entries[e.Path] = e
	}
	store := testdb.NewStore(t)
	_, err = store.Insert(ctx, info.Document())
	require.NoError(t, err)

	return fixture{ctx: ctx, store: store, dir: dir, commit: info.Document(), entries: entries}
}

func (f fixture) worker(t *testing.T, sink progress.Sink) *service.FileWorker {
	t.Helper()
	writer := batch.NewWriter(f.store, persistence.IsConflict, batch.WithThreshold(16), batch.WithLogger(quiet()))
	w, err := service.NewFileWorker(f.store, writer, service.FileWorkerConfig{
		Root:   f.dir,
		Sink:   sink,
		Logger: quiet(),
	})
	require.NoError(t, err)
	return w
}

func (f fixture) count(t *testing.T, coll string) int64 {
	t.Helper()
	n, err := f.store.Count(f.ctx, coll)
	require.NoError(t, err)
	return n
}

func TestFileWorker_SharedCodeTree(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{
		"a.py":     {Content: pythonSource},
		"pkg/b.py": {Content: pythonSource},
	})
	w := f.worker(t, nil)

	first, err := w.Process(f.ctx, f.commit, f.entries["a.py"])
	require.NoError(t, err)
	require.NoError(t, first.Err)
	require.NotNil(t, first.CodeTree)
	assert.False(t, first.CodeTreeDeduplicated)
	assert.Empty(t, first.CodeTree.Error())

	second, err := w.Process(f.ctx, f.commit, f.entries["pkg/b.py"])
	require.NoError(t, err)
	require.NotNil(t, second.CodeTree)
	assert.True(t, second.CodeTreeDeduplicated)
	assert.Equal(t, first.CodeTree.Key(), second.CodeTree.Key())
	assert.Zero(t, second.Nodes)

	assert.Equal(t, int64(2), f.count(t, string(document.KindFile)))
	assert.Equal(t, int64(1), f.count(t, string(document.KindCodeTree)))
	assert.Equal(t, int64(2), f.count(t, document.EdgeFileCodeTree))
	assert.Equal(t, int64(2), f.count(t, document.EdgeCommitFile))
}

func TestFileWorker_ContiguousPreorder(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"main.py": {Content: pythonSource}})
	w := f.worker(t, nil)

	result, err := w.Process(f.ctx, f.commit, f.entries["main.py"])
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Greater(t, result.Nodes, 10)
	treeKey := result.CodeTree.Key()

	var preorders []int
	require.NoError(t, f.store.Each(f.ctx, string(document.KindNode), func(d document.Document) error {
		node := d.(document.Node)
		assert.Equal(t, treeKey, node.CodeTreeKey())
		preorders = append(preorders, node.Preorder())
		return nil
	}))
	slices.Sort(preorders)
	require.Len(t, preorders, result.Nodes)
	for i, p := range preorders {
		assert.Equal(t, i, p)
	}

	rootKey := document.NodeKey(treeKey, 0)
	parentEdges := 0
	require.NoError(t, f.store.Each(f.ctx, document.EdgeNodeParent, func(d document.Document) error {
		edge := d.(document.Edge)
		assert.NotEqual(t, rootKey, edge.To().Key)
		from, err := strconv.Atoi(edge.From().Key[strings.LastIndex(edge.From().Key, "-")+1:])
		require.NoError(t, err)
		to, err := strconv.Atoi(edge.To().Key[strings.LastIndex(edge.To().Key, "-")+1:])
		require.NoError(t, err)
		assert.Less(t, from, to, "parent precedes child in preorder")
		parentEdges++
		return nil
	}))
	assert.Equal(t, result.Nodes-1, parentEdges)
	assert.Equal(t, int64(1), f.count(t, document.EdgeCodeTreeRoot))
	assert.Equal(t, int64(result.Nodes), f.count(t, document.EdgeNodeText))

	got, err := f.store.Get(f.ctx, string(document.KindCodeTree), treeKey)
	require.NoError(t, err)
	assert.Empty(t, got.(document.CodeTree).Error())
}

func TestFileWorker_ZeroByteFile(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"empty.py": {}})
	w := f.worker(t, nil)

	result, err := w.Process(f.ctx, f.commit, f.entries["empty.py"])
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, document.SHA512Hex(nil), result.File.ContentHash())
	assert.Equal(t, int64(0), result.File.Size())
	require.NotNil(t, result.CodeTree)
	assert.Empty(t, result.CodeTree.Error())
	assert.Equal(t, 1, result.Nodes)

	_, err = f.store.Get(f.ctx, string(document.KindText), document.TextKey(""))
	require.NoError(t, err)
}

func TestFileWorker_UnsupportedLanguage(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"README.rst": {Content: "Title\n=====\n"}})
	w := f.worker(t, nil)

	result, err := w.Process(f.ctx, f.commit, f.entries["README.rst"])
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Nil(t, result.CodeTree)
	assert.Equal(t, document.ErrorNoLanguageSupport, result.File.Error())
	assert.Empty(t, result.File.Language())

	assert.Equal(t, int64(1), f.count(t, string(document.KindFile)))
	assert.Equal(t, int64(0), f.count(t, string(document.KindCodeTree)))
}

func TestFileWorker_Symlink(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{
		"main.py":      {Content: pythonSource},
		"lib/alias.py": {Link: "../main.py"},
		"outside.py":   {Link: "../../etc/passwd"},
	})
	w := f.worker(t, nil)

	result, err := w.Process(f.ctx, f.commit, f.entries["lib/alias.py"])
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Equal(t, document.ErrorIsSymlink, result.File.Error())
	assert.Equal(t, document.ModeLink, result.File.Mode())
	require.NotNil(t, result.File.Symlink())
	assert.Equal(t, "../main.py", result.File.Symlink().Target)
	assert.Equal(t, "main.py", result.File.Symlink().Relative)
	assert.Nil(t, result.CodeTree)

	result, err = w.Process(f.ctx, f.commit, f.entries["outside.py"])
	require.NoError(t, err)
	assert.Empty(t, result.File.Symlink().Relative)
}

func TestFileWorker_LocalCopyOutOfSync(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"main.py": {Content: pythonSource}})
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "main.py"), []byte("changed = True\n"), 0o644))
	w := f.worker(t, nil)

	result, err := w.Process(f.ctx, f.commit, f.entries["main.py"])
	require.NoError(t, err)
	require.ErrorIs(t, result.Err, document.ErrLocalCopyOutOfSync)
	assert.Equal(t, document.ErrorLocalCopyOutOfSync, document.ErrorText(result.Err))
	assert.Equal(t, int64(0), f.count(t, string(document.KindFile)))
}

func TestFileWorker_UnhandledFileMode(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"main.py": {Content: pythonSource}})
	w := f.worker(t, nil)

	entry := git.Entry{Path: "vendor/lib", Mode: document.FileMode(0o160000), OID: "0000"}
	result, err := w.Process(f.ctx, f.commit, entry)
	require.NoError(t, err)
	require.ErrorIs(t, result.Err, document.ErrUnhandledFileMode)
	assert.Equal(t, int64(0), f.count(t, string(document.KindFile)))
}

func TestFileWorker_UnicodeDecodeError(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"bad.py": {Content: "x = '\xff\xfe'\n"}})
	w := f.worker(t, nil)

	result, err := w.Process(f.ctx, f.commit, f.entries["bad.py"])
	require.NoError(t, err)
	require.ErrorIs(t, result.Err, document.ErrUnicodeDecode)
	require.NotNil(t, result.CodeTree)

	got, err := f.store.Get(f.ctx, string(document.KindCodeTree), result.CodeTree.Key())
	require.NoError(t, err)
	assert.Equal(t, document.ErrorUnicodeDecode, got.(document.CodeTree).Error())
}

func TestFileWorker_RootParseFailed(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"main.py": {Content: pythonSource}})
	writer := batch.NewWriter(f.store, persistence.IsConflict, batch.WithLogger(quiet()))
	w, err := service.NewFileWorker(f.store, writer, service.FileWorkerConfig{
		Root:   f.dir,
		Parser: parsing.NewParser(parsing.WithRootFailure(func(*sitter.Node) bool { return true })),
		Logger: quiet(),
	})
	require.NoError(t, err)

	result, err := w.Process(f.ctx, f.commit, f.entries["main.py"])
	require.NoError(t, err)
	require.ErrorIs(t, result.Err, document.ErrRootParseFailed)
	require.NotNil(t, result.CodeTree)
	assert.Zero(t, result.Nodes)

	got, err := f.store.Get(f.ctx, string(document.KindCodeTree), result.CodeTree.Key())
	require.NoError(t, err)
	assert.Equal(t, document.ErrorRootParseFailed, got.(document.CodeTree).Error())
	assert.Equal(t, int64(0), f.count(t, string(document.KindNode)))
	assert.Equal(t, int64(0), f.count(t, document.EdgeCodeTreeRoot))
	assert.Equal(t, int64(1), f.count(t, string(document.KindFile)))
}

func TestFileWorker_JSONLWritesEachCodeTreeOnce(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{
		"main.py": {Content: pythonSource},
		"copy.py": {Content: pythonSource},
	})
	out := t.TempDir()
	store, err := jsonl.NewStore(out, quiet())
	require.NoError(t, err)
	_, err = store.Insert(f.ctx, f.commit)
	require.NoError(t, err)

	writer := batch.NewWriter(store, nil, batch.WithLogger(quiet()))
	w, err := service.NewFileWorker(store, writer, service.FileWorkerConfig{Root: f.dir, Logger: quiet()})
	require.NoError(t, err)
	for _, path := range []string{"main.py", "copy.py"} {
		result, err := w.Process(f.ctx, f.commit, f.entries[path])
		require.NoError(t, err)
		require.NoError(t, result.Err)
	}
	require.NoError(t, store.Close())

	data, err := os.ReadFile(jsonl.Path(out, string(document.KindCodeTree)))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &payload))
	assert.Nil(t, payload["error"])

	data, err = os.ReadFile(jsonl.Path(out, string(document.KindFile)))
	require.NoError(t, err)
	assert.Len(t, bytes.Split(bytes.TrimSpace(data), []byte("\n")), 2)
}

func TestFileWorker_ReportsProgress(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{
		"a.py": {Content: "x = 1\ny = 1\n"},
		"b.py": {Content: "x = 1\ny = 1\n"},
	})
	ch := progress.NewChannel(1024)
	w := f.worker(t, ch)

	_, err := w.Process(f.ctx, f.commit, f.entries["a.py"])
	require.NoError(t, err)
	_, err = w.Process(f.ctx, f.commit, f.entries["b.py"])
	require.NoError(t, err)
	close(ch)

	written, hits, misses, treeDedup := 0, 0, 0, 0
	for msg := range ch {
		switch msg.Kind {
		case progress.KindWritten:
			written += msg.Count
		case progress.KindCacheStats:
			hits += msg.Hits
			misses += msg.Misses
		case progress.KindDedupStats:
			if msg.Collection == string(document.KindCodeTree) {
				treeDedup += msg.Count
			}
		}
	}
	assert.Positive(t, written)
	assert.Positive(t, misses)
	assert.Equal(t, 1, treeDedup)
	assert.Zero(t, hits)
}

func TestFileWorker_TextCacheHitsAcrossFiles(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{
		"a.py": {Content: "x = 1\n"},
		"b.py": {Content: "x = 1\ny = 2\n"},
	})
	ch := progress.NewChannel(1024)
	w := f.worker(t, ch)

	_, err := w.Process(f.ctx, f.commit, f.entries["a.py"])
	require.NoError(t, err)
	_, err = w.Process(f.ctx, f.commit, f.entries["b.py"])
	require.NoError(t, err)
	close(ch)

	hits := 0
	for msg := range ch {
		if msg.Kind == progress.KindCacheStats {
			hits += msg.Hits
		}
	}
	assert.Positive(t, hits)

	_, err = f.store.Get(f.ctx, string(document.KindText), document.TextKey("x = 1"))
	require.NoError(t, err)
}

func TestFileWorker_Cancelled(t *testing.T) {
	f := newFixture(t, map[string]testgit.File{"main.py": {Content: pythonSource}})
	w := f.worker(t, nil)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	_, err := w.Process(ctx, f.commit, f.entries["main.py"])
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), f.count(t, string(document.KindFile)))
}
