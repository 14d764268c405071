package jsonl_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/infrastructure/jsonl"
	"github.com/helixml/syntree/internal/testdb"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func graph() []document.Document {
	repo := document.NewRepository("https://example.com/acme/widgets.git", "/tmp/widgets", "c0ffee")
	commit := document.NewCommit("c0ffee", 1709290800, 60, nil, "7ree")
	file := document.NewFile("main.py", document.ModeBlob, 6, "a1b2").
		WithContentHash(document.SHA512Hex([]byte("x = 1\n"))).
		WithLanguage("python")
	tree := document.NewCodeTree("python", "1", file.ContentHash(), "a1b2")
	root := document.NewNode(tree.Key(), 0, document.Point{}, document.Point{Row: 1}, true, "module")
	child := document.NewNode(tree.Key(), 1, document.Point{}, document.Point{Column: 5}, true, "expression_statement")
	text := document.NewText("x = 1")
	return []document.Document{
		repo, commit, file, tree, root, child, text,
		document.MustLink(repo, commit),
		document.MustLink(commit, file),
		document.MustLink(file, tree),
		document.MustLink(tree, root),
		document.MustLink(root, child),
		document.MustLink(child, text),
	}
}

func readLines(t *testing.T, path string) [][]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return bytes.Split(bytes.TrimSpace(data), []byte("\n"))
}

func lines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestStore_WriteBatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)

	result, err := store.WriteBatch(ctx, graph())
	require.NoError(t, err)
	assert.Nil(t, result.Job)
	assert.Empty(t, result.Deduplicated)

	result, err = store.WriteBatch(ctx, graph())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deduplicated[string(document.KindNode)])
	assert.Equal(t, 1, result.Deduplicated[document.EdgeNodeText])
	require.NoError(t, store.Close())

	assert.Equal(t, 2, lines(t, jsonl.Path(dir, string(document.KindNode))))
	assert.Equal(t, 1, lines(t, jsonl.Path(dir, string(document.KindRepository))))
	assert.Equal(t, 1, lines(t, jsonl.Path(dir, document.EdgeNodeParent)))
	assert.FileExists(t, dir+"/wstnodes.vert.jsonl")
	assert.FileExists(t, dir+"/wst_node_text.edge.jsonl")
}

func TestStore_ReopenDeduplicates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	_, err = first.WriteBatch(ctx, graph())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	result, err := second.WriteBatch(ctx, graph())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deduplicated[string(document.KindText)])
	require.NoError(t, second.Close())

	assert.Equal(t, 1, lines(t, jsonl.Path(dir, string(document.KindText))))
	assert.Equal(t, 1, lines(t, jsonl.Path(dir, string(document.KindRepository))))
}

func TestStore_Mismatch(t *testing.T) {
	ctx := context.Background()
	store, err := jsonl.NewStore(t.TempDir(), quiet())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	node := document.NewNode("python-abc", 0, document.Point{}, document.Point{Row: 1}, true, "module")
	_, err = store.Insert(ctx, node)
	require.NoError(t, err)

	other := document.NewNode("python-abc", 0, document.Point{}, document.Point{Row: 1}, true, "program")
	_, err = store.Insert(ctx, other)
	require.ErrorIs(t, err, document.ErrDeduplicatedObjectMismatch)

	_, err = store.WriteBatch(ctx, []document.Document{other})
	require.ErrorIs(t, err, document.ErrDeduplicatedObjectMismatch)
}

func TestStore_InsertReturnsStoredDocument(t *testing.T) {
	ctx := context.Background()
	store, err := jsonl.NewStore(t.TempDir(), quiet())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	pending := document.NewCodeTree("python", "1", "abc", "oid").WithError(document.ErrorPending)
	_, err = store.Insert(ctx, pending)
	require.NoError(t, err)

	res, err := store.Insert(ctx, document.NewCodeTree("python", "1", "abc", "oid"))
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
	assert.Equal(t, document.ErrorPending, res.Document.(document.CodeTree).Error())
}

func TestStore_SetError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)

	tree := document.NewCodeTree("python", "1", "abc", "oid").WithError(document.ErrorPending)
	_, err = store.Insert(ctx, tree)
	require.NoError(t, err)
	require.NoError(t, store.SetError(ctx, document.KindCodeTree, tree.Key(), ""))

	err = store.SetError(ctx, document.KindCodeTree, "python-missing", "x")
	require.ErrorIs(t, err, document.ErrNotFound)
	err = store.SetError(ctx, document.KindNode, "k", "x")
	require.Error(t, err)
	require.NoError(t, store.Close())

	assert.Equal(t, 1, lines(t, jsonl.Path(dir, string(document.KindCodeTree))))

	reopened, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, string(document.KindCodeTree), tree.Key())
	require.NoError(t, err)
	assert.Empty(t, got.(document.CodeTree).Error())
}

func TestStore_PendingHeldUntilFinal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)

	finished := document.NewCodeTree("python", "1", "abc", "oid").WithError(document.ErrorPending)
	abandoned := document.NewCodeTree("python", "1", "def", "oid2").WithError(document.ErrorPending)
	_, err = store.Insert(ctx, finished)
	require.NoError(t, err)
	_, err = store.WriteBatch(ctx, []document.Document{abandoned})
	require.NoError(t, err)
	assert.NoFileExists(t, jsonl.Path(dir, string(document.KindCodeTree)))

	require.NoError(t, store.SetError(ctx, document.KindCodeTree, finished.Key(), document.ErrorPending))
	assert.NoFileExists(t, jsonl.Path(dir, string(document.KindCodeTree)))
	require.NoError(t, store.SetError(ctx, document.KindCodeTree, finished.Key(), ""))
	assert.Equal(t, 1, lines(t, jsonl.Path(dir, string(document.KindCodeTree))))

	got, err := store.Get(ctx, string(document.KindCodeTree), abandoned.Key())
	require.NoError(t, err)
	assert.Equal(t, document.ErrorPending, got.(document.CodeTree).Error())
	require.NoError(t, store.Close())

	errs := map[string]any{}
	for _, line := range readLines(t, jsonl.Path(dir, string(document.KindCodeTree))) {
		var payload map[string]any
		require.NoError(t, json.Unmarshal(line, &payload))
		key := payload["_key"].(string)
		_, dup := errs[key]
		assert.False(t, dup, key)
		errs[key] = payload["error"]
	}
	assert.Equal(t, map[string]any{finished.Key(): nil, abandoned.Key(): document.ErrorPending}, errs)
}

func TestStore_SetErrorRewritesWrittenLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	_, err = first.WriteBatch(ctx, graph())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	tree := graph()[3].(document.CodeTree)
	second, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	require.NoError(t, second.SetError(ctx, document.KindCodeTree, tree.Key(), ""))
	require.NoError(t, second.SetError(ctx, document.KindCodeTree, tree.Key(), document.ErrorCancelled))
	_, err = second.Insert(ctx, document.NewText("y = 2"))
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.Equal(t, 1, lines(t, jsonl.Path(dir, string(document.KindCodeTree))))
	assert.Equal(t, 2, lines(t, jsonl.Path(dir, string(document.KindText))))

	third, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	defer func() { _ = third.Close() }()
	got, err := third.Get(ctx, string(document.KindCodeTree), tree.Key())
	require.NoError(t, err)
	assert.Equal(t, document.ErrorCancelled, got.(document.CodeTree).Error())
}

func TestStore_SaveRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)

	repo := document.NewRepository("https://example.com/a.git", "/tmp/a", "c0ffee")
	require.NoError(t, store.SaveRepository(ctx, repo))
	require.NoError(t, store.SaveRepository(ctx, repo.WithStatus(document.StatusCompleted)))
	assert.NoFileExists(t, jsonl.Path(dir, string(document.KindRepository)))
	require.NoError(t, store.Close())

	reopened, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, string(document.KindRepository), repo.Key())
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.(document.Repository).Status())
}

func TestStore_Closed(t *testing.T) {
	store, err := jsonl.NewStore(t.TempDir(), quiet())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.WriteBatch(context.Background(), graph())
	require.Error(t, err)
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	source := testdb.NewStore(t)
	_, err := source.WriteBatch(ctx, graph())
	require.NoError(t, err)

	dir := t.TempDir()
	counts, err := jsonl.NewExporter(quiet()).Export(ctx, source, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[string(document.KindNode)])
	assert.Equal(t, 1, counts[document.EdgeRepoCommit])

	target := testdb.NewStore(t)
	stats, err := jsonl.NewImporter(quiet(), jsonl.WithChunkSize(2)).Import(ctx, dir, target)
	require.NoError(t, err)
	for _, coll := range document.Registry().Collections() {
		want, err := source.Count(ctx, coll)
		require.NoError(t, err)
		got, err := target.Count(ctx, coll)
		require.NoError(t, err)
		assert.Equal(t, want, got, coll)
		assert.Equal(t, int(want), stats.Read[coll], coll)
	}

	stats, err = jsonl.NewImporter(quiet()).Import(ctx, dir, target)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Deduplicated[string(document.KindNode)])
}

func TestImport_ReplaysErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	log, err := jsonl.NewStore(dir, quiet())
	require.NoError(t, err)

	tree := document.NewCodeTree("python", "1", "abc", "oid").WithError(document.ErrorPending)
	_, err = log.Insert(ctx, tree)
	require.NoError(t, err)
	require.NoError(t, log.SetError(ctx, document.KindCodeTree, tree.Key(), document.ErrorRootParseFailed))
	require.NoError(t, log.Close())

	target := testdb.NewStore(t)
	_, err = jsonl.NewImporter(quiet()).Import(ctx, dir, target)
	require.NoError(t, err)

	got, err := target.Get(ctx, string(document.KindCodeTree), tree.Key())
	require.NoError(t, err)
	assert.Equal(t, document.ErrorRootParseFailed, got.(document.CodeTree).Error())
}
