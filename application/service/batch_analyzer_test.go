package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/syntree/application/service"
	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/infrastructure/git"
	"github.com/helixml/syntree/infrastructure/persistence"
	"github.com/helixml/syntree/internal/testdb"
	"github.com/helixml/syntree/internal/testgit"
)

func TestParseRepoList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []service.RepoSpec
	}{
		{
			name: "yaml",
			input: `
- url: https://github.com/acme/one
  commit: abc123
- url: https://github.com/acme/two
`,
			want: []service.RepoSpec{
				{URL: "https://github.com/acme/one", Commit: "abc123"},
				{URL: "https://github.com/acme/two"},
			},
		},
		{
			name:  "json with sha alias",
			input: `[{"url": "https://github.com/acme/one", "sha": "def456"}]`,
			want:  []service.RepoSpec{{URL: "https://github.com/acme/one", SHA: "def456"}},
		},
		{name: "empty", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ParseRepoList(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	specs, err := service.ParseRepoList(strings.NewReader(`[{"url": "x", "sha": "def456"}]`))
	require.NoError(t, err)
	assert.Equal(t, "def456", specs[0].Revision())

	_, err = service.ParseRepoList(strings.NewReader(`[{"commit": "abc"}]`))
	require.Error(t, err)
}

// localCheckouts serves fixture repositories by URL.
type localCheckouts struct {
	dirs map[string]string
}

func (c localCheckouts) Ensure(_ context.Context, url, _ string) (string, error) {
	dir, ok := c.dirs[url]
	if !ok {
		return "", errors.New("clone failed")
	}
	return dir, nil
}

// recordingAnalyzer records the params of every call.
type recordingAnalyzer struct {
	mu    sync.Mutex
	calls []service.AnalyzeParams
	inner service.Analyzer
}

func (a *recordingAnalyzer) Analyze(ctx context.Context, p service.AnalyzeParams) (document.Repository, error) {
	a.mu.Lock()
	a.calls = append(a.calls, p)
	a.mu.Unlock()
	return a.inner.Analyze(ctx, p)
}

func TestBatchAnalyzer_Run(t *testing.T) {
	ctx := context.Background()
	one, oneSHA := testgit.New(t, map[string]testgit.File{"main.py": {Content: "x = 1\n"}})
	two, _ := testgit.New(t, map[string]testgit.File{"lib.rs": {Content: "fn f() {}\n"}})

	store := testdb.NewStore(t)
	analyzer := &recordingAnalyzer{inner: newOrchestrator(store, nil, service.WithWorkers(1))}
	checkouts := localCheckouts{dirs: map[string]string{
		"https://example.com/one.git": one,
		"https://example.com/two.git": two,
	}}
	b := service.NewBatchAnalyzer(store, checkouts, analyzer,
		service.WithJobs(2), service.WithBatchLogger(quiet()))

	report, err := b.Run(ctx, []service.RepoSpec{
		{URL: "https://example.com/one.git", Commit: oneSHA},
		{URL: "https://example.com/two.git"},
	})
	require.NoError(t, err)
	assert.Len(t, report.Analyzed, 2)
	assert.NotEmpty(t, report.ID)

	stored := storedRepository(t, store, "https://example.com/one.git")
	assert.Equal(t, document.StatusCompleted, stored.Status())
	assert.Equal(t, report.ID, stored.Extra()["batch"])
	assert.Equal(t, oneSHA, stored.Extra()["commit"])
	assert.Equal(t, "https://example.com/one.git", stored.Extra()["url"])

	// one.git is stored now.
	_, err = b.Run(ctx, []service.RepoSpec{{URL: "https://example.com/one.git"}})
	require.ErrorIs(t, err, document.ErrRepositoryExists)

	skipping := service.NewBatchAnalyzer(store, checkouts, analyzer,
		service.WithSkipExisting(true), service.WithBatchLogger(quiet()))
	report, err = skipping.Run(ctx, []service.RepoSpec{
		{URL: "https://example.com/one.git"},
		{URL: "https://example.com/two.git"},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Analyzed)
	assert.ElementsMatch(t, []string{"https://example.com/one.git", "https://example.com/two.git"}, report.Skipped)
	assert.Len(t, analyzer.calls, 2)
}

func TestBatchAnalyzer_CollectsFailures(t *testing.T) {
	ctx := context.Background()
	good, _ := testgit.New(t, map[string]testgit.File{"main.py": {Content: "x = 1\n"}})

	store := testdb.NewStore(t)
	orchestrator := service.NewOrchestrator(store, git.NewGoGitAdapter(quiet()),
		service.FileWorkerFactory(store, persistence.IsConflict, service.FileWorkerConfig{Logger: quiet()}),
		service.WithLogger(quiet()))
	checkouts := localCheckouts{dirs: map[string]string{"https://example.com/good.git": good}}
	b := service.NewBatchAnalyzer(store, checkouts, orchestrator, service.WithBatchLogger(quiet()))

	report, err := b.Run(ctx, []service.RepoSpec{
		{URL: "https://example.com/missing-a.git"},
		{URL: "https://example.com/good.git"},
		{URL: "https://example.com/missing-b.git"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-a.git")
	assert.Contains(t, err.Error(), "missing-b.git")
	assert.Contains(t, err.Error(), "2 errors occurred")
	require.Len(t, report.Analyzed, 1)
	assert.Equal(t, "https://example.com/good.git", report.Analyzed[0].URL())
}

func TestBatchAnalyzer_Cancelled(t *testing.T) {
	store := testdb.NewStore(t)
	b := service.NewBatchAnalyzer(store, localCheckouts{}, &recordingAnalyzer{}, service.WithBatchLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Run(ctx, []service.RepoSpec{{URL: "https://example.com/a.git"}})
	require.ErrorIs(t, err, context.Canceled)
}
