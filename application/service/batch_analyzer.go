package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/internal/log"
)

// RepoSpec is one entry of a batch list.
type RepoSpec struct {
	URL    string `yaml:"url"`
	Commit string `yaml:"commit"`
	// SHA is accepted as an alias of Commit.
	SHA string `yaml:"sha,omitempty"`
}

// Revision returns the commit to analyze.
func (s RepoSpec) Revision() string {
	if s.Commit != "" {
		return s.Commit
	}
	return s.SHA
}

// ParseRepoList reads a YAML or JSON list of repositories.
func ParseRepoList(r io.Reader) ([]RepoSpec, error) {
	var specs []RepoSpec
	if err := yaml.NewDecoder(r).Decode(&specs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse repository list: %w", err)
	}
	for i, s := range specs {
		if s.URL == "" {
			return nil, fmt.Errorf("parse repository list: entry %d has no url", i)
		}
	}
	return specs, nil
}

// Analyzer analyzes one checkout.
type Analyzer interface {
	Analyze(ctx context.Context, p AnalyzeParams) (document.Repository, error)
}

// Checkouts provides local clones at a commit.
type Checkouts interface {
	Ensure(ctx context.Context, url, sha string) (string, error)
}

// BatchReport summarises a batch run.
type BatchReport struct {
	// ID tags every Repository of the batch in extra.batch.
	ID       string
	Analyzed []document.Repository
	// Skipped lists the URLs that already existed.
	Skipped []string
}

// BatchAnalyzer analyzes a list of repositories, several at a time.
type BatchAnalyzer struct {
	store        document.Store
	checkouts    Checkouts
	analyzer     Analyzer
	jobs         int
	skipExisting bool
	logger       *slog.Logger
}

// BatchOption configures a BatchAnalyzer.
type BatchOption func(*BatchAnalyzer)

// WithJobs sets how many repositories run at once.
func WithJobs(n int) BatchOption {
	return func(b *BatchAnalyzer) {
		if n > 0 {
			b.jobs = n
		}
	}
}

// WithSkipExisting skips repositories that are already stored instead of
// failing the batch.
func WithSkipExisting(skip bool) BatchOption {
	return func(b *BatchAnalyzer) { b.skipExisting = skip }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(b *BatchAnalyzer) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBatchAnalyzer creates a BatchAnalyzer.
func NewBatchAnalyzer(store document.Store, checkouts Checkouts, analyzer Analyzer, opts ...BatchOption) *BatchAnalyzer {
	b := &BatchAnalyzer{
		store:     store,
		checkouts: checkouts,
		analyzer:  analyzer,
		jobs:      1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run analyzes every repository in specs. Failures of single repositories
// are collected and returned together after the others finish. An existing
// repository stops the batch unless skipping is enabled, and so does
// cancellation.
func (b *BatchAnalyzer) Run(ctx context.Context, specs []RepoSpec) (BatchReport, error) {
	report := BatchReport{ID: uuid.New().String()}
	ctx = log.WithBatchID(ctx, report.ID)
	b.logger.InfoContext(ctx, "batch started", slog.Int("repositories", len(specs)))

	var (
		mu     sync.Mutex
		errs   *multierror.Error
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.jobs)

	for _, spec := range specs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			jobCtx := log.WithRepository(gctx, spec.URL)
			repo, err := b.analyze(jobCtx, report.ID, spec)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Analyzed = append(report.Analyzed, repo)
				return nil
			case errors.Is(err, document.ErrRepositoryExists) && b.skipExisting:
				b.logger.DebugContext(jobCtx, "skipping existing repository")
				report.Skipped = append(report.Skipped, spec.URL)
				return nil
			case errors.Is(err, document.ErrRepositoryExists), isContextErr(err):
				return err
			default:
				b.logger.ErrorContext(jobCtx, "repository failed", slog.String("error", err.Error()))
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", spec.URL, err))
				failed++
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	b.logger.InfoContext(ctx, "batch finished",
		slog.Int("analyzed", len(report.Analyzed)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("failed", failed),
	)
	return report, errs.ErrorOrNil()
}

func (b *BatchAnalyzer) analyze(ctx context.Context, batchID string, spec RepoSpec) (document.Repository, error) {
	key := document.RepositoryKey(spec.URL)
	existing, err := b.store.Get(ctx, string(document.KindRepository), key)
	switch {
	case err == nil:
		return document.Repository{}, fmt.Errorf("%s at %s: %w",
			spec.URL, existing.(document.Repository).Commit(), document.ErrRepositoryExists)
	case !errors.Is(err, document.ErrNotFound):
		return document.Repository{}, fmt.Errorf("look up repository: %w", err)
	}

	path, err := b.checkouts.Ensure(ctx, spec.URL, spec.Revision())
	if err != nil {
		return document.Repository{}, err
	}

	return b.analyzer.Analyze(ctx, AnalyzeParams{
		URL:    spec.URL,
		Path:   path,
		Commit: spec.Revision(),
		Extra: map[string]any{
			"batch":  batchID,
			"url":    spec.URL,
			"commit": spec.Revision(),
		},
	})
}
