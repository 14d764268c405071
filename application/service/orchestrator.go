package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/infrastructure/git"
)

// DefaultGracePeriod is how long in-flight files may run after cancellation.
const DefaultGracePeriod = 5 * time.Second

// AnalyzeParams selects what to analyze.
type AnalyzeParams struct {
	// URL identifies the repository. Defaults to the absolute Path.
	URL string
	// Path is the local checkout.
	Path string
	// Commit is a revision in Path. Empty means HEAD.
	Commit string
	// Extra is stored on the Repository as opaque metadata.
	Extra map[string]any
}

// Orchestrator analyzes one commit of a repository with a pool of workers.
type Orchestrator struct {
	store      document.Store
	adapter    git.Adapter
	processors ProcessorFactory
	workers    int
	grace      time.Duration
	sink       progress.Sink
	logger     *slog.Logger
	onEntries  func(total int)
	onFileDone func(FileResult)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWorkers sets the pool size.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithGracePeriod sets how long in-flight files may finish after cancellation.
func WithGracePeriod(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.grace = d }
}

// WithProgress sets the sink that receives file_done messages.
func WithProgress(sink progress.Sink) OrchestratorOption {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnEntries sets a callback receiving the number of files to process.
func WithOnEntries(fn func(total int)) OrchestratorOption {
	return func(o *Orchestrator) { o.onEntries = fn }
}

// WithOnFileDone sets a callback run for each result, in completion order.
func WithOnFileDone(fn func(FileResult)) OrchestratorOption {
	return func(o *Orchestrator) { o.onFileDone = fn }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(store document.Store, adapter git.Adapter, processors ProcessorFactory, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		adapter:    adapter,
		processors: processors,
		workers:    runtime.NumCPU(),
		grace:      DefaultGracePeriod,
		sink:       progress.Discard{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze stores the commit at p.Path and every file in it. The Repository
// is saved as started before any file is processed and ends completed,
// cancelled or error. Cancellation returns the context error.
func (o *Orchestrator) Analyze(ctx context.Context, p AnalyzeParams) (document.Repository, error) {
	info, err := o.adapter.ResolveCommit(ctx, p.Path, p.Commit)
	if err != nil {
		return document.Repository{}, fmt.Errorf("resolve commit: %w", err)
	}
	url := p.URL
	if url == "" {
		abs, err := filepath.Abs(p.Path)
		if err != nil {
			return document.Repository{}, fmt.Errorf("resolve path: %w", err)
		}
		url = abs
	}

	repo := document.NewRepository(url, p.Path, info.SHA)
	if len(p.Extra) > 0 {
		repo = repo.WithExtra(p.Extra)
	}
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		return repo, fmt.Errorf("save repository: %w", err)
	}

	log := o.logger.With(slog.String("url", url), slog.String("commit", info.SHA))
	log.InfoContext(ctx, "analysis started")

	err = o.collect(ctx, repo, info, p.Path, log)
	return o.finish(ctx, repo, err, log)
}

func (o *Orchestrator) collect(ctx context.Context, repo document.Repository, info git.CommitInfo, root string, log *slog.Logger) error {
	commit := info.Document()
	if _, err := o.store.Insert(ctx, commit); err != nil {
		return fmt.Errorf("insert commit: %w", err)
	}
	if _, err := o.store.Insert(ctx, document.MustLink(repo, commit)); err != nil {
		return fmt.Errorf("link repository to commit: %w", err)
	}

	entries, err := o.adapter.Entries(ctx, root, info.SHA)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if o.onEntries != nil {
		o.onEntries(len(entries))
	}
	log.InfoContext(ctx, "processing files", slog.Int("files", len(entries)), slog.Int("workers", o.workers))

	processors := make([]FileProcessor, 0, o.workers)
	for i := range min(o.workers, max(len(entries), 1)) {
		proc, err := o.processors(i, root)
		if err != nil {
			return fmt.Errorf("create worker %d: %w", i, err)
		}
		processors = append(processors, proc)
	}

	return o.dispatch(ctx, commit, entries, processors, log)
}

// dispatch feeds entries to the pool and consumes results in completion
// order. Workers run on a context detached from ctx; when ctx ends they get
// the grace period before it is cancelled too.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	commit document.Commit,
	entries []git.Entry,
	processors []FileProcessor,
	log *slog.Logger,
) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	p := startPool(workCtx, commit, processors)
	defer p.stop()

	var (
		next      int
		inflight  int
		processed int
		runErr    error
		grace     *time.Timer
	)
	done := ctx.Done()
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()

	for {
		var jobs chan<- git.Entry
		if next < len(entries) && runErr == nil && ctx.Err() == nil {
			jobs = p.jobs
		}
		if jobs == nil && inflight == 0 {
			break
		}

		var entry git.Entry
		if jobs != nil {
			entry = entries[next]
		}

		select {
		case jobs <- entry:
			next++
			inflight++
		case out := <-p.results:
			inflight--
			if out.err != nil {
				if ctx.Err() != nil && isContextErr(out.err) {
					continue
				}
				if runErr == nil {
					runErr = out.err
					cancelWork()
				}
				continue
			}
			processed++
			o.report(out.result, log)
		case <-done:
			done = nil
			log.Warn("stopping analysis",
				slog.Int("processed", processed),
				slog.Int("in_flight", inflight),
				slog.Duration("grace_period", o.grace),
			)
			grace = time.AfterFunc(o.grace, cancelWork)
		}
	}

	if runErr != nil {
		return runErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) report(result FileResult, log *slog.Logger) {
	if result.Err != nil {
		log.Warn("file not processed",
			slog.String("path", result.Path),
			slog.String("error", document.ErrorText(result.Err)),
		)
	}
	fileDone(o.sink)
	if o.onFileDone != nil {
		o.onFileDone(result)
	}
}

// finish records the terminal status for err.
func (o *Orchestrator) finish(ctx context.Context, repo document.Repository, err error, log *slog.Logger) (document.Repository, error) {
	saveCtx := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		repo = repo.WithStatus(document.StatusCompleted)
	case ctx.Err() != nil && isContextErr(err):
		repo = repo.WithStatus(document.StatusCancelled)
		err = ctx.Err()
	default:
		repo = repo.WithStatus(document.StatusError).WithExtra(map[string]any{"error": err.Error()})
	}

	if saveErr := o.store.SaveRepository(saveCtx, repo); saveErr != nil {
		return repo, errors.Join(err, fmt.Errorf("save repository status: %w", saveErr))
	}

	switch repo.Status() {
	case document.StatusCompleted:
		log.InfoContext(saveCtx, "analysis completed")
	case document.StatusCancelled:
		log.WarnContext(saveCtx, "analysis cancelled")
	default:
		log.ErrorContext(saveCtx, "analysis failed", slog.String("error", err.Error()))
	}
	return repo, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
