// Package syntree stores the concrete syntax trees of git repositories as a
// deduplicated, content-addressed graph.
//
// Every file of a commit is parsed with tree-sitter. Files, trees, nodes and
// node texts are keyed by their content, so identical files and subtrees are
// stored once across commits and repositories.
//
// Basic usage:
//
//	client, err := syntree.New(
//	    syntree.WithSQLite(".syntree/syntree.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	repo, err := client.Analyze(ctx, service.AnalyzeParams{
//	    URL:  "https://github.com/psf/requests",
//	    Path: "/src/requests",
//	})
package syntree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/helixml/syntree/application/service"
	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/infrastructure/batch"
	"github.com/helixml/syntree/infrastructure/git"
	"github.com/helixml/syntree/infrastructure/jsonl"
	"github.com/helixml/syntree/infrastructure/parsing"
	"github.com/helixml/syntree/infrastructure/persistence"
	"github.com/helixml/syntree/infrastructure/tracking"
	"github.com/helixml/syntree/internal/config"
	"github.com/helixml/syntree/internal/database"
)

// progressCapacity bounds the progress channel of one run. Messages beyond
// it are dropped rather than blocking workers.
const progressCapacity = 4096

// Client analyzes repositories into one document store.
type Client struct {
	cfg       config.AppConfig
	store     document.Store
	db        *database.Database
	documents *persistence.DocumentStore
	files     *jsonl.Store

	adapter   *git.GoGitAdapter
	cloner    *git.RepositoryCloner
	languages parsing.Languages
	parser    *parsing.Parser
	grammars  *parsing.GrammarCache

	metrics     *tracking.Metrics
	logReporter *tracking.Cooldown
	progress    io.Writer

	stopMetrics context.CancelFunc
	metricsDone chan struct{}

	closers []io.Closer
	logger  *slog.Logger
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a Client with the given options. The database backend is
// migrated on open.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	app := cfg.app

	if _, err := config.PrepareDataDir(app.DataDir()); err != nil {
		return nil, err
	}

	client := &Client{
		cfg:       app,
		languages: cfg.languages,
		parser:    parsing.NewParser(),
		grammars:  parsing.NewGrammarCache(app.GrammarDir()),
		adapter:   git.NewGoGitAdapter(logger),
		metrics:   tracking.NewMetrics(),
		progress:  cfg.progress,
		closers:   cfg.closers,
		logger:    logger,
	}
	client.cloner = git.NewRepositoryCloner(client.adapter, app.CloneDir(), logger)
	client.logReporter = tracking.NewCooldown(tracking.NewLoggingReporter(logger), app.Reporting().LogTimeInterval())

	switch cfg.storage {
	case storageJSONL:
		files, err := jsonl.NewStore(cfg.jsonlDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open jsonl store: %w", err)
		}
		client.files = files
		client.store = files
	default:
		dbURL := cfg.dbURL
		if dbURL == "" {
			dbURL = app.DBURL()
		}
		db, err := database.NewDatabase(context.Background(), dbURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := persistence.AutoMigrate(db); err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
		}
		client.db = &db
		client.documents = persistence.NewDocumentStore(db, logger)
		client.store = client.documents
	}

	if addr := app.Reporting().MetricsAddr(); addr != "" {
		client.serveMetrics(addr)
	}

	logger.Info("syntree client ready", slog.Int("collections", len(document.Registry().Collections())))
	return client, nil
}

func (c *Client) serveMetrics(addr string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopMetrics = cancel
	c.metricsDone = make(chan struct{})
	server := tracking.NewMetricsServer(addr, c.metrics, c.logger)
	go func() {
		defer close(c.metricsDone)
		if err := server.Serve(ctx); err != nil {
			c.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// Analyze stores the commit checked out at p.Path and every file in it.
// A progress bar is drawn when the client has a progress output.
func (c *Client) Analyze(ctx context.Context, p service.AnalyzeParams) (document.Repository, error) {
	if c.closed.Load() {
		return document.Repository{}, ErrClientClosed
	}
	return c.analyze(ctx, p, c.progress)
}

// Batch analyzes every repository in specs, cloning them under the data
// directory as needed.
func (c *Client) Batch(ctx context.Context, specs []service.RepoSpec, skipExisting bool) (service.BatchReport, error) {
	if c.closed.Load() {
		return service.BatchReport{}, ErrClientClosed
	}
	if err := c.cfg.EnsureCloneDir(); err != nil {
		return service.BatchReport{}, fmt.Errorf("create clone directory: %w", err)
	}
	analyzer := &batchRun{client: c}
	b := service.NewBatchAnalyzer(c.store, c.cloner, analyzer,
		service.WithJobs(c.cfg.JobCount()),
		service.WithSkipExisting(skipExisting),
		service.WithBatchLogger(c.logger),
	)
	return b.Run(ctx, specs)
}

// batchRun analyzes batch members without a progress bar; several run at once.
type batchRun struct {
	client *Client
}

func (r *batchRun) Analyze(ctx context.Context, p service.AnalyzeParams) (document.Repository, error) {
	return r.client.analyze(ctx, p, nil)
}

func (c *Client) analyze(ctx context.Context, p service.AnalyzeParams, bar io.Writer) (document.Repository, error) {
	ch := progress.NewChannel(progressCapacity)
	aggregator := tracking.NewAggregator(ch, uuid.NewString(), c.logger)
	aggregator.Subscribe(c.logReporter)
	aggregator.Subscribe(c.metrics)
	if bar != nil {
		aggregator.Subscribe(tracking.NewBarReporter(bar, "analyzing"))
	}

	aggregated := make(chan error, 1)
	go func() { aggregated <- aggregator.Run(context.WithoutCancel(ctx)) }()

	sink := progress.NewCarry(ch)
	orchestrator := service.NewOrchestrator(c.store, c.adapter, c.processors(sink),
		service.WithWorkers(c.cfg.WorkerCount()),
		service.WithGracePeriod(c.cfg.CancelGracePeriod()),
		service.WithProgress(sink),
		service.WithLogger(c.logger),
		service.WithOnEntries(func(total int) { aggregator.SetTotal(ctx, total) }),
	)
	repo, err := orchestrator.Analyze(ctx, p)

	// Workers have stopped once Analyze returns. The aggregator is still
	// reading, so held counts can be delivered before the channel closes.
	if flushErr := sink.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		c.logger.Warn("failed to deliver held progress", slog.String("error", flushErr.Error()))
	}
	close(ch)
	if aggErr := <-aggregated; aggErr != nil {
		c.logger.Warn("progress aggregation stopped", slog.String("error", aggErr.Error()))
	}
	return repo, err
}

func (c *Client) processors(sink progress.Sink) service.ProcessorFactory {
	var isConflict batch.ConflictFunc
	if c.documents != nil {
		isConflict = persistence.IsConflict
	}
	return service.FileWorkerFactory(c.store, isConflict,
		service.FileWorkerConfig{
			Languages:     c.languages,
			Parser:        c.parser,
			Versions:      c.grammars,
			TextCacheSize: c.cfg.TextCacheSize(),
			Sink:          sink,
			Logger:        c.logger,
		},
		batch.WithThreshold(c.cfg.BatchSize()),
		batch.WithRetry(c.cfg.Retry()),
		batch.WithPoll(c.cfg.Poll()),
	)
}

// Export writes every collection of the database to JSON lines files in dir.
func (c *Client) Export(ctx context.Context, dir string) (map[string]int, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.documents == nil {
		return nil, ErrNoDatabase
	}
	return jsonl.NewExporter(c.logger).Export(ctx, c.documents, dir)
}

// Import loads the JSON lines files in dir into the client's store.
func (c *Client) Import(ctx context.Context, dir string) (jsonl.ImportStats, error) {
	if c.closed.Load() {
		return jsonl.ImportStats{}, ErrClientClosed
	}
	return jsonl.NewImporter(c.logger, jsonl.WithChunkSize(c.cfg.BatchSize())).Import(ctx, dir, c.store)
}

// Store returns the document store.
func (c *Client) Store() document.Store {
	return c.store
}

// Metrics returns the prometheus counters fed by every run.
func (c *Client) Metrics() *tracking.Metrics {
	return c.metrics
}

// Languages returns the language registry.
func (c *Client) Languages() parsing.Languages {
	return c.languages
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Close flushes pending reports and releases the store.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopMetrics != nil {
		c.stopMetrics()
		<-c.metricsDone
	}
	if err := c.logReporter.Close(); err != nil {
		c.logger.Error("failed to flush progress log", slog.Any("error", err))
	}

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if c.files != nil {
		if err := c.files.Close(); err != nil {
			return fmt.Errorf("close jsonl store: %w", err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}

	c.logger.Info("syntree client closed")
	return nil
}
