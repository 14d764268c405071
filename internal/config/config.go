// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultLogLevel             = "INFO"
	DefaultCloneSubdir          = "repos"
	DefaultGrammarSubdir        = "grammars"
	DefaultBatchSize            = 1000
	DefaultRetryMaxAttempts     = 8
	DefaultRetryInitialInterval = 100 * time.Millisecond
	DefaultRetryMaxInterval     = 6 * time.Second
	DefaultPollMaxInterval      = 5 * time.Second
	DefaultPollMaxElapsed       = 30 * time.Minute
	DefaultCancelGracePeriod    = 5 * time.Second
	DefaultTextCacheSize        = 4096
	DefaultReportingInterval    = 5 * time.Second
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// RetryConfig configures conflict retries in the batch writer.
type RetryConfig struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewRetryConfig creates a new RetryConfig with defaults.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		maxAttempts:     DefaultRetryMaxAttempts,
		initialInterval: DefaultRetryInitialInterval,
		maxInterval:     DefaultRetryMaxInterval,
	}
}

// MaxAttempts returns the attempt bound, the first try included.
func (r RetryConfig) MaxAttempts() int { return r.maxAttempts }

// InitialInterval returns the first backoff interval.
func (r RetryConfig) InitialInterval() time.Duration { return r.initialInterval }

// MaxInterval returns the backoff interval cap.
func (r RetryConfig) MaxInterval() time.Duration { return r.maxInterval }

// WithMaxAttempts returns a new config with the specified attempt bound.
func (r RetryConfig) WithMaxAttempts(n int) RetryConfig {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// WithInitialInterval returns a new config with the specified first interval.
func (r RetryConfig) WithInitialInterval(d time.Duration) RetryConfig {
	if d > 0 {
		r.initialInterval = d
	}
	return r
}

// WithMaxInterval returns a new config with the specified interval cap.
func (r RetryConfig) WithMaxInterval(d time.Duration) RetryConfig {
	if d > 0 {
		r.maxInterval = d
	}
	return r
}

// PollConfig configures polling of asynchronous write jobs.
type PollConfig struct {
	maxInterval time.Duration
	maxElapsed  time.Duration
}

// NewPollConfig creates a new PollConfig with defaults.
func NewPollConfig() PollConfig {
	return PollConfig{
		maxInterval: DefaultPollMaxInterval,
		maxElapsed:  DefaultPollMaxElapsed,
	}
}

// MaxInterval returns the polling interval cap.
func (p PollConfig) MaxInterval() time.Duration { return p.maxInterval }

// MaxElapsed returns how long a job is polled before giving up.
func (p PollConfig) MaxElapsed() time.Duration { return p.maxElapsed }

// WithMaxInterval returns a new config with the specified interval cap.
func (p PollConfig) WithMaxInterval(d time.Duration) PollConfig {
	if d > 0 {
		p.maxInterval = d
	}
	return p
}

// WithMaxElapsed returns a new config with the specified polling deadline.
func (p PollConfig) WithMaxElapsed(d time.Duration) PollConfig {
	if d > 0 {
		p.maxElapsed = d
	}
	return p
}

// ReportingConfig configures progress reporting.
type ReportingConfig struct {
	logTimeInterval time.Duration
	metricsAddr     string
}

// NewReportingConfig creates a new ReportingConfig with defaults.
func NewReportingConfig() ReportingConfig {
	return ReportingConfig{
		logTimeInterval: DefaultReportingInterval,
	}
}

// LogTimeInterval returns the time interval for logging progress.
func (r ReportingConfig) LogTimeInterval() time.Duration {
	return r.logTimeInterval
}

// MetricsAddr returns the listen address of the metrics endpoint.
// Empty means the endpoint is disabled.
func (r ReportingConfig) MetricsAddr() string {
	return r.metricsAddr
}

// WithLogTimeInterval returns a new config with the specified interval.
func (r ReportingConfig) WithLogTimeInterval(d time.Duration) ReportingConfig {
	r.logTimeInterval = d
	return r
}

// WithMetricsAddr returns a new config with the specified metrics address.
func (r ReportingConfig) WithMetricsAddr(addr string) ReportingConfig {
	r.metricsAddr = addr
	return r
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	dataDir           string
	dbURL             string
	cacheDir          string
	logLevel          string
	logFormat         LogFormat
	workerCount       int
	jobCount          int
	batchSize         int
	textCacheSize     int
	cancelGracePeriod time.Duration
	retry             RetryConfig
	poll              PollConfig
	reporting         ReportingConfig
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syntree"
	}
	return filepath.Join(home, ".syntree")
}

// DefaultCacheDir returns the default cache directory, honouring XDG_CACHE_HOME.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(DefaultDataDir(), "cache")
	}
	return filepath.Join(dir, "syntree")
}

// DefaultWorkerCount returns the default number of file workers per repository.
func DefaultWorkerCount() int {
	return runtime.NumCPU()
}

// DefaultJobCount returns the default number of repositories analyzed in parallel.
func DefaultJobCount() int {
	return max(1, runtime.NumCPU()/8)
}

// DefaultCloneDir returns the default clone directory for a given data directory.
func DefaultCloneDir(dataDir string) string {
	return filepath.Join(dataDir, DefaultCloneSubdir)
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		dataDir:           dataDir,
		dbURL:             defaultDBURL(dataDir),
		cacheDir:          DefaultCacheDir(),
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatPretty,
		workerCount:       DefaultWorkerCount(),
		jobCount:          DefaultJobCount(),
		batchSize:         DefaultBatchSize,
		textCacheSize:     DefaultTextCacheSize,
		cancelGracePeriod: DefaultCancelGracePeriod,
		retry:             NewRetryConfig(),
		poll:              NewPollConfig(),
		reporting:         NewReportingConfig(),
	}
}

func defaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, "syntree.db")
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// CacheDir returns the cache directory path.
func (c AppConfig) CacheDir() string { return c.cacheDir }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// WorkerCount returns the number of file workers per repository.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// JobCount returns the number of repositories analyzed in parallel.
func (c AppConfig) JobCount() int { return c.jobCount }

// BatchSize returns the number of documents buffered before a flush.
func (c AppConfig) BatchSize() int { return c.batchSize }

// TextCacheSize returns the capacity of each worker's text key cache.
func (c AppConfig) TextCacheSize() int { return c.textCacheSize }

// CancelGracePeriod returns how long in-flight files may finish after cancellation.
func (c AppConfig) CancelGracePeriod() time.Duration { return c.cancelGracePeriod }

// Retry returns the conflict retry config.
func (c AppConfig) Retry() RetryConfig { return c.retry }

// Poll returns the async job polling config.
func (c AppConfig) Poll() PollConfig { return c.poll }

// Reporting returns the reporting config.
func (c AppConfig) Reporting() ReportingConfig { return c.reporting }

// CloneDir returns the clone directory path.
func (c AppConfig) CloneDir() string {
	return DefaultCloneDir(c.dataDir)
}

// GrammarDir returns the grammar cache directory path.
func (c AppConfig) GrammarDir() string {
	return filepath.Join(c.cacheDir, DefaultGrammarSubdir)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// EnsureCloneDir creates the clone directory if it doesn't exist.
func (c AppConfig) EnsureCloneDir() error {
	return os.MkdirAll(c.CloneDir(), 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		// The default DB follows the data dir unless a URL was set explicitly.
		if c.dbURL == "" || c.dbURL == defaultDBURL(c.dataDir) {
			c.dbURL = defaultDBURL(dir)
		}
		c.dataDir = dir
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithCacheDir sets the cache directory.
func WithCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.cacheDir = dir }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithWorkerCount sets the number of file workers per repository.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithJobCount sets the number of repositories analyzed in parallel.
func WithJobCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.jobCount = n
		}
	}
}

// WithBatchSize sets the batch flush threshold.
func WithBatchSize(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithTextCacheSize sets the per-worker text cache capacity.
func WithTextCacheSize(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.textCacheSize = n
		}
	}
}

// WithCancelGracePeriod sets the cancellation grace period.
func WithCancelGracePeriod(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d >= 0 {
			c.cancelGracePeriod = d
		}
	}
}

// WithRetryConfig sets the conflict retry config.
func WithRetryConfig(r RetryConfig) AppConfigOption {
	return func(c *AppConfig) { c.retry = r }
}

// WithPollConfig sets the job polling config.
func WithPollConfig(p PollConfig) AppConfigOption {
	return func(c *AppConfig) { c.poll = p }
}

// WithReportingConfig sets the reporting config.
func WithReportingConfig(r ReportingConfig) AppConfigOption {
	return func(c *AppConfig) { c.reporting = r }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	return NewAppConfig().Apply(opts...)
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// The database password is masked.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("cache_dir", c.cacheDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.Int("workers", c.workerCount),
		slog.Int("jobs", c.jobCount),
		slog.Int("batch_size", c.batchSize),
		slog.Int("retry_max_attempts", c.retry.MaxAttempts()),
		slog.Duration("cancel_grace_period", c.cancelGracePeriod),
		slog.String("metrics_addr", c.reporting.MetricsAddr()),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	at := strings.LastIndex(c.dbURL, "@")
	scheme := strings.Index(c.dbURL, "://")
	if at < 0 || scheme < 0 {
		return c.dbURL
	}
	return c.dbURL[:scheme+3] + "***" + c.dbURL[at:]
}
