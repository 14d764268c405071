package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
type EnvConfig struct {
	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.syntree
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/syntree.db
	DBURL string `envconfig:"DB_URL"`

	// CacheDir holds the per-language grammar cache.
	// Env: CACHE_DIR
	// Default: $XDG_CACHE_HOME/syntree
	CacheDir string `envconfig:"CACHE_DIR"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// WorkerCount is the number of file workers per repository.
	// Env: WORKER_COUNT (default: number of CPUs)
	WorkerCount int `envconfig:"WORKER_COUNT"`

	// JobCount is the number of repositories analyzed in parallel by batch runs.
	// Env: JOB_COUNT (default: number of CPUs / 8, at least 1)
	JobCount int `envconfig:"JOB_COUNT"`

	// BatchSize is the number of documents buffered before a flush.
	// Env: BATCH_SIZE (default: 1000)
	BatchSize int `envconfig:"BATCH_SIZE" default:"1000"`

	// TextCacheSize is the capacity of each worker's text key cache.
	// Env: TEXT_CACHE_SIZE (default: 4096)
	TextCacheSize int `envconfig:"TEXT_CACHE_SIZE" default:"4096"`

	// CancelGracePeriod is how long in-flight files may finish after cancellation, in seconds.
	// Env: CANCEL_GRACE_PERIOD (default: 5)
	CancelGracePeriod float64 `envconfig:"CANCEL_GRACE_PERIOD" default:"5"`

	// Retry configures write conflict retries.
	Retry RetryEnv `envconfig:"RETRY"`

	// Poll configures async write job polling.
	Poll PollEnv `envconfig:"POLL"`

	// Reporting configures progress reporting.
	Reporting ReportingEnv `envconfig:"REPORTING"`

	// MetricsAddr is the listen address of the prometheus endpoint.
	// Env: METRICS_ADDR (empty disables the endpoint)
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// RetryEnv holds environment configuration for conflict retries.
type RetryEnv struct {
	// MaxAttempts bounds the number of write attempts.
	// Env: RETRY_MAX_ATTEMPTS (default: 8)
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" default:"8"`

	// InitialInterval is the first backoff interval in seconds.
	// Env: RETRY_INITIAL_INTERVAL (default: 0.1)
	InitialInterval float64 `envconfig:"INITIAL_INTERVAL" default:"0.1"`

	// MaxInterval caps the backoff interval, in seconds.
	// Env: RETRY_MAX_INTERVAL (default: 6)
	MaxInterval float64 `envconfig:"MAX_INTERVAL" default:"6"`
}

// PollEnv holds environment configuration for job polling.
type PollEnv struct {
	// MaxInterval caps the polling interval, in seconds.
	// Env: POLL_MAX_INTERVAL (default: 5)
	MaxInterval float64 `envconfig:"MAX_INTERVAL" default:"5"`

	// MaxElapsed is how long a job is polled before giving up, in seconds.
	// Env: POLL_MAX_ELAPSED (default: 1800)
	MaxElapsed float64 `envconfig:"MAX_ELAPSED" default:"1800"`
}

// ReportingEnv holds environment configuration for reporting.
type ReportingEnv struct {
	// LogTimeInterval is the progress logging interval in seconds.
	// Env: REPORTING_LOG_TIME_INTERVAL (default: 5)
	LogTimeInterval float64 `envconfig:"LOG_TIME_INTERVAL" default:"5"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "SYNTREE" would require SYNTREE_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Normalize trims whitespace and canonicalises case on free-form values.
func (e EnvConfig) Normalize() EnvConfig {
	e.DataDir = strings.TrimSpace(e.DataDir)
	e.DBURL = strings.TrimSpace(e.DBURL)
	e.CacheDir = strings.TrimSpace(e.CacheDir)
	e.LogLevel = strings.ToUpper(strings.TrimSpace(e.LogLevel))
	e.LogFormat = strings.ToLower(strings.TrimSpace(e.LogFormat))
	e.MetricsAddr = strings.TrimSpace(e.MetricsAddr)
	return e
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithBatchSize(e.BatchSize),
		WithTextCacheSize(e.TextCacheSize),
		WithCancelGracePeriod(seconds(e.CancelGracePeriod)),
		WithRetryConfig(e.Retry.ToRetryConfig()),
		WithPollConfig(e.Poll.ToPollConfig()),
		WithReportingConfig(e.Reporting.ToReportingConfig().WithMetricsAddr(e.MetricsAddr)),
		WithWorkerCount(e.WorkerCount),
		WithJobCount(e.JobCount),
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.CacheDir != "" {
		opts = append(opts, WithCacheDir(e.CacheDir))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		opts = append(opts, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	return NewAppConfigWithOptions(opts...)
}

// ToRetryConfig converts RetryEnv to RetryConfig.
func (r RetryEnv) ToRetryConfig() RetryConfig {
	return NewRetryConfig().
		WithMaxAttempts(r.MaxAttempts).
		WithInitialInterval(seconds(r.InitialInterval)).
		WithMaxInterval(seconds(r.MaxInterval))
}

// ToPollConfig converts PollEnv to PollConfig.
func (p PollEnv) ToPollConfig() PollConfig {
	return NewPollConfig().
		WithMaxInterval(seconds(p.MaxInterval)).
		WithMaxElapsed(seconds(p.MaxElapsed))
}

// ToReportingConfig converts ReportingEnv to ReportingConfig.
func (r ReportingEnv) ToReportingConfig() ReportingConfig {
	return NewReportingConfig().
		WithLogTimeInterval(seconds(r.LogTimeInterval))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
