package syntree

import (
	"io"
	"log/slog"

	"github.com/helixml/syntree/infrastructure/parsing"
	"github.com/helixml/syntree/internal/config"
)

// storageType identifies the document backend.
type storageType int

const (
	storageUnset storageType = iota
	storageDatabase
	storageJSONL
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	app       config.AppConfig
	storage   storageType
	dbURL     string
	jsonlDir  string
	languages parsing.Languages
	logger    *slog.Logger
	progress  io.Writer
	closers   []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		app:       config.NewAppConfig(),
		languages: parsing.DefaultLanguages(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig sets the application config. Options applied after it override
// its values.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
	}
}

// WithDatabaseURL stores documents in the database at url
// (sqlite:///path or postgres://...).
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.storage = storageDatabase
		c.dbURL = url
	}
}

// WithSQLite stores documents in the SQLite file at path.
func WithSQLite(path string) Option {
	return WithDatabaseURL("sqlite:///" + path)
}

// WithPostgres stores documents in PostgreSQL.
func WithPostgres(dsn string) Option {
	return WithDatabaseURL(dsn)
}

// WithJSONL stores documents as JSON lines files in dir instead of a database.
func WithJSONL(dir string) Option {
	return func(c *clientConfig) {
		c.storage = storageJSONL
		c.jsonlDir = dir
	}
}

// WithLanguages replaces the language registry.
func WithLanguages(l parsing.Languages) Option {
	return func(c *clientConfig) {
		c.languages = l
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithWorkerCount sets the number of file workers per repository.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithWorkerCount(n))
	}
}

// WithJobCount sets how many repositories a batch analyzes at once.
func WithJobCount(n int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithJobCount(n))
	}
}

// WithDataDir sets the data directory holding clones and the default database.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDataDir(dir))
	}
}

// WithCacheDir sets the directory of the grammar cache.
func WithCacheDir(dir string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithCacheDir(dir))
	}
}

// WithProgressOutput draws a progress bar on w during single repository runs.
func WithProgressOutput(w io.Writer) Option {
	return func(c *clientConfig) {
		c.progress = w
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
