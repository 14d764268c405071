package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/helixml/syntree"
	"github.com/helixml/syntree/internal/config"
	"github.com/helixml/syntree/internal/log"
)

// clientOptions returns the syntree.Option slice derived from AppConfig.
// Callers append command specific options before passing the full slice to
// syntree.New.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) []syntree.Option {
	opts := []syntree.Option{
		syntree.WithConfig(cfg),
		syntree.WithDatabaseURL(cfg.DBURL()),
		syntree.WithLogger(logger),
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		opts = append(opts, syntree.WithProgressOutput(os.Stderr))
	}
	return opts
}

// openClient loads configuration, installs the logger and creates a client.
func openClient(envFile string, extra ...syntree.Option) (*syntree.Client, *log.Logger, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg)
	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	logger.Slog().LogAttrs(context.Background(), slog.LevelDebug, "starting syntree", attrs...)

	client, err := syntree.New(append(clientOptions(cfg, logger.Slog()), extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("create syntree client: %w", err)
	}
	return client, logger, nil
}

// closeClient closes client, logging instead of failing the command.
func closeClient(client *syntree.Client, logger *log.Logger) {
	if err := client.Close(); err != nil {
		logger.Slog().Error("failed to close syntree client", slog.Any("error", err))
	}
}
