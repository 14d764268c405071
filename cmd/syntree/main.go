// Package main is the entry point for the syntree CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixml/syntree/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "syntree",
		Short: "Store the syntax trees of git repositories as a graph",
		Long: `syntree parses every file of a git commit with tree-sitter and stores
files, trees, nodes and node texts as a deduplicated, content-addressed graph.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  DATA_DIR                     Data directory (default: ~/.syntree)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/syntree.db)
  CACHE_DIR                    Grammar cache directory (default: $XDG_CACHE_HOME/syntree)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  WORKER_COUNT                 File workers per repository (default: number of CPUs)
  JOB_COUNT                    Repositories analyzed at once by batch (default: CPUs/8)
  BATCH_SIZE                   Documents buffered before a flush (default: 1000)
  RETRY_MAX_ATTEMPTS           Write attempts on conflict (default: 8)
  CANCEL_GRACE_PERIOD          Seconds in-flight files may finish after Ctrl-C (default: 5)
  TEXT_CACHE_SIZE              Text keys remembered per worker (default: 4096)
  METRICS_ADDR                 Prometheus listen address (default: disabled)`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	cmd.AddCommand(analyzeCmd(&envFile))
	cmd.AddCommand(batchCmd(&envFile))
	cmd.AddCommand(fileCmd())
	cmd.AddCommand(nodeHashCmd())
	cmd.AddCommand(exportCmd(&envFile))
	cmd.AddCommand(importCmd(&envFile))
	cmd.AddCommand(setupCmd(&envFile))
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
