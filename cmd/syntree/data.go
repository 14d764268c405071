package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helixml/syntree/domain/document"
)

func exportCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Dump the database to JSON lines files",
		Long: `Dump every collection of the database to {dir}/{collection}.vert.jsonl
and {dir}/{edge}.edge.jsonl, one sorted-key JSON object per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := openClient(*envFile)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			ctx, stop := signalContext()
			defer stop()

			counts, err := client.Export(ctx, args[0])
			if err != nil {
				return err
			}
			total := 0
			for _, n := range counts {
				total += n
			}
			logger.Slog().Info("export finished", slog.String("dir", args[0]), slog.Int("documents", total))
			return nil
		},
	}
}

func importCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load JSON lines files into the database",
		Long: `Load the JSON lines files in dir into the database. Vertex files are
loaded before edge files. Documents that already exist are skipped; a
document whose key exists with different content fails the import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := openClient(*envFile)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			ctx, stop := signalContext()
			defer stop()

			stats, err := client.Import(ctx, args[0])
			if err != nil {
				return err
			}
			for _, coll := range document.Registry().Collections() {
				if stats.Read[coll] == 0 {
					continue
				}
				logger.Slog().Info("imported collection",
					slog.String("collection", coll),
					slog.Int("read", stats.Read[coll]),
					slog.Int("deduplicated", stats.Deduplicated[coll]),
				)
			}
			return nil
		},
	}
}

func setupCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Register every collection in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening a client migrates the database.
			client, logger, err := openClient(*envFile)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			registry := document.Registry()
			logger.Slog().Info("collections registered",
				slog.Int("vertex", len(registry.Kinds())),
				slog.Int("edge", len(registry.EdgeCollections())),
			)
			return nil
		},
	}
}
