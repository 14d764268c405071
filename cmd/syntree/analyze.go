package main

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helixml/syntree"
	"github.com/helixml/syntree/application/service"
	"github.com/helixml/syntree/internal/log"
)

func analyzeCmd(envFile *string) *cobra.Command {
	var (
		url      string
		revision string
		workers  int
		jsonlDir string
	)

	cmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyze the repository checked out at path",
		Long: `Analyze one commit of the git repository checked out at path.

The repository is stored under --url, or under the absolute path when no
URL is given. Ctrl-C stops dispatching files; files in flight get the
cancellation grace period to finish and the repository is marked cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []syntree.Option
			if workers > 0 {
				extra = append(extra, syntree.WithWorkerCount(workers))
			}
			if jsonlDir != "" {
				extra = append(extra, syntree.WithJSONL(jsonlDir))
			}
			client, logger, err := openClient(*envFile, extra...)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			ctx, stop := signalContext()
			defer stop()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if url != "" {
				ctx = log.WithRepository(ctx, url)
			} else {
				ctx = log.WithRepository(ctx, path)
			}

			repo, err := client.Analyze(ctx, service.AnalyzeParams{URL: url, Path: path, Commit: revision})
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "analysis finished",
				slog.String("commit", repo.Commit()),
				slog.String("status", string(repo.Status())),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Repository URL to record (default: absolute path)")
	cmd.Flags().StringVar(&revision, "commit", "", "Commit, branch or tag to analyze (default: HEAD)")
	cmd.Flags().IntVar(&workers, "workers", 0, "File workers (default: WORKER_COUNT)")
	cmd.Flags().StringVar(&jsonlDir, "jsonl-dir", "", "Write JSON lines files to this directory instead of the database")

	return cmd
}
