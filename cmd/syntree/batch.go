package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/syntree"
	"github.com/helixml/syntree/application/service"
	"github.com/helixml/syntree/internal/log"
)

func batchCmd(envFile *string) *cobra.Command {
	var (
		jobs         int
		workers      int
		skipExisting bool
	)

	cmd := &cobra.Command{
		Use:   "batch <list>",
		Short: "Analyze every repository in a YAML or JSON list",
		Long: `Analyze every repository in a YAML or JSON list of {url, commit} entries.

Repositories are cloned under {data_dir}/repos/{host}/{path} when missing.
A repository that was already analyzed stops the batch unless
--skip-existing is given. Other per-repository failures are reported
together once the batch ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			specs, err := service.ParseRepoList(f)
			_ = f.Close()
			if err != nil {
				return err
			}

			var extra []syntree.Option
			if jobs > 0 {
				extra = append(extra, syntree.WithJobCount(jobs))
			}
			if workers > 0 {
				extra = append(extra, syntree.WithWorkerCount(workers))
			}
			client, logger, err := openClient(*envFile, extra...)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			ctx, stop := signalContext()
			defer stop()

			report, err := client.Batch(ctx, specs, skipExisting)
			logger.InfoContext(log.WithBatchID(ctx, report.ID), "batch report",
				slog.Int("analyzed", len(report.Analyzed)),
				slog.Int("skipped", len(report.Skipped)),
			)
			if err != nil {
				return fmt.Errorf("batch %s: %w", report.ID, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&jobs, "jobs", 0, "Repositories analyzed at once (default: JOB_COUNT)")
	cmd.Flags().IntVar(&workers, "workers", 0, "File workers per repository (default: WORKER_COUNT)")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip repositories that were already analyzed")

	return cmd
}
