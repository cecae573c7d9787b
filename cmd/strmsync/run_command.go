package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"strmsync/internal/config"
	"strmsync/internal/logging"
	"strmsync/internal/pipeline"
	"strmsync/internal/progress"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync the playlist into the output directory once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			interactive := isTerminal(out) && cfg.Logging.Verbosity != config.VerbosityQuiet

			logger, err := newRunLogger(cfg, interactive)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			sinks := []progress.Sink{progress.NewLogSink(logger, cfg.Logging.Verbosity)}
			if interactive {
				sinks = append(sinks, progress.NewConsoleSink(out))
			}

			env, err := pipeline.NewEnv(cmd.Context(), cfg, logger, pipeline.EnvOptions{
				Sink: progress.NewMulti(sinks...),
			})
			if err != nil {
				return err
			}
			defer env.Close()

			runner, err := pipeline.NewRunner(env)
			if err != nil {
				return err
			}
			stats, runErr := runner.Run(cmd.Context(), pipeline.Options{DryRun: dryRun, ForceRegenerate: force})
			if runErr != nil {
				return runErr
			}
			// The console sink already rendered the table on a terminal.
			writeRunSummary(out, stats, !interactive)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute everything but write and delete nothing")
	cmd.Flags().BoolVar(&force, "force-regenerate", false, "Ignore cached decisions and rewrite every file")
	return cmd
}

// newRunLogger keeps the terminal free for progress bars in interactive
// runs; records then go to the log file only.
func newRunLogger(cfg *config.Config, interactive bool) (*slog.Logger, error) {
	if !interactive || strings.TrimSpace(cfg.Paths.Log) == "" {
		return logging.NewFromConfig(cfg)
	}
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{cfg.Paths.Log},
		ErrorOutputPaths: []string{cfg.Paths.Log},
	})
}

func writeRunSummary(out io.Writer, stats progress.RunStats, withTable bool) {
	title := "Sync complete"
	if stats.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(out, "%s in %s\n", title, stats.Duration.Round(time.Millisecond))
	if withTable {
		fmt.Fprintln(out, progress.SummaryTable(stats))
	}
}
