package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taxosort/internal/classifier"
	"taxosort/internal/logging"
	"taxosort/internal/metrics"
	"taxosort/internal/pipeline"
	"taxosort/internal/progress"
	"taxosort/internal/runstore"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var overrides pathOverrides
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify new images and append them to the ledger",
		Long: `Classify every image under the input directory that the ledger does not
already hold. Each result is flushed to the ledger before the next image, so
an interrupted run resumes where it stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rec := metrics.New()
			client := newClassifierClient(cfg, classifier.WithObserver(rec.ClassifierObserver()))

			store, err := runstore.Open(cfg.RunsDBPath())
			if err != nil {
				logging.WarnWithContext(logger, "run history unavailable", "run_history_open_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "this run is not recorded in 'taxosort runs'"),
				)
				store = nil
			} else {
				defer store.Close()
			}

			runner, err := pipeline.New(cfg, pipeline.Deps{
				Classifier: client,
				Runs:       store,
				Metrics:    rec,
				Logger:     logger,
				Progress:   cmd.ErrOrStderr(),
				DisableBar: noProgress,
			})
			if err != nil {
				return err
			}

			summary, runErr := runner.Run(runCtx)
			out := cmd.OutOrStdout()
			if err := progress.Render(out, summary); err != nil {
				return err
			}
			if errors.Is(runErr, context.Canceled) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted. Rerun to resume from %s\n", cfg.Paths.LedgerFile)
			}
			return runErr
		},
	}

	overrides.registerRun(cmd)
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Log progress lines instead of drawing a progress bar")
	return cmd
}
