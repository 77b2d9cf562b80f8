package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxosort/internal/classifier"
	"taxosort/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var overrides pathOverrides
	var offline bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks for directories, label files, and the classifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}

			var checker preflight.HealthChecker
			if !offline {
				checker = newClassifierClient(cfg, classifier.WithRetryMaxAttempts(1))
			}
			results := preflight.RunAll(cmd.Context(), cfg, checker)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("taxosort "+cfg.Pipeline.Mode+" mode", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				fmt.Fprintln(out, renderStatusLine(result.Name, checkStatus(result), result.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	overrides.registerRun(cmd)
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the classifier reachability check")
	return cmd
}
