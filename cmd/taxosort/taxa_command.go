package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taxosort/internal/classifier"
	"taxosort/internal/taxonomy"
)

func newTaxaCommand(ctx *commandContext) *cobra.Command {
	taxaCmd := &cobra.Command{
		Use:   "taxa",
		Short: "Target label utilities",
	}
	taxaCmd.AddCommand(newTaxaValidateCommand(ctx))
	taxaCmd.AddCommand(newTaxaExtractCommand(ctx))
	return taxaCmd
}

func newTaxaValidateCommand(ctx *commandContext) *cobra.Command {
	var overrides pathOverrides
	var withFilter bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check target labels against the classifier vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.TargetLabelsFile) == "" {
				return errors.New("no target label file configured (set paths.target_labels_file or pass --targets)")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			client := newClassifierClient(cfg)
			vocab, err := client.Vocabulary(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch classifier vocabulary: %w", err)
			}
			var builder taxonomy.FilterBuilder
			if withFilter {
				builder = client
			}
			result, err := taxonomy.Load(cmd.Context(), cfg.Paths.TargetLabelsFile, vocab, classifier.RankFamily, builder, logger)
			if err != nil {
				return err
			}
			if err := taxonomy.Report(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if len(result.Targets.Valid) == 0 {
				return errors.New("no target label is known to the classifier")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.targets, "targets", "", "Target label file")
	cmd.Flags().BoolVar(&withFilter, "filter", false, "Also register an inclusion filter to confirm the service accepts it")
	return cmd
}

func newTaxaExtractCommand(ctx *commandContext) *cobra.Command {
	var column string
	var output string
	cmd := &cobra.Command{
		Use:         "extract <occurrence.txt>...",
		Short:       "Build a target label file from GBIF occurrence exports",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := taxonomy.Extract(args, column, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(output) == "" {
				for _, label := range labels {
					fmt.Fprintln(out, label)
				}
				return nil
			}
			if err := taxonomy.WriteTargetFile(output, labels); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %d labels to %s\n", len(labels), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", taxonomy.DefaultExtractColumn, "Occurrence column to collect")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write labels to this file instead of stdout")
	return cmd
}
