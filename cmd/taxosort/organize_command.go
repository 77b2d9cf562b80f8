package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"taxosort/internal/config"
	"taxosort/internal/discovery"
	"taxosort/internal/ledger"
	"taxosort/internal/organizer"
)

func newOrganizeCommand(ctx *commandContext) *cobra.Command {
	var overrides pathOverrides

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Rebuild the category folders from the ledger",
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
			schema, err := ledger.SchemaFor(cfg.Pipeline.Mode)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Paths.LedgerFile); errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no ledger at %s", cfg.Paths.LedgerFile)
			}

			// Hold the lock so a concurrent run cannot append while we project.
			unlock, err := ledger.Lock(cfg.Paths.LedgerFile)
			if err != nil {
				return err
			}
			defer unlock()
			rows, err := ledger.ReadRows(cfg.Paths.LedgerFile, schema)
			if err != nil {
				return fmt.Errorf("%w; run 'taxosort ledger verify' before organizing", err)
			}

			resolve := organizer.KeyResolver(schema)
			if schema.KeyedByName() {
				index, err := inputIndex(cfg)
				if err != nil {
					return err
				}
				resolve = organizer.NameResolver(schema, index)
			}

			org, err := organizer.New(cfg.Paths.OrganizeDir, cfg.Pipeline.OrganizeAction, logger)
			if err != nil {
				return err
			}
			report, err := org.Reconcile(cmd.Context(), schema, rows, resolve)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Organized %s into %s (%s)\n", cfg.Paths.LedgerFile, org.Root(), org.Action())
			fmt.Fprintln(out, tableSpec{
				headers: []string{"Outcome", "Images"},
				aligns:  []columnAlignment{alignLeft, alignRight},
				rows: [][]string{
					{"placed", humanize.Comma(int64(report.Placed))},
					{"already present", humanize.Comma(int64(report.Present))},
					{"renamed on conflict", humanize.Comma(int64(report.Renamed))},
					{"source missing", humanize.Comma(int64(report.Missing))},
					{"not found in input", humanize.Comma(int64(report.Unresolved))},
				},
				footer: []string{"Ledger rows", humanize.Comma(int64(report.Rows))},
			}.render())
			return nil
		},
	}
	overrides.registerLedger(cmd)
	cmd.Flags().StringVar(&overrides.input, "input", "", "Directory of images (needed to locate merged-mode rows)")
	cmd.Flags().StringVar(&overrides.action, "action", "", "Organize action: copy or move")
	return cmd
}

// inputIndex maps file names under the input directory to their paths, for
// ledgers keyed by name.
func inputIndex(cfg *config.Config) (map[string]string, error) {
	if strings.TrimSpace(cfg.Paths.InputDir) == "" {
		return nil, errors.New("merged ledgers are keyed by file name; set paths.input_dir or pass --input")
	}
	found, err := discovery.Discover(cfg.Paths.InputDir, cfg.Pipeline.Extensions, nil, discovery.NameKey,
		discovery.WithPrune(cfg.Paths.OrganizeDir))
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(found.Items))
	for _, item := range found.Items {
		index[item.Key] = item.Path
	}
	return index, nil
}
