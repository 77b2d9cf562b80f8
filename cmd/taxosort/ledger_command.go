package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"taxosort/internal/ledger"
	"taxosort/internal/progress"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the classification ledger",
	}
	ledgerCmd.AddCommand(newLedgerSummaryCommand(ctx))
	ledgerCmd.AddCommand(newLedgerVerifyCommand(ctx))
	return ledgerCmd
}

func newLedgerSummaryCommand(ctx *commandContext) *cobra.Command {
	var overrides pathOverrides
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show image counts per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}
			schema, err := ledger.SchemaFor(cfg.Pipeline.Mode)
			if err != nil {
				return err
			}
			rows, err := ledger.ReadRows(cfg.Paths.LedgerFile, schema)
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			for _, rec := range rows {
				counts[schema.Category(rec)]++
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ledger: %s (%s, %s rows)\n", cfg.Paths.LedgerFile, schema.Name, humanize.Comma(int64(len(rows))))
			fmt.Fprintln(out, progress.CategoryTable(counts))
			return nil
		},
	}
	overrides.registerLedger(cmd)
	return cmd
}

func newLedgerVerifyCommand(ctx *commandContext) *cobra.Command {
	var overrides pathOverrides
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the ledger for duplicate keys, malformed rows, and torn writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}
			schema, err := ledger.SchemaFor(cfg.Pipeline.Mode)
			if err != nil {
				return err
			}
			report, err := ledger.Verify(cfg.Paths.LedgerFile, schema)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Ledger "+report.Path, colorize) {
				fmt.Fprintln(out, line)
			}
			headerKind, headerMsg := statusOK, schema.Name+" columns"
			if !report.HeaderOK {
				headerKind, headerMsg = statusError, "does not match the "+schema.Name+" schema"
			}
			fmt.Fprintln(out, renderStatusLine("Header", headerKind, headerMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Rows", statusInfo, humanize.Comma(int64(report.Rows)), colorize))
			fmt.Fprintln(out, renderStatusLine("Unique keys", statusInfo, humanize.Comma(int64(report.Keys)), colorize))
			fmt.Fprintln(out, renderStatusLine("Duplicate keys", countKind(report.DuplicateKeys, statusWarn), strconv.Itoa(report.DuplicateKeys), colorize))
			fmt.Fprintln(out, renderStatusLine("Malformed rows", countKind(report.Malformed, statusError), strconv.Itoa(report.Malformed), colorize))
			fmt.Fprintln(out, renderStatusLine("Partial last row", boolKind(report.PartialTail), yesNo(report.PartialTail), colorize))
			if report.ParseError != "" {
				fmt.Fprintln(out, renderStatusLine("Parse error", statusError, report.ParseError, colorize))
			}

			if !report.Healthy() {
				return fmt.Errorf("ledger %s needs attention", report.Path)
			}
			fmt.Fprintln(out, "Ledger healthy")
			return nil
		},
	}
	overrides.registerLedger(cmd)
	return cmd
}

func countKind(n int, bad statusKind) statusKind {
	if n > 0 {
		return bad
	}
	return statusOK
}

func boolKind(bad bool) statusKind {
	if bad {
		return statusWarn
	}
	return statusOK
}
