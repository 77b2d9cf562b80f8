package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"taxosort/internal/config"
)

// pathOverrides are the command-line flags that replace configured paths and
// pipeline settings for a single invocation.
type pathOverrides struct {
	mode      string
	input     string
	ledger    string
	targets   string
	secondary string
	organize  bool
	action    string
}

func (o *pathOverrides) registerLedger(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.mode, "mode", "", "Pipeline mode: family, merged, cascade, or gated")
	cmd.Flags().StringVar(&o.ledger, "ledger", "", "Ledger CSV path")
}

func (o *pathOverrides) registerRun(cmd *cobra.Command) {
	o.registerLedger(cmd)
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "Directory of images to classify")
	cmd.Flags().StringVar(&o.targets, "targets", "", "Target label file")
	cmd.Flags().StringVar(&o.secondary, "secondary", "", "Secondary classification CSV (merged mode)")
	cmd.Flags().BoolVar(&o.organize, "organize", false, "Copy or move images into category folders")
	cmd.Flags().StringVar(&o.action, "action", "", "Organize action: copy or move")
}

// apply copies changed flags onto cfg and re-validates it. Relative paths
// given on the command line resolve against the working directory.
func (o *pathOverrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := false
	set := func(flag string, dst *string, value string, isPath bool) error {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			return nil
		}
		changed = true
		value = strings.TrimSpace(value)
		if isPath && value != "" && !strings.HasPrefix(value, "~") {
			abs, err := filepath.Abs(value)
			if err != nil {
				return fmt.Errorf("--%s: %w", flag, err)
			}
			value = abs
		}
		*dst = value
		return nil
	}
	steps := []error{
		set("mode", &cfg.Pipeline.Mode, o.mode, false),
		set("ledger", &cfg.Paths.LedgerFile, o.ledger, true),
		set("input", &cfg.Paths.InputDir, o.input, true),
		set("targets", &cfg.Paths.TargetLabelsFile, o.targets, true),
		set("secondary", &cfg.Paths.SecondarySource, o.secondary, true),
		set("action", &cfg.Pipeline.OrganizeAction, o.action, false),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	if f := cmd.Flags().Lookup("organize"); f != nil && f.Changed {
		cfg.Pipeline.Organize = o.organize
		changed = true
	}
	if !changed {
		return nil
	}
	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}
	return nil
}
