package preflight

import (
	"context"
	"strings"

	"taxosort/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not block a run.
	Optional bool
}

// HealthChecker is the classifier capability preflight needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RunAll executes all applicable preflight checks for the given config. A nil
// checker skips the classifier check.
func RunAll(ctx context.Context, cfg *config.Config, checker HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if strings.TrimSpace(cfg.Paths.InputDir) != "" {
		results = append(results, CheckReadableDir("Input directory", cfg.Paths.InputDir))
	} else {
		results = append(results, Result{Name: "Input directory", Detail: "not configured (set paths.input_dir or pass --input)"})
	}
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckLedger("Ledger", cfg.Paths.LedgerFile, cfg.Pipeline.Mode))

	if cfg.NeedsTargets() {
		results = append(results, CheckReadableFile("Target labels", cfg.Paths.TargetLabelsFile))
	}
	if strings.TrimSpace(cfg.Paths.SecondarySource) != "" {
		check := CheckSecondary("Secondary source", cfg.Paths.SecondarySource)
		check.Optional = true
		results = append(results, check)
	}
	if cfg.Pipeline.Organize {
		results = append(results, CheckOrganizeDir("Organize directory", cfg.Paths.OrganizeDir))
	}
	if checker != nil {
		results = append(results, CheckClassifier(ctx, "Classifier", checker))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
