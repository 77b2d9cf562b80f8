package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCascade(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Mode {
	case ModeFamily, ModeMerged, ModeCascade, ModeGated:
	default:
		return fmt.Errorf("pipeline.mode must be one of family, merged, cascade, gated (got %q)", c.Pipeline.Mode)
	}
	switch c.Pipeline.OrganizeAction {
	case ActionCopy, ActionMove:
	default:
		return fmt.Errorf("pipeline.organize_action must be copy or move (got %q)", c.Pipeline.OrganizeAction)
	}
	if len(c.Pipeline.Extensions) == 0 {
		return errors.New("pipeline.extensions must include at least one extension")
	}
	if c.Pipeline.SamplePerDir < 0 {
		return fmt.Errorf("pipeline.sample_per_dir must be zero or positive (got %d)", c.Pipeline.SamplePerDir)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LedgerFile) == "" {
		return errors.New("paths.ledger_file must be set")
	}
	if c.Pipeline.Organize && c.Paths.InputDir != "" && isWithin(c.Paths.InputDir, c.Paths.OrganizeDir) && c.Pipeline.OrganizeAction == ActionMove {
		return errors.New("paths.organize_dir must not be inside paths.input_dir when pipeline.organize_action is move")
	}
	return nil
}

func (c *Config) validateCascade() error {
	if c.Cascade.Threshold < 0 || c.Cascade.Threshold > 1 {
		return errors.New("cascade.threshold must be between 0 and 1")
	}
	if c.Pipeline.Mode == ModeCascade && len(c.Cascade.InterestingOrders) == 0 {
		return errors.New("cascade.interesting_orders must include at least one order when pipeline.mode is cascade")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if strings.TrimSpace(c.Classifier.BaseURL) == "" {
		return errors.New("classifier.base_url must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"classifier.timeout_seconds": c.Classifier.TimeoutSeconds,
		"classifier.retry_attempts":  c.Classifier.RetryAttempts,
	}); err != nil {
		return err
	}
	if c.Classifier.RetryBaseDelayMS < 0 {
		return errors.New("classifier.retry_base_delay_ms must be >= 0")
	}
	if c.Classifier.RetryMaxDelayMS < 0 {
		return errors.New("classifier.retry_max_delay_ms must be >= 0")
	}
	return nil
}

// ValidateRun checks the settings only a classification run needs.
func (c *Config) ValidateRun() error {
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		return errors.New("paths.input_dir must be set (or pass --input)")
	}
	if c.NeedsTargets() && strings.TrimSpace(c.Paths.TargetLabelsFile) == "" {
		return fmt.Errorf("paths.target_labels_file must be set when pipeline.mode is %s", c.Pipeline.Mode)
	}
	return nil
}

func isWithin(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
