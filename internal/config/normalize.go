package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeCascade()
	c.normalizeGate()
	c.normalizeClassifier()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("TAXOSORT_INPUT_DIR"); ok && strings.TrimSpace(c.Paths.InputDir) == "" {
		c.Paths.InputDir = strings.TrimSpace(value)
	}
	if c.Paths.InputDir, err = expandPath(strings.TrimSpace(c.Paths.InputDir)); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LedgerFile, err = resolveUnder(c.Paths.OutputDir, c.Paths.LedgerFile, defaultLedgerName); err != nil {
		return fmt.Errorf("paths.ledger_file: %w", err)
	}
	if c.Paths.OrganizeDir, err = resolveUnder(c.Paths.OutputDir, c.Paths.OrganizeDir, defaultOrganizeName); err != nil {
		return fmt.Errorf("paths.organize_dir: %w", err)
	}
	if c.Paths.TargetLabelsFile, err = expandPath(strings.TrimSpace(c.Paths.TargetLabelsFile)); err != nil {
		return fmt.Errorf("paths.target_labels_file: %w", err)
	}
	if c.Paths.SecondarySource, err = expandPath(strings.TrimSpace(c.Paths.SecondarySource)); err != nil {
		return fmt.Errorf("paths.secondary_source: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

// resolveUnder expands value, treating bare relative names as children of base.
func resolveUnder(base, value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if !filepath.IsAbs(value) && !strings.HasPrefix(value, "~") && !strings.HasPrefix(value, ".") {
		value = filepath.Join(base, value)
	}
	return expandPath(value)
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Mode = strings.ToLower(strings.TrimSpace(c.Pipeline.Mode))
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = defaultMode
	}
	exts := make([]string, 0, len(c.Pipeline.Extensions))
	seen := make(map[string]struct{}, len(c.Pipeline.Extensions))
	for _, ext := range c.Pipeline.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = DefaultExtensions()
	}
	c.Pipeline.Extensions = exts
	c.Pipeline.OrganizeAction = strings.ToLower(strings.TrimSpace(c.Pipeline.OrganizeAction))
	if c.Pipeline.OrganizeAction == "" {
		c.Pipeline.OrganizeAction = defaultOrganizeAction
	}
	if c.Pipeline.ProgressEvery <= 0 {
		c.Pipeline.ProgressEvery = defaultProgressEvery
	}
}

func (c *Config) normalizeCascade() {
	orders := make([]string, 0, len(c.Cascade.InterestingOrders))
	for _, order := range c.Cascade.InterestingOrders {
		if trimmed := strings.TrimSpace(order); trimmed != "" {
			orders = append(orders, trimmed)
		}
	}
	c.Cascade.InterestingOrders = orders
	c.Cascade.MergedBucket = defaultIfBlank(c.Cascade.MergedBucket, defaultMergedBucket)
	c.Cascade.OtherBucket = defaultIfBlank(c.Cascade.OtherBucket, defaultOtherBucket)
	c.Cascade.UncertainBucket = defaultIfBlank(c.Cascade.UncertainBucket, defaultUncertainBucket)
}

func (c *Config) normalizeGate() {
	c.Gate.Class = defaultIfBlank(c.Gate.Class, defaultGateClass)
	c.Gate.RejectBucket = defaultIfBlank(c.Gate.RejectBucket, defaultGateRejectBucket)
}

func (c *Config) normalizeClassifier() {
	if value, ok := os.LookupEnv("TAXOSORT_CLASSIFIER_URL"); ok && strings.TrimSpace(value) != "" {
		c.Classifier.BaseURL = value
	}
	c.Classifier.BaseURL = strings.TrimRight(strings.TrimSpace(c.Classifier.BaseURL), "/")
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = defaultClassifierBaseURL
	}
	c.Classifier.Token = strings.TrimSpace(c.Classifier.Token)
	if c.Classifier.Token == "" {
		if value, ok := os.LookupEnv("TAXOSORT_CLASSIFIER_TOKEN"); ok {
			c.Classifier.Token = strings.TrimSpace(value)
		}
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = defaultClassifierTimeout
	}
	if c.Classifier.RetryAttempts <= 0 {
		c.Classifier.RetryAttempts = 1
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func defaultIfBlank(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
