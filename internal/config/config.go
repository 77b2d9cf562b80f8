package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Pipeline modes.
const (
	ModeFamily  = "family"
	ModeMerged  = "merged"
	ModeCascade = "cascade"
	ModeGated   = "gated"
)

// Organizer actions.
const (
	ActionCopy = "copy"
	ActionMove = "move"
)

// Paths contains input, output, and state locations.
type Paths struct {
	InputDir         string `toml:"input_dir"`
	OutputDir        string `toml:"output_dir"`
	LedgerFile       string `toml:"ledger_file"`
	TargetLabelsFile string `toml:"target_labels_file"`
	SecondarySource  string `toml:"secondary_source"`
	OrganizeDir      string `toml:"organize_dir"`
	LogDir           string `toml:"log_dir"`
	StateDir         string `toml:"state_dir"`
}

// Pipeline controls which routing rules run and how results are projected.
type Pipeline struct {
	Mode           string   `toml:"mode"`
	Extensions     []string `toml:"extensions"`
	Organize       bool     `toml:"organize"`
	OrganizeAction string   `toml:"organize_action"`
	ProgressEvery  int      `toml:"progress_every"`
	// ApplyFilter sends the target inclusion filter with family predictions.
	// Off by default: a filtered classifier can only answer with target
	// families, so nothing would route to other_families.
	ApplyFilter bool `toml:"apply_filter"`
	// SamplePerDir caps the images classified from each directory; zero
	// classifies everything. SampleSeed fixes which images are picked.
	SamplePerDir int   `toml:"sample_per_dir"`
	SampleSeed   int64 `toml:"sample_seed"`
}

// Cascade contains the order-then-family routing thresholds.
type Cascade struct {
	// Threshold is the minimum order confidence; below it the image is
	// routed to UncertainBucket and the family rank is never queried.
	Threshold         float64  `toml:"threshold"`
	InterestingOrders []string `toml:"interesting_orders"`
	MergedBucket      string   `toml:"merged_bucket"`
	OtherBucket       string   `toml:"other_bucket"`
	UncertainBucket   string   `toml:"uncertain_bucket"`
}

// Gate contains the class-level pre-filter used by the gated mode.
type Gate struct {
	Class        string `toml:"class"`
	RejectBucket string `toml:"reject_bucket"`
}

// Classifier contains connection settings for the classification service.
type Classifier struct {
	BaseURL          string `toml:"base_url"`
	Token            string `toml:"token"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	RetryAttempts    int    `toml:"retry_attempts"`
	RetryBaseDelayMS int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int    `toml:"retry_max_delay_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for taxosort.
//
// Configuration sections by subsystem:
//   - Paths: input tree, ledger, label files, and state directories
//   - Pipeline: routing mode, extension allow-list, organizer projection
//   - Cascade: order threshold and interesting orders for the cascade mode
//   - Gate: class-level filter for the gated mode
//   - Classifier: classification service endpoint, timeout, and retry policy
//   - Logging: log format and level
//   - Metrics: Prometheus textfile output
type Config struct {
	Paths      Paths      `toml:"paths"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Cascade    Cascade    `toml:"cascade"`
	Gate       Gate       `toml:"gate"`
	Classifier Classifier `toml:"classifier"`
	Logging    Logging    `toml:"logging"`
	Metrics    Metrics    `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/taxosort/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates a config assembled in code, for example
// after command-line overrides were applied on top of a loaded file.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/taxosort/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("taxosort.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, log, and state directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.LogDir, c.Paths.StateDir, filepath.Dir(c.Paths.LedgerFile)}
	if c.Pipeline.Organize {
		dirs = append(dirs, c.Paths.OrganizeDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// NeedsTargets reports whether the configured mode routes by a target label set.
func (c *Config) NeedsTargets() bool {
	return c.Pipeline.Mode != ModeCascade
}

// RunsDBPath returns the location of the run history database.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "taxosort")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/state/taxosort"
	}
	return filepath.Join(home, ".local", "state", "taxosort")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
