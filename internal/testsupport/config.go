package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"taxosort/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The input directory exists and is empty; the ledger lives under the output
// directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "input")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LedgerFile = filepath.Join(base, "output", "classifications.csv")
	cfgVal.Paths.OrganizeDir = filepath.Join(base, "output", "organized")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Classifier.BaseURL = "http://127.0.0.1:0"
	cfgVal.Classifier.RetryAttempts = 1

	if err := os.MkdirAll(cfgVal.Paths.InputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMode sets the pipeline mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Mode = mode
	}
}

// WithTargets writes labels to a target file and points the config at it.
func WithTargets(labels ...string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "targets.txt")
		var data []byte
		for _, label := range labels {
			data = append(data, label...)
			data = append(data, '\n')
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			b.t.Fatalf("write targets: %v", err)
		}
		b.cfg.Paths.TargetLabelsFile = path
	}
}

// WithOrganize enables the organizer with action.
func WithOrganize(action string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Organize = true
		b.cfg.Pipeline.OrganizeAction = action
	}
}

// WithSecondary writes a secondary table from rows of img_name, top1,
// top1_prob and points the config at it.
func WithSecondary(rows ...[3]string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "secondary.csv")
		data := []byte("img_name,top1,top1_prob\n")
		for _, row := range rows {
			data = append(data, row[0]+","+row[1]+","+row[2]+"\n"...)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			b.t.Fatalf("write secondary: %v", err)
		}
		b.cfg.Paths.SecondarySource = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.InputDir)
}
