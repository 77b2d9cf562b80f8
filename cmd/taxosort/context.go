package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"taxosort/internal/classifier"
	"taxosort/internal/config"
	"taxosort/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// ensureLogger builds the logger from the loaded config. Call it after any
// command-line overrides that touch logging have been applied.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func newClassifierClient(cfg *config.Config, opts ...classifier.Option) *classifier.Client {
	base := []classifier.Option{
		classifier.WithRetryMaxAttempts(cfg.Classifier.RetryAttempts),
		classifier.WithRetryBackoff(cfg.Classifier.RetryBaseDelay(), cfg.Classifier.RetryMaxDelay()),
	}
	return classifier.NewClient(classifier.Config{
		BaseURL: cfg.Classifier.BaseURL,
		Token:   cfg.Classifier.Token,
		Timeout: cfg.Classifier.Timeout(),
	}, append(base, opts...)...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
