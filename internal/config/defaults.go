package config

import "time"

const (
	defaultOutputDir           = "~/taxosort"
	defaultLedgerName          = "classifications.csv"
	defaultOrganizeName        = "organized"
	defaultLogDir              = "~/.local/share/taxosort/logs"
	defaultMode                = ModeFamily
	defaultOrganizeAction      = ActionCopy
	defaultProgressEvery       = 100
	defaultSampleSeed          = 1
	defaultCascadeThreshold    = 0.3
	defaultMergedBucket        = "HyCoDiLe"
	defaultOtherBucket         = "Other"
	defaultUncertainBucket     = "uncertain_0.3"
	defaultGateClass           = "Insecta"
	defaultGateRejectBucket    = "non_insect_images"
	defaultClassifierBaseURL   = "http://127.0.0.1:8089"
	defaultClassifierTimeout   = 60
	defaultClassifierAttempts  = 4
	defaultClassifierBaseDelay = 500
	defaultClassifierMaxDelay  = 10000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// DefaultExtensions lists the image extensions picked up by discovery.
func DefaultExtensions() []string {
	return []string{".jpg", ".jpeg", ".png"}
}

// DefaultInterestingOrders lists the orders routed to family-level buckets in
// the cascade mode.
func DefaultInterestingOrders() []string {
	return []string{"Hymenoptera", "Diptera", "Lepidoptera", "Coleoptera"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir(),
		},
		Pipeline: Pipeline{
			Mode:           defaultMode,
			Extensions:     DefaultExtensions(),
			OrganizeAction: defaultOrganizeAction,
			ProgressEvery:  defaultProgressEvery,
			SampleSeed:     defaultSampleSeed,
		},
		Cascade: Cascade{
			Threshold:         defaultCascadeThreshold,
			InterestingOrders: DefaultInterestingOrders(),
			MergedBucket:      defaultMergedBucket,
			OtherBucket:       defaultOtherBucket,
			UncertainBucket:   defaultUncertainBucket,
		},
		Gate: Gate{
			Class:        defaultGateClass,
			RejectBucket: defaultGateRejectBucket,
		},
		Classifier: Classifier{
			BaseURL:          defaultClassifierBaseURL,
			TimeoutSeconds:   defaultClassifierTimeout,
			RetryAttempts:    defaultClassifierAttempts,
			RetryBaseDelayMS: defaultClassifierBaseDelay,
			RetryMaxDelayMS:  defaultClassifierMaxDelay,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// Timeout returns the per-request classifier timeout.
func (c Classifier) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first retry backoff delay.
func (c Classifier) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff ceiling.
func (c Classifier) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}
