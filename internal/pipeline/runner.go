package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taxosort/internal/classifier"
	"taxosort/internal/config"
	"taxosort/internal/discovery"
	"taxosort/internal/ledger"
	"taxosort/internal/logging"
	"taxosort/internal/metrics"
	"taxosort/internal/organizer"
	"taxosort/internal/progress"
	"taxosort/internal/router"
	"taxosort/internal/runstore"
	"taxosort/internal/services"
)

// Deps are the collaborators a Runner needs beyond configuration.
type Deps struct {
	Classifier classifier.Classifier
	// Runs records run history. Optional.
	Runs *runstore.Store
	// Metrics receives per-item observations. A private recorder is used
	// when nil.
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// Progress receives the progress bar; defaults to os.Stderr.
	Progress   io.Writer
	DisableBar bool
	Now        func() time.Time
}

// Runner executes classification passes for one configuration.
type Runner struct {
	cfg     *config.Config
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	lastRunID string
}

// New validates cfg for a run and returns a Runner.
func New(cfg *config.Config, deps Deps) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "configuration is required", nil)
	}
	if err := cfg.ValidateRun(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "invalid run configuration", err)
	}
	if deps.Classifier == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "classifier is required", nil)
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.New()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		cfg:     cfg,
		deps:    deps,
		logger:  logging.NewComponentLogger(deps.Logger, "pipeline"),
		metrics: rec,
		now:     now,
	}, nil
}

// LastRunID returns the run history ID of the most recent Run, or "" when
// history is disabled or could not be recorded.
func (r *Runner) LastRunID() string { return r.lastRunID }

// Run classifies every image under the input directory that the ledger does
// not already hold. It returns the run summary even when it fails part way.
func (r *Runner) Run(ctx context.Context) (summary progress.Summary, err error) {
	started := r.now()
	cfg := r.cfg
	if err := cfg.EnsureDirectories(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "pipeline", "prepare", "create directories", err)
	}
	schema, err := ledger.SchemaFor(cfg.Pipeline.Mode)
	if err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "pipeline", "prepare", "select ledger schema", err)
	}

	rt, err := r.buildRouter(ctx)
	if err != nil {
		return summary, err
	}

	led, err := ledger.Open(cfg.Paths.LedgerFile, schema, r.deps.Logger)
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := led.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if led.Resumed() {
		backup, berr := led.Backup()
		if berr != nil {
			return summary, berr
		}
		r.logger.Info("resuming from existing ledger",
			logging.String("ledger", led.Path()),
			logging.Int("rows", led.Len()),
			logging.String("backup", backup),
		)
	}
	r.metrics.SetLedgerRows(led.Len())

	runID := r.beginHistory(ctx, led.Path())
	if runID != "" {
		ctx = services.WithRunID(ctx, runID)
	}
	logger := logging.WithContext(ctx, r.logger)

	counts := runstore.Counts{AlreadyDone: led.Len()}
	defer func() {
		counts.Processed = summary.Processed
		status := services.FailureStatus(err)
		r.finishHistory(ctx, runID, status, counts, err)
		r.finishMetrics(status)
	}()

	org, err := r.reconcile(ctx, led, schema)
	if err != nil {
		return summary, err
	}

	found, err := r.discover(led)
	if err != nil {
		return summary, err
	}
	counts.Discovered = found.Total

	logger.Info("discovery complete",
		logging.String("input", cfg.Paths.InputDir),
		logging.Int("total", found.Total),
		logging.Int("already_processed", led.Len()),
		logging.Int("remaining", len(found.Items)),
		logging.Int("unsampled", found.Unsampled),
	)
	if len(found.Duplicates) > 0 {
		logging.WarnWithContext(logger, "images share a ledger key", "duplicate_image_names",
			logging.Int("skipped", len(found.Duplicates)),
			logging.String(logging.FieldErrorHint, "rename images so file names are unique across the input tree"),
			logging.String(logging.FieldImpact, "only the first image per name is classified"),
		)
	}

	run := progress.NewRun(len(found.Items), led.Len(), progress.Options{
		Writer:     r.deps.Progress,
		DisableBar: r.deps.DisableBar,
		LogEvery:   cfg.Pipeline.ProgressEvery,
		Logger:     r.deps.Logger,
		Now:        r.now,
		Started:    started,
	})
	defer func() {
		run.Finish()
		summary = run.Summary()
	}()

	r.metrics.SetRemaining(len(found.Items))
	for i, item := range found.Items {
		if err := ctx.Err(); err != nil {
			logger.Info("run interrupted",
				logging.Int("processed", i),
				logging.Int("remaining", len(found.Items)-i),
			)
			return summary, err
		}
		if err := r.processItem(ctx, rt, led, schema, org, run, item); err != nil {
			return summary, err
		}
		r.metrics.SetRemaining(len(found.Items) - i - 1)
	}
	return summary, nil
}

func (r *Runner) processItem(ctx context.Context, rt *router.Router, led *ledger.Ledger, schema ledger.Schema, org *organizer.Organizer, run *progress.Run, item discovery.Item) error {
	itemCtx := services.WithRequestID(services.WithItem(ctx, item.Key), uuid.NewString())
	logger := logging.WithContext(itemCtx, r.logger)

	run.Begin(item)
	decision, err := rt.Classify(itemCtx, item)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(logger, "classification failed", "classification_failed",
				logging.Error(err),
				logging.String("path", item.Path),
				logging.String(logging.FieldErrorHint, "check the classifier service; rerun to resume from the ledger"),
			)
		}
		return err
	}
	if err := led.Append(decision.Row(schema)); err != nil {
		return fmt.Errorf("record %s: %w", item.Key, err)
	}
	r.metrics.SetLedgerRows(led.Len())

	if org != nil {
		if _, err := org.Place(services.WithStage(itemCtx, "organize"), decision); err != nil {
			logging.ErrorWithContext(logger, "organize failed", "organize_failed",
				logging.Error(err),
				logging.String("path", item.Path),
				logging.String(logging.FieldErrorHint, "fix the destination and run 'taxosort organize' to rebuild"),
			)
			return err
		}
	}

	elapsed := run.Done(item, decision.Category)
	r.metrics.ObserveItem(decision.Category, elapsed)
	return nil
}

func (r *Runner) discover(led *ledger.Ledger) (*discovery.Result, error) {
	cfg := r.cfg
	keyFn := discovery.PathKey
	if led.Schema().KeyedByName() {
		keyFn = discovery.NameKey
	}
	opts := r.discoveryOptions()
	if cfg.Pipeline.SamplePerDir > 0 {
		opts = append(opts, discovery.WithSample(cfg.Pipeline.SamplePerDir, cfg.Pipeline.SampleSeed))
	}
	found, err := discovery.Discover(cfg.Paths.InputDir, cfg.Pipeline.Extensions, led.Keys(), keyFn, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "discover", "walk input directory", err)
	}
	return found, nil
}

func (r *Runner) discoveryOptions() []discovery.Option {
	opts := []discovery.Option{discovery.WithLogger(r.deps.Logger)}
	if r.cfg.Pipeline.Organize {
		opts = append(opts, discovery.WithPrune(r.cfg.Paths.OrganizeDir))
	}
	return opts
}
