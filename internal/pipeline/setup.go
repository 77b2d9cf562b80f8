package pipeline

import (
	"context"
	"errors"
	"fmt"

	"taxosort/internal/classifier"
	"taxosort/internal/config"
	"taxosort/internal/discovery"
	"taxosort/internal/ledger"
	"taxosort/internal/logging"
	"taxosort/internal/organizer"
	"taxosort/internal/router"
	"taxosort/internal/runstore"
	"taxosort/internal/secondary"
	"taxosort/internal/services"
	"taxosort/internal/taxonomy"
)

// buildRouter loads the target labels and secondary source once per run.
func (r *Runner) buildRouter(ctx context.Context) (*router.Router, error) {
	cfg := r.cfg
	clf := r.deps.Classifier

	var (
		targets *taxonomy.TargetSet
		filter  *classifier.Filter
	)
	if cfg.NeedsTargets() {
		vocab, err := clf.Vocabulary(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch classifier vocabulary: %w", err)
		}
		result, err := taxonomy.Load(ctx, cfg.Paths.TargetLabelsFile, vocab, classifier.RankFamily, clf, r.deps.Logger)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load targets", cfg.Paths.TargetLabelsFile, err)
		}
		targets = result.Targets
		filter = result.Filter
	}

	var src secondary.Source
	if cfg.Pipeline.Mode == config.ModeMerged {
		src = secondary.Load(cfg.Paths.SecondarySource, r.deps.Logger)
	}

	opts := router.OptionsFromConfig(cfg)
	opts.Logger = r.deps.Logger
	rt, err := router.New(cfg.Pipeline.Mode, clf, targets, filter, src, opts)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "build router", "", err)
	}
	return rt, nil
}

// reconcile completes the directory projection of rows committed by earlier
// runs, such as a move cut short by a crash. It returns nil when organizing
// is disabled.
func (r *Runner) reconcile(ctx context.Context, led *ledger.Ledger, schema ledger.Schema) (*organizer.Organizer, error) {
	cfg := r.cfg
	if !cfg.Pipeline.Organize {
		return nil, nil
	}
	org, err := organizer.New(cfg.Paths.OrganizeDir, cfg.Pipeline.OrganizeAction, r.deps.Logger)
	if err != nil {
		return nil, err
	}
	if led.Len() == 0 {
		return org, nil
	}

	rows, err := ledger.ReadRows(led.Path(), schema)
	if err != nil {
		return nil, fmt.Errorf("read ledger for reconcile: %w", err)
	}
	resolve := organizer.KeyResolver(schema)
	if schema.KeyedByName() {
		index, err := r.nameIndex()
		if err != nil {
			return nil, err
		}
		resolve = organizer.NameResolver(schema, index)
	}

	stageCtx := services.WithStage(ctx, "reconcile")
	report, err := org.Reconcile(stageCtx, schema, rows, resolve)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(stageCtx, r.logger)
	logger.Info("organizer reconciled",
		logging.Int("rows", report.Rows),
		logging.Int("placed", report.Placed),
		logging.Int("present", report.Present),
		logging.Int("renamed", report.Renamed),
		logging.Int("missing", report.Missing),
		logging.Int("unresolved", report.Unresolved),
	)
	return org, nil
}

// nameIndex maps file names under the input directory to their paths.
func (r *Runner) nameIndex() (map[string]string, error) {
	all, err := discovery.Discover(r.cfg.Paths.InputDir, r.cfg.Pipeline.Extensions, nil, discovery.NameKey, r.discoveryOptions()...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "reconcile", "index input directory", err)
	}
	index := make(map[string]string, len(all.Items))
	for _, item := range all.Items {
		index[item.Key] = item.Path
	}
	return index, nil
}

func (r *Runner) beginHistory(ctx context.Context, ledgerPath string) string {
	r.lastRunID = ""
	store := r.deps.Runs
	if store == nil {
		return ""
	}
	if n, err := store.MarkAbandoned(ctx, ledgerPath); err != nil {
		r.warnHistory(err)
	} else if n > 0 {
		r.logger.Info("marked abandoned runs interrupted", logging.Int64("runs", n))
	}
	run, err := store.Begin(ctx, runstore.Run{
		Mode:       r.cfg.Pipeline.Mode,
		LedgerPath: ledgerPath,
		InputDir:   r.cfg.Paths.InputDir,
	})
	if err != nil {
		r.warnHistory(err)
		return ""
	}
	r.lastRunID = run.ID
	return run.ID
}

func (r *Runner) finishHistory(ctx context.Context, id string, status runstore.Status, counts runstore.Counts, runErr error) {
	if r.deps.Runs == nil || id == "" {
		return
	}
	if err := r.deps.Runs.Finish(context.WithoutCancel(ctx), id, status, counts, runErr); err != nil {
		r.warnHistory(err)
	}
}

func (r *Runner) warnHistory(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	logging.WarnWithContext(r.logger, "run history unavailable", "run_history_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check state_dir permissions"),
		logging.String(logging.FieldImpact, "this run is missing from 'taxosort runs'"),
	)
}

func (r *Runner) finishMetrics(status runstore.Status) {
	r.metrics.MarkRunFinished(string(status), r.now())
	path := r.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := r.metrics.WriteTextfile(path); err != nil {
		logging.WarnWithContext(r.logger, "metrics textfile not written", "metrics_write_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "node exporter keeps the previous values"),
		)
	}
}
