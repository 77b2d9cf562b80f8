package router

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"taxosort/internal/classifier"
	"taxosort/internal/config"
	"taxosort/internal/discovery"
	"taxosort/internal/logging"
	"taxosort/internal/secondary"
	"taxosort/internal/taxonomy"
)

// Family-rule categories.
const (
	CategoryOtherFamilies = "other_families"
	CategoryUncertain     = "uncertain"
)

// Options holds the bucket names and thresholds of the cascade and gated modes.
type Options struct {
	Threshold         float64
	InterestingOrders []string
	MergedBucket      string
	OtherBucket       string
	UncertainBucket   string
	GateClass         string
	RejectBucket      string
	// ApplyFilter sends the inclusion filter with family predictions.
	ApplyFilter bool
	Logger      *slog.Logger
}

// OptionsFromConfig copies routing settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Threshold:         cfg.Cascade.Threshold,
		InterestingOrders: cfg.Cascade.InterestingOrders,
		MergedBucket:      cfg.Cascade.MergedBucket,
		OtherBucket:       cfg.Cascade.OtherBucket,
		UncertainBucket:   cfg.Cascade.UncertainBucket,
		GateClass:         cfg.Gate.Class,
		RejectBucket:      cfg.Gate.RejectBucket,
		ApplyFilter:       cfg.Pipeline.ApplyFilter,
	}
}

// Router classifies images one at a time.
type Router struct {
	mode      string
	clf       classifier.Classifier
	targets   *taxonomy.TargetSet
	filter    *classifier.Filter
	secondary secondary.Source
	opts      Options
	orders    map[string]struct{}
	logger    *slog.Logger
}

// New builds a router for mode. targets and filter may be nil; with no target
// set every predicted family routes to other_families. The filter is only
// sent to the classifier when opts.ApplyFilter is set.
func New(mode string, clf classifier.Classifier, targets *taxonomy.TargetSet, filter *classifier.Filter, src secondary.Source, opts Options) (*Router, error) {
	switch mode {
	case config.ModeFamily, config.ModeMerged, config.ModeCascade, config.ModeGated:
	default:
		return nil, fmt.Errorf("router: unknown mode %q", mode)
	}
	if clf == nil {
		return nil, fmt.Errorf("router: classifier is required")
	}
	if filter != nil && filter.Rank != classifier.RankFamily {
		return nil, fmt.Errorf("router: inclusion filter must target %s, got %s", classifier.RankFamily, filter.Rank)
	}
	orders := make(map[string]struct{}, len(opts.InterestingOrders))
	for _, order := range opts.InterestingOrders {
		orders[taxonomy.Normalize(order)] = struct{}{}
	}
	return &Router{
		mode:      mode,
		clf:       clf,
		targets:   targets,
		filter:    filter,
		secondary: src,
		opts:      opts,
		orders:    orders,
		logger:    logging.NewComponentLogger(opts.Logger, "router"),
	}, nil
}

// Mode returns the routing mode.
func (r *Router) Mode() string { return r.mode }

// Classify queries the classifier for item and applies the mode's rules.
// Classifier errors are returned unchanged after wrapping; the caller decides
// whether the run can continue.
func (r *Router) Classify(ctx context.Context, item discovery.Item) (Decision, error) {
	decision := Decision{Key: item.Key, Path: item.Path}
	var (
		reason string
		err    error
	)
	switch r.mode {
	case config.ModeCascade:
		reason, err = r.cascade(ctx, item, &decision)
	case config.ModeGated:
		reason, err = r.gated(ctx, item, &decision)
	default:
		reason, err = r.family(ctx, item, &decision)
	}
	if err != nil {
		return Decision{}, err
	}
	if r.mode == config.ModeMerged {
		decision.Secondary = r.secondary.Lookup(item.Path)
	}

	logger := logging.WithContext(ctx, r.logger)
	attrs := logging.DecisionAttrs("routing", decision.Category, reason)
	attrs = append(attrs, logging.String(logging.FieldCategory, decision.Category))
	logger.Debug("routing decision", logging.Args(attrs...)...)
	return decision, nil
}

func (r *Router) query(ctx context.Context, item discovery.Item, rank classifier.Rank) (RankResult, []classifier.Prediction, error) {
	var filter *classifier.Filter
	if rank == classifier.RankFamily && r.opts.ApplyFilter {
		filter = r.filter
	}
	preds, err := r.clf.Predict(ctx, item.Path, rank, filter)
	if err != nil {
		return RankResult{}, nil, fmt.Errorf("classify %s at %s: %w", item.Path, rank, err)
	}
	res := RankResult{Rank: rank}
	if best, ok := classifier.Best(preds); ok {
		res.Label = taxonomy.Normalize(best.Label)
		res.Score = best.Score
	}
	return res, preds, nil
}

// familyCategory applies the target-set rule to a family result.
func (r *Router) familyCategory(res RankResult) (string, string) {
	switch {
	case res.Label == "":
		return CategoryUncertain, "no family prediction"
	case r.targets.Contains(res.Label):
		return res.Label, "family in target set"
	default:
		return CategoryOtherFamilies, "family outside target set"
	}
}

func (r *Router) family(ctx context.Context, item discovery.Item, d *Decision) (string, error) {
	fam, _, err := r.query(ctx, item, classifier.RankFamily)
	if err != nil {
		return "", err
	}
	category, reason := r.familyCategory(fam)
	fam.Category = category
	d.Results = append(d.Results, fam)
	d.Category = category
	return reason, nil
}

func (r *Router) cascade(ctx context.Context, item discovery.Item, d *Decision) (string, error) {
	order, _, err := r.query(ctx, item, classifier.RankOrder)
	if err != nil {
		return "", err
	}
	if order.Label == "" || order.Score < r.opts.Threshold {
		order.Category = r.opts.UncertainBucket
		d.Results = append(d.Results, order)
		d.Category = r.opts.UncertainBucket
		if order.Label == "" {
			return "no order prediction", nil
		}
		return fmt.Sprintf("order score below %s", FormatScore(r.opts.Threshold)), nil
	}
	if _, ok := r.orders[order.Label]; !ok {
		order.Category = path.Join(r.opts.OtherBucket, order.Label)
		d.Results = append(d.Results, order)
		d.Category = order.Category
		return "order outside interesting set", nil
	}

	order.Category = r.opts.MergedBucket
	d.Results = append(d.Results, order)
	fam, _, err := r.query(ctx, item, classifier.RankFamily)
	if err != nil {
		return "", err
	}
	leaf := fam.Label
	if leaf == "" {
		leaf = CategoryUncertain
	}
	fam.Category = path.Join(r.opts.MergedBucket, leaf)
	d.Results = append(d.Results, fam)
	d.Category = fam.Category
	return "interesting order", nil
}

func (r *Router) gated(ctx context.Context, item discovery.Item, d *Decision) (string, error) {
	class, preds, err := r.query(ctx, item, classifier.RankClass)
	if err != nil {
		return "", err
	}
	if !classifier.HasLabel(preds, r.opts.GateClass) {
		class.Category = r.opts.RejectBucket
		d.Results = append(d.Results, class)
		d.Category = r.opts.RejectBucket
		return "gate class absent", nil
	}
	class.Category = strings.TrimSpace(r.opts.GateClass)
	d.Results = append(d.Results, class)

	fam, _, err := r.query(ctx, item, classifier.RankFamily)
	if err != nil {
		return "", err
	}
	order, _, err := r.query(ctx, item, classifier.RankOrder)
	if err != nil {
		return "", err
	}
	category, reason := r.familyCategory(fam)
	fam.Category = category
	order.Category = category
	d.Results = append(d.Results, fam, order)
	d.Category = category
	return reason, nil
}
