package router

import (
	"context"
	"errors"
	"slices"
	"testing"

	"taxosort/internal/classifier"
	"taxosort/internal/config"
	"taxosort/internal/discovery"
	"taxosort/internal/ledger"
	"taxosort/internal/secondary"
	"taxosort/internal/taxonomy"
)

type fakeClassifier struct {
	preds   map[classifier.Rank][]classifier.Prediction
	errs    map[classifier.Rank]error
	calls   []classifier.Rank
	filters []*classifier.Filter
}

func (f *fakeClassifier) Predict(_ context.Context, _ string, rank classifier.Rank, filter *classifier.Filter) ([]classifier.Prediction, error) {
	f.calls = append(f.calls, rank)
	f.filters = append(f.filters, filter)
	if err := f.errs[rank]; err != nil {
		return nil, err
	}
	return f.preds[rank], nil
}

func (f *fakeClassifier) Vocabulary(context.Context) (classifier.Vocabulary, error) {
	return classifier.Vocabulary{}, nil
}

func (f *fakeClassifier) InclusionFilter(context.Context, classifier.Rank, []string) (*classifier.Filter, error) {
	return nil, errors.New("unsupported")
}

func preds(rank classifier.Rank, pairs ...any) []classifier.Prediction {
	var out []classifier.Prediction
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, classifier.Prediction{Rank: rank, Label: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	return out
}

func targetSet(labels ...string) *taxonomy.TargetSet {
	vocab := classifier.Vocabulary{classifier.RankFamily: {}}
	for _, label := range labels {
		vocab[classifier.RankFamily][label] = struct{}{}
	}
	return taxonomy.Partition(labels, vocab, classifier.RankFamily)
}

func testOptions() Options {
	cfg := config.Default()
	return OptionsFromConfig(&cfg)
}

func newRouter(t *testing.T, mode string, clf classifier.Classifier, targets *taxonomy.TargetSet, src secondary.Source) *Router {
	t.Helper()
	r, err := New(mode, clf, targets, nil, src, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

var item = discovery.Item{Path: "/cams/38/img 1.jpg", Key: "/cams/38/img 1.jpg"}

func TestFamilyModeRouting(t *testing.T) {
	cases := []struct {
		name      string
		preds     []classifier.Prediction
		wantLabel string
		wantCat   string
	}{
		{"target", preds(classifier.RankFamily, "Apidae", 0.2, "Vespidae", 0.7), "Vespidae", "Vespidae"},
		{"other", preds(classifier.RankFamily, "Formicidae", 0.9), "Formicidae", CategoryOtherFamilies},
		{"spaces normalized", preds(classifier.RankFamily, "Ichneumonidae sp", 0.5), "Ichneumonidae_sp", "Ichneumonidae_sp"},
		{"tie keeps first", preds(classifier.RankFamily, "Apidae", 0.5, "Vespidae", 0.5), "Apidae", "Apidae"},
		{"empty", nil, "", CategoryUncertain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{classifier.RankFamily: tc.preds}}
			r := newRouter(t, config.ModeFamily, clf, targetSet("Apidae", "Vespidae", "Ichneumonidae_sp"), nil)
			d, err := r.Classify(context.Background(), item)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			fam := d.Result(classifier.RankFamily)
			if fam.Label != tc.wantLabel || d.Category != tc.wantCat {
				t.Fatalf("got label=%q category=%q, want %q/%q", fam.Label, d.Category, tc.wantLabel, tc.wantCat)
			}
		})
	}
}

func TestFamilyRowRendersEmptyPredictionAsZero(t *testing.T) {
	clf := &fakeClassifier{}
	r := newRouter(t, config.ModeFamily, clf, targetSet("Apidae"), nil)
	d, err := r.Classify(context.Background(), item)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	row := d.Row(ledger.SchemaFamily)
	want := ledger.Record{item.Path, "", "0", "uncertain"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row %v, want %v", row, want)
		}
	}
}

func TestMergedModeJoinsSecondaryByName(t *testing.T) {
	clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{
		classifier.RankFamily: preds(classifier.RankFamily, "Vespidae", 0.875),
	}}
	src := secondary.Source{"img 1.jpg": {ImgName: "img 1.jpg", Top1: "hornet", Top1Prob: "0.93"}}
	r := newRouter(t, config.ModeMerged, clf, targetSet("Vespidae"), src)
	named := discovery.Item{Path: item.Path, Key: "img 1.jpg"}
	d, err := r.Classify(context.Background(), named)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	row := d.Row(ledger.SchemaMerged)
	want := ledger.Record{"img 1.jpg", "hornet", "0.93", "Vespidae", "0.875", "Vespidae"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row %v, want %v", row, want)
		}
	}

	missing := discovery.Item{Path: "/cams/38/none.jpg", Key: "none.jpg"}
	d, err = r.Classify(context.Background(), missing)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if row := d.Row(ledger.SchemaMerged); row[1] != "" || row[2] != "" {
		t.Fatalf("expected empty secondary columns, got %v", row)
	}
}

func TestCascadeRouting(t *testing.T) {
	cases := []struct {
		name        string
		order       []classifier.Prediction
		family      []classifier.Prediction
		wantCat     string
		wantFamCall bool
	}{
		{"no order", nil, nil, "uncertain_0.3", false},
		{"low score", preds(classifier.RankOrder, "Diptera", 0.29), nil, "uncertain_0.3", false},
		{"threshold inclusive", preds(classifier.RankOrder, "Araneae", 0.3), nil, "Other/Araneae", false},
		{"interesting", preds(classifier.RankOrder, "Lepidoptera", 0.8), preds(classifier.RankFamily, "Erebidae", 0.6), "HyCoDiLe/Erebidae", true},
		{"interesting no family", preds(classifier.RankOrder, "Coleoptera", 0.8), nil, "HyCoDiLe/uncertain", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{
				classifier.RankOrder:  tc.order,
				classifier.RankFamily: tc.family,
			}}
			r := newRouter(t, config.ModeCascade, clf, nil, nil)
			d, err := r.Classify(context.Background(), item)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if d.Category != tc.wantCat {
				t.Fatalf("category %q, want %q", d.Category, tc.wantCat)
			}
			if slices.Contains(clf.calls, classifier.RankFamily) != tc.wantFamCall {
				t.Fatalf("family called=%v, want %v (calls %v)", !tc.wantFamCall, tc.wantFamCall, clf.calls)
			}
			if d.Queried(classifier.RankFamily) != tc.wantFamCall {
				t.Fatalf("family recorded=%v, want %v", d.Queried(classifier.RankFamily), tc.wantFamCall)
			}
			if len(d.Row(ledger.SchemaCascade)) != ledger.SchemaCascade.Width() {
				t.Fatal("row width mismatch")
			}
		})
	}
}

func TestGatedRouting(t *testing.T) {
	t.Run("rejects non insects", func(t *testing.T) {
		clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{
			classifier.RankClass: preds(classifier.RankClass, "Aves", 0.9, "Arachnida", 0.1),
		}}
		r := newRouter(t, config.ModeGated, clf, targetSet("Apidae"), nil)
		d, err := r.Classify(context.Background(), item)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if d.Category != "non_insect_images" || len(clf.calls) != 1 {
			t.Fatalf("expected rejection after one call, got %q calls=%v", d.Category, clf.calls)
		}
		row := d.Row(ledger.SchemaGated)
		if row[1] != "" || row[2] != "0" || row[3] != "" || row[4] != "0" {
			t.Fatalf("expected empty rank columns, got %v", row)
		}
	})
	t.Run("gate class at any position", func(t *testing.T) {
		clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{
			classifier.RankClass:  preds(classifier.RankClass, "Aves", 0.9, "Insecta", 0.05),
			classifier.RankFamily: preds(classifier.RankFamily, "Apidae", 0.7),
			classifier.RankOrder:  preds(classifier.RankOrder, "Hymenoptera", 0.95),
		}}
		r := newRouter(t, config.ModeGated, clf, targetSet("Apidae"), nil)
		d, err := r.Classify(context.Background(), item)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		row := d.Row(ledger.SchemaGated)
		want := ledger.Record{item.Path, "Hymenoptera", "0.95", "Apidae", "0.7", "Apidae"}
		for i := range want {
			if row[i] != want[i] {
				t.Fatalf("row %v, want %v", row, want)
			}
		}
	})
}

func TestClassifyPropagatesErrors(t *testing.T) {
	boom := errors.New("service down")
	clf := &fakeClassifier{errs: map[classifier.Rank]error{classifier.RankFamily: boom}}
	r := newRouter(t, config.ModeFamily, clf, targetSet("Apidae"), nil)
	if _, err := r.Classify(context.Background(), item); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestFilterSentOnlyWhenEnabled(t *testing.T) {
	filter := &classifier.Filter{ID: "f1", Rank: classifier.RankFamily, Labels: []string{"Apidae"}}
	for _, apply := range []bool{false, true} {
		clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{
			classifier.RankClass: preds(classifier.RankClass, "Insecta", 0.9),
		}}
		opts := testOptions()
		opts.ApplyFilter = apply
		r, err := New(config.ModeGated, clf, targetSet("Apidae"), filter, nil, opts)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := r.Classify(context.Background(), item); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if len(clf.calls) != 3 {
			t.Fatalf("expected class, family and order calls, got %v", clf.calls)
		}
		for i, rank := range clf.calls {
			want := apply && rank == classifier.RankFamily
			if (clf.filters[i] != nil) != want {
				t.Fatalf("apply=%v: filter on call %d (%s) = %v", apply, i, rank, clf.filters[i])
			}
		}
	}
}

func TestFamilyModeIgnoresFilterByDefault(t *testing.T) {
	clf := &fakeClassifier{preds: map[classifier.Rank][]classifier.Prediction{
		classifier.RankFamily: preds(classifier.RankFamily, "Apidae", 0.9),
	}}
	filter := &classifier.Filter{ID: "f1", Rank: classifier.RankFamily, Labels: []string{"Vespidae"}}
	r, err := New(config.ModeFamily, clf, targetSet("Vespidae"), filter, nil, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, err := r.Classify(context.Background(), item)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d.Category != CategoryOtherFamilies || clf.filters[0] != nil {
		t.Fatalf("expected unfiltered other_families, got %q filter=%v", d.Category, clf.filters[0])
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New("species", &fakeClassifier{}, nil, nil, nil, testOptions()); err == nil {
		t.Fatal("expected error")
	}
}
