package testsupport

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"taxosort/internal/classifier"
)

// FakeClassifier answers predictions from a table keyed by rank and image
// file name. Unknown images yield no predictions. Like the real service, a
// filter passed to Predict drops every label outside it.
type FakeClassifier struct {
	mu      sync.Mutex
	Vocab   classifier.Vocabulary
	Answers map[classifier.Rank]map[string][]classifier.Prediction
	// Errors fail Predict for the given file name at any rank.
	Errors    map[string]error
	FilterErr error
	Calls     []FakeCall
}

// FakeCall records one Predict invocation.
type FakeCall struct {
	Name   string
	Rank   classifier.Rank
	Filter *classifier.Filter
}

// NewFakeClassifier returns a fake whose vocabulary holds families, orders
// and classes.
func NewFakeClassifier(families, orders, classes []string) *FakeClassifier {
	vocab := classifier.Vocabulary{
		classifier.RankFamily: {},
		classifier.RankOrder:  {},
		classifier.RankClass:  {},
	}
	for _, label := range families {
		vocab[classifier.RankFamily][label] = struct{}{}
	}
	for _, label := range orders {
		vocab[classifier.RankOrder][label] = struct{}{}
	}
	for _, label := range classes {
		vocab[classifier.RankClass][label] = struct{}{}
	}
	return &FakeClassifier{
		Vocab:   vocab,
		Answers: make(map[classifier.Rank]map[string][]classifier.Prediction),
		Errors:  make(map[string]error),
	}
}

// Answer sets the predictions for name at rank as label/score pairs.
func (f *FakeClassifier) Answer(rank classifier.Rank, name string, pairs ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Answers[rank] == nil {
		f.Answers[rank] = make(map[string][]classifier.Prediction)
	}
	var preds []classifier.Prediction
	for i := 0; i+1 < len(pairs); i += 2 {
		preds = append(preds, classifier.Prediction{Rank: rank, Label: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	f.Answers[rank][name] = preds
}

func (f *FakeClassifier) Predict(_ context.Context, imagePath string, rank classifier.Rank, filter *classifier.Filter) ([]classifier.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(imagePath)
	f.Calls = append(f.Calls, FakeCall{Name: name, Rank: rank, Filter: filter})
	if err := f.Errors[name]; err != nil {
		return nil, err
	}
	preds := f.Answers[rank][name]
	if filter == nil {
		return preds, nil
	}
	var kept []classifier.Prediction
	for _, pred := range preds {
		if slices.Contains(filter.Labels, pred.Label) {
			kept = append(kept, pred)
		}
	}
	return kept, nil
}

func (f *FakeClassifier) Vocabulary(context.Context) (classifier.Vocabulary, error) {
	return f.Vocab, nil
}

func (f *FakeClassifier) InclusionFilter(_ context.Context, rank classifier.Rank, labels []string) (*classifier.Filter, error) {
	if f.FilterErr != nil {
		return nil, f.FilterErr
	}
	return &classifier.Filter{ID: "fake-filter", Rank: rank, Labels: append([]string(nil), labels...)}, nil
}

// HealthCheck always succeeds.
func (f *FakeClassifier) HealthCheck(context.Context) error { return nil }

// CallsFor returns how many times name was sent to the classifier.
func (f *FakeClassifier) CallsFor(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.Calls {
		if call.Name == name {
			n++
		}
	}
	return n
}
