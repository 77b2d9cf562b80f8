package classifier

import (
	"context"
	"sort"
	"strings"
)

// Rank is a taxonomic level the classifier can predict at.
type Rank string

const (
	RankClass  Rank = "class"
	RankOrder  Rank = "order"
	RankFamily Rank = "family"
)

// ParseRank converts a user supplied rank name.
func ParseRank(value string) (Rank, bool) {
	switch Rank(strings.ToLower(strings.TrimSpace(value))) {
	case RankClass:
		return RankClass, true
	case RankOrder:
		return RankOrder, true
	case RankFamily:
		return RankFamily, true
	}
	return "", false
}

// Prediction is a single candidate label returned for an image at one rank.
type Prediction struct {
	Rank  Rank
	Label string
	Score float64
}

// Vocabulary maps each rank to the set of labels the classifier knows.
type Vocabulary map[Rank]map[string]struct{}

// Contains reports whether label is known at rank.
func (v Vocabulary) Contains(rank Rank, label string) bool {
	labels, ok := v[rank]
	if !ok {
		return false
	}
	_, ok = labels[label]
	return ok
}

// Labels returns the sorted labels known at rank.
func (v Vocabulary) Labels(rank Rank) []string {
	out := make([]string, 0, len(v[rank]))
	for label := range v[rank] {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Filter restricts predictions at Rank to Labels. ID is the handle issued by
// the classification service.
type Filter struct {
	ID     string
	Rank   Rank
	Labels []string
}

// Classifier is the capability the pipeline needs from a classification backend.
type Classifier interface {
	Predict(ctx context.Context, imagePath string, rank Rank, filter *Filter) ([]Prediction, error)
	Vocabulary(ctx context.Context) (Vocabulary, error)
	InclusionFilter(ctx context.Context, rank Rank, labels []string) (*Filter, error)
}

// Best returns the highest scoring prediction. Ties keep the earliest
// prediction in classifier order. ok is false when preds is empty.
func Best(preds []Prediction) (best Prediction, ok bool) {
	for i, pred := range preds {
		if i == 0 || pred.Score > best.Score {
			best = pred
			ok = true
		}
	}
	return best, ok
}

// HasLabel reports whether any prediction carries label, regardless of score.
func HasLabel(preds []Prediction, label string) bool {
	for _, pred := range preds {
		if pred.Label == label {
			return true
		}
	}
	return false
}
