package classifier_test

import (
	"testing"

	"taxosort/internal/classifier"
)

func TestBestPicksHighestScoreFirstOnTie(t *testing.T) {
	tests := []struct {
		name      string
		preds     []classifier.Prediction
		wantLabel string
		wantOK    bool
	}{
		{"empty", nil, "", false},
		{"single", []classifier.Prediction{{Label: "Apidae", Score: 0.2}}, "Apidae", true},
		{"highest wins", []classifier.Prediction{{Label: "Apidae", Score: 0.2}, {Label: "Vespidae", Score: 0.7}}, "Vespidae", true},
		{"first of tie wins", []classifier.Prediction{{Label: "Apidae", Score: 0.5}, {Label: "Vespidae", Score: 0.5}}, "Apidae", true},
		{"zero scores", []classifier.Prediction{{Label: "Syrphidae", Score: 0}, {Label: "Muscidae", Score: 0}}, "Syrphidae", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, ok := classifier.Best(tt.preds)
			if ok != tt.wantOK || best.Label != tt.wantLabel {
				t.Fatalf("Best = %+v, %v; want %q, %v", best, ok, tt.wantLabel, tt.wantOK)
			}
		})
	}
}

func TestVocabularyHelpers(t *testing.T) {
	vocab := classifier.Vocabulary{
		classifier.RankFamily: {"Vespidae": {}, "Apidae": {}},
	}
	if !vocab.Contains(classifier.RankFamily, "Apidae") {
		t.Fatal("expected Apidae in family vocabulary")
	}
	if vocab.Contains(classifier.RankOrder, "Apidae") {
		t.Fatal("expected rank mismatch to miss")
	}
	labels := vocab.Labels(classifier.RankFamily)
	if len(labels) != 2 || labels[0] != "Apidae" || labels[1] != "Vespidae" {
		t.Fatalf("unexpected sorted labels: %v", labels)
	}
}

func TestHasLabelAndParseRank(t *testing.T) {
	preds := []classifier.Prediction{{Label: "Arachnida", Score: 0.9}, {Label: "Insecta", Score: 0.01}}
	if !classifier.HasLabel(preds, "Insecta") {
		t.Fatal("expected Insecta to be found regardless of score")
	}
	if classifier.HasLabel(preds, "Aves") {
		t.Fatal("unexpected label match")
	}
	if rank, ok := classifier.ParseRank(" Family "); !ok || rank != classifier.RankFamily {
		t.Fatalf("ParseRank = %q, %v", rank, ok)
	}
	if _, ok := classifier.ParseRank("genus"); ok {
		t.Fatal("expected unknown rank to be rejected")
	}
}
