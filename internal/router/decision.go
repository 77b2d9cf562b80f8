package router

import (
	"strconv"

	"taxosort/internal/classifier"
	"taxosort/internal/ledger"
	"taxosort/internal/secondary"
)

// RankResult is the reduced outcome at one rank. Label is empty and Score is
// zero when the classifier returned nothing.
type RankResult struct {
	Rank     classifier.Rank
	Label    string
	Score    float64
	Category string
}

// Decision is everything needed to write the ledger row and place the image.
type Decision struct {
	Key       string
	Path      string
	Results   []RankResult
	Category  string
	Secondary secondary.Record
}

// Result returns the outcome at rank, or a zero result if the rank was not
// queried.
func (d Decision) Result(rank classifier.Rank) RankResult {
	for _, res := range d.Results {
		if res.Rank == rank {
			return res
		}
	}
	return RankResult{Rank: rank}
}

// Queried reports whether the classifier was asked about rank.
func (d Decision) Queried(rank classifier.Rank) bool {
	for _, res := range d.Results {
		if res.Rank == rank {
			return true
		}
	}
	return false
}

// Row renders the decision in the column order of schema.
func (d Decision) Row(schema ledger.Schema) ledger.Record {
	family := d.Result(classifier.RankFamily)
	switch schema.Name {
	case ledger.SchemaMerged.Name:
		return ledger.Record{
			d.Key,
			d.Secondary.Top1,
			d.Secondary.Top1Prob,
			family.Label,
			FormatScore(family.Score),
			d.Category,
		}
	case ledger.SchemaCascade.Name, ledger.SchemaGated.Name:
		order := d.Result(classifier.RankOrder)
		return ledger.Record{
			d.Key,
			order.Label,
			FormatScore(order.Score),
			family.Label,
			FormatScore(family.Score),
			d.Category,
		}
	default:
		return ledger.Record{
			d.Key,
			family.Label,
			FormatScore(family.Score),
			d.Category,
		}
	}
}

// FormatScore renders a score with the shortest exact decimal form.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
