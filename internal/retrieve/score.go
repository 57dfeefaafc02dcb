package retrieve

import (
	"github.com/charlesparmar/kenko/internal/model"
)

// Boost factors applied when the classified query type matches a result's
// content type, and when a result covers a measurement category the query
// asked about. The table is a contract with ranking behavior downstream;
// changing a factor reorders answers.
const (
	boostTrendContent    = 1.2
	boostComparisonTrend = 1.1
	boostSpecificMeasure = 1.15
	boostSummaryOverall  = 1.3
	boostMeasurementHit  = 1.1
)

// relevanceScore computes the boosted relevance for one result. Boosts
// compound multiplicatively on the raw similarity score; the final value is
// capped at 1.0. Deterministic for identical inputs.
func relevanceScore(res model.RetrievalResult, qtype model.QueryType, entities model.Entities) float64 {
	score := float64(res.Score)

	switch qtype {
	case model.QueryTrend:
		if res.Type == model.ContentTrend || res.Type == model.ContentMonthlySummary {
			score *= boostTrendContent
		}
	case model.QueryComparison:
		if res.Type == model.ContentTrend {
			score *= boostComparisonTrend
		}
	case model.QuerySpecific:
		if res.Type == model.ContentMeasurement {
			score *= boostSpecificMeasure
		}
	case model.QuerySummary:
		if res.Type == model.ContentOverallSummary {
			score *= boostSummaryOverall
		}
	}

	if len(res.Measurements) > 0 {
		for _, m := range entities.Measurements {
			if _, ok := res.Measurements[m.Category]; ok {
				score *= boostMeasurementHit
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
