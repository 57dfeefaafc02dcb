package model

import "time"

// QueryType classifies what a user question is asking for. The classifier
// checks types in a fixed priority order; downstream filter selection and
// relevance boosts depend on the winner.
type QueryType string

const (
	QueryTimeRangeAnalysis  QueryType = "time_range_analysis"
	QueryCalculationRequest QueryType = "calculation_request"
	QueryDataSummary        QueryType = "data_summary"
	QueryTrend              QueryType = "trend"
	QueryComparison         QueryType = "comparison"
	QueryGoal               QueryType = "goal"
	QuerySummary            QueryType = "summary"
	QuerySpecific           QueryType = "specific"
	QueryGeneral            QueryType = "general"
)

// MeasurementRef is a measurement keyword found in a query, tagged with the
// measurement category it belongs to.
type MeasurementRef struct {
	Category string // weight, fat_percent, bmi, fat_weight, lean_weight, body_measurements
	Keyword  string // the surface form that matched, e.g. "body fat"
}

// TimeSpan is a relative duration mentioned in a query ("3 weeks", "2 months").
type TimeSpan struct {
	Unit  string // day, week, month, year
	Count int
}

// Entities holds everything extracted from a query besides its type.
type Entities struct {
	Measurements    []MeasurementRef
	Dates           []string // explicit date strings as written
	TimeSpans       []TimeSpan
	ComparisonTerms []string
	Numbers         []float64
}

// Intent is the full output of query processing: classification, extracted
// entities, enhanced paraphrases for multi-query retrieval, and derived
// search filter criteria.
type Intent struct {
	Original string
	Type     QueryType
	Entities Entities

	// Enhanced holds paraphrase variants (original query first, de-duplicated
	// preserving first-seen order) used to widen recall.
	Enhanced []string

	// Filters are search filter criteria derived from type and entities,
	// keyed by payload field name.
	Filters map[string]any
}

// RangeSource tags which extractor produced a date range. Ranges from the
// four extractors are kept independently and OR-combined by consumers.
type RangeSource string

const (
	RangeExplicit RangeSource = "explicit"
	RangeRelative RangeSource = "relative"
	RangeMonth    RangeSource = "month"
	RangeSeasonal RangeSource = "seasonal"
)

// DateRange is a parsed [Start, End] date range (inclusive on both ends,
// compared at day granularity) tagged with its source.
type DateRange struct {
	Start  time.Time
	End    time.Time
	Source RangeSource

	// Label records what matched, e.g. "last_month", "june", "winter",
	// or the original explicit date string.
	Label string
}

// Contains reports whether t falls within the range at day granularity.
func (r DateRange) Contains(t time.Time) bool {
	day := atMidnight(t)
	return !day.Before(atMidnight(r.Start)) && !day.After(atMidnight(r.End))
}

// AnyContains reports whether t falls in any of the given ranges.
// An empty slice matches nothing.
func AnyContains(ranges []DateRange, t time.Time) bool {
	for _, r := range ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

func atMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
