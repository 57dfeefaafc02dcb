package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetrievalResult is one scored document returned by the retriever.
//
// Score is the raw similarity from the vector index. Relevance is Score
// after query-type boosting, capped at 1.0. SemanticScore and KeywordScore
// are populated only by hybrid search, where both channels are retained for
// inspection.
type RetrievalResult struct {
	ID         uuid.UUID
	Content    string
	Type       ContentType
	Date       *time.Time
	WeekNumber string
	Metadata   map[string]any

	// Measurements carries the document's measurement values; relevance
	// boosting rewards results covering the categories a query asks about.
	Measurements map[string]float64

	Score     float32
	Relevance float64

	SemanticScore float64
	KeywordScore  float64
}

// RecencyKey returns a sortable encoding used as the relevance tie-break:
// week number ("Week N (YYYY)" -> "YYYYNN") when present, else the document
// date as "YYYYMMDD", else empty. Lexicographic comparison of these keys
// orders results chronologically; the retriever sorts them descending so
// the most recent document wins ties.
func (r RetrievalResult) RecencyKey() string {
	if key, ok := weekSortKey(r.WeekNumber); ok {
		return key
	}
	if r.Date != nil {
		return r.Date.Format("20060102")
	}
	return ""
}

// weekSortKey parses "Week N (YYYY)" into "YYYYNN".
func weekSortKey(week string) (string, bool) {
	var n, year int
	if _, err := fmt.Sscanf(week, "Week %d (%d)", &n, &year); err != nil {
		return "", false
	}
	if n < 1 || n > 53 || year < 1000 || year > 9999 {
		return "", false
	}
	return fmt.Sprintf("%04d%02d", year, n), true
}
