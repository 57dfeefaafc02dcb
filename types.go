package kenko

import (
	"time"

	"github.com/google/uuid"

	"github.com/charlesparmar/kenko/internal/model"
	"github.com/charlesparmar/kenko/internal/optimize"
)

// Document is a fitness document to ingest or as returned by the API.
// Type is one of "measurement", "trend", "monthly_summary",
// "overall_summary", or "general"; unknown values are stored as "general".
type Document struct {
	ID           uuid.UUID          `json:"id"`
	Content      string             `json:"content"`
	Type         string             `json:"type"`
	Date         *time.Time         `json:"date,omitempty"`
	WeekNumber   string             `json:"week_number,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Result is one retrieved document with its scores. Relevance is the
// similarity score after query-aware boosting, capped at 1.0. SemanticScore
// and KeywordScore are populated only by hybrid search.
type Result struct {
	ID            uuid.UUID      `json:"id"`
	Content       string         `json:"content"`
	Type          string         `json:"type"`
	Date          *time.Time     `json:"date,omitempty"`
	WeekNumber    string         `json:"week_number,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Score         float32        `json:"score"`
	Relevance     float64        `json:"relevance"`
	SemanticScore float64        `json:"semantic_score,omitempty"`
	KeywordScore  float64        `json:"keyword_score,omitempty"`
}

// Intent is the processed form of a user query.
type Intent struct {
	Query    string   `json:"query"`
	Type     string   `json:"type"`
	Enhanced []string `json:"enhanced_queries"`
}

// Stats aggregates service state for operational surfaces.
type Stats struct {
	Version         string         `json:"version"`
	Optimizer       optimize.Stats `json:"optimizer"`
	Documents       int            `json:"documents"`
	DocumentsByType map[string]int `json:"documents_by_type"`
}

func toPublicResults(results []model.RetrievalResult) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{
			ID:            r.ID,
			Content:       r.Content,
			Type:          string(r.Type),
			Date:          r.Date,
			WeekNumber:    r.WeekNumber,
			Metadata:      r.Metadata,
			Score:         r.Score,
			Relevance:     r.Relevance,
			SemanticScore: r.SemanticScore,
			KeywordScore:  r.KeywordScore,
		}
	}
	return out
}

func toPublicIntent(intent model.Intent) Intent {
	return Intent{
		Query:    intent.Original,
		Type:     string(intent.Type),
		Enhanced: intent.Enhanced,
	}
}

func toPublicDocument(d model.Document) Document {
	return Document{
		ID:           d.ID,
		Content:      d.Content,
		Type:         string(d.Type),
		Date:         d.Date,
		WeekNumber:   d.WeekNumber,
		Measurements: d.Measurements,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
	}
}

func fromPublicDocument(d Document) model.Document {
	return model.Document{
		ID:           d.ID,
		Content:      d.Content,
		Type:         model.ParseContentType(d.Type),
		Date:         d.Date,
		WeekNumber:   d.WeekNumber,
		Measurements: d.Measurements,
		Metadata:     d.Metadata,
	}
}
