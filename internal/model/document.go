// Package model defines the core domain types shared across packages:
// documents, query intents, and retrieval results.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentType classifies what a document describes. The set is closed:
// unknown strings parse to ContentGeneral rather than flowing through as
// free-form labels.
type ContentType string

const (
	ContentMeasurement    ContentType = "measurement"
	ContentTrend          ContentType = "trend"
	ContentMonthlySummary ContentType = "monthly_summary"
	ContentOverallSummary ContentType = "overall_summary"
	ContentGeneral        ContentType = "general"
)

// ParseContentType maps a stored label to a ContentType, defaulting to
// ContentGeneral for anything unrecognized.
func ParseContentType(s string) ContentType {
	switch ContentType(s) {
	case ContentMeasurement, ContentTrend, ContentMonthlySummary, ContentOverallSummary:
		return ContentType(s)
	default:
		return ContentGeneral
	}
}

// Document is one retrievable unit of fitness history: a weekly measurement
// record, a computed trend, or a generated summary.
type Document struct {
	ID      uuid.UUID   `json:"id"`
	Content string      `json:"content"`
	Type    ContentType `json:"content_type"`

	// Date is the measurement date, when the document has one.
	Date *time.Time `json:"date,omitempty"`

	// WeekNumber is the human label "Week N (YYYY)" for weekly records.
	WeekNumber string `json:"week_number,omitempty"`

	// Measurements holds the numeric values the document was built from,
	// keyed by category (weight, fat_percent, bmi, ...).
	Measurements map[string]float64 `json:"measurements,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`

	// IndexedAt is set once the document has been synced to the vector
	// index; nil means it is still pending.
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
}

// Validate checks the fields required for ingestion.
func (d Document) Validate() error {
	if d.Content == "" {
		return fmt.Errorf("model: document content is empty")
	}
	if ParseContentType(string(d.Type)) != d.Type {
		return fmt.Errorf("model: unknown content type %q", d.Type)
	}
	return nil
}
