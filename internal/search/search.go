// Package search provides vector search over fitness documents using an
// external Qdrant index. Qdrant stores only embeddings and filter payloads;
// matched documents are hydrated from Postgres, the source of truth.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result holds a document ID and its raw similarity score from the index.
// The caller hydrates full documents from Postgres.
type Result struct {
	DocumentID uuid.UUID
	Score      float32
}

// Filters restricts a vector search by payload fields. Zero-value fields are
// not applied.
type Filters struct {
	// ContentTypes restricts matches to the given types. One entry becomes
	// an exact match, several a set-membership match.
	ContentTypes []string

	// WeekNumber matches the document's "Week N (YYYY)" label exactly.
	WeekNumber string

	// DateFrom / DateTo bound the document date (inclusive).
	DateFrom *time.Time
	DateTo   *time.Time
}

// Searcher is the interface for vector search indexes.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns document IDs matching the query vector, most similar
	// first. Returns IDs + raw similarity scores only.
	Search(ctx context.Context, embedding []float32, filters Filters, limit int) ([]Result, error)

	// Healthy returns nil if the search index is reachable, or an error
	// describing the problem.
	Healthy(ctx context.Context) error
}
