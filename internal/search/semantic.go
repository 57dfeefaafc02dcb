package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/charlesparmar/kenko/internal/model"
	"github.com/charlesparmar/kenko/internal/service/embedding"
)

// DocumentStore is the slice of the storage layer the searcher needs to
// hydrate index hits into full documents.
type DocumentStore interface {
	GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Document, error)
}

// DocumentSearcher runs the full semantic search path: embed the query text,
// ANN-search the vector index, then hydrate matched documents from Postgres
// in similarity order.
type DocumentSearcher struct {
	embedder embedding.Provider
	index    Searcher
	db       DocumentStore
	logger   *slog.Logger
}

// NewDocumentSearcher wires the three collaborators together.
func NewDocumentSearcher(embedder embedding.Provider, index Searcher, db DocumentStore, logger *slog.Logger) *DocumentSearcher {
	return &DocumentSearcher{
		embedder: embedder,
		index:    index,
		db:       db,
		logger:   logger,
	}
}

// Search returns the limit most similar documents for the query text.
// Documents deleted between the index search and hydration are skipped, so
// the result may be shorter than limit.
func (s *DocumentSearcher) Search(ctx context.Context, query string, filters Filters, limit int) ([]model.RetrievalResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	return s.SearchByEmbedding(ctx, vec.Slice(), filters, limit)
}

// SearchByEmbedding runs the same search path with a pre-computed query
// embedding, skipping the embed step.
func (s *DocumentSearcher) SearchByEmbedding(ctx context.Context, embedding []float32, filters Filters, limit int) ([]model.RetrievalResult, error) {
	hits, err := s.index.Search(ctx, embedding, filters, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(hits))
	scores := make(map[uuid.UUID]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.DocumentID
		scores[h.DocumentID] = h.Score
	}

	docs, err := s.db.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search: hydrate documents: %w", err)
	}
	if len(docs) < len(hits) {
		s.logger.Debug("search: some indexed documents no longer exist",
			"hits", len(hits), "hydrated", len(docs))
	}

	results := make([]model.RetrievalResult, 0, len(docs))
	for _, d := range docs {
		score := scores[d.ID]
		results = append(results, model.RetrievalResult{
			ID:           d.ID,
			Content:      d.Content,
			Type:         d.Type,
			Date:         d.Date,
			WeekNumber:   d.WeekNumber,
			Metadata:     d.Metadata,
			Measurements: d.Measurements,
			Score:        score,
			Relevance:    float64(score),
		})
	}
	return results, nil
}

// Healthy reports whether the underlying index is reachable.
func (s *DocumentSearcher) Healthy(ctx context.Context) error {
	return s.index.Healthy(ctx)
}
