// Package optimize layers caching, admission control, batching, and
// performance accounting over the retrieval path.
package optimize

import (
	"context"
	"log/slog"
	"time"

	"github.com/charlesparmar/kenko/internal/cache"
	"github.com/charlesparmar/kenko/internal/metrics"
	"github.com/charlesparmar/kenko/internal/model"
)

// Backend is the similarity-search collaborator the optimizer accelerates.
type Backend interface {
	Search(ctx context.Context, query string, n int) ([]model.RetrievalResult, error)
}

const defaultBatchSize = 10

// VectorOptimizer fronts a search backend with an exact-key result cache and
// in-memory metadata filtering. Backend failures are recorded and absorbed:
// callers get an empty slice, never an error, so a flaky index degrades to
// "no results" instead of failing the request path.
type VectorOptimizer struct {
	backend   Backend
	caches    *cache.Manager
	monitor   *metrics.Monitor
	logger    *slog.Logger
	batchSize int
}

// NewVectorOptimizer builds an optimizer over backend. caches may be nil to
// disable caching; batchSize <= 0 falls back to the default of 10.
func NewVectorOptimizer(backend Backend, caches *cache.Manager, monitor *metrics.Monitor, logger *slog.Logger, batchSize int) *VectorOptimizer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &VectorOptimizer{
		backend:   backend,
		caches:    caches,
		monitor:   monitor,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Search returns up to n results for the query. The cache is probed on the
// exact (query, n, filters) key; a miss hits the backend, applies the
// metadata filters in memory, and caches what it returns.
func (o *VectorOptimizer) Search(ctx context.Context, query string, n int, filters map[string]any) []model.RetrievalResult {
	start := time.Now()

	if o.caches != nil {
		if cached, ok := o.caches.GetVectorResults(query, n, filters); ok {
			o.monitor.Record(ctx, "vector_search_cache_hit", time.Since(start), true,
				map[string]any{"query": query, "results_count": len(cached)})
			return cached
		}
	}

	results, err := o.backend.Search(ctx, query, n)
	if err != nil {
		o.monitor.Record(ctx, "vector_search", time.Since(start), false,
			map[string]any{"query": query, "error": err.Error()})
		o.logger.Warn("optimize: backend search failed", "query", query, "error", err)
		return nil
	}

	if len(filters) > 0 {
		results = applyMetadataFilters(results, filters)
	}

	if o.caches != nil {
		o.caches.SetVectorResults(query, n, filters, results, 0)
	}

	o.monitor.Record(ctx, "vector_search", time.Since(start), true,
		map[string]any{"query": query, "results_count": len(results)})
	return results
}

// BatchSearch runs Search for each query sequentially in fixed-size batches
// and records one aggregate metric for the whole call. The returned slice is
// parallel to queries.
func (o *VectorOptimizer) BatchSearch(ctx context.Context, queries []string, n int) [][]model.RetrievalResult {
	start := time.Now()

	all := make([][]model.RetrievalResult, 0, len(queries))
	for i := 0; i < len(queries); i += o.batchSize {
		end := min(i+o.batchSize, len(queries))
		for _, q := range queries[i:end] {
			all = append(all, o.Search(ctx, q, n, nil))
		}
	}

	o.monitor.Record(ctx, "batch_vector_search", time.Since(start), true,
		map[string]any{"queries_count": len(queries), "batch_size": o.batchSize})
	return all
}

// Stats summarizes backend search performance.
func (o *VectorOptimizer) Stats() metrics.Statistics {
	return o.monitor.Stats("vector_search", 0)
}

// applyMetadataFilters keeps results whose metadata satisfies every filter:
// a slice value means set membership, anything else exact equality. A result
// missing a filtered field is rejected.
func applyMetadataFilters(results []model.RetrievalResult, filters map[string]any) []model.RetrievalResult {
	kept := make([]model.RetrievalResult, 0, len(results))
	for _, res := range results {
		if matchesMetadata(res.Metadata, filters) {
			kept = append(kept, res)
		}
	}
	return kept
}

func matchesMetadata(metadata map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		switch want := want.(type) {
		case []any:
			if !containsValue(want, got) {
				return false
			}
		case []string:
			vals := make([]any, len(want))
			for i, v := range want {
				vals[i] = v
			}
			if !containsValue(vals, got) {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

func containsValue(set []any, v any) bool {
	for _, member := range set {
		if member == v {
			return true
		}
	}
	return false
}
