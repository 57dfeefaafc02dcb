// Package retrieve implements multi-query retrieval over the semantic
// search layer: enhanced query fan-out, content deduplication, query-aware
// relevance boosting, date post-filtering, and recency-aware ordering.
package retrieve

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/charlesparmar/kenko/internal/model"
	"github.com/charlesparmar/kenko/internal/query"
	"github.com/charlesparmar/kenko/internal/search"
)

// Searcher is the semantic search collaborator the retriever fans out to.
type Searcher interface {
	Search(ctx context.Context, query string, filters search.Filters, limit int) ([]model.RetrievalResult, error)
}

// Config controls retrieval behavior. The zero value gets sensible defaults
// from NewRetriever.
type Config struct {
	// DefaultResults is used when a caller passes n <= 0. Defaults to 5.
	DefaultResults int

	// MaxResults caps any requested n. Defaults to 20.
	MaxResults int

	// MinSimilarity drops raw matches below this score. Defaults to 0.1.
	MinSimilarity float32

	// DisableEnhancedQueries turns off multi-query fan-out; every request
	// becomes a single search on the original query.
	DisableEnhancedQueries bool

	// SemanticWeight is the semantic channel's weight in hybrid search,
	// in (0, 1]. Defaults to 0.7.
	SemanticWeight float64
}

// Retriever turns a natural-language query into a ranked result list.
type Retriever struct {
	searcher Searcher
	queries  *query.Processor
	logger   *slog.Logger
	cfg      Config
}

// NewRetriever builds a retriever over the given searcher.
func NewRetriever(searcher Searcher, queries *query.Processor, logger *slog.Logger, cfg Config) *Retriever {
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = 5
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.1
	}
	if cfg.SemanticWeight <= 0 || cfg.SemanticWeight > 1 {
		cfg.SemanticWeight = 0.7
	}
	return &Retriever{
		searcher: searcher,
		queries:  queries,
		logger:   logger,
		cfg:      cfg,
	}
}

// Retrieve returns up to n results for the query, ranked by boosted
// relevance with a most-recent-first tie-break.
func (r *Retriever) Retrieve(ctx context.Context, q string, n int, filters search.Filters) ([]model.RetrievalResult, error) {
	intent, err := r.queries.Process(q)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	n = r.clamp(n)

	dateRanges := r.queries.ExtractDateRanges(q)
	filters = mergeIntentFilters(filters, intent)

	var results []model.RetrievalResult
	if r.cfg.DisableEnhancedQueries || len(intent.Enhanced) == 0 {
		results, err = r.searcher.Search(ctx, intent.Original, filters, n)
		if err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
	} else {
		results, err = r.fanOut(ctx, intent, filters, n)
		if err != nil {
			// One plain unfiltered pass before giving up.
			r.logger.Warn("retrieve: enhanced retrieval failed, retrying unfiltered", "error", err)
			results, err = r.searcher.Search(ctx, intent.Original, search.Filters{}, n)
			if err != nil {
				return nil, fmt.Errorf("retrieve: %w", err)
			}
		}
	}

	results = filterByDateRanges(results, dateRanges, r.logger)

	return r.rank(results, intent, n), nil
}

// fanOut runs one search per enhanced query, each asking for 2n results to
// leave headroom for deduplication, then merges by content identity. A
// single failing variant is logged and skipped; if every variant fails the
// whole fan-out fails with the last error.
func (r *Retriever) fanOut(ctx context.Context, intent model.Intent, filters search.Filters, n int) ([]model.RetrievalResult, error) {
	var (
		merged  []model.RetrievalResult
		lastErr error
		failed  int
	)
	for _, eq := range intent.Enhanced {
		hits, err := r.searcher.Search(ctx, eq, filters, n*2)
		if err != nil {
			r.logger.Warn("retrieve: enhanced query failed", "query", eq, "error", err)
			lastErr = err
			failed++
			continue
		}
		merged = append(merged, hits...)
	}
	if failed == len(intent.Enhanced) && lastErr != nil {
		return nil, fmt.Errorf("retrieve: all enhanced queries failed: %w", lastErr)
	}
	return dedupeByContent(merged), nil
}

// EmbeddingSearcher is implemented by searchers that accept a pre-computed
// query embedding.
type EmbeddingSearcher interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, filters search.Filters, limit int) ([]model.RetrievalResult, error)
}

// RetrieveByEmbedding searches with a pre-computed embedding, applying only
// the similarity threshold. The searcher must support embedding search.
func (r *Retriever) RetrieveByEmbedding(ctx context.Context, embedding []float32, n int, filters search.Filters) ([]model.RetrievalResult, error) {
	es, ok := r.searcher.(EmbeddingSearcher)
	if !ok {
		return nil, fmt.Errorf("retrieve: searcher does not support embedding search")
	}
	n = r.clamp(n)

	results, err := es.SearchByEmbedding(ctx, embedding, filters, n)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embedding search: %w", err)
	}

	kept := make([]model.RetrievalResult, 0, len(results))
	for _, res := range results {
		if res.Score >= r.cfg.MinSimilarity {
			kept = append(kept, res)
		}
	}
	return kept, nil
}

func (r *Retriever) clamp(n int) int {
	if n <= 0 {
		n = r.cfg.DefaultResults
	}
	if n > r.cfg.MaxResults {
		n = r.cfg.MaxResults
	}
	return n
}

// rank applies the similarity threshold, computes boosted relevance, and
// sorts by relevance descending with the recency key breaking ties.
func (r *Retriever) rank(results []model.RetrievalResult, intent model.Intent, n int) []model.RetrievalResult {
	ranked := make([]model.RetrievalResult, 0, len(results))
	for _, res := range results {
		if res.Score < r.cfg.MinSimilarity {
			continue
		}
		res.Relevance = relevanceScore(res, intent.Type, intent.Entities)
		ranked = append(ranked, res)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].RecencyKey() > ranked[j].RecencyKey()
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// dedupeByContent keeps the first occurrence of each document, identified by
// a hash of the first 100 bytes of its content. Empty content is dropped.
func dedupeByContent(results []model.RetrievalResult) []model.RetrievalResult {
	seen := make(map[uint64]struct{}, len(results))
	unique := make([]model.RetrievalResult, 0, len(results))
	for _, res := range results {
		if res.Content == "" {
			continue
		}
		prefix := res.Content
		if len(prefix) > 100 {
			prefix = prefix[:100]
		}
		h := fnv.New64a()
		h.Write([]byte(prefix))
		sum := h.Sum64()
		if _, ok := seen[sum]; ok {
			continue
		}
		seen[sum] = struct{}{}
		unique = append(unique, res)
	}
	return unique
}

// mergeIntentFilters folds the date window derived from the query's time
// spans into caller-provided filters. Caller filters win on conflict.
func mergeIntentFilters(filters search.Filters, intent model.Intent) search.Filters {
	if intent.Filters == nil {
		return filters
	}
	if filters.DateFrom == nil {
		if from, ok := intent.Filters["date_from"].(time.Time); ok {
			filters.DateFrom = &from
		}
	}
	if filters.DateTo == nil {
		if to, ok := intent.Filters["date_to"].(time.Time); ok {
			filters.DateTo = &to
		}
	}
	return filters
}

// contentDateREs find a date written inside result content when the
// structured Date field is absent.
var contentDateREs = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
	{regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`), "1/2/2006"},
}

func resultDate(res model.RetrievalResult) (time.Time, bool) {
	if res.Date != nil {
		return *res.Date, true
	}
	for _, cd := range contentDateREs {
		if m := cd.re.FindString(res.Content); m != "" {
			if t, err := time.Parse(cd.layout, m); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// filterByDateRanges keeps results whose date falls in any parsed range.
// Undated results are never dropped. Fail-open: if the filter would remove
// everything, the original set is returned untouched so a bad range can
// never silently empty the response.
func filterByDateRanges(results []model.RetrievalResult, ranges []model.DateRange, logger *slog.Logger) []model.RetrievalResult {
	if len(ranges) == 0 || len(results) == 0 {
		return results
	}

	kept := make([]model.RetrievalResult, 0, len(results))
	for _, res := range results {
		date, ok := resultDate(res)
		if !ok || model.AnyContains(ranges, date) {
			kept = append(kept, res)
		}
	}

	if len(kept) == 0 {
		logger.Warn("retrieve: no results match date ranges, keeping all",
			"results", len(results), "ranges", len(ranges))
		return results
	}
	return kept
}
