package retrieve

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/charlesparmar/kenko/internal/model"
	"github.com/charlesparmar/kenko/internal/search"
)

// HybridSearch blends two retrieval channels with a weighted sum: the
// enhanced multi-query pass as the semantic channel and a plain
// single-query pass as the keyword channel. The keyword channel is a second
// semantic pass today, kept as a distinct channel so a lexical scorer can
// slot in later. Both channel scores are retained on each result.
func (r *Retriever) HybridSearch(ctx context.Context, q string, n int, filters search.Filters) ([]model.RetrievalResult, error) {
	n = r.clamp(n)

	semantic, err := r.Retrieve(ctx, q, n*2, filters)
	if err != nil {
		return nil, err
	}

	keyword, err := r.keywordSearch(ctx, q, n*2, filters)
	if err != nil {
		r.logger.Warn("retrieve: keyword channel failed, using semantic only", "error", err)
		keyword = nil
	}

	combined := combineChannels(semantic, keyword, r.cfg.SemanticWeight)
	if len(combined) > n {
		combined = combined[:n]
	}
	return combined, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, q string, n int, filters search.Filters) ([]model.RetrievalResult, error) {
	sub := *r
	sub.cfg.DisableEnhancedQueries = true
	return sub.Retrieve(ctx, q, n, filters)
}

type channelScores struct {
	result   model.RetrievalResult
	semantic float64
	keyword  float64
}

// combineChannels merges the two result sets by document ID, taking the max
// score per channel for duplicates, then ranks by the weighted sum.
func combineChannels(semantic, keyword []model.RetrievalResult, semanticWeight float64) []model.RetrievalResult {
	byID := make(map[uuid.UUID]*channelScores, len(semantic)+len(keyword))
	var order []uuid.UUID

	for _, res := range semantic {
		cs, ok := byID[res.ID]
		if !ok {
			byID[res.ID] = &channelScores{result: res, semantic: res.Relevance}
			order = append(order, res.ID)
			continue
		}
		if res.Relevance > cs.semantic {
			cs.semantic = res.Relevance
		}
	}

	for _, res := range keyword {
		cs, ok := byID[res.ID]
		if !ok {
			byID[res.ID] = &channelScores{result: res, keyword: res.Relevance}
			order = append(order, res.ID)
			continue
		}
		if res.Relevance > cs.keyword {
			cs.keyword = res.Relevance
		}
	}

	combined := make([]model.RetrievalResult, 0, len(order))
	for _, id := range order {
		cs := byID[id]
		res := cs.result
		res.SemanticScore = cs.semantic
		res.KeywordScore = cs.keyword
		res.Relevance = semanticWeight*cs.semantic + (1-semanticWeight)*cs.keyword
		combined = append(combined, res)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Relevance > combined[j].Relevance
	})
	return combined
}
