package embedding

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/charlesparmar/kenko/internal/cache"
)

// Cached wraps a Provider with the embedding cache. Identical (text, model)
// pairs hit the cache instead of the backend; batch calls only send the
// misses through.
type Cached struct {
	inner  Provider
	caches *cache.Manager
}

// NewCached wraps provider with the given cache manager.
func NewCached(provider Provider, caches *cache.Manager) *Cached {
	return &Cached{inner: provider, caches: caches}
}

// Dimensions returns the wrapped provider's vector size.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Model returns the wrapped provider's model name.
func (c *Cached) Model() string {
	return c.inner.Model()
}

// Embed returns the cached vector for text when present, otherwise calls the
// backend and caches the result.
func (c *Cached) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if vec, ok := c.caches.GetEmbedding(text, c.inner.Model()); ok {
		return pgvector.NewVector(vec), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	c.caches.SetEmbedding(text, c.inner.Model(), vec.Slice(), 0)
	return vec, nil
}

// EmbedBatch resolves each text from the cache where possible and embeds only
// the misses, preserving input order in the result.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := c.inner.Model()
	vecs := make([]pgvector.Vector, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.caches.GetEmbedding(text, model); ok {
			vecs[i] = pgvector.NewVector(vec)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vecs, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vecs[i] = fresh[j]
		c.caches.SetEmbedding(texts[i], model, fresh[j].Slice(), 0)
	}
	return vecs, nil
}
