package kenko

import (
	"context"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/charlesparmar/kenko/internal/service/embedding"
)

// EmbeddingProvider lets consumers supply their own embedding backend.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger            *slog.Logger
	version           string
	databaseURL       string
	qdrantURL         string
	snapshotPath      string
	embeddingProvider EmbeddingProvider
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in stats and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithQdrantURL overrides the vector index endpoint from config
// (QDRANT_URL env var).
func WithQdrantURL(url string) Option {
	return func(o *resolvedOptions) { o.qdrantURL = url }
}

// WithSnapshotPath overrides the cache snapshot file from config
// (KENKO_SNAPSHOT_PATH env var).
func WithSnapshotPath(path string) Option {
	return func(o *resolvedOptions) { o.snapshotPath = path }
}

// WithEmbeddingProvider replaces the configured embedding provider
// (OpenAI/Ollama/noop). The embedding cache still wraps the replacement.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// providerAdapter bridges the public EmbeddingProvider to the internal
// interface.
type providerAdapter struct {
	p EmbeddingProvider
}

var _ embedding.Provider = (*providerAdapter)(nil)

func (a *providerAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vec, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(vec), nil
}

func (a *providerAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i, text := range texts {
		vec, err := a.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (a *providerAdapter) Dimensions() int {
	return a.p.Dimensions()
}

func (a *providerAdapter) Model() string {
	return a.p.Model()
}
