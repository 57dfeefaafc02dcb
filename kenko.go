// Package kenko is the public API for embedding the Kenko fitness retrieval
// service.
//
// Consumers import this package to construct the full retrieval stack
// without reaching into internals:
//
//	app, err := kenko.New(
//	    kenko.WithVersion(version),
//	    kenko.WithLogger(logger),
//	)
//	if err != nil { ... }
//	app.Start(ctx)
//	defer app.Close(context.Background())
//	results, err := app.Retrieve(ctx, "how has my weight changed", 5)
//
// The import graph enforces a strict no-cycle rule: kenko (root) imports
// internal/*, but internal/* never imports kenko (root). Public types
// (Document, Result, Intent) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package kenko

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/charlesparmar/kenko/internal/admission"
	"github.com/charlesparmar/kenko/internal/cache"
	"github.com/charlesparmar/kenko/internal/config"
	"github.com/charlesparmar/kenko/internal/model"
	"github.com/charlesparmar/kenko/internal/optimize"
	"github.com/charlesparmar/kenko/internal/query"
	"github.com/charlesparmar/kenko/internal/retrieve"
	"github.com/charlesparmar/kenko/internal/search"
	"github.com/charlesparmar/kenko/internal/service/embedding"
	"github.com/charlesparmar/kenko/internal/storage"
	"github.com/charlesparmar/kenko/internal/telemetry"
	"github.com/charlesparmar/kenko/migrations"
)

// ErrSearchDisabled is returned by retrieval operations when no vector index
// is configured (QDRANT_URL unset).
var ErrSearchDisabled = errors.New("kenko: vector search disabled, set QDRANT_URL")

// App is the Kenko service lifecycle. Construct with New(), start background
// work with Start(), and always Close().
type App struct {
	cfg          config.Config
	logger       *slog.Logger
	version      string
	db           *storage.DB
	caches       *cache.Manager
	embedder     embedding.Provider
	qdrant       *search.QdrantIndex // nil when Qdrant is not configured
	indexer      *search.Indexer     // nil when Qdrant is not configured
	queries      *query.Processor
	retriever    *retrieve.Retriever // nil when Qdrant is not configured
	optimizer    *optimize.Optimizer
	otelShutdown telemetry.Shutdown
}

// New initialises the service: connects to the database, runs migrations,
// and wires caching, embedding, search, and the optimizer. It starts no
// background goroutines — call Start().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.qdrantURL != "" {
		cfg.QdrantURL = o.qdrantURL
	}
	if o.snapshotPath != "" {
		cfg.SnapshotPath = o.snapshotPath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kenko starting", "version", version)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	caches, err := cache.NewManager(cache.ManagerConfig{
		ResponseSize:  cfg.ResponseCacheSize,
		ResponseTTL:   cfg.ResponseCacheTTL,
		VectorSize:    cfg.VectorCacheSize,
		VectorTTL:     cfg.VectorCacheTTL,
		EmbeddingSize: cfg.EmbeddingCacheSize,
		EmbeddingTTL:  cfg.EmbeddingCacheTTL,
		SnapshotPath:  cfg.SnapshotPath,
	}, logger)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("cache: %w", err)
	}

	// Embedding provider — external override takes priority over config.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &providerAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}
	embedder = embedding.NewCached(embedder, caches)

	queries := query.NewProcessor()

	// Vector index and retrieval stack.
	var (
		qdrantIndex *search.QdrantIndex
		indexer     *search.Indexer
		retriever   *retrieve.Retriever
	)
	if cfg.QdrantURL != "" {
		qdrantIndex, err = search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions),
		}, logger)
		if err != nil {
			caches.Close()
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		if err := qdrantIndex.EnsureCollection(context.Background()); err != nil {
			_ = qdrantIndex.Close()
			caches.Close()
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}

		searcher := search.NewDocumentSearcher(embedder, qdrantIndex, db, logger)
		retriever = retrieve.NewRetriever(searcher, queries, logger, retrieve.Config{
			DefaultResults: cfg.DefaultResults,
			MaxResults:     cfg.MaxResults,
			MinSimilarity:  float32(cfg.MinSimilarity),
		})
		indexer = search.NewIndexer(db, qdrantIndex, logger, cfg.IndexPollInterval, cfg.IndexBatchSize)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	optimizer := optimize.NewOptimizer(&retrieverBackend{retriever: retriever}, caches, logger, optimize.Config{
		MaxConcurrent: cfg.MaxConcurrentRequests,
		BatchWorkers:  cfg.BatchWorkers,
		BatchQueue:    cfg.BatchQueueSize,
		MaxSamples:    cfg.MaxMetrics,
		SearchBatch:   cfg.SearchBatchSize,
		SweepInterval: cfg.CleanupInterval,
		JobMaxAge:     cfg.JobRetention,
	})

	return &App{
		cfg:          cfg,
		logger:       logger,
		version:      version,
		db:           db,
		caches:       caches,
		embedder:     embedder,
		qdrant:       qdrantIndex,
		indexer:      indexer,
		queries:      queries,
		retriever:    retriever,
		optimizer:    optimizer,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the indexer that pushes unindexed
// documents into the vector index. Safe to call when Qdrant is disabled.
func (a *App) Start(ctx context.Context) {
	if a.indexer != nil {
		a.indexer.Start(ctx)
	}
}

// Retrieve answers a query with ranked, boosted, date-filtered results.
func (a *App) Retrieve(ctx context.Context, q string, n int) ([]Result, error) {
	if a.retriever == nil {
		return nil, ErrSearchDisabled
	}
	results, err := a.retriever.Retrieve(ctx, q, n, search.Filters{})
	if err != nil {
		return nil, err
	}
	return toPublicResults(results), nil
}

// HybridSearch blends the semantic and keyword retrieval channels.
func (a *App) HybridSearch(ctx context.Context, q string, n int) ([]Result, error) {
	if a.retriever == nil {
		return nil, ErrSearchDisabled
	}
	results, err := a.retriever.HybridSearch(ctx, q, n, search.Filters{})
	if err != nil {
		return nil, err
	}
	return toPublicResults(results), nil
}

// OptimizedSearch answers a query through the vector result cache and
// in-memory metadata filters. Backend failures surface as an empty slice.
func (a *App) OptimizedSearch(ctx context.Context, q string, n int, filters map[string]any) []Result {
	return toPublicResults(a.optimizer.Search(ctx, q, n, filters))
}

// BatchSearch answers many queries through the optimizer. The returned slice
// is parallel to queries.
func (a *App) BatchSearch(ctx context.Context, queries []string, n int) [][]Result {
	raw := a.optimizer.BatchSearch(ctx, queries, n)
	out := make([][]Result, len(raw))
	for i, rs := range raw {
		out[i] = toPublicResults(rs)
	}
	return out
}

// OptimizeQuery answers through the response cache, running handler under
// admission control on a miss.
func (a *App) OptimizeQuery(ctx context.Context, q string, contextDocs []map[string]any, queryType string, handler func(context.Context) (any, error)) (any, error) {
	return a.optimizer.OptimizeQuery(ctx, q, contextDocs, queryType, admission.Task(handler))
}

// ProcessQuery classifies a query and extracts its entities without
// searching.
func (a *App) ProcessQuery(q string) (Intent, error) {
	intent, err := a.queries.Process(q)
	if err != nil {
		return Intent{}, err
	}
	return toPublicIntent(intent), nil
}

// Ingest embeds and stores a document. The background indexer pushes it into
// the vector index shortly after.
func (a *App) Ingest(ctx context.Context, doc Document) (Document, error) {
	d := fromPublicDocument(doc)
	if err := d.Validate(); err != nil {
		return Document{}, err
	}
	vec, err := a.embedder.Embed(ctx, d.Content)
	if err != nil {
		return Document{}, fmt.Errorf("kenko: embed document: %w", err)
	}
	created, err := a.db.CreateDocument(ctx, d, &vec)
	if err != nil {
		return Document{}, err
	}
	return toPublicDocument(created), nil
}

// Stats aggregates optimizer, cache, and corpus statistics.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	counts, err := a.db.CountByType(ctx)
	if err != nil {
		return Stats{}, err
	}
	byType := make(map[string]int, len(counts))
	total := 0
	for t, n := range counts {
		byType[string(t)] = n
		total += n
	}
	return Stats{
		Version:         a.version,
		Optimizer:       a.optimizer.Stats(),
		Documents:       total,
		DocumentsByType: byType,
	}, nil
}

// Healthy reports whether the database and, when configured, the vector
// index are reachable.
func (a *App) Healthy(ctx context.Context) error {
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("kenko: database: %w", err)
	}
	if a.qdrant != nil {
		if err := a.qdrant.Healthy(ctx); err != nil {
			return fmt.Errorf("kenko: qdrant: %w", err)
		}
	}
	return nil
}

// Close shuts down in dependency order: drain the indexer so pending
// documents reach the vector index, stop the optimizer's loops, snapshot and
// close the caches, then release the database and telemetry.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("kenko shutting down")

	if a.indexer != nil {
		a.indexer.Drain(ctx)
	}
	a.optimizer.Close()

	var errs []error
	if err := a.caches.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if a.qdrant != nil {
		if err := a.qdrant.Close(); err != nil {
			errs = append(errs, fmt.Errorf("qdrant: %w", err))
		}
	}
	a.db.Close()
	if err := a.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}

// newEmbeddingProvider picks a provider from config: an explicit choice is
// honored, "auto" prefers OpenAI when a key is present, then Ollama.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "openai":
		logger.Info("embeddings: openai", "model", cfg.EmbeddingModel)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	case "ollama":
		logger.Info("embeddings: ollama", "model", cfg.OllamaModel)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
	case "noop":
		logger.Warn("embeddings: noop provider, search quality will be meaningless")
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}
	if cfg.OpenAIAPIKey != "" {
		logger.Info("embeddings: openai (auto)", "model", cfg.EmbeddingModel)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}
	logger.Info("embeddings: ollama (auto)", "model", cfg.OllamaModel, "url", cfg.OllamaURL)
	return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDimensions)
}

// retrieverBackend adapts the retriever to the optimizer's Backend interface.
// With search disabled it reports the sentinel error, which the optimizer
// records and absorbs.
type retrieverBackend struct {
	retriever *retrieve.Retriever
}

func (b *retrieverBackend) Search(ctx context.Context, q string, n int) ([]model.RetrievalResult, error) {
	if b.retriever == nil {
		return nil, ErrSearchDisabled
	}
	return b.retriever.Retrieve(ctx, q, n, search.Filters{})
}
