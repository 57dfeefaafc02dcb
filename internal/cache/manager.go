package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/charlesparmar/kenko/internal/model"
)

// Manager aggregates the three caches — generated responses, vector search
// results, and text embeddings — behind typed get/set methods, and owns
// snapshot persistence and the expiry sweep.
type Manager struct {
	logger    *slog.Logger
	response  *Store
	vector    *Store
	embedding *Store
	snapshots *SnapshotStore // nil when persistence is disabled
}

// ManagerConfig sizes the three stores. Zero values fall back to defaults
// (response 1000/1h, vector 500/30m, embedding 2000/2h).
type ManagerConfig struct {
	ResponseSize  int
	ResponseTTL   time.Duration
	VectorSize    int
	VectorTTL     time.Duration
	EmbeddingSize int
	EmbeddingTTL  time.Duration

	// SnapshotPath is the SQLite file for persistence; empty disables it.
	SnapshotPath string
}

// AllStats aggregates per-store statistics.
type AllStats struct {
	Response     Stats `json:"response_cache"`
	Vector       Stats `json:"vector_cache"`
	Embedding    Stats `json:"embedding_cache"`
	TotalEntries int   `json:"total_entries"`
}

// NewManager creates the three stores and, when configured, opens the
// snapshot database and restores any previous snapshot.
func NewManager(cfg ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if cfg.ResponseSize <= 0 {
		cfg.ResponseSize = 1000
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = time.Hour
	}
	if cfg.VectorSize <= 0 {
		cfg.VectorSize = 500
	}
	if cfg.VectorTTL <= 0 {
		cfg.VectorTTL = 30 * time.Minute
	}
	if cfg.EmbeddingSize <= 0 {
		cfg.EmbeddingSize = 2000
	}
	if cfg.EmbeddingTTL <= 0 {
		cfg.EmbeddingTTL = 2 * time.Hour
	}

	m := &Manager{
		logger:    logger,
		response:  NewStore("response", cfg.ResponseSize, cfg.ResponseTTL),
		vector:    NewStore("vector", cfg.VectorSize, cfg.VectorTTL),
		embedding: NewStore("embedding", cfg.EmbeddingSize, cfg.EmbeddingTTL),
	}

	if cfg.SnapshotPath != "" {
		ss, err := OpenSnapshotStore(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		m.snapshots = ss
		if err := m.LoadSnapshot(); err != nil {
			logger.Warn("cache: snapshot restore failed, starting cold", "error", err)
		}
	}

	return m, nil
}

// GetResponse probes the response cache for (query, context, queryType).
func (m *Manager) GetResponse(query string, context []map[string]any, queryType string) (any, bool) {
	return m.response.Get(ResponseKey(query, context, queryType))
}

// SetResponse caches a generated response. ttl <= 0 uses the store default.
func (m *Manager) SetResponse(query string, context []map[string]any, queryType string, response any, ttl time.Duration) {
	m.response.Set(ResponseKey(query, context, queryType), response, ttl, map[string]any{
		"query":         query,
		"query_type":    queryType,
		"context_count": len(context),
	})
}

// GetVectorResults probes the vector cache for exact (query, n, filters).
func (m *Manager) GetVectorResults(query string, n int, filters map[string]any) ([]model.RetrievalResult, bool) {
	v, ok := m.vector.Get(VectorKey(query, n, filters))
	if !ok {
		return nil, false
	}
	results, ok := v.([]model.RetrievalResult)
	return results, ok
}

// SetVectorResults caches vector search results.
func (m *Manager) SetVectorResults(query string, n int, filters map[string]any, results []model.RetrievalResult, ttl time.Duration) {
	m.vector.Set(VectorKey(query, n, filters), results, ttl, map[string]any{
		"query":         query,
		"n_results":     n,
		"results_count": len(results),
	})
}

// GetEmbedding probes the embedding cache for (text, modelName).
func (m *Manager) GetEmbedding(text, modelName string) ([]float32, bool) {
	v, ok := m.embedding.Get(EmbeddingKey(text, modelName))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

// SetEmbedding caches an embedding vector.
func (m *Manager) SetEmbedding(text, modelName string, vec []float32, ttl time.Duration) {
	m.embedding.Set(EmbeddingKey(text, modelName), vec, ttl, map[string]any{
		"text_length": len(text),
		"model_name":  modelName,
		"dimensions":  len(vec),
	})
}

// ClearAll empties every store.
func (m *Manager) ClearAll() {
	m.response.Clear()
	m.vector.Clear()
	m.embedding.Clear()
}

// Stats aggregates statistics across the three stores.
func (m *Manager) Stats() AllStats {
	st := AllStats{
		Response:  m.response.Stats(),
		Vector:    m.vector.Stats(),
		Embedding: m.embedding.Stats(),
	}
	st.TotalEntries = st.Response.TotalEntries + st.Vector.TotalEntries + st.Embedding.TotalEntries
	return st
}

// Optimize sweeps all stores, removing expired entries.
func (m *Manager) Optimize() {
	purged := m.response.PurgeExpired() + m.vector.PurgeExpired() + m.embedding.PurgeExpired()
	if purged > 0 {
		m.logger.Debug("cache: expiry sweep", "purged", purged)
	}
}

// SaveSnapshot persists all three stores. No-op when persistence is disabled.
func (m *Manager) SaveSnapshot() error {
	if m.snapshots == nil {
		return nil
	}
	for _, s := range []*Store{m.response, m.vector, m.embedding} {
		snaps, err := exportSnapshots(s)
		if err != nil {
			return err
		}
		doc, err := json.Marshal(snaps)
		if err != nil {
			return fmt.Errorf("cache: marshal snapshot for %q: %w", s.name, err)
		}
		if err := m.snapshots.Save(s.name, doc); err != nil {
			return err
		}
	}
	m.logger.Info("cache: snapshot saved",
		"response", m.response.Len(), "vector", m.vector.Len(), "embedding", m.embedding.Len())
	return nil
}

// LoadSnapshot restores all three stores from the snapshot database,
// dropping entries that expired while the process was down. Each store
// decodes values into its own type; the response store keeps generic JSON.
func (m *Manager) LoadSnapshot() error {
	if m.snapshots == nil {
		return nil
	}

	restored := 0
	snaps, err := m.loadStore(m.response.name)
	if err != nil {
		return err
	}
	restored += importSnapshots[any](m.response, snaps)

	snaps, err = m.loadStore(m.vector.name)
	if err != nil {
		return err
	}
	restored += importSnapshots[[]model.RetrievalResult](m.vector, snaps)

	snaps, err = m.loadStore(m.embedding.name)
	if err != nil {
		return err
	}
	restored += importSnapshots[[]float32](m.embedding, snaps)

	if restored > 0 {
		m.logger.Info("cache: snapshot restored", "entries", restored)
	}
	return nil
}

func (m *Manager) loadStore(name string) ([]EntrySnapshot, error) {
	doc, ok, err := m.snapshots.Load(name)
	if err != nil || !ok {
		return nil, err
	}
	var snaps []EntrySnapshot
	if err := json.Unmarshal(doc, &snaps); err != nil {
		return nil, fmt.Errorf("cache: decode snapshot for %q: %w", name, err)
	}
	return snaps, nil
}

// Close saves a final snapshot and closes the snapshot database.
func (m *Manager) Close() error {
	if m.snapshots == nil {
		return nil
	}
	if err := m.SaveSnapshot(); err != nil {
		m.logger.Warn("cache: final snapshot failed", "error", err)
	}
	return m.snapshots.Close()
}
