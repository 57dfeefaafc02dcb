package cache

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesparmar/kenko/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestManagerTypedRoundTrips(t *testing.T) {
	m, err := NewManager(ManagerConfig{}, testLogger())
	require.NoError(t, err)
	defer m.Close()

	ctx := []map[string]any{{"content": "Week 12 (2025): weight 82.4"}}
	m.SetResponse("how is my weight", ctx, "trend", "your weight is trending down", 0)
	v, ok := m.GetResponse("how is my weight", ctx, "trend")
	require.True(t, ok)
	assert.Equal(t, "your weight is trending down", v)

	// Different context derives a different key.
	_, ok = m.GetResponse("how is my weight", nil, "trend")
	assert.False(t, ok)

	results := []model.RetrievalResult{{ID: uuid.New(), Content: "doc", Relevance: 0.9}}
	m.SetVectorResults("weight", 5, map[string]any{"content_type": "trend"}, results, 0)
	got, ok := m.GetVectorResults("weight", 5, map[string]any{"content_type": "trend"})
	require.True(t, ok)
	assert.Equal(t, results, got)

	m.SetEmbedding("some text", "nomic-embed-text", []float32{0.1, 0.2, 0.3}, 0)
	vec, ok := m.GetEmbedding("some text", "nomic-embed-text")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestManagerStatsAndClear(t *testing.T) {
	m, err := NewManager(ManagerConfig{}, testLogger())
	require.NoError(t, err)
	defer m.Close()

	m.SetResponse("q", nil, "general", "a", 0)
	m.SetEmbedding("t", "m", []float32{1}, 0)

	st := m.Stats()
	assert.Equal(t, 2, st.TotalEntries)
	assert.Equal(t, 1, st.Response.TotalEntries)
	assert.Equal(t, 1, st.Embedding.TotalEntries)
	assert.Equal(t, 0, st.Vector.TotalEntries)

	m.ClearAll()
	assert.Equal(t, 0, m.Stats().TotalEntries)
}

func TestManagerSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	m, err := NewManager(ManagerConfig{SnapshotPath: path}, testLogger())
	require.NoError(t, err)

	id := uuid.New()
	m.SetResponse("q", nil, "trend", map[string]any{"answer": "down"}, time.Hour)
	m.SetVectorResults("q", 3, nil, []model.RetrievalResult{{ID: id, Content: "doc", Relevance: 0.8}}, time.Hour)
	m.SetEmbedding("text", "model", []float32{0.5, 0.25}, time.Hour)
	m.SetEmbedding("stale", "model", []float32{1}, time.Nanosecond)

	require.NoError(t, m.Close())

	// A fresh manager on the same file restores the unexpired entries with
	// their original values and types.
	m2, err := NewManager(ManagerConfig{SnapshotPath: path}, testLogger())
	require.NoError(t, err)
	defer m2.Close()

	v, ok := m2.GetResponse("q", nil, "trend")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"answer": "down"}, v)

	results, ok := m2.GetVectorResults("q", 3, nil)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, "doc", results[0].Content)

	vec, ok := m2.GetEmbedding("text", "model")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.25}, vec)

	_, ok = m2.GetEmbedding("stale", "model")
	assert.False(t, ok, "expired entry must not survive a reload")
}

func TestManagerSnapshotPreservesBookkeeping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	m, err := NewManager(ManagerConfig{SnapshotPath: path}, testLogger())
	require.NoError(t, err)
	m.SetEmbedding("text", "model", []float32{1}, time.Hour)
	m.GetEmbedding("text", "model")
	m.GetEmbedding("text", "model")
	require.NoError(t, m.Close())

	m2, err := NewManager(ManagerConfig{SnapshotPath: path}, testLogger())
	require.NoError(t, err)
	defer m2.Close()

	entries := m2.embedding.Export()
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].AccessCount)
}
