package optimize

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesparmar/kenko/internal/cache"
	"github.com/charlesparmar/kenko/internal/metrics"
	"github.com/charlesparmar/kenko/internal/model"
)

type fakeBackend struct {
	results []model.RetrievalResult
	err     error
	calls   atomic.Int64
}

func (f *fakeBackend) Search(_ context.Context, _ string, _ int) ([]model.RetrievalResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testCaches(t *testing.T) *cache.Manager {
	t.Helper()
	m, err := cache.NewManager(cache.ManagerConfig{}, testLogger())
	require.NoError(t, err)
	return m
}

func resultNamed(content string) model.RetrievalResult {
	return model.RetrievalResult{ID: uuid.New(), Content: content, Score: 0.8}
}

func TestVectorOptimizerCachesSearches(t *testing.T) {
	backend := &fakeBackend{results: []model.RetrievalResult{resultNamed("doc")}}
	monitor := metrics.NewMonitor(0)
	o := NewVectorOptimizer(backend, testCaches(t), monitor, testLogger(), 0)

	first := o.Search(context.Background(), "current weight", 5, nil)
	require.Len(t, first, 1)
	assert.EqualValues(t, 1, backend.calls.Load())

	second := o.Search(context.Background(), "current weight", 5, nil)
	require.Len(t, second, 1)
	assert.EqualValues(t, 1, backend.calls.Load(), "second search must come from cache")

	// Different n misses the exact key.
	o.Search(context.Background(), "current weight", 10, nil)
	assert.EqualValues(t, 2, backend.calls.Load())

	hit := monitor.Stats("vector_search_cache_hit", 0)
	assert.Equal(t, 1, hit.Count)
}

func TestVectorOptimizerBackendErrorYieldsEmpty(t *testing.T) {
	backend := &fakeBackend{err: errors.New("index down")}
	monitor := metrics.NewMonitor(0)
	o := NewVectorOptimizer(backend, nil, monitor, testLogger(), 0)

	got := o.Search(context.Background(), "current weight", 5, nil)
	assert.Empty(t, got)

	st := monitor.Stats("vector_search", 0)
	assert.Equal(t, 1, st.Count)
	assert.Zero(t, st.SuccessRate)
}

func TestVectorOptimizerMetadataFilters(t *testing.T) {
	match := resultNamed("match")
	match.Metadata = map[string]any{"type": "measurement", "week": "3"}
	wrongValue := resultNamed("wrong value")
	wrongValue.Metadata = map[string]any{"type": "trend", "week": "3"}
	missingField := resultNamed("missing field")
	missingField.Metadata = map[string]any{"week": "3"}

	backend := &fakeBackend{results: []model.RetrievalResult{match, wrongValue, missingField}}
	o := NewVectorOptimizer(backend, nil, metrics.NewMonitor(0), testLogger(), 0)

	got := o.Search(context.Background(), "current weight", 5, map[string]any{"type": "measurement"})
	require.Len(t, got, 1)
	assert.Equal(t, match.ID, got[0].ID)

	// Slice filter means set membership.
	got = o.Search(context.Background(), "current weight", 5,
		map[string]any{"type": []string{"measurement", "trend"}})
	assert.Len(t, got, 2)
}

func TestVectorOptimizerBatchSizeConfigurable(t *testing.T) {
	backend := &fakeBackend{results: []model.RetrievalResult{resultNamed("doc")}}

	o := NewVectorOptimizer(backend, nil, metrics.NewMonitor(0), testLogger(), 7)
	assert.Equal(t, 7, o.batchSize)

	o = NewVectorOptimizer(backend, nil, metrics.NewMonitor(0), testLogger(), 0)
	assert.Equal(t, defaultBatchSize, o.batchSize)
}

func TestVectorOptimizerBatchSearch(t *testing.T) {
	backend := &fakeBackend{results: []model.RetrievalResult{resultNamed("doc")}}
	monitor := metrics.NewMonitor(0)
	o := NewVectorOptimizer(backend, nil, monitor, testLogger(), 0)

	queries := make([]string, 25)
	for i := range queries {
		queries[i] = uuid.NewString()
	}
	got := o.BatchSearch(context.Background(), queries, 3)

	require.Len(t, got, 25)
	assert.EqualValues(t, 25, backend.calls.Load())
	assert.Equal(t, 1, monitor.Stats("batch_vector_search", 0).Count)
	assert.Equal(t, 25, monitor.Stats("vector_search", 0).Count)
}

func TestMatchesMetadata(t *testing.T) {
	meta := map[string]any{"type": "measurement", "week": 3}

	assert.True(t, matchesMetadata(meta, map[string]any{"type": "measurement"}))
	assert.True(t, matchesMetadata(meta, map[string]any{"type": []any{"trend", "measurement"}}))
	assert.False(t, matchesMetadata(meta, map[string]any{"type": "trend"}))
	assert.False(t, matchesMetadata(meta, map[string]any{"missing": "x"}))
	assert.True(t, matchesMetadata(meta, map[string]any{"week": 3}))
	assert.False(t, matchesMetadata(meta, map[string]any{"week": 4}))
}
