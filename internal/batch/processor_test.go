package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitFinished(t *testing.T, p *Processor, id uuid.UUID) JobStatus {
	t.Helper()
	var st JobStatus
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = p.Status(id)
		return ok && (st.Status == StatusCompleted || st.Status == StatusFailed)
	}, 5*time.Second, 5*time.Millisecond)
	return st
}

func TestSubmitProcessesAllItems(t *testing.T) {
	p := NewProcessor(4, 10, testLogger())
	defer p.Close()

	items := make([]any, 10)
	for i := range items {
		items[i] = i
	}
	id, err := p.Submit(items, func(_ context.Context, item any) (any, error) {
		return item.(int) * 2, nil
	})
	require.NoError(t, err)

	st := waitFinished(t, p, id)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 10, st.TotalItems)
	assert.Equal(t, 10, st.CompletedItems)
	assert.Equal(t, 0, st.ErrorCount)

	results, ok := p.Results(id)
	require.True(t, ok)
	require.Len(t, results, 10, "one result slot per submitted item")
	for i, r := range results {
		assert.Equal(t, i*2, r, "slot %d must hold the result for item %d", i, i)
	}
}

func TestItemErrorLeavesNilSlotAndJobCompletes(t *testing.T) {
	p := NewProcessor(2, 10, testLogger())
	defer p.Close()

	id, err := p.Submit([]any{"a", "bad", "c"}, func(_ context.Context, item any) (any, error) {
		s := item.(string)
		if s == "bad" {
			return nil, fmt.Errorf("cannot process %q", s)
		}
		return strings.ToUpper(s), nil
	})
	require.NoError(t, err)

	st := waitFinished(t, p, id)
	assert.Equal(t, StatusCompleted, st.Status, "item errors do not fail the job")
	assert.Equal(t, 3, st.CompletedItems)
	assert.Equal(t, 0, st.ErrorCount)

	results, ok := p.Results(id)
	require.True(t, ok)
	assert.Equal(t, []any{"A", nil, "C"}, results)
}

func TestChunkPanicsFailTheJob(t *testing.T) {
	p := NewProcessor(4, 10, testLogger())
	defer p.Close()

	// 8 items across 4 workers gives 4 chunks of 2. Every item panics, so
	// every chunk records exactly one error.
	items := make([]any, 8)
	id, err := p.Submit(items, func(_ context.Context, _ any) (any, error) {
		panic("exploded")
	})
	require.NoError(t, err)

	st := waitFinished(t, p, id)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, 4, st.ErrorCount, "one error per panicked chunk")
	assert.Len(t, st.Errors, 4)
	assert.Contains(t, st.Errors[0], "panicked")
}

func TestStatusSurfacesAtMostFiveErrors(t *testing.T) {
	p := NewProcessor(8, 10, testLogger())
	defer p.Close()

	// 8 items, 8 workers: chunk size 1, so 8 chunks all panic.
	items := make([]any, 8)
	id, err := p.Submit(items, func(_ context.Context, _ any) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	st := waitFinished(t, p, id)
	assert.Equal(t, 8, st.ErrorCount)
	assert.Len(t, st.Errors, 5)
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	p := NewProcessor(1, 10, testLogger())
	defer p.Close()

	var mu struct {
		order []int
	}
	done := make(chan struct{})
	var ids []uuid.UUID
	for i := range 3 {
		id, err := p.Submit([]any{i}, func(_ context.Context, item any) (any, error) {
			mu.order = append(mu.order, item.(int))
			if len(mu.order) == 3 {
				close(done)
			}
			return item, nil
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not finish")
	}
	assert.Equal(t, []int{0, 1, 2}, mu.order)
	for _, id := range ids {
		waitFinished(t, p, id)
	}
}

func TestResultsUnavailableBeforeCompletion(t *testing.T) {
	p := NewProcessor(1, 10, testLogger())
	defer p.Close()

	release := make(chan struct{})
	id, err := p.Submit([]any{1}, func(_ context.Context, item any) (any, error) {
		<-release
		return item, nil
	})
	require.NoError(t, err)

	_, ok := p.Results(id)
	assert.False(t, ok)

	close(release)
	waitFinished(t, p, id)
	_, ok = p.Results(id)
	assert.True(t, ok)
}

func TestCleanupRemovesFinishedJobs(t *testing.T) {
	p := NewProcessor(2, 10, testLogger())
	defer p.Close()

	id, err := p.Submit([]any{1}, func(_ context.Context, item any) (any, error) {
		return item, nil
	})
	require.NoError(t, err)
	waitFinished(t, p, id)

	assert.Equal(t, 0, p.Cleanup(time.Hour), "young jobs survive")

	p.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.Equal(t, 1, p.Cleanup(time.Hour))
	_, ok := p.Status(id)
	assert.False(t, ok)
}

func TestSubmitRejectsEmptyAndClosed(t *testing.T) {
	p := NewProcessor(2, 10, testLogger())

	_, err := p.Submit(nil, func(_ context.Context, item any) (any, error) { return item, nil })
	assert.Error(t, err)

	p.Close()
	_, err = p.Submit([]any{1}, func(_ context.Context, item any) (any, error) { return item, nil })
	assert.Error(t, err)
}

func TestQueueFullRejectsSubmit(t *testing.T) {
	p := NewProcessor(1, 1, testLogger())
	defer p.Close()

	release := make(chan struct{})
	defer close(release)
	blocker := func(_ context.Context, item any) (any, error) {
		<-release
		return item, nil
	}

	// First job occupies the dispatcher, second fills the queue.
	_, err := p.Submit([]any{1}, blocker)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		if _, err := p.Submit([]any{2}, blocker); err != nil {
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	_, err = p.Submit([]any{3}, blocker)
	assert.Error(t, err)
}
