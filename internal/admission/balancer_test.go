package admission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDoRunsInlineUnderLimit(t *testing.T) {
	b := NewBalancer(2, 10, testLogger())
	defer b.Close()

	v, err := b.Do(context.Background(), func(_ context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 0, b.Stats().Active, "slot released after the task returns")
}

func TestErrorsPropagateToCaller(t *testing.T) {
	b := NewBalancer(1, 10, testLogger())
	defer b.Close()

	wantErr := errors.New("backend down")
	_, err := b.Do(context.Background(), func(_ context.Context) (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, b.Stats().Active, "slot released on error too")
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	const limit = 3
	b := NewBalancer(limit, 100, testLogger())
	defer b.Close()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Do(context.Background(), func(_ context.Context) (any, error) {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestQueuedRequestRunsAfterCapacityFrees(t *testing.T) {
	b := NewBalancer(1, 10, testLogger())
	defer b.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		b.Do(context.Background(), func(_ context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	// The limit is saturated, so this request goes through the queue.
	queuedDone := make(chan any, 1)
	go func() {
		v, err := b.Do(context.Background(), func(_ context.Context) (any, error) {
			return "queued result", nil
		})
		require.NoError(t, err)
		queuedDone <- v
	}()

	require.Eventually(t, func() bool {
		st := b.Stats()
		return st.Active == 1 && st.Queued >= 0
	}, time.Second, time.Millisecond)

	select {
	case <-queuedDone:
		t.Fatal("queued request ran while the limit was saturated")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case v := <-queuedDone:
		assert.Equal(t, "queued result", v)
	case <-time.After(2 * time.Second):
		t.Fatal("queued request never ran")
	}
}

func TestQueuedErrorReachesItsOwnCaller(t *testing.T) {
	b := NewBalancer(1, 10, testLogger())
	defer b.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		b.Do(context.Background(), func(_ context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	wantErr := errors.New("only mine")
	errs := make(chan error, 2)
	go func() {
		_, err := b.Do(context.Background(), func(_ context.Context) (any, error) {
			return nil, wantErr
		})
		errs <- err
	}()
	go func() {
		_, err := b.Do(context.Background(), func(_ context.Context) (any, error) {
			return nil, nil
		})
		errs <- err
	}()

	close(release)
	got := []error{<-errs, <-errs}
	failures := 0
	for _, err := range got {
		if err != nil {
			assert.ErrorIs(t, err, wantErr)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "the error must reach exactly the caller whose task failed")
}

func TestQueueFullRejects(t *testing.T) {
	b := NewBalancer(1, 1, testLogger())
	defer b.Close()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		b.Do(context.Background(), func(_ context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	// Fill the single queue slot.
	go func() {
		b.Do(context.Background(), func(_ context.Context) (any, error) { return nil, nil })
	}()
	require.Eventually(t, func() bool { return b.Stats().Queued == 1 }, time.Second, time.Millisecond)

	_, err := b.Do(context.Background(), func(_ context.Context) (any, error) { return nil, nil })
	assert.Error(t, err)
}

func TestCallerContextCancelWhileQueued(t *testing.T) {
	b := NewBalancer(1, 10, testLogger())
	defer b.Close()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		b.Do(context.Background(), func(_ context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Do(ctx, func(_ context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosedBalancerRejects(t *testing.T) {
	b := NewBalancer(1, 10, testLogger())
	b.Close()
	b.Close() // idempotent

	saturate := make(chan struct{})
	defer close(saturate)
	go b.Do(context.Background(), func(_ context.Context) (any, error) {
		<-saturate
		return nil, nil
	})
	require.Eventually(t, func() bool { return b.Stats().Active == 1 }, time.Second, time.Millisecond)

	_, err := b.Do(context.Background(), func(_ context.Context) (any, error) { return nil, nil })
	assert.Error(t, err)
}
