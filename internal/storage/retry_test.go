package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deadlockErr() error {
	return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
}

func TestWithRetryRecoversFromTransientConflict(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return deadlockErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return deadlockErr()
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "40P01", pgErr.Code)
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	wantErr := errors.New("connection refused")
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, 3, 10*time.Millisecond, func() error {
		return deadlockErr()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isTransient(deadlockErr()))
	assert.False(t, isTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isTransient(errors.New("plain")))
	assert.False(t, isTransient(nil))
}
