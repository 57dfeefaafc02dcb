package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Defaults for document write paths. Reads are not retried; the searcher
// hydration path surfaces transient errors to the retriever instead.
const (
	writeRetries   = 3
	writeRetryBase = 50 * time.Millisecond
)

// isTransient reports whether err is a Postgres conflict worth retrying:
// serialization_failure (40001) or deadlock_detected (40P01).
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withRetry executes fn, retrying up to maxRetries times on transient
// conflicts with jittered exponential backoff starting at baseDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}

// writeRetry is withRetry with the document write defaults.
func writeRetry(ctx context.Context, fn func() error) error {
	return withRetry(ctx, writeRetries, writeRetryBase, fn)
}
