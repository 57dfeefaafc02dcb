package search

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/charlesparmar/kenko/internal/storage"
	"github.com/charlesparmar/kenko/internal/telemetry"
)

// Indexer polls Postgres for documents not yet synced to Qdrant and upserts
// them in batches. Postgres rows carry an indexed_at marker, so a crash
// between upsert and mark simply reindexes the batch on the next poll
// (upserts are idempotent).
type Indexer struct {
	db           *storage.DB
	index        *QdrantIndex
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
	drainCh    chan context.Context // carries the drain context to pollLoop for the final poll

	indexed metric.Int64Counter
}

// NewIndexer creates an indexer. pollInterval and batchSize fall back to
// 5s and 100 when <= 0.
func NewIndexer(db *storage.DB, index *QdrantIndex, logger *slog.Logger, pollInterval time.Duration, batchSize int) *Indexer {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	meter := telemetry.Meter("kenko/indexer")
	indexed, _ := meter.Int64Counter("kenko.indexer.documents",
		metric.WithDescription("Documents synced to the vector index"),
	)
	return &Indexer{
		db:           db,
		index:        index,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		done:         make(chan struct{}),
		drainCh:      make(chan context.Context, 1),
		indexed:      indexed,
	}
}

// Start begins the background poll loop. It is safe to call only once;
// subsequent calls are no-ops and log a warning.
func (ix *Indexer) Start(ctx context.Context) {
	if !ix.started.CompareAndSwap(false, true) {
		ix.logger.Warn("indexer: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ix.cancelLoop = cancel
	go ix.pollLoop(loopCtx)
}

// Drain signals the poll loop to stop, processes remaining documents, and
// blocks until done or the context expires.
func (ix *Indexer) Drain(ctx context.Context) {
	// Send the drain context to pollLoop via channel (race-free).
	// Must be sent before cancelLoop so pollLoop can receive it on ctx.Done().
	select {
	case ix.drainCh <- ctx:
	default:
	}
	if ix.cancelLoop != nil {
		ix.cancelLoop()
	}
	select {
	case <-ix.done:
	case <-ctx.Done():
		ix.logger.Warn("indexer: drain timed out")
	}
}

func (ix *Indexer) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(ix.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain: prefer the drain context (sent by Drain via
			// channel) so the final poll respects the caller's deadline.
			var drainCtx context.Context
			select {
			case drainCtx = <-ix.drainCh:
			default:
			}
			if drainCtx != nil {
				ix.processBatch(drainCtx)
			} else {
				// Fallback for direct cancellation without Drain (e.g., tests).
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				ix.processBatch(fallbackCtx)
				cancel()
			}
			ix.once.Do(func() { close(ix.done) })
			return
		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			ix.processBatch(batchCtx)
			cancel()
		}
	}
}

func (ix *Indexer) processBatch(ctx context.Context) {
	pending, err := ix.db.ListUnindexed(ctx, ix.batchSize)
	if err != nil {
		ix.logger.Error("indexer: list unindexed", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	points := make([]Point, len(pending))
	ids := make([]uuid.UUID, len(pending))
	for i, d := range pending {
		week := ""
		if d.WeekNumber != nil {
			week = *d.WeekNumber
		}
		points[i] = Point{
			ID:         d.ID,
			Type:       d.Type,
			Date:       d.Date,
			WeekNumber: week,
			Embedding:  d.Embedding,
		}
		ids[i] = d.ID
	}

	if err := ix.index.Upsert(ctx, points); err != nil {
		ix.logger.Error("indexer: qdrant upsert", "error", err, "count", len(points))
		return
	}
	if err := ix.db.MarkIndexed(ctx, ids); err != nil {
		ix.logger.Error("indexer: mark indexed", "error", err, "count", len(ids))
		return
	}

	ix.indexed.Add(ctx, int64(len(ids)))
	ix.logger.Info("indexer: batch synced", "count", len(ids))
}
