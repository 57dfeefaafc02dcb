package optimize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charlesparmar/kenko/internal/admission"
	"github.com/charlesparmar/kenko/internal/batch"
	"github.com/charlesparmar/kenko/internal/cache"
	"github.com/charlesparmar/kenko/internal/metrics"
	"github.com/charlesparmar/kenko/internal/model"
)

// Config sizes the optimizer's components. Zero values get defaults.
type Config struct {
	MaxConcurrent int           // admission limit, default 10
	QueueSize     int           // admission overflow queue, default 100
	BatchWorkers  int           // batch parallelism, default 4
	BatchQueue    int           // pending batch jobs, default 100
	MaxSamples    int           // performance sample log bound
	SearchBatch   int           // queries per batch-search chunk, default 10
	SweepInterval time.Duration // cleanup cadence, default 1h
	JobMaxAge     time.Duration // finished-job retention, default 24h
}

// Stats aggregates the state of every optimizer component.
type Stats struct {
	Performance  metrics.Statistics `json:"performance"`
	VectorSearch metrics.Statistics `json:"vector_search"`
	Balancer     admission.Stats    `json:"load_balancer"`
	Cache        cache.AllStats     `json:"cache"`
	ActiveJobs   int                `json:"active_jobs"`
	FinishedJobs int                `json:"finished_jobs"`
}

// Optimizer composes the performance monitor, batch processor, vector search
// optimizer, and admission balancer behind one facade, and owns the periodic
// sweep that retires finished batch jobs and expired cache entries.
type Optimizer struct {
	logger   *slog.Logger
	caches   *cache.Manager
	monitor  *metrics.Monitor
	batches  *batch.Processor
	balancer *admission.Balancer
	vectors  *VectorOptimizer

	sweepInterval time.Duration
	jobMaxAge     time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewOptimizer wires the components together and starts the sweep loop.
// caches may be nil to run without caching.
func NewOptimizer(backend Backend, caches *cache.Manager, logger *slog.Logger, cfg Config) *Optimizer {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.JobMaxAge <= 0 {
		cfg.JobMaxAge = 24 * time.Hour
	}

	monitor := metrics.NewMonitor(cfg.MaxSamples)
	o := &Optimizer{
		logger:        logger,
		caches:        caches,
		monitor:       monitor,
		batches:       batch.NewProcessor(cfg.BatchWorkers, cfg.BatchQueue, logger),
		balancer:      admission.NewBalancer(cfg.MaxConcurrent, cfg.QueueSize, logger),
		vectors:       NewVectorOptimizer(backend, caches, monitor, logger, cfg.SearchBatch),
		sweepInterval: cfg.SweepInterval,
		jobMaxAge:     cfg.JobMaxAge,
		done:          make(chan struct{}),
	}

	o.wg.Add(1)
	go o.sweepLoop()
	return o
}

func (o *Optimizer) sweepLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			o.sweep()
		}
	}
}

func (o *Optimizer) sweep() {
	removed := o.batches.Cleanup(o.jobMaxAge)
	if o.caches != nil {
		o.caches.Optimize()
	}
	o.logger.Debug("optimize: periodic sweep completed", "jobs_removed", removed)
}

// OptimizeQuery answers a query through the response cache, falling back to
// running handler under admission control. The handler result is cached on
// the (query, context, queryType) key.
func (o *Optimizer) OptimizeQuery(ctx context.Context, query string, contextDocs []map[string]any, queryType string, handler admission.Task) (any, error) {
	start := time.Now()

	if o.caches != nil {
		if cached, ok := o.caches.GetResponse(query, contextDocs, queryType); ok {
			o.monitor.Record(ctx, "query_cache_hit", time.Since(start), true,
				map[string]any{"query": query, "query_type": queryType})
			return cached, nil
		}
	}

	result, err := o.balancer.Do(ctx, handler)
	if err != nil {
		o.monitor.Record(ctx, "optimized_query", time.Since(start), false,
			map[string]any{"query": query, "error": err.Error()})
		return nil, err
	}

	if o.caches != nil {
		o.caches.SetResponse(query, contextDocs, queryType, result, 0)
	}
	o.monitor.Record(ctx, "optimized_query", time.Since(start), true,
		map[string]any{"query": query, "query_type": queryType})
	return result, nil
}

// Search answers a single vector search through the optimizer.
func (o *Optimizer) Search(ctx context.Context, query string, n int, filters map[string]any) []model.RetrievalResult {
	return o.vectors.Search(ctx, query, n, filters)
}

// BatchSearch answers multiple queries through the optimizer.
func (o *Optimizer) BatchSearch(ctx context.Context, queries []string, n int) [][]model.RetrievalResult {
	return o.vectors.BatchSearch(ctx, queries, n)
}

// SubmitBatch enqueues an asynchronous batch job; poll JobStatus for
// progress and JobResults once it finishes.
func (o *Optimizer) SubmitBatch(items []any, fn batch.ProcessFunc) (uuid.UUID, error) {
	return o.batches.Submit(items, fn)
}

// JobStatus reports a batch job's progress.
func (o *Optimizer) JobStatus(id uuid.UUID) (batch.JobStatus, bool) {
	return o.batches.Status(id)
}

// JobResults returns a finished job's result slots.
func (o *Optimizer) JobResults(id uuid.UUID) ([]any, bool) {
	return o.batches.Results(id)
}

// Monitor exposes the shared performance monitor.
func (o *Optimizer) Monitor() *metrics.Monitor {
	return o.monitor
}

// Stats aggregates statistics from every component.
func (o *Optimizer) Stats() Stats {
	active, finished := o.batches.Jobs()
	st := Stats{
		Performance:  o.monitor.Stats("", 0),
		VectorSearch: o.vectors.Stats(),
		Balancer:     o.balancer.Stats(),
		ActiveJobs:   active,
		FinishedJobs: finished,
	}
	if o.caches != nil {
		st.Cache = o.caches.Stats()
	}
	return st
}

// Close stops the sweep loop and the component workers. The cache manager is
// not closed here; its owner decides when snapshots are taken. Idempotent.
func (o *Optimizer) Close() {
	o.once.Do(func() {
		close(o.done)
		o.wg.Wait()
		o.balancer.Close()
		o.batches.Close()
		o.logger.Info("optimize: shut down")
	})
}
