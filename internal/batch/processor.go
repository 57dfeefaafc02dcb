// Package batch runs large item sets through a worker-chunked pipeline with
// per-job bookkeeping. Jobs are dispatched FIFO; within a job, chunks run in
// parallel across the configured workers.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProcessFunc handles one item. A returned error fails only that item; its
// result slot becomes nil and the job continues.
type ProcessFunc func(ctx context.Context, item any) (any, error)

// JobStatus is the externally visible state of a job. Errors carries at most
// the first five chunk errors.
type JobStatus struct {
	ID             uuid.UUID `json:"id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	TotalItems     int       `json:"total_items"`
	CompletedItems int       `json:"completed_items"`
	ErrorCount     int       `json:"error_count"`
	Errors         []string  `json:"errors,omitempty"`
}

type job struct {
	id        uuid.UUID
	items     []any
	fn        ProcessFunc
	status    Status
	createdAt time.Time
	doneAt    time.Time
	completed int
	results   []any
	errors    []string
}

// Processor owns the job queue and the dispatcher goroutine.
type Processor struct {
	logger  *slog.Logger
	workers int

	mu   sync.Mutex
	jobs map[uuid.UUID]*job

	queue chan *job
	done  chan struct{}
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewProcessor starts a processor with the given parallelism and queue depth.
// workers and queueSize fall back to 4 and 100 when <= 0.
func NewProcessor(workers, queueSize int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	p := &Processor{
		logger:  logger,
		workers: workers,
		jobs:    make(map[uuid.UUID]*job),
		queue:   make(chan *job, queueSize),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	p.wg.Add(1)
	go p.dispatch()
	return p
}

// Submit enqueues a job and returns its ID. It fails when the queue is full,
// the processor is closed, or the job is empty.
func (p *Processor) Submit(items []any, fn ProcessFunc) (uuid.UUID, error) {
	if len(items) == 0 {
		return uuid.Nil, fmt.Errorf("batch: empty job")
	}
	if fn == nil {
		return uuid.Nil, fmt.Errorf("batch: nil process func")
	}

	j := &job{
		id:        uuid.New(),
		items:     items,
		fn:        fn,
		status:    StatusPending,
		createdAt: p.now(),
		results:   make([]any, len(items)),
	}

	p.mu.Lock()
	p.jobs[j.id] = j
	p.mu.Unlock()

	select {
	case <-p.done:
		p.removeJob(j.id)
		return uuid.Nil, fmt.Errorf("batch: processor closed")
	case p.queue <- j:
		p.logger.Debug("batch: job queued", "job_id", j.id, "items", len(items))
		return j.id, nil
	default:
		p.removeJob(j.id)
		return uuid.Nil, fmt.Errorf("batch: queue full")
	}
}

// dispatch drains the queue in submission order, one job at a time.
func (p *Processor) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case j := <-p.queue:
			p.run(j)
		}
	}
}

func (p *Processor) run(j *job) {
	p.mu.Lock()
	j.status = StatusProcessing
	p.mu.Unlock()

	ctx := context.Background()
	chunkSize := len(j.items) / p.workers
	if chunkSize < 1 {
		chunkSize = 1
	}

	var g errgroup.Group
	chunks := 0
	for start := 0; start < len(j.items); start += chunkSize {
		end := min(start+chunkSize, len(j.items))
		chunks++
		g.Go(func() error {
			return p.runChunk(ctx, j, start, end)
		})
	}
	g.Wait()

	p.mu.Lock()
	if len(j.errors) == 0 {
		j.status = StatusCompleted
	} else {
		j.status = StatusFailed
	}
	j.doneAt = p.now()
	status, errCount := j.status, len(j.errors)
	p.mu.Unlock()

	p.logger.Info("batch: job finished",
		"job_id", j.id, "status", status, "items", len(j.items), "chunks", chunks, "errors", errCount)
}

// runChunk processes items[start:end]. A panic anywhere in the chunk is
// recovered and recorded as a job error; item results written before the
// panic are kept.
func (p *Processor) runChunk(ctx context.Context, j *job, start, end int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch: chunk [%d:%d] panicked: %v", start, end, r)
			p.mu.Lock()
			j.errors = append(j.errors, err.Error())
			p.mu.Unlock()
			p.logger.Error("batch: chunk panic", "job_id", j.id, "start", start, "end", end, "panic", r)
		}
	}()

	for i := start; i < end; i++ {
		result, itemErr := j.fn(ctx, j.items[i])
		p.mu.Lock()
		if itemErr != nil {
			j.results[i] = nil
			p.logger.Warn("batch: item failed", "job_id", j.id, "index", i, "error", itemErr)
		} else {
			j.results[i] = result
		}
		j.completed++
		p.mu.Unlock()
	}
	return nil
}

// Status reports the current state of a job.
func (p *Processor) Status(id uuid.UUID) (JobStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	st := JobStatus{
		ID:             j.id,
		Status:         j.status,
		CreatedAt:      j.createdAt,
		TotalItems:     len(j.items),
		CompletedItems: j.completed,
		ErrorCount:     len(j.errors),
	}
	if n := min(len(j.errors), 5); n > 0 {
		st.Errors = append([]string(nil), j.errors[:n]...)
	}
	return st, true
}

// Jobs counts tracked jobs by whether they have finished.
func (p *Processor) Jobs() (active, finished int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.jobs {
		if j.status == StatusCompleted || j.status == StatusFailed {
			finished++
		} else {
			active++
		}
	}
	return active, finished
}

// Results returns a job's result slots, one per submitted item in submission
// order, once the job has finished. Items that failed hold nil.
func (p *Processor) Results(id uuid.UUID) ([]any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok || (j.status != StatusCompleted && j.status != StatusFailed) {
		return nil, false
	}
	return append([]any(nil), j.results...), true
}

// Cleanup drops finished jobs older than maxAge and returns how many were
// removed.
func (p *Processor) Cleanup(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-maxAge)
	removed := 0
	for id, j := range p.jobs {
		finished := j.status == StatusCompleted || j.status == StatusFailed
		if finished && j.doneAt.Before(cutoff) {
			delete(p.jobs, id)
			removed++
		}
	}
	return removed
}

// Close stops the dispatcher. Queued jobs that have not started are left in
// pending state; Submit fails afterwards.
func (p *Processor) Close() {
	select {
	case <-p.done:
		return
	default:
	}
	close(p.done)
	p.wg.Wait()
}

func (p *Processor) removeJob(id uuid.UUID) {
	p.mu.Lock()
	delete(p.jobs, id)
	p.mu.Unlock()
}
