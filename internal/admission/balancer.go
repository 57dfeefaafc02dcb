// Package admission bounds how many requests execute concurrently. Requests
// under the limit run inline on the caller's goroutine; overflow requests are
// queued and executed by a consumer goroutine, with each caller blocking on
// its own result channel.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Task produces a request's result.
type Task func(ctx context.Context) (any, error)

type queued struct {
	ctx    context.Context
	task   Task
	result chan outcome // buffered, one send per request
}

type outcome struct {
	value any
	err   error
}

// Stats is a point-in-time view of the balancer.
type Stats struct {
	Active        int     `json:"active_requests"`
	Queued        int     `json:"queued_requests"`
	MaxConcurrent int     `json:"max_concurrent"`
	Utilization   float64 `json:"utilization"`
}

// Balancer admits up to maxConcurrent requests at a time.
type Balancer struct {
	logger        *slog.Logger
	maxConcurrent int

	slots chan struct{} // one token per active request
	queue chan *queued
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewBalancer creates a balancer and starts its overflow consumer.
// maxConcurrent and queueSize fall back to 10 and 100 when <= 0.
func NewBalancer(maxConcurrent, queueSize int, logger *slog.Logger) *Balancer {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	b := &Balancer{
		logger:        logger,
		maxConcurrent: maxConcurrent,
		slots:         make(chan struct{}, maxConcurrent),
		queue:         make(chan *queued, queueSize),
		done:          make(chan struct{}),
	}
	b.wg.Add(1)
	go b.consume()
	return b
}

// Do executes task under the concurrency limit. Under the limit it runs
// inline; otherwise the request is queued and Do blocks until the consumer
// has run it. The task's error reaches the caller unchanged either way.
//
// Queued tasks run on the consumer goroutine with the submitting caller's
// context; a caller whose context expires stops waiting, but its task still
// runs when it reaches the head of the queue and must honor ctx itself.
func (b *Balancer) Do(ctx context.Context, task Task) (any, error) {
	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
		return task(ctx)
	default:
	}

	q := &queued{ctx: ctx, task: task, result: make(chan outcome, 1)}
	select {
	case <-b.done:
		return nil, fmt.Errorf("admission: balancer closed")
	case b.queue <- q:
	default:
		return nil, fmt.Errorf("admission: queue full")
	}

	b.logger.Debug("admission: request queued", "queued", len(b.queue))
	select {
	case out := <-q.result:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// consume drains the overflow queue, waiting for a free slot before each task.
func (b *Balancer) consume() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case q := <-b.queue:
			select {
			case <-b.done:
				q.result <- outcome{err: fmt.Errorf("admission: balancer closed")}
				return
			case b.slots <- struct{}{}:
			}
			b.runQueued(q)
		}
	}
}

func (b *Balancer) runQueued(q *queued) {
	defer func() { <-b.slots }()
	defer func() {
		if r := recover(); r != nil {
			q.result <- outcome{err: fmt.Errorf("admission: task panicked: %v", r)}
		}
	}()

	value, err := q.task(q.ctx)
	q.result <- outcome{value: value, err: err}
}

// Stats reports current occupancy.
func (b *Balancer) Stats() Stats {
	active := len(b.slots)
	return Stats{
		Active:        active,
		Queued:        len(b.queue),
		MaxConcurrent: b.maxConcurrent,
		Utilization:   float64(active) / float64(b.maxConcurrent) * 100,
	}
}

// Close stops the consumer. In-flight requests finish normally; requests
// still queued receive a closed error.
func (b *Balancer) Close() {
	select {
	case <-b.done:
		return
	default:
	}
	close(b.done)
	b.wg.Wait()

	for {
		select {
		case q := <-b.queue:
			q.result <- outcome{err: fmt.Errorf("admission: balancer closed")}
		default:
			return
		}
	}
}
