package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Rrens/med-analyzer/internal/observability"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Task is a unit of background work
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

// Pool runs fire-and-forget tasks on a fixed set of goroutines.
// Each task runs behind its own error boundary: errors and panics are
// logged and counted, never propagated to the submitter.
type Pool struct {
	jobs    chan job
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	closed  bool
	metrics *observability.Metrics
}

// NewPool starts size workers with a queue of the given capacity
func NewPool(size, queue int, metrics *observability.Metrics) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	p := &Pool{
		jobs:    make(chan job, queue),
		group:   group,
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics,
	}

	for i := 0; i < size; i++ {
		group.Go(p.loop)
	}
	return p
}

// Submit queues a task. It returns false when the pool is shut down or the
// queue is full.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		log.Warn().Str("task", name).Msg("Worker pool closed, task rejected")
		p.metrics.WorkerTask("rejected")
		return false
	}

	select {
	case p.jobs <- job{name: name, task: task}:
		return true
	default:
		log.Warn().Str("task", name).Msg("Worker queue full, task rejected")
		p.metrics.WorkerTask("rejected")
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// When ctx expires first, running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) loop() error {
	for j := range p.jobs {
		p.run(j)
	}
	return nil
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("task", j.name).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Background task panicked")
			p.metrics.WorkerTask("panic")
		}
	}()

	if err := j.task(p.ctx); err != nil {
		log.Error().Err(err).Str("task", j.name).Msg("Background task failed")
		p.metrics.WorkerTask("error")
		return
	}
	p.metrics.WorkerTask("ok")
}
