// Package queue runs job tasks on a fixed set of workers fed by a bounded
// in-process queue.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
)

// Task is one unit of work. It runs to completion once started.
type Task func(ctx context.Context)

type Pool struct {
	workers int
	tasks   chan Task
	log     *logger.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewPool(workers, size int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, size),
		log:     log.WithComponent("dispatcher"),
	}
}

// Start launches the workers. Tasks receive ctx's values but not its
// cancellation: a dispatched job is never interrupted.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(base, i)
	}
	p.log.Info("dispatcher started", "workers", p.workers, "queue_size", cap(p.tasks))
}

// Submit enqueues t without blocking. A full queue is a resource-exhausted
// error; a stopped pool is unavailable.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.Unavailable("dispatcher")
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return errors.ResourceExhausted("job queue")
	}
}

// Pending returns the number of queued, not yet started tasks.
func (p *Pool) Pending() int { return len(p.tasks) }

// Stop refuses new tasks and waits for queued and running ones, or for ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher did not drain: %w", ctx.Err())
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(ctx, id, t)
	}
}

func (p *Pool) run(ctx context.Context, id int, t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("task panicked", "worker", id, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	t(ctx)
}
