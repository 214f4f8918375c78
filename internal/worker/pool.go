package worker

import (
	"context"
	"sync"

	"videogenie/internal/metrics"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/worker/processor"
)

// Pool runs synchronous submissions on a fixed number of goroutines fed by
// a bounded channel. Submit never blocks.
type Pool struct {
	proc  TaskProcessor
	tasks chan processor.Task
	log   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(proc TaskProcessor, workers, depth int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		proc:   proc,
		tasks:  make(chan processor.Task, depth),
		log:    log.WithComponent("avatar-pool"),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop(i)
	}
	p.log.Info("avatar pool started", "workers", workers, "queue_depth", depth)
	return p
}

// Submit enqueues task, or returns RESOURCE_EXHAUSTED when the queue is
// full or the pool is shutting down.
func (p *Pool) Submit(task processor.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ResourceExhausted("avatar pool is shutting down")
	}
	select {
	case p.tasks <- task:
		metrics.AvatarPoolDepth.Set(float64(len(p.tasks)))
		return nil
	default:
		return errors.ResourceExhausted("avatar pool is full").
			WithField("capacity", cap(p.tasks))
	}
}

func (p *Pool) loop(n int) {
	defer p.wg.Done()
	for task := range p.tasks {
		metrics.AvatarPoolDepth.Set(float64(len(p.tasks)))
		ctx := logger.ContextWithJobID(p.ctx, task.JobID)
		if err := p.proc.Process(ctx, task); err != nil {
			p.log.FromContext(ctx).WithError(err).Warn("avatar job failed", "worker", n)
		}
	}
}

// Shutdown stops intake and waits for queued and running tasks. When ctx
// ends first, running renders are canceled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
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
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
