package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/worker/processor"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
	err   error
}

func (r *recordingProcessor) Process(ctx context.Context, task processor.Task) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, task.JobID)
	return r.err
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

type sliceConsumer struct {
	msgs    []models.JobMessage
	results []error
}

func (s *sliceConsumer) Consume(ctx context.Context, h ports.MessageHandler) error {
	for _, m := range s.msgs {
		s.results = append(s.results, h(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunDeliversEveryMessage(t *testing.T) {
	proc := &recordingProcessor{err: fmt.Errorf("render failed")}
	q := &sliceConsumer{msgs: []models.JobMessage{{JobID: "a"}, {JobID: "b"}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Deps{Queue: q, Processor: proc, Log: logger.Discard()}) }()

	deadline := time.Now().Add(time.Second)
	for proc.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if proc.count() != 2 {
		t.Errorf("expected 2 jobs, got %d", proc.count())
	}
	for _, err := range q.results {
		if err == nil {
			t.Error("expected handler to surface the job error")
		}
	}
}

type failingConsumer struct{}

func (failingConsumer) Consume(ctx context.Context, h ports.MessageHandler) error {
	return errors.DependencyUnavailable("queue")
}

func TestRunReturnsConsumerError(t *testing.T) {
	err := Run(context.Background(), Deps{Queue: failingConsumer{}, Processor: &recordingProcessor{}, Log: logger.Discard()})
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestPoolSaturation(t *testing.T) {
	proc := &recordingProcessor{block: make(chan struct{})}
	p := NewPool(proc, 1, 2, logger.Discard())

	// one task is picked up by the worker, two wait in the channel
	if err := p.Submit(processor.Task{JobID: "1"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for len(p.tasks) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for _, id := range []string{"2", "3"} {
		if err := p.Submit(processor.Task{JobID: id}); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	err := p.Submit(processor.Task{JobID: "4"})
	if !errors.IsCode(err, errors.CodeResourceExhausted) {
		t.Fatalf("expected resource exhausted, got %v", err)
	}

	close(proc.block)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if proc.count() != 3 {
		t.Errorf("expected queued tasks drained, got %d", proc.count())
	}
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	p := NewPool(&recordingProcessor{}, 2, 4, logger.Discard())
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("expected second shutdown to be a no-op, got %v", err)
	}
	if err := p.Submit(processor.Task{JobID: "x"}); !errors.IsCode(err, errors.CodeResourceExhausted) {
		t.Errorf("expected resource exhausted, got %v", err)
	}
}

func TestPoolShutdownDeadlineCancelsRunningTasks(t *testing.T) {
	proc := &recordingProcessor{block: make(chan struct{})}
	p := NewPool(proc, 1, 1, logger.Discard())
	if err := p.Submit(processor.Task{JobID: "slow"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := p.Shutdown(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
