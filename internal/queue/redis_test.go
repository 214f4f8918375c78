package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"videogenie/internal/models"
	"videogenie/internal/pkg/logger"
)

func newTestQueue(t *testing.T) (*RedisQueue, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewRedisQueue(rdb, "videoJob", 1, logger.Discard())
	q.pollTimeout = time.Second
	return q, rdb
}

// consume runs q.Consume in the background and returns a stop func that
// cancels it and waits for it to return.
func consume(t *testing.T, q *RedisQueue, h func(context.Context, models.JobMessage) error) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := q.Consume(ctx, h); err != nil {
			t.Errorf("Consume: %v", err)
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recv(t *testing.T, ch <-chan models.JobMessage) models.JobMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
		return models.JobMessage{}
	}
}

func TestRedisPublishConsume(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"j1", "j2"} {
		if err := q.Publish(ctx, models.JobMessage{JobID: id, AvatarID: "demo"}); err != nil {
			t.Fatalf("Publish %s: %v", id, err)
		}
	}

	got := make(chan models.JobMessage, 2)
	stop := consume(t, q, func(ctx context.Context, m models.JobMessage) error {
		got <- m
		return nil
	})

	if m := recv(t, got); m.JobID != "j1" || m.AvatarID != "demo" {
		t.Errorf("expected j1 first, got %+v", m)
	}
	if m := recv(t, got); m.JobID != "j2" {
		t.Errorf("expected j2 second, got %+v", m)
	}
	stop()

	if n := rdb.LLen(ctx, "videoJob:processing").Val(); n != 0 {
		t.Errorf("expected processing list drained, got %d", n)
	}
	if n := rdb.LLen(ctx, "videoJob").Val(); n != 0 {
		t.Errorf("expected queue empty, got %d", n)
	}
}

func TestRedisAcksFailedHandler(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()
	_ = q.Publish(ctx, models.JobMessage{JobID: "j1"})

	calls := make(chan models.JobMessage, 4)
	stop := consume(t, q, func(ctx context.Context, m models.JobMessage) error {
		calls <- m
		return fmt.Errorf("render failed")
	})
	recv(t, calls)
	waitFor(t, "ack", func() bool { return rdb.LLen(ctx, "videoJob:processing").Val() == 0 })
	stop()

	if len(calls) != 0 {
		t.Errorf("expected no redelivery, got %d more", len(calls))
	}
}

func TestRedisSurvivesHandlerPanic(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	_ = q.Publish(ctx, models.JobMessage{JobID: "boom"})
	_ = q.Publish(ctx, models.JobMessage{JobID: "ok"})

	got := make(chan models.JobMessage, 2)
	stop := consume(t, q, func(ctx context.Context, m models.JobMessage) error {
		if m.JobID == "boom" {
			panic("nil face image")
		}
		got <- m
		return nil
	})
	defer stop()

	if m := recv(t, got); m.JobID != "ok" {
		t.Errorf("expected ok after panic, got %+v", m)
	}
}

func TestRedisDeadLettersUndecodable(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()
	rdb.LPush(ctx, "videoJob", "not json")
	rdb.LPush(ctx, "videoJob", `{"text":"no id"}`)

	stop := consume(t, q, func(ctx context.Context, m models.JobMessage) error {
		t.Errorf("handler should not see %+v", m)
		return nil
	})
	waitFor(t, "dead letters", func() bool { return rdb.LLen(ctx, "videoJob:dead").Val() == 2 })
	stop()

	if n := rdb.LLen(ctx, "videoJob:processing").Val(); n != 0 {
		t.Errorf("expected processing list drained, got %d", n)
	}
}

func TestRedisRequeuesStrandedMessages(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	raw, _ := json.Marshal(models.JobMessage{JobID: "stranded"})
	rdb.LPush(ctx, "videoJob:processing", raw)

	got := make(chan models.JobMessage, 1)
	stop := consume(t, q, func(ctx context.Context, m models.JobMessage) error {
		got <- m
		return nil
	})
	defer stop()

	if m := recv(t, got); m.JobID != "stranded" {
		t.Errorf("expected stranded message, got %+v", m)
	}
}

func TestRedisPublishRejectsEmptyID(t *testing.T) {
	q, rdb := newTestQueue(t)
	if err := q.Publish(context.Background(), models.JobMessage{}); err == nil {
		t.Fatal("expected error for message without jobId")
	}
	if n := rdb.LLen(context.Background(), "videoJob").Val(); n != 0 {
		t.Errorf("expected nothing published, got %d", n)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	m, err := decodeMessage([]byte(`{"jobId":"j1","text":"hello","futureField":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.JobID != "j1" || m.Text != "hello" {
		t.Errorf("unexpected message %+v", m)
	}
}
