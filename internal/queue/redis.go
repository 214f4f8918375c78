package queue

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"videogenie/internal/models"
	"videogenie/internal/pkg/backoff"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

const defaultPollTimeout = 2 * time.Second

// RedisQueue is a reliable list queue: producers LPUSH, consumers
// BRPOPLPUSH into <name>:processing and LREM once the handler returns.
// Messages left in the processing list by a crashed worker are requeued
// when the next consumer starts. Undecodable messages go to <name>:dead.
type RedisQueue struct {
	rdb         redis.UniversalClient
	name        string
	processing  string
	dead        string
	concurrency int
	pollTimeout time.Duration
	log         *logger.Logger
}

func NewRedisQueue(rdb redis.UniversalClient, name string, concurrency int, log *logger.Logger) *RedisQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RedisQueue{
		rdb:         rdb,
		name:        name,
		processing:  name + ":processing",
		dead:        name + ":dead",
		concurrency: concurrency,
		pollTimeout: defaultPollTimeout,
		log:         log.WithComponent("queue.redis"),
	}
}

func (q *RedisQueue) Name() string { return "redis" }

func (q *RedisQueue) Ping(ctx context.Context) error { return q.rdb.Ping(ctx).Err() }

// Close is a no-op; the Redis client belongs to the caller.
func (q *RedisQueue) Close() error { return nil }

// Publish returns once Redis has replied to the LPUSH.
func (q *RedisQueue) Publish(ctx context.Context, msg models.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.name, raw).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.redis.publish", "lpush failed").
			WithField("job_id", msg.JobID)
	}
	return nil
}

// Consume requeues stranded messages, then runs concurrency loops until ctx ends.
func (q *RedisQueue) Consume(ctx context.Context, h ports.MessageHandler) error {
	n, err := q.requeueStranded(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		q.log.Warn("requeued in-flight messages from a previous run", "count", n, "queue", q.name)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.loop(ctx, h)
		}()
	}
	wg.Wait()
	return nil
}

func (q *RedisQueue) requeueStranded(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.RPopLPush(ctx, q.processing, q.name).Err()
		if stderrors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.redis.requeue", "requeue failed")
		}
		n++
	}
}

func (q *RedisQueue) loop(ctx context.Context, h ports.MessageHandler) {
	for ctx.Err() == nil {
		raw, err := q.rdb.BRPopLPush(ctx, q.name, q.processing, q.pollTimeout).Result()
		if err != nil {
			if stderrors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Error("pop failed", "queue", q.name, "error", err.Error())
			if backoff.Sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}
		q.handle(ctx, raw, h)
	}
}

func (q *RedisQueue) handle(ctx context.Context, raw string, h ports.MessageHandler) {
	// The ack must land even when shutdown cancelled ctx mid-job.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	msg, err := decodeMessage([]byte(raw))
	if err != nil {
		q.log.Error("dead-lettering undecodable message", "queue", q.name, "error", err.Error())
		_, perr := q.rdb.TxPipelined(ackCtx, func(p redis.Pipeliner) error {
			p.LPush(ackCtx, q.dead, raw)
			p.LRem(ackCtx, q.processing, 1, raw)
			return nil
		})
		if perr != nil {
			q.log.Error("dead-letter failed", "error", perr.Error())
		}
		return
	}

	_ = deliver(ctx, q.log, h, msg)

	if err := q.rdb.LRem(ackCtx, q.processing, 1, raw).Err(); err != nil {
		q.log.Error("ack failed", "job_id", msg.JobID, "error", err.Error())
	}
}
