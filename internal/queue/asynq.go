package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// TaskTypeRender is the asynq task type carrying a JobMessage.
const TaskTypeRender = "video:render"

// asynqMaxRetry only matters when a worker dies mid-task: the handler never
// asks for a retry, and the recoverer archives orphaned tasks once the
// retry budget is spent. Redelivery of a claimed job is a no-op.
const asynqMaxRetry = 3

// AsynqQueue enqueues one task per job, using the job id as the task id
// so a repeated publish cannot produce a second message.
type AsynqQueue struct {
	client      *asynq.Client
	redis       asynq.RedisClientOpt
	rdb         redis.UniversalClient
	queue       string
	concurrency int
	taskTimeout time.Duration
	log         *logger.Logger
}

// NewAsynqQueue builds the queue. taskTimeout bounds one task's run and must
// cover a whole render, downloads included.
func NewAsynqQueue(opt asynq.RedisClientOpt, queue string, concurrency int, taskTimeout time.Duration, log *logger.Logger) *AsynqQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	rdb, _ := opt.MakeRedisClient().(redis.UniversalClient)
	return &AsynqQueue{
		client:      asynq.NewClient(opt),
		redis:       opt,
		rdb:         rdb,
		queue:       queue,
		concurrency: concurrency,
		taskTimeout: taskTimeout,
		log:         log.WithComponent("queue.asynq"),
	}
}

func (q *AsynqQueue) Name() string { return "asynq" }

func (q *AsynqQueue) Ping(ctx context.Context) error {
	if q.rdb == nil {
		return errors.DependencyUnavailable("asynq redis")
	}
	return q.rdb.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	if q.rdb != nil {
		_ = q.rdb.Close()
	}
	return q.client.Close()
}

func (q *AsynqQueue) Publish(ctx context.Context, msg models.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeRender, raw), q.taskOptions(msg.JobID)...)
	if stderrors.Is(err, asynq.ErrTaskIDConflict) {
		q.log.Info("job already enqueued", "job_id", msg.JobID)
		return nil
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.asynq.publish", "enqueue failed").
			WithField("job_id", msg.JobID)
	}
	return nil
}

func (q *AsynqQueue) taskOptions(jobID string) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(q.queue),
		asynq.MaxRetry(asynqMaxRetry),
	}
	if q.taskTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.taskTimeout))
	}
	return opts
}

// Consume runs an asynq server until ctx ends.
func (q *AsynqQueue) Consume(ctx context.Context, h ports.MessageHandler) error {
	srv := asynq.NewServer(q.redis, asynq.Config{
		Concurrency: q.concurrency,
		Queues:      map[string]int{q.queue: 1},
		Logger:      asynqLogger{q.log},
		LogLevel:    asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRender, q.taskHandler(h))

	if err := srv.Start(mux); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.asynq.consume", "start server")
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// taskHandler never asks asynq to retry; redelivery policy lives in the
// job state machine.
func (q *AsynqQueue) taskHandler(h ports.MessageHandler) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		msg, err := decodeMessage(t.Payload())
		if err != nil {
			q.log.Error("skipping undecodable task", "error", err.Error())
			return fmt.Errorf("%s: %w", err.Error(), asynq.SkipRetry)
		}
		_ = deliver(ctx, q.log, h, msg)
		return nil
	}
}

type asynqLogger struct{ l *logger.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug(sprint(args)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(sprint(args)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(sprint(args)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(sprint(args)) }
func (a asynqLogger) Fatal(args ...any) { a.l.LogFatal(sprint(args), nil) }

func sprint(args []any) string { return strings.TrimSpace(fmt.Sprint(args...)) }
