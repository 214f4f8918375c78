package queue

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"videogenie/internal/config"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// New builds the backend named by cfg.Queue.Backend. rdb is only used by
// the redis backend and may be nil otherwise.
func New(cfg *config.Config, rdb redis.UniversalClient, log *logger.Logger) (ports.Queue, error) {
	qc := cfg.Queue
	switch qc.Backend {
	case "redis":
		if rdb == nil {
			return nil, errors.DependencyUnavailable("redis")
		}
		return NewRedisQueue(rdb, qc.Name, qc.Concurrency, log), nil
	case "amqp":
		q, err := DialAMQP(qc.AMQPURL, qc.AMQPExchange, qc.Name, qc.Concurrency, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "asynq":
		return NewAsynqQueue(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, qc.Name, qc.Concurrency, taskTimeout(cfg), log), nil
	default:
		return nil, errors.Validationf("unknown queue backend %q", qc.Backend)
	}
}

// taskTimeout is the longest a worker may legitimately hold a message:
// every voice download attempt plus the stale-render threshold.
func taskTimeout(cfg *config.Config) time.Duration {
	r := cfg.Render
	return cfg.StaleRenderAfter() + time.Duration(r.DownloadAttempts)*r.DownloadTimeout
}
