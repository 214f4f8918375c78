// Package bootstrap opens the backing services shared by every binary: the
// job store, the redis client and the queue. Each resource is registered
// with the shutdown manager as soon as it is acquired.
package bootstrap

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"videogenie/internal/config"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/pkg/shutdown"
	"videogenie/internal/ports"
	"videogenie/internal/queue"
	"videogenie/internal/repositories"
)

type Infra struct {
	Store ports.JobStore
	Redis redis.UniversalClient
	Queue ports.Queue
}

// Open connects the job store and queue named by cfg. Redis is dialed only
// when the store or queue backend needs it.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, mgr *shutdown.Manager) (*Infra, error) {
	infra := &Infra{}

	switch cfg.JobStore {
	case "postgres":
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap.postgres", "postgres connect failed")
		}
		mgr.RegisterSimple("postgres", pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap.postgres", "postgres ping failed")
		}
		store := repositories.NewPostgresJobStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		infra.Store = store
		log.Info("PostgreSQL connected")
	case "redis", "memory":
	default:
		return nil, errors.Validationf("unknown job store %q", cfg.JobStore)
	}

	if cfg.JobStore == "redis" || cfg.Queue.Backend == "redis" || cfg.Queue.Backend == "asynq" {
		log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		mgr.Register("redis", func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap.redis", "redis ping failed")
		}
		infra.Redis = rdb
		log.Info("Redis connected")
	}

	switch cfg.JobStore {
	case "redis":
		infra.Store = repositories.NewRedisJobStore(infra.Redis)
	case "memory":
		log.Warn("using in-memory job store; jobs are lost on restart and invisible to other processes")
		infra.Store = repositories.NewMemoryJobStore()
	}

	q, err := queue.New(cfg, infra.Redis, log)
	if err != nil {
		return nil, err
	}
	mgr.Register("queue", func(context.Context) error { return q.Close() })
	infra.Queue = q
	log.Info("queue ready", "backend", q.Name(), "queue", cfg.Queue.Name)

	return infra, nil
}
