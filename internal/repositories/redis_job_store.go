package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
)

const (
	redisJobPrefix   = "job:"
	redisIndexKey    = "jobs:index"
	redisStatePrefix = "jobs:state:"

	// Optimistic transactions retried before giving up on a hot key.
	redisTxAttempts = 8
)

// RedisJobStore keeps each job as JSON under job:<id>, with sorted sets
// by creation time for listing. Transitions run under WATCH so two
// workers racing on the same job produce exactly one winner.
type RedisJobStore struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisJobStore(rdb redis.UniversalClient) *RedisJobStore {
	return &RedisJobStore{rdb: rdb, now: time.Now}
}

func jobKey(id string) string { return redisJobPrefix + id }

func stateKey(s models.JobState) string { return redisStatePrefix + string(s) }

func (s *RedisJobStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisJobStore) Create(ctx context.Context, j *models.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "jobs.create", "encode job")
	}

	ok, err := s.rdb.SetNX(ctx, jobKey(j.ID), raw, 0).Result()
	if err != nil {
		return errors.Wrap(err, "jobs.create", "job store write failed")
	}
	if !ok {
		return errors.DuplicateJob(j.ID)
	}

	score := float64(j.CreatedAt.UnixNano())
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: score, Member: j.ID})
		p.ZAdd(ctx, stateKey(j.State), redis.Z{Score: score, Member: j.ID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "jobs.create", "index job")
	}
	return nil
}

func (s *RedisJobStore) Transition(ctx context.Context, jobID string, to models.JobState, d models.Detail) (*models.Job, error) {
	key := jobKey(jobID)
	var out *models.Job

	txf := func(tx *redis.Tx) error {
		j, err := s.read(ctx, tx, jobID)
		if err != nil {
			return err
		}
		from := j.State
		if err := j.Apply(to, d, s.now()); err != nil {
			return err
		}
		raw, err := json.Marshal(j)
		if err != nil {
			return errors.Wrap(err, "jobs.transition", "encode job")
		}

		score := float64(j.CreatedAt.UnixNano())
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, 0)
			p.ZRem(ctx, stateKey(from), jobID)
			p.ZAdd(ctx, stateKey(to), redis.Z{Score: score, Member: jobID})
			return nil
		})
		if err != nil {
			return err
		}
		out = j
		return nil
	}

	for i := 0; i < redisTxAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		var coded *errors.Error
		if errors.As(err, &coded) {
			return nil, err
		}
		return nil, errors.Wrap(err, "jobs.transition", "job store write failed")
	}
	return nil, errors.Newf(errors.CodeConflict, "job %s: too much contention", jobID).WithField("job_id", jobID)
}

func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return s.read(ctx, s.rdb, jobID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisJobStore) read(ctx context.Context, c stringGetter, jobID string) (*models.Job, error) {
	raw, err := c.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.JobNotFound(jobID)
		}
		return nil, errors.Wrap(err, "jobs.get", "job store read failed")
	}
	var j models.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, errors.Wrapf(err, "jobs.get", "corrupt job record %s", jobID)
	}
	return &j, nil
}

func (s *RedisJobStore) List(ctx context.Context, f models.ListFilter) ([]*models.Job, error) {
	index := redisIndexKey
	if f.State != "" {
		index = stateKey(f.State)
	}

	ids, err := s.rdb.ZRevRange(ctx, index, 0, int64(clampLimit(f.Limit))-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "jobs.list", "job store read failed")
	}
	if len(ids) == 0 {
		return []*models.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "jobs.list", "job store read failed")
	}

	out := make([]*models.Job, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var j models.Job
		if err := json.Unmarshal([]byte(str), &j); err != nil {
			continue
		}
		out = append(out, &j)
	}
	return out, nil
}
