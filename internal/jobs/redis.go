package jobs

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"mediafactory/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "mediafactory:job:"
	maxOptimisticTries = 16
)

// RedisStore keeps each job as a JSON value under its own key. Updates use
// WATCH/MULTI so a concurrent writer forces a retry instead of a lost write.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore expires jobs ttl after their last update; zero keeps them.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "jobs.redis.create", "failed to encode job")
	}
	ok, err := s.rdb.SetNX(ctx, redisKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.redis.create", "failed to store job")
	}
	if !ok {
		return errors.AlreadyExists("job", job.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.redis.get", "failed to read job")
	}
	return decodeJob(data)
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	key := redisKey(id)

	for i := 0; i < maxOptimisticTries; i++ {
		var updated *Job
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if stderrors.Is(err, redis.Nil) {
				return notFound(id)
			}
			if err != nil {
				return err
			}

			job, err := decodeJob(data)
			if err != nil {
				return err
			}
			if err := fn(job); err != nil {
				return err
			}
			out, err := json.Marshal(job)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, s.ttl)
				return nil
			})
			if err == nil {
				updated = job
			}
			return err
		}, key)

		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			var appErr *errors.Error
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.redis.update", "failed to update job")
		}
		return updated, nil
	}
	return nil, errors.Conflict("job " + id + " is updated concurrently")
}

func (s *RedisStore) Check(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.redis.check", "redis unreachable")
	}
	return nil
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrap(err, "jobs.decode", "corrupt job record")
	}
	return &job, nil
}
