package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/multiviral/api/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	redisJobKeyPrefix = "job:"
	redisJobIndexKey  = "jobs"
	redisMaxRetries   = 10
)

// RedisStore keeps jobs as JSON documents in Redis with a TTL. A sorted
// set indexes job IDs by creation time.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

func jobKey(id string) string {
	return redisJobKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, params model.CreateJobParams) (*model.Job, error) {
	if params.ID == "" {
		params.ID = uuid.New().String()
	}
	job := model.NewJob(params, s.now())

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("job %s already exists", job.ID)
	}

	if err := s.redis.ZAdd(ctx, redisJobIndexKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err(); err != nil {
		return nil, fmt.Errorf("failed to index job: %w", err)
	}

	return job, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return decodeJob(data)
}

// Update runs an optimistic read-modify-write under WATCH. A concurrent
// writer aborts the transaction and the whole cycle is retried.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*model.Job, error) {
	key := jobKey(id)
	var updated *model.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get job: %w", err)
		}

		current, err := decodeJob(data)
		if err != nil {
			return err
		}
		working := current.Clone()
		if err := fn(working); err != nil {
			return err
		}
		working.ID = current.ID
		working.CreatedAt = current.CreatedAt
		working.UpdatedAt = s.now()
		if working.UpdatedAt.Before(working.CreatedAt) {
			working.UpdatedAt = working.CreatedAt
		}

		out, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = working
		return nil
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update of job %s lost %d optimistic lock races", id, redisMaxRetries)
}

func (s *RedisStore) List(ctx context.Context) ([]*model.Job, error) {
	ids, err := s.redis.ZRevRange(ctx, redisJobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*model.Job, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// record expired, drop it from the index
			expired = append(expired, ids[i])
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if len(expired) > 0 {
		s.redis.ZRem(ctx, redisJobIndexKey, expired...)
	}

	return jobs, nil
}

func decodeJob(data []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
