package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"lot-auction-service/internal/ports/outbound"

	"github.com/redis/go-redis/v9"
)

// JobStore persists scheduler jobs in Redis: a sorted set scored by fire time
// for inspection, and a hash holding each job's JSON body.
type JobStore struct {
	client  *redis.Client
	zsetKey string
	hashKey string
}

// NewJobStore creates a job store under key (e.g. "lot:timers")
func NewJobStore(client *redis.Client, key string) *JobStore {
	if key == "" {
		key = "lot:timers"
	}
	return &JobStore{client: client, zsetKey: key, hashKey: key + ":jobs"}
}

// Put stores job under its slot key, replacing any earlier one
func (s *JobStore) Put(ctx context.Context, job outbound.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	key := job.Key()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.zsetKey, redis.Z{Score: float64(job.FireAt.UnixMilli()), Member: key})
		pipe.HSet(ctx, s.hashKey, key, body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", key, err)
	}
	return nil
}

// Delete removes the job stored under key
func (s *JobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.zsetKey, key)
		pipe.HDel(ctx, s.hashKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", key, err)
	}
	return nil
}

// List returns the stored jobs ordered by fire time
func (s *JobStore) List(ctx context.Context) ([]outbound.Job, error) {
	keys, err := s.client.ZRange(ctx, s.zsetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	bodies, err := s.client.HMGet(ctx, s.hashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]outbound.Job, 0, len(keys))
	for i, raw := range bodies {
		body, ok := raw.(string)
		if !ok {
			// sorted set entry without a body; drop it
			if err := s.client.ZRem(ctx, s.zsetKey, keys[i]).Err(); err != nil {
				return nil, fmt.Errorf("failed to drop orphan job %s: %w", keys[i], err)
			}
			continue
		}
		var job outbound.Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return nil, fmt.Errorf("failed to decode job %s: %w", keys[i], err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
