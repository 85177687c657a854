package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trunov/csvimages/internal/cache"
	"github.com/trunov/csvimages/internal/entities"
)

// Redis keeps one JSON encoded Job per request id. Records never expire.
type Redis struct {
	cache *cache.Cache
}

func NewRedis(c *cache.Cache) *Redis {
	return &Redis{cache: c}
}

func (r *Redis) Save(ctx context.Context, job entities.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.RequestID, err)
	}
	if err := r.cache.Store(ctx, job.RequestID, 0, raw); err != nil {
		return fmt.Errorf("save job %s: %w", job.RequestID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, requestID string) (entities.Job, error) {
	raw, err := r.cache.Get(ctx, requestID)
	if errors.Is(err, cache.ErrMiss) {
		return entities.Job{}, fmt.Errorf("%s: %w", requestID, entities.ErrJobNotFound)
	}
	if err != nil {
		return entities.Job{}, fmt.Errorf("load job %s: %w", requestID, err)
	}

	var job entities.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return entities.Job{}, fmt.Errorf("decode job %s: %w", requestID, err)
	}
	return job, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}
