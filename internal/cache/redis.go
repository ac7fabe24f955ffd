package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

const keyPrefix = "presence:room:steps:"

// Redis shares the sequence cache between instances and survives restarts.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedis stores entries with ttl; zero keeps them forever.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Put(ctx context.Context, roomID string, steps []domain.ExerciseStep) error {
	if steps == nil {
		steps = []domain.ExerciseStep{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+roomID, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (r *Redis) Get(ctx context.Context, roomID string) ([]domain.ExerciseStep, bool, error) {
	b, err := r.rdb.Get(ctx, keyPrefix+roomID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var steps []domain.ExerciseStep
	if err := json.Unmarshal(b, &steps); err != nil {
		return nil, false, fmt.Errorf("unmarshal steps: %w", err)
	}

	return steps, true, nil
}
