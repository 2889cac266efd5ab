package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/anticheat"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

// ViolationRepository counts anti-cheat violations in Redis so counts survive
// reconnects, and queues each violation for the ViolationWorker.
type ViolationRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(rdb *redis.Client) *ViolationRepository {
	return &ViolationRepository{rdb: rdb, ttl: 24 * time.Hour}
}

// Counter returns the violation counter of one attempt.
func (r *ViolationRepository) Counter(examID, userID int64) anticheat.Counter {
	return &redisCounter{rdb: r.rdb, key: config.CacheKey.AttemptViolationCountKey(examID, userID), ttl: r.ttl}
}

// Enqueue queues a violation for persistence.
func (r *ViolationRepository) Enqueue(ctx context.Context, v model.AttemptViolation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue violation: %w", err)
	}
	return nil
}

// Reset clears the counter of one attempt.
func (r *ViolationRepository) Reset(ctx context.Context, examID, userID int64) error {
	return r.rdb.Del(ctx, config.CacheKey.AttemptViolationCountKey(examID, userID)).Err()
}

type redisCounter struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func (c *redisCounter) Incr(ctx context.Context) (int, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, c.key)
	pipe.Expire(ctx, c.key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
