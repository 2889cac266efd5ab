package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/config"
)

// RedisMonitorPublisher publishes events on the per-exam monitor channel
// consumed by the staff SSE feed.
type RedisMonitorPublisher struct {
	rdb *redis.Client
}

// NewRedisMonitorPublisher creates a new RedisMonitorPublisher.
func NewRedisMonitorPublisher(rdb *redis.Client) *RedisMonitorPublisher {
	return &RedisMonitorPublisher{rdb: rdb}
}

func (p *RedisMonitorPublisher) Publish(ctx context.Context, event *AttemptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(event.ExamID), payload).Err()
}

func (p *RedisMonitorPublisher) Close() error { return nil }
