package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Redis rejects BLPOP timeouts below 1s
)

// ViolationWorker moves queued anti-cheat violations from Redis into
// attempt_violations in batches.
type ViolationWorker struct {
	pool  *pgxpool.Pool
	rdb   *redis.Client
	queue string
	log   zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool:  pool,
		rdb:   rdb,
		queue: config.WorkerKey.PersistViolationsQueue,
		log:   log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]*model.AttemptViolation, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var v model.AttemptViolation
		if err := json.Unmarshal([]byte(result[1]), &v); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, &v)
	}
}

// flush tries one COPY for the batch, then row by row, then requeues.
func (w *ViolationWorker) flush(ctx context.Context, batch []*model.AttemptViolation) {
	err := w.copyBatch(ctx, batch)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, inserting row by row")

	failed := make([]*model.AttemptViolation, 0)
	for _, v := range batch {
		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_violations (exam_id, user_id, signal, detail, count, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			v.ExamID, v.UserID, v.Signal, v.Detail, v.Count, v.RecordedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Int64("exam_id", v.ExamID).Int64("user_id", v.UserID).Msg("Insert failed, requeueing")
			failed = append(failed, v)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ViolationWorker) copyBatch(ctx context.Context, batch []*model.AttemptViolation) error {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []any{v.ExamID, v.UserID, v.Signal, v.Detail, v.Count, v.RecordedAt})
	}
	_, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"exam_id", "user_id", "signal", "detail", "count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*model.AttemptViolation) {
	pipe := w.rdb.Pipeline()
	for _, v := range items {
		data, _ := json.Marshal(v)
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("Requeue failed, violations lost")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued violations")
	time.Sleep(2 * time.Second)
}

func (w *ViolationWorker) shutdown(buffer []*model.AttemptViolation) {
	w.log.Info().Msg("Worker stopping, flushing buffer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if len(buffer) > 0 {
		w.flush(ctx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
