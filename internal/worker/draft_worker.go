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

// upsertDraft writes a selection only while its attempt is still running, so
// a queued draft cannot outlive the attempt it belongs to.
const upsertDraft = `
	INSERT INTO attempt_drafts (exam_id, user_id, question_id, choice_id, saved_at)
	SELECT $1, $2, $3, $4, $5
	WHERE EXISTS (
		SELECT 1 FROM attempts
		WHERE exam_id = $1 AND user_id = $2 AND status = 'in_progress'
	)
	ON CONFLICT (exam_id, user_id, question_id) DO UPDATE
	SET choice_id = EXCLUDED.choice_id, saved_at = EXCLUDED.saved_at
	WHERE attempt_drafts.saved_at <= EXCLUDED.saved_at`

// DraftWorker consumes the draft queue and upserts selections into
// attempt_drafts, the fallback when the Redis copy is gone.
type DraftWorker struct {
	pool  *pgxpool.Pool
	rdb   *redis.Client
	queue string
	log   zerolog.Logger
}

// NewDraftWorker creates a new DraftWorker.
func NewDraftWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *DraftWorker {
	return &DraftWorker{
		pool:  pool,
		rdb:   rdb,
		queue: config.WorkerKey.PersistDraftsQueue,
		log:   log.With().Str("component", "draft_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *DraftWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

// processNext takes whatever is queued, up to BatchSize, and writes it in one
// round trip.
func (w *DraftWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	raw := []string{result[1]}
	if more, err := w.rdb.LPopCount(ctx, w.queue, BatchSize-1).Result(); err == nil {
		raw = append(raw, more...)
	}

	if err := w.persist(ctx, raw); err != nil {
		w.log.Error().Err(err).Int("count", len(raw)).Msg("Persist error, retrying in 5s")
		w.requeue(ctx, raw)
		time.Sleep(5 * time.Second)
	}
}

func (w *DraftWorker) persist(ctx context.Context, raw []string) error {
	batch := &pgx.Batch{}
	for _, item := range raw {
		var d model.AttemptDraft
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			w.log.Error().Err(err).Str("data", item).Msg("Discarding malformed draft")
			continue
		}
		batch.Queue(upsertDraft, d.ExamID, d.UserID, d.QuestionID, d.ChoiceID, d.SavedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	return w.pool.SendBatch(ctx, batch).Close()
}

func (w *DraftWorker) requeue(ctx context.Context, raw []string) {
	args := make([]any, len(raw))
	for i, r := range raw {
		args[i] = r
	}
	if err := w.rdb.RPush(ctx, w.queue, args...).Err(); err != nil {
		w.log.Error().Err(err).Int("count", len(raw)).Msg("Requeue failed, drafts lost")
	}
}

// drain persists what is left in the queue before shutdown.
func (w *DraftWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPopCount(ctx, w.queue, BatchSize).Result()
		if err != nil || len(raw) == 0 {
			break
		}
		if err := w.persist(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.requeue(ctx, raw)
			break
		}
		drained += len(raw)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
