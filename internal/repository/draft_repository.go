package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

// DraftRepository keeps the selections a student captures during an attempt.
// Redis holds the live copy; the DraftWorker persists the queue into
// attempt_drafts, which is read when the Redis hash is gone.
type DraftRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	ttl  time.Duration
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(pool *pgxpool.Pool, rdb *redis.Client) *DraftRepository {
	return &DraftRepository{pool: pool, rdb: rdb, ttl: 24 * time.Hour}
}

// Save records one selection and queues it for persistence.
func (r *DraftRepository) Save(ctx context.Context, d model.AttemptDraft) error {
	key := config.CacheKey.AttemptDraftKey(d.ExamID, d.UserID)
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(d.QuestionID, 10), d.ChoiceID)
	pipe.Expire(ctx, key, r.ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistDraftsQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Get returns question id → choice id for an attempt.
func (r *DraftRepository) Get(ctx context.Context, examID, userID int64) (map[int64]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftKey(examID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get drafts: %w", err)
	}
	if len(raw) > 0 {
		out := make(map[int64]int64, len(raw))
		for k, v := range raw {
			q, err1 := strconv.ParseInt(k, 10, 64)
			c, err2 := strconv.ParseInt(v, 10, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			out[q] = c
		}
		return out, nil
	}
	return r.getPersisted(ctx, examID, userID)
}

func (r *DraftRepository) getPersisted(ctx context.Context, examID, userID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, choice_id FROM attempt_drafts WHERE exam_id = $1 AND user_id = $2`,
		examID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var q, c int64
		if err := rows.Scan(&q, &c); err != nil {
			return nil, err
		}
		out[q] = c
	}
	return out, rows.Err()
}

// Clear drops the live copy once the attempt is terminal.
func (r *DraftRepository) Clear(ctx context.Context, examID, userID int64) error {
	return r.rdb.Del(ctx, config.CacheKey.AttemptDraftKey(examID, userID)).Err()
}
