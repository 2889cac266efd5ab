package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// AttemptListing is an attempt joined with its student for staff listings.
type AttemptListing struct {
	Attempt   model.Attempt
	Username  string
	FirstName string
	LastName  string
}

// AttemptRepository handles attempt data access. Every state transition is a
// single conditional UPDATE keyed by (exam_id, user_id) so that concurrent
// requests for the same attempt serialize on the row: the first one wins and
// the others observe the state it left behind.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, user_id, status, time_created, time_started,
	time_completed, termination_reason, choices`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &a.TimeCreated, &a.TimeStarted,
		&a.TimeCompleted, &a.TerminationReason, &a.Choices)
	if err != nil {
		return nil, translate(err)
	}
	if a.Choices == nil {
		a.Choices = model.AttemptChoices{}
	}
	return a, nil
}

// Upsert returns the attempt for (examID, userID), creating it in not_started
// when none exists. Concurrent callers receive the same row.
func (r *AttemptRepository) Upsert(ctx context.Context, examID, userID int64) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, user_id, status, choices)
		 VALUES ($1, $2, $3, '{}'::jsonb)
		 ON CONFLICT (exam_id, user_id) DO UPDATE SET exam_id = EXCLUDED.exam_id
		 RETURNING `+attemptColumns,
		examID, userID, model.AttemptNotStarted,
	))
}

// GetByExamAndUser retrieves the attempt of a user for an exam.
func (r *AttemptRepository) GetByExamAndUser(ctx context.Context, examID, userID int64) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE exam_id = $1 AND user_id = $2`,
		examID, userID,
	))
}

// Start moves a not_started attempt to in_progress. The returned bool is
// false when the attempt was not in not_started; the stored row is returned
// unchanged in that case.
func (r *AttemptRepository) Start(ctx context.Context, examID, userID int64, now time.Time) (*model.Attempt, bool, error) {
	return r.transition(ctx, examID, userID,
		`UPDATE attempts SET status = $3, time_started = $4
		 WHERE exam_id = $1 AND user_id = $2 AND status = 'not_started'
		 RETURNING `+attemptColumns,
		model.AttemptInProgress, now,
	)
}

// Complete moves an in_progress attempt to completed with the graded choices.
func (r *AttemptRepository) Complete(ctx context.Context, examID, userID int64, choices model.AttemptChoices, now time.Time) (*model.Attempt, bool, error) {
	if choices == nil {
		choices = model.AttemptChoices{}
	}
	return r.transition(ctx, examID, userID,
		`UPDATE attempts SET status = $3, time_completed = $4, choices = $5
		 WHERE exam_id = $1 AND user_id = $2 AND status = 'in_progress'
		 RETURNING `+attemptColumns,
		model.AttemptCompleted, now, choices,
	)
}

// Terminate moves a non-terminal attempt to terminated.
func (r *AttemptRepository) Terminate(ctx context.Context, examID, userID int64, reason string, now time.Time) (*model.Attempt, bool, error) {
	return r.transition(ctx, examID, userID,
		`UPDATE attempts SET status = $3, time_completed = $4, termination_reason = $5
		 WHERE exam_id = $1 AND user_id = $2 AND status IN ('not_started', 'in_progress')
		 RETURNING `+attemptColumns,
		model.AttemptTerminated, now, reason,
	)
}

func (r *AttemptRepository) transition(ctx context.Context, examID, userID int64, query string, args ...any) (*model.Attempt, bool, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx, query, append([]any{examID, userID}, args...)...))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	// Lost the race or the transition is not allowed from the current state.
	a, err = r.GetByExamAndUser(ctx, examID, userID)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// Delete removes an attempt together with its drafts and violations.
func (r *AttemptRepository) Delete(ctx context.Context, id int64) (*model.Attempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	a, err := scanAttempt(tx.QueryRow(ctx,
		`DELETE FROM attempts WHERE id = $1 RETURNING `+attemptColumns, id))
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM attempt_drafts WHERE exam_id = $1 AND user_id = $2`, a.ExamID, a.UserID)
	batch.Queue(`DELETE FROM attempt_violations WHERE exam_id = $1 AND user_id = $2`, a.ExamID, a.UserID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByUser returns all attempts of a user.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int64) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE user_id = $1 ORDER BY time_created DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ListByExam returns every attempt of an exam with its student, ordered by name.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID int64) ([]AttemptListing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, a.user_id, a.status, a.time_created, a.time_started,
		        a.time_completed, a.termination_reason, a.choices,
		        u.username, u.first_name, u.last_name
		 FROM attempts a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.exam_id = $1
		 ORDER BY u.last_name, u.first_name, u.username`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptListing
	for rows.Next() {
		var l AttemptListing
		a := &l.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &a.TimeCreated, &a.TimeStarted,
			&a.TimeCompleted, &a.TerminationReason, &a.Choices,
			&l.Username, &l.FirstName, &l.LastName); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
