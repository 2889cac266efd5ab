package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// MonitorRow is the live state of one student in an exam.
type MonitorRow struct {
	UserID         int64               `json:"user_id"`
	Username       string              `json:"username"`
	FullName       string              `json:"full_name"`
	Status         model.AttemptStatus `json:"status"`
	AnsweredCount  int64               `json:"answered_count"`
	ViolationCount int64               `json:"violation_count"`
}

// MonitorRepository provides data access for the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListAttempts returns every attempt of the exam with its persisted draft
// and violation counts.
func (r *MonitorRepository) ListAttempts(ctx context.Context, examID int64) ([]MonitorRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.user_id, u.username, TRIM(u.first_name || ' ' || u.last_name), a.status,
		        COALESCE(d.cnt, 0), COALESCE(v.cnt, 0)
		 FROM attempts a
		 JOIN users u ON u.id = a.user_id
		 LEFT JOIN (
		     SELECT user_id, COUNT(*) AS cnt FROM attempt_drafts
		     WHERE exam_id = $1 GROUP BY user_id
		 ) d ON d.user_id = a.user_id
		 LEFT JOIN (
		     SELECT user_id, COUNT(*) AS cnt FROM attempt_violations
		     WHERE exam_id = $1 GROUP BY user_id
		 ) v ON v.user_id = a.user_id
		 WHERE a.exam_id = $1
		 ORDER BY u.username`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonitorRow
	for rows.Next() {
		var m MonitorRow
		if err := rows.Scan(&m.UserID, &m.Username, &m.FullName, &m.Status,
			&m.AnsweredCount, &m.ViolationCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListViolations returns the persisted violations of one attempt, newest first.
func (r *MonitorRepository) ListViolations(ctx context.Context, examID, userID int64) ([]model.AttemptViolation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, signal, detail, count, recorded_at
		 FROM attempt_violations
		 WHERE exam_id = $1 AND user_id = $2
		 ORDER BY recorded_at DESC`, examID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptViolation
	for rows.Next() {
		var v model.AttemptViolation
		if err := rows.Scan(&v.ID, &v.ExamID, &v.UserID, &v.Signal, &v.Detail, &v.Count, &v.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
