package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// QuestionRepository reads exam questions together with their choices.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam returns the questions of an exam in paper order, each with all
// of its choices including the correctness flag.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID int64) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.subject_id, q.class_group_id, q.body, q.author_id,
		        c.id, c.body, c.is_correct
		 FROM exam_questions eq
		 JOIN questions q     ON q.id = eq.question_id
		 LEFT JOIN choices c  ON c.question_id = q.id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.position, q.id, c.id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[int64]int)
	for rows.Next() {
		var (
			q         model.Question
			choiceID  *int64
			body      *string
			isCorrect *bool
		)
		if err := rows.Scan(&q.ID, &q.SubjectID, &q.ClassGroupID, &q.Body, &q.AuthorID,
			&choiceID, &body, &isCorrect); err != nil {
			return nil, err
		}

		i, seen := index[q.ID]
		if !seen {
			q.Choices = []model.Choice{}
			questions = append(questions, q)
			i = len(questions) - 1
			index[q.ID] = i
		}
		if choiceID != nil {
			questions[i].Choices = append(questions[i].Choices, model.Choice{
				ID:         *choiceID,
				QuestionID: q.ID,
				Body:       *body,
				IsCorrect:  *isCorrect,
			})
		}
	}
	return questions, rows.Err()
}
