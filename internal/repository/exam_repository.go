package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-backend/internal/model"
)

// ExamRepository handles exam data access. Exams are authored elsewhere;
// this service only reads them.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examDetailSelect = `
	SELECT e.id, e.title, e.class_group_id, e.session_id, e.term_id, e.subject_id,
	       e.exam_type, e.duration, e.choices_per_question, e.number_of_questions,
	       e.author_id, e.published, e.show_feedback, e.show_result, e.show_on_report,
	       e.description, e.anti_cheat, e.created, e.updated,
	       s.name, c.name, t.name, ss.name
	FROM exams e
	JOIN subjects s           ON s.id = e.subject_id
	JOIN student_classes c    ON c.id = e.class_group_id
	JOIN academic_terms t     ON t.id = e.term_id
	JOIN academic_sessions ss ON ss.id = e.session_id`

func scanExamDetail(row interface{ Scan(...any) error }) (*model.ExamDetail, error) {
	d := &model.ExamDetail{}
	e := &d.Exam
	err := row.Scan(&e.ID, &e.Title, &e.ClassGroupID, &e.SessionID, &e.TermID, &e.SubjectID,
		&e.ExamType, &e.DurationMinutes, &e.ChoicesPerQuestion, &e.NumberOfQuestions,
		&e.AuthorID, &e.Published, &e.ShowFeedback, &e.ShowResult, &e.ShowOnReport,
		&e.Description, &e.AntiCheat, &e.Created, &e.Updated,
		&d.Subject.Name, &d.ClassGroup.Name, &d.Term.Name, &d.Session.Name)
	if err != nil {
		return nil, translate(err)
	}
	d.Subject.ID = e.SubjectID
	d.ClassGroup.ID = e.ClassGroupID
	d.Term.ID = e.TermID
	d.Session.ID = e.SessionID
	return d, nil
}

// GetDetail retrieves an exam with its subject, class, term and session.
func (r *ExamRepository) GetDetail(ctx context.Context, id int64) (*model.ExamDetail, error) {
	return scanExamDetail(r.pool.QueryRow(ctx, examDetailSelect+` WHERE e.id = $1`, id))
}

// ListPublished returns published exams, newest first. A non-nil classID
// restricts the list to that class group.
func (r *ExamRepository) ListPublished(ctx context.Context, classID *int64) ([]model.ExamDetail, error) {
	query := examDetailSelect + ` WHERE e.published = TRUE`
	var args []any
	if classID != nil {
		query += ` AND e.class_group_id = $1`
		args = append(args, *classID)
	}
	query += ` ORDER BY e.created DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamDetail
	for rows.Next() {
		d, err := scanExamDetail(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *d)
	}
	return exams, rows.Err()
}

// CountQuestions returns the number of questions currently attached to an exam.
func (r *ExamRepository) CountQuestions(ctx context.Context, examID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_questions WHERE exam_id = $1`, examID,
	).Scan(&n)
	return n, err
}
