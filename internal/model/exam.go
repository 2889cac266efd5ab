package model

import (
	"encoding/json"
	"time"
)

// ExamType distinguishes continuous assessments from terminal exams.
type ExamType string

const (
	ExamTypeCA2  ExamType = "ca2"
	ExamTypeExam ExamType = "exam"
)

// Exam is an exam definition scoped to a class, subject, term and session.
type Exam struct {
	ID                 int64           `json:"id"`
	Title              string          `json:"title"`
	ClassGroupID       int64           `json:"class_group_id"`
	SessionID          int64           `json:"session_id"`
	TermID             int64           `json:"term_id"`
	SubjectID          int64           `json:"subject_id"`
	ExamType           ExamType        `json:"exam_type"`
	DurationMinutes    int             `json:"duration"`
	ChoicesPerQuestion int             `json:"choices_per_question"`
	NumberOfQuestions  int             `json:"number_of_questions"`
	AuthorID           int64           `json:"author_id"`
	Published          bool            `json:"published"`
	ShowFeedback       bool            `json:"show_feedback"`
	ShowResult         bool            `json:"show_result"`
	ShowOnReport       bool            `json:"show_on_report"`
	Description        string          `json:"description"`
	AntiCheat          json.RawMessage `json:"anti_cheat,omitempty"`
	Created            time.Time       `json:"created"`
	Updated            time.Time       `json:"updated"`
}

// Duration returns the time allotted to a single attempt.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ExamDetail is an exam with its academic taxonomy resolved.
type ExamDetail struct {
	Exam
	Subject    Subject         `json:"subject"`
	ClassGroup StudentClass    `json:"class_group"`
	Term       AcademicTerm    `json:"term"`
	Session    AcademicSession `json:"session"`
}

// ExamPaper is the student-facing rendition of an exam (no correct answers).
// It is cached in Redis.
type ExamPaper struct {
	ExamID    int64           `json:"exam_id"`
	Title     string          `json:"title"`
	Duration  int             `json:"duration"`
	Questions []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question without correctness information.
type PaperQuestion struct {
	ID      int64         `json:"id"`
	Body    string        `json:"question"`
	Choices []PaperChoice `json:"choices"`
}

// PaperChoice is a choice without its correctness flag.
type PaperChoice struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// NewExamPaper strips correctness from questions.
func NewExamPaper(exam *Exam, questions []Question) *ExamPaper {
	paper := &ExamPaper{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Questions: make([]PaperQuestion, len(questions)),
	}
	for i, q := range questions {
		pq := PaperQuestion{ID: q.ID, Body: q.Body, Choices: make([]PaperChoice, len(q.Choices))}
		for j, c := range q.Choices {
			pq.Choices[j] = PaperChoice{ID: c.ID, Body: c.Body}
		}
		paper.Questions[i] = pq
	}
	return paper
}
