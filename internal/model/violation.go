package model

import "time"

// AttemptViolation is one anti-cheat signal recorded against an attempt.
type AttemptViolation struct {
	ID         int64     `json:"id"`
	ExamID     int64     `json:"exam_id"`
	UserID     int64     `json:"user_id"`
	Signal     string    `json:"signal"`
	Detail     string    `json:"detail,omitempty"`
	Count      int       `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AttemptDraft is a captured but not yet graded selection.
type AttemptDraft struct {
	ExamID     int64     `json:"exam_id"`
	UserID     int64     `json:"user_id"`
	QuestionID int64     `json:"q_id"`
	ChoiceID   int64     `json:"choice_id"`
	SavedAt    time.Time `json:"saved_at"`
}
