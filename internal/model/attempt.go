package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptTerminated AttemptStatus = "terminated"
)

// IsTerminal reports whether no further transition is possible.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptTerminated
}

// ChoiceRecord is the graded selection for one question. It is stored and
// transmitted as the two-element array [choiceId, isCorrect].
type ChoiceRecord struct {
	ChoiceID  int64
	IsCorrect bool
}

func (r ChoiceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.ChoiceID, r.IsCorrect})
}

func (r *ChoiceRecord) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("choice record: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("choice record: expected 2 elements, got %d", len(raw))
	}

	// Older rows stored the choice id as a string.
	var id int64
	if err := json.Unmarshal(raw[0], &id); err != nil {
		var s string
		if err := json.Unmarshal(raw[0], &s); err != nil {
			return fmt.Errorf("choice record id: %w", err)
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("choice record id: %w", err)
		}
		id = parsed
	}

	var correct bool
	if err := json.Unmarshal(raw[1], &correct); err != nil {
		return fmt.Errorf("choice record flag: %w", err)
	}

	r.ChoiceID = id
	r.IsCorrect = correct
	return nil
}

// AttemptChoices maps question id to the graded selection.
type AttemptChoices map[int64]ChoiceRecord

// Attempt is one student's single attempt at one exam.
type Attempt struct {
	ID                int64          `json:"id"`
	ExamID            int64          `json:"exam_id"`
	UserID            int64          `json:"user_id"`
	Status            AttemptStatus  `json:"status"`
	TimeCreated       time.Time      `json:"time_created"`
	TimeStarted       *time.Time     `json:"time_started"`
	TimeCompleted     *time.Time     `json:"time_completed"`
	TerminationReason *string        `json:"termination_reason"`
	Choices           AttemptChoices `json:"choices"`
}

// IsComplete is derived from the status.
func (a *Attempt) IsComplete() bool {
	return a.Status.IsTerminal()
}

// ExpiresAt returns the deadline of a started attempt.
func (a *Attempt) ExpiresAt(d time.Duration) (time.Time, bool) {
	if a.TimeStarted == nil {
		return time.Time{}, false
	}
	return a.TimeStarted.Add(d), true
}

// Expired reports whether a started attempt is past its deadline at now.
func (a *Attempt) Expired(d time.Duration, now time.Time) bool {
	deadline, ok := a.ExpiresAt(d)
	return ok && now.After(deadline)
}

// MarshalJSON emits is_complete alongside the stored fields.
func (a Attempt) MarshalJSON() ([]byte, error) {
	type alias Attempt
	return json.Marshal(struct {
		alias
		IsComplete bool `json:"is_complete"`
	}{alias(a), a.IsComplete()})
}

// ScoreRow is one line of a staff score listing.
type ScoreRow struct {
	AttemptID         int64         `json:"attempt_id"`
	UserID            int64         `json:"user_id"`
	Username          string        `json:"username"`
	FullName          string        `json:"full_name"`
	Status            AttemptStatus `json:"status"`
	TimeStarted       *time.Time    `json:"time_started"`
	TimeCompleted     *time.Time    `json:"time_completed"`
	TerminationReason *string       `json:"termination_reason"`
	Score             int           `json:"score"`
	Percent           float64       `json:"percent"`
}

// ─── Requests ───────────────────────────────────────────────────────────────

// AnswerMap maps question id to choice id, both as strings. In JSON a value
// may be a string or a number; any other value is dropped so one bad entry
// does not reject the rest of the submission.
type AnswerMap map[string]string

func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object: nothing usable was submitted.
		*m = AnswerMap{}
		return nil
	}
	out := make(AnswerMap, len(raw))
	for k, v := range raw {
		if s, ok := answerValue(v); ok {
			out[k] = s
		}
	}
	*m = out
	return nil
}

func answerValue(v json.RawMessage) (string, bool) {
	if string(v) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// TakeExamForm is the POST body of the take page. Answers maps question id
// to choice id; the HTML form posts the same pairs as top-level fields.
type TakeExamForm struct {
	StartExam         bool      `json:"start_exam" form:"start_exam"`
	TerminateExam     bool      `json:"terminate_exam" form:"terminate_exam"`
	TerminationReason string    `json:"termination_reason" form:"termination_reason"`
	Answers           AnswerMap `json:"answers" form:"-"`
}

// TerminateRequest is the body of the JSON terminate endpoint. Overlong
// reasons are truncated rather than rejected.
type TerminateRequest struct {
	Reason string `json:"reason" form:"reason"`
}

// TerminateResponse is returned by the JSON terminate endpoint.
type TerminateResponse struct {
	Success bool          `json:"success"`
	Status  AttemptStatus `json:"status,omitempty"`
}

// DraftRequest captures one selection during an attempt.
type DraftRequest struct {
	QuestionID int64 `json:"q_id" binding:"required,gt=0"`
	ChoiceID   int64 `json:"choice_id" binding:"required,gt=0"`
}

// ViolationRequest reports one anti-cheat signal observed by the client.
type ViolationRequest struct {
	Signal string `json:"signal" binding:"required,signal"`
	Detail string `json:"detail" binding:"max=500"`
}
