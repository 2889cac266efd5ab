// Package events publishes attempt lifecycle events. Events go to a watermill
// publisher (in-process channel, or Kafka when brokers are configured) and to
// the Redis channel that feeds the staff live monitor.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the kind of lifecycle event.
type Type string

const (
	AttemptStarted    Type = "attempt.started"
	AttemptCompleted  Type = "attempt.completed"
	AttemptExpired    Type = "attempt.expired"
	AttemptTerminated Type = "attempt.terminated"
	AttemptDeleted    Type = "attempt.deleted"
	AttemptViolation  Type = "attempt.violation"
	AttemptDraftSaved Type = "attempt.draft_saved"
)

const (
	source  = "cbt-backend"
	version = "1"
)

// AttemptEvent describes one change to an attempt.
type AttemptEvent struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	AttemptID int64    `json:"attempt_id"`
	ExamID    int64    `json:"exam_id"`
	UserID    int64    `json:"user_id"`
	Status    string   `json:"status,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Signal    string   `json:"signal,omitempty"`
	Score     *int     `json:"score,omitempty"`
	Percent   *float64 `json:"percent,omitempty"`
}

// New returns an event with id, source and timestamp filled in.
func New(t Type, attemptID, examID, userID int64) *AttemptEvent {
	return &AttemptEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Version:   version,
		Timestamp: time.Now().UTC(),
		AttemptID: attemptID,
		ExamID:    examID,
		UserID:    userID,
	}
}
