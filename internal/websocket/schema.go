package websocket

import (
	"encoding/json"

	"github.com/stemsi/cbt-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionSubmit    Action = "submit"
	ActionViolation Action = "violation"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// AutosaveRequest captures one selection.
type AutosaveRequest struct {
	Action     Action `json:"action"`
	QuestionID int64  `json:"q_id" binding:"required,gt=0"`
	ChoiceID   int64  `json:"choice_id" binding:"required,gt=0"`
}

// ViolationRequest reports an anti-cheat signal observed in the browser.
type ViolationRequest struct {
	Action Action `json:"action"`
	Signal string `json:"signal" binding:"required,signal"`
	Detail string `json:"detail" binding:"max=500"`
}

// SubmitRequest finishes the attempt. Answers maps question id to choice id
// and is laid over the captured drafts.
type SubmitRequest struct {
	Action  Action          `json:"action"`
	Answers model.AnswerMap `json:"answers"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventViolation  Event = "violation"
	EventCompleted  Event = "completed"
	EventTerminated Event = "terminated"
	EventPong       Event = "pong"
)

type SavedResponse struct {
	Event      Event `json:"event"`
	QuestionID int64 `json:"q_id"`
}

// ViolationResponse echoes the monitor's decision. The client stops
// monitoring once Action is "terminated" or "ignored"; the server closes the
// stream after either.
type ViolationResponse struct {
	Event  Event  `json:"event"`
	Action string `json:"action"`
	Count  int    `json:"count"`
	Reason string `json:"reason,omitempty"`
}

type CompletedResponse struct {
	Event    Event    `json:"event"`
	Status   string   `json:"status"`
	Redirect string   `json:"redirect"`
	Score    *int     `json:"score,omitempty"`
	Percent  *float64 `json:"percent,omitempty"`
}

type TerminatedResponse struct {
	Event    Event  `json:"event"`
	Reason   string `json:"reason"`
	Redirect string `json:"redirect"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
