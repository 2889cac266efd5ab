package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/anticheat"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/scoring"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
	ws "github.com/stemsi/cbt-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the exam WebSocket stream: autosave, anti-cheat
// violations and submission over a single connection.
type WSHandler struct {
	attempts *service.AttemptService
	scores   *service.ScoreService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, scores *service.ScoreService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		scores:   scores,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream?token=...
// Only a running attempt may open a stream.
func (h *WSHandler) ExamStream(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)

	// Check before upgrading so the client gets a proper HTTP error.
	view, err := h.attempts.Take(c.Request.Context(), actor, examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	switch view.Kind {
	case service.ViewRedirect:
		response.Redirect(c, ScorePath(examID, actor.UserID), view.RedirectReason)
		return
	case service.ViewAcknowledgment:
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotStarted)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)

	s := &stream{
		h:      h,
		conn:   conn,
		actor:  actor,
		examID: examID,
		log: h.log.With().
			Str("conn_id", uuid.NewString()).
			Int64("user_id", actor.UserID).
			Int64("exam_id", examID).
			Logger(),
	}

	done := make(chan struct{})
	go conn.KeepAlive(done)
	defer close(done)

	s.log.Info().Msg("Student connected")
	closeReason := s.run(context.Background())
	_ = conn.Close(closeReason)
	s.log.Info().Str("reason", closeReason).Msg("Student disconnected")
}

// stream is one connected attempt.
type stream struct {
	h      *WSHandler
	conn   *ws.Conn
	actor  service.Actor
	examID int64
	log    zerolog.Logger
}

// run reads messages until the client leaves or the attempt ends.
func (s *stream) run(ctx context.Context) string {
	for {
		env, err := s.conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, ws.ErrMalformed) {
				_ = s.conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
				continue
			}
			if ws.IsClosed(err) || errors.Is(err, websocket.ErrCloseSent) {
				return "client closed"
			}
			s.log.Debug().Err(err).Msg("Read failed")
			return "read failed"
		}

		var finished bool
		switch env.Action {
		case ws.ActionAutosave:
			finished = s.autosave(ctx, env)
		case ws.ActionViolation:
			finished = s.violation(ctx, env)
		case ws.ActionSubmit:
			finished = s.submit(ctx, env)
		case ws.ActionPing:
			_ = s.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = s.conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
		if finished {
			return "attempt finished"
		}
	}
}

// autosave returns true when the attempt turned out to be over.
func (s *stream) autosave(ctx context.Context, env *ws.RequestEnvelope) bool {
	var req ws.AutosaveRequest
	if err := env.Decode(&req); err != nil {
		_ = s.conn.WriteError(string(response.ErrInvalidPayload), "invalid autosave payload")
		return false
	}
	if fields := validator.Struct(&req); fields != nil {
		_ = s.conn.WriteError(string(response.ErrValidation), firstField(fields))
		return false
	}

	err := s.h.attempts.SaveDraft(ctx, s.actor, s.examID, req.QuestionID, req.ChoiceID)
	if err != nil {
		s.fail(err)
		return errors.Is(err, service.ErrAttemptExpired) || errors.Is(err, service.ErrAttemptNotInProgress)
	}
	_ = s.conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: req.QuestionID})
	return false
}

// violation returns true once the attempt has been terminated or was
// already over.
func (s *stream) violation(ctx context.Context, env *ws.RequestEnvelope) bool {
	var req ws.ViolationRequest
	if err := env.Decode(&req); err != nil {
		_ = s.conn.WriteError(string(response.ErrInvalidPayload), "invalid violation payload")
		return false
	}
	if fields := validator.Struct(&req); fields != nil {
		_ = s.conn.WriteError(string(response.ErrInvalidSignal), firstField(fields))
		return false
	}

	decision, err := s.h.attempts.ReportViolation(ctx, s.actor, s.examID, anticheat.Signal(req.Signal), req.Detail)
	if err != nil {
		s.fail(err)
		return false
	}

	_ = s.conn.WriteTyped(ws.ViolationResponse{
		Event:  ws.EventViolation,
		Action: string(decision.Action),
		Count:  decision.Count,
		Reason: decision.Reason,
	})
	if decision.Action == anticheat.ActionIgnored {
		// The attempt already ended elsewhere; nothing is left to stream.
		return true
	}
	if decision.Action != anticheat.ActionTerminated {
		return false
	}
	_ = s.conn.WriteTyped(ws.TerminatedResponse{
		Event:    ws.EventTerminated,
		Reason:   decision.Reason,
		Redirect: ScorePath(s.examID, s.actor.UserID),
	})
	return true
}

// submit returns true when the attempt is no longer running.
func (s *stream) submit(ctx context.Context, env *ws.RequestEnvelope) bool {
	var req ws.SubmitRequest
	if err := env.Decode(&req); err != nil {
		_ = s.conn.WriteError(string(response.ErrInvalidPayload), "invalid submit payload")
		return false
	}

	answers := scoring.ParseAnswers(req.Answers)
	t, err := s.h.attempts.Submit(ctx, s.actor, s.examID, answers)
	if err != nil {
		s.fail(err)
		return false
	}

	redirect := ScorePath(s.examID, s.actor.UserID)
	if t.Attempt.Status == model.AttemptTerminated {
		reason := ""
		if t.Attempt.TerminationReason != nil {
			reason = *t.Attempt.TerminationReason
		}
		_ = s.conn.WriteTyped(ws.TerminatedResponse{Event: ws.EventTerminated, Reason: reason, Redirect: redirect})
		return true
	}

	resp := ws.CompletedResponse{Event: ws.EventCompleted, Status: string(t.Outcome), Redirect: redirect}
	if view, err := s.h.scores.Detail(ctx, s.actor, s.examID, s.actor.UserID); err == nil && view.Result != nil {
		resp.Score = &view.Result.Score
		resp.Percent = &view.Result.Percent
	}
	_ = s.conn.WriteTyped(resp)
	return true
}

func (s *stream) fail(err error) {
	status, code := serviceError(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Stream action failed")
	}
	_ = s.conn.WriteError(string(code), response.GetMessage(code))
}

func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return "invalid payload"
}
