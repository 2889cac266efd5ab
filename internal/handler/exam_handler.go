package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/anticheat"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/scoring"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
)

// ExamHandler serves the exam-taking entry points.
type ExamHandler struct {
	attempts *service.AttemptService
	exams    *service.ExamService
	log      zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(attempts *service.AttemptService, exams *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		attempts: attempts,
		exams:    exams,
		log:      log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetLobby godoc
// GET /api/v1/student/exams
// Lists the published exams of the caller's class with their attempt state.
func (h *ExamHandler) GetLobby(c *gin.Context) {
	lobby, err := h.exams.Lobby(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// GetTake godoc
// GET /api/v1/exams/:exam_id/take
// Shows the acknowledgment screen, the running exam, or redirects to the score.
func (h *ExamHandler) GetTake(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)

	view, err := h.attempts.Take(c.Request.Context(), actor, examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	if view.Kind == service.ViewRedirect {
		response.Redirect(c, ScorePath(examID, actor.UserID), view.RedirectReason)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// PostTake godoc
// POST /api/v1/exams/:exam_id/take
// start_exam=true starts the attempt, terminate_exam=true terminates it, and
// any other body is a submission of question id → choice id pairs.
func (h *ExamHandler) PostTake(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)
	ctx := c.Request.Context()

	var form model.TakeExamForm
	if fields := validator.BindKeepBody(c, &form); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	switch {
	case form.TerminateExam:
		t, err := h.attempts.Terminate(ctx, actor, examID, form.TerminationReason)
		if err != nil {
			failService(c, h.log, err)
			return
		}
		response.Redirect(c, ScorePath(examID, actor.UserID), string(t.Attempt.Status))

	case form.StartExam:
		if _, err := h.attempts.Start(ctx, actor, examID); err != nil {
			failService(c, h.log, err)
			return
		}
		response.Redirect(c, TakePath(examID), "started")

	default:
		answers := scoring.ParseAnswers(collectAnswers(c, form.Answers))
		t, err := h.attempts.Submit(ctx, actor, examID, answers)
		if errors.Is(err, service.ErrAttemptNotStarted) {
			response.Redirect(c, TakePath(examID), "not_started")
			return
		}
		if err != nil {
			failService(c, h.log, err)
			return
		}
		response.Redirect(c, ScorePath(examID, actor.UserID), string(t.Outcome))
	}
}

// collectAnswers gathers question id → choice id pairs from every place a
// client may put them: top-level keys of a JSON body, its answers object, and
// form fields named after a question id (the HTML form). Later sources win.
func collectAnswers(c *gin.Context, answers model.AnswerMap) map[string]string {
	out := make(map[string]string, len(answers))

	if body, ok := c.Get(gin.BodyBytesKey); ok {
		if raw, ok := body.([]byte); ok {
			var top model.AnswerMap
			if err := json.Unmarshal(raw, &top); err == nil {
				for k, v := range top {
					if isQuestionKey(k) {
						out[k] = v
					}
				}
			}
		}
	}
	for k, v := range answers {
		out[k] = v
	}
	for k, vs := range c.Request.PostForm {
		if !isQuestionKey(k) || len(vs) == 0 {
			continue
		}
		out[k] = vs[0]
	}
	return out
}

func isQuestionKey(k string) bool {
	_, err := strconv.ParseInt(k, 10, 64)
	return err == nil
}

// Terminate godoc
// POST /api/v1/exams/:exam_id/terminate
// Synchronous termination used by the in-page anti-cheat monitor.
// Body: {"reason": "..."} → {"success": bool}
func (h *ExamHandler) Terminate(c *gin.Context) {
	examID, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil || examID <= 0 {
		c.JSON(http.StatusBadRequest, model.TerminateResponse{Success: false})
		return
	}

	// A missing body terminates with an empty reason.
	var req model.TerminateRequest
	if err := c.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, model.TerminateResponse{Success: false})
		return
	}

	t, err := h.attempts.Terminate(c.Request.Context(), middleware.GetActor(c), examID, req.Reason)
	if err != nil {
		status, _ := serviceError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("exam_id", examID).Msg("Terminate failed")
		}
		c.JSON(status, model.TerminateResponse{Success: false})
		return
	}

	c.JSON(http.StatusOK, model.TerminateResponse{
		Success: t.Attempt.Status == model.AttemptTerminated,
		Status:  t.Attempt.Status,
	})
}

// SaveDraft godoc
// PUT /api/v1/exams/:exam_id/draft
// Captures one selection of the running attempt.
func (h *ExamHandler) SaveDraft(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	var req model.DraftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.attempts.SaveDraft(c.Request.Context(), middleware.GetActor(c), examID, req.QuestionID, req.ChoiceID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved", "q_id": req.QuestionID})
}

// ReportViolation godoc
// POST /api/v1/exams/:exam_id/violations
// Feeds one client-observed anti-cheat signal to the monitor.
func (h *ExamHandler) ReportViolation(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	var req model.ViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	decision, err := h.attempts.ReportViolation(c.Request.Context(), middleware.GetActor(c), examID, anticheat.Signal(req.Signal), req.Detail)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, decision)
}
