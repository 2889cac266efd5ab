package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

// ScoreHandler serves score views and staff score management.
type ScoreHandler struct {
	scores *service.ScoreService
	log    zerolog.Logger
}

// NewScoreHandler creates a new ScoreHandler.
func NewScoreHandler(scores *service.ScoreService, log zerolog.Logger) *ScoreHandler {
	return &ScoreHandler{
		scores: scores,
		log:    log.With().Str("component", "score_handler").Logger(),
	}
}

// GetDetail godoc
// GET /api/v1/exams/:exam_id/scores/:uid
func (h *ScoreHandler) GetDetail(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}
	uid, ok := parseID(c, "uid")
	if !ok {
		return
	}

	view, err := h.scores.Detail(c.Request.Context(), middleware.GetActor(c), examID, uid)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// ListByExam godoc
// GET /api/v1/exams/:exam_id/scores
func (h *ScoreHandler) ListByExam(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	exam, rows, err := h.scores.List(c.Request.Context(), examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam, "scores": rows})
}

// Export godoc
// GET /api/v1/exams/:exam_id/scores/export
// Streams the score listing as an XLSX workbook.
func (h *ScoreHandler) Export(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	_, buf, err := h.scores.Export(c.Request.Context(), examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="exam-%d-scores.xlsx"`, examID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Delete godoc
// DELETE /api/v1/scores/:attempt_id
// Destroys the attempt so the student can take the exam again.
func (h *ScoreHandler) Delete(c *gin.Context) {
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.scores.Delete(c.Request.Context(), middleware.GetActor(c), attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": attempt.ID})
}
