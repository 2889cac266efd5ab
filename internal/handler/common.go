package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

// TakePath is the take-exam page of an exam.
func TakePath(examID int64) string {
	return fmt.Sprintf("/api/v1/exams/%d/take", examID)
}

// ScorePath is the score-detail page of a user's attempt.
func ScorePath(examID, userID int64) string {
	return fmt.Sprintf("/api/v1/exams/%d/scores/%d", examID, userID)
}

// parseID reads a positive integer path parameter.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// serviceError maps a domain error onto an HTTP status and error code.
func serviceError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, response.ErrNotOwner
	case errors.Is(err, service.ErrAttemptNotStarted):
		return http.StatusConflict, response.ErrAttemptNotStarted
	case errors.Is(err, service.ErrAttemptNotInProgress):
		return http.StatusConflict, response.ErrAttemptNotInProgress
	case errors.Is(err, service.ErrAttemptExpired):
		return http.StatusConflict, response.ErrAttemptExpired
	case errors.Is(err, service.ErrInvalidSelection):
		return http.StatusBadRequest, response.ErrInvalidSelection
	case errors.Is(err, service.ErrInvalidSignal):
		return http.StatusBadRequest, response.ErrInvalidSignal
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, service.ErrSessionInvalidated):
		return http.StatusUnauthorized, response.ErrSessionInvalidated
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failService writes the envelope for err, logging unexpected failures.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	status, code := serviceError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
