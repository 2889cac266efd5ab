package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams the live state of an exam to staff.
type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/exams/:exam_id/monitor
// Sends a snapshot, then forwards attempt events as they happen and a fresh
// snapshot every refreshInterval while anything is going on.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	snap, err := h.snapshot(reqCtx, examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refreshes until something happens.
	active := snap.Stats.TotalInProgress > 0

	monLog := h.log.With().Int64("exam_id", examID).Logger()
	monLog.Info().Msg("Staff attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			monLog.Info().Msg("Staff detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already JSON.
			c.Render(-1, sseRaw{event: "attempt", data: msg.Payload})
			c.Writer.Flush()
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			snap, err := h.snapshot(reqCtx, examID)
			if err != nil {
				monLog.Warn().Err(err).Msg("Monitor refresh failed")
				continue
			}
			active = snap.Stats.TotalInProgress > 0
			c.SSEvent("snapshot", snap)
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().Unix()})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) snapshot(parent context.Context, examID int64) (*service.MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitorService.Snapshot(ctx, examID)
}

// ListViolations godoc
// GET /api/v1/exams/:exam_id/violations/:uid
// Returns the logged anti-cheat violations of one student.
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}
	uid, ok := parseID(c, "uid")
	if !ok {
		return
	}

	violations, err := h.monitorService.Violations(c.Request.Context(), examID, uid)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if violations == nil {
		violations = []model.AttemptViolation{}
	}
	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}

// sseRaw renders a server-sent event whose data is pre-encoded.
type sseRaw struct {
	event string
	data  string
}

func (r sseRaw) Render(w http.ResponseWriter) error {
	_, err := w.Write([]byte("event:" + r.event + "\ndata:" + r.data + "\n\n"))
	return err
}

func (r sseRaw) WriteContentType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
}
