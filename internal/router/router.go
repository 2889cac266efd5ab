package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/access"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/handler"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Score   *handler.ScoreHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	checker *access.Checker,
	rdb *redis.Client,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// An empty AllowedOrigins allows every origin so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Location", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Every request carries an actor, anonymous when no valid token is sent.
	router.Use(
		middleware.Authenticate(authService),
		middleware.CheckSingleDeviceSession(authService),
	)

	router.GET("/health", handlers.System.Health)

	can := func(capability access.Capability) gin.HandlerFunc {
		return middleware.RequireCapability(checker, capability)
	}

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	loginLimiter := middleware.NewRateLimiter(rdb, "login", cfg.LoginRatePerMinute, time.Minute)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", handlers.Auth.Me)
		auth.POST("/logout", handlers.Auth.Logout)
	}

	api := router.Group("/api/v1")

	// ─── 2. Taking an exam ─────────────────────────────────────────────
	api.GET("/student/exams", can(access.TakeExam), handlers.Exam.GetLobby)

	take := api.Group("/exams/:exam_id")
	take.Use(can(access.TakeExam), middleware.NoStore())
	{
		take.GET("/take", handlers.Exam.GetTake)
		take.POST("/take", handlers.Exam.PostTake)
		take.POST("/terminate", handlers.Exam.Terminate)
		take.PUT("/draft", handlers.Exam.SaveDraft)
		take.POST("/violations", handlers.Exam.ReportViolation)
	}

	// ─── 3. Scores and monitoring ──────────────────────────────────────
	// Ownership of a single score is checked by the score service.
	api.GET("/exams/:exam_id/scores/:uid", can(access.ViewOwnScore), handlers.Score.GetDetail)
	api.GET("/exams/:exam_id/scores", can(access.ViewScores), handlers.Score.ListByExam)
	api.GET("/exams/:exam_id/scores/export", can(access.ViewScores), handlers.Score.Export)
	api.DELETE("/scores/:attempt_id", can(access.DeleteScores), handlers.Score.Delete)

	api.GET("/exams/:exam_id/monitor", can(access.MonitorExam), handlers.Monitor.MonitorExamSSE)
	api.GET("/exams/:exam_id/violations/:uid", can(access.MonitorExam), handlers.Monitor.ListViolations)

	api.GET("/system/metrics", can(access.MonitorExam), handlers.System.MetricsSSE)

	// ─── 4. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/exams/:exam_id/stream", can(access.TakeExam), handlers.WS.ExamStream)
	}

	return router
}
