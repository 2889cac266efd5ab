package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/access"
	"github.com/stemsi/cbt-backend/internal/anticheat"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/events"
	"github.com/stemsi/cbt-backend/internal/handler"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/repository"
	"github.com/stemsi/cbt-backend/internal/router"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/validator"
	"github.com/stemsi/cbt-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CBT Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	defaultPolicy := anticheat.Policy{
		Mode:          anticheat.Mode(cfg.AntiCheatMode),
		MaxViolations: cfg.AntiCheatMaxViolations,
	}
	if err := defaultPolicy.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid anti-cheat configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Events ────────────────────────────────────────────────────────
	// Lifecycle events go to watermill (Kafka or in-process) and to the
	// Redis channel the live monitor listens on.
	wm, err := events.NewWatermillPublisher(events.WatermillConfig{
		KafkaBrokers: cfg.KafkaBrokers,
		Topic:        cfg.EventsTopic,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event publisher")
	}
	publisher := events.Multi{wm, events.NewRedisMonitorPublisher(rdb)}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	draftRepo := repository.NewDraftRepository(pool, rdb)
	violationRepo := repository.NewViolationRepository(rdb)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo)
	examService := service.NewExamService(examRepo, questionRepo, attemptRepo, rdb, cfg.PaperCacheTTL, log)
	attemptService := service.NewAttemptService(examService, attemptRepo, draftRepo, violationRepo, publisher, defaultPolicy, log)
	scoreService := service.NewScoreService(attemptService, log)
	monitorService := service.NewMonitorService(monitorRepo, examService, rdb)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, int(cfg.JWTExpiry.Seconds()), log),
		Exam:    handler.NewExamHandler(attemptService, examService, log),
		Score:   handler.NewScoreHandler(scoreService, log),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, log),
		WS:      handler.NewWSHandler(attemptService, scoreService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	draftWorker := worker.NewDraftWorker(pool, rdb, log)
	violationWorker := worker.NewViolationWorker(pool, rdb, log)

	workers.Add(3)
	go func() { defer workers.Done(); draftWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); violationWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); wm.RunAuditLog(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Papers of published exams are cached before traffic arrives so the
	// first wave of students does not stampede PostgreSQL.
	if err := examService.PrewarmPapers(ctx); err != nil {
		log.Warn().Err(err).Msg("Paper prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, access.NewChecker(nil), rdb, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop workers; they flush what they hold before returning.
	// Closing the publisher ends the audit log subscription.
	workerCancel()
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Event publisher close error")
	}
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
