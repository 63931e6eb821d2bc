package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/database"
	"github.com/examo-id/examo-backend/internal/handler"
	"github.com/examo-id/examo-backend/internal/logger"
	"github.com/examo-id/examo-backend/internal/repository"
	"github.com/examo-id/examo-backend/internal/router"
	"github.com/examo-id/examo-backend/internal/service"
	"github.com/examo-id/examo-backend/internal/shuffle"
	"github.com/examo-id/examo-backend/internal/validator"
	"github.com/examo-id/examo-backend/internal/worker"
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
		Msg("Starting Examo Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

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

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	teacherRepo := repository.NewTeacherRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	studentService := service.NewStudentService(studentRepo, authService, log)
	teacherService := service.NewTeacherService(teacherRepo, authService)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	attemptService := service.NewAttemptService(attemptRepo, examRepo, rdb, log)
	monitorService := service.NewMonitorService(monitorRepo)

	shuffleEngine := shuffle.NewEngine(shuffle.NewRedisStore(rdb))
	attemptSink := service.NewRedisAttemptSink(rdb)
	violationNotifier := service.NewRedisViolationNotifier(rdb)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, studentService, teacherService),
		StudentPortal: handler.NewStudentPortalHandler(attemptService, examService, shuffleEngine),
		StudentMgmt:   handler.NewStudentManagementHandler(studentService),
		Exam:          handler.NewExamHandler(examService, attemptService, shuffleEngine),
		Monitor:       handler.NewMonitorHandler(rdb, examService, attemptService, monitorService, log),
		WS:            handler.NewWSHandler(cfg, examService, attemptService, shuffleEngine, attemptSink, violationNotifier, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	progressWorker := worker.NewProgressWorker(pool, rdb, log)
	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	resultWorker := worker.NewResultWorker(pool, rdb, log)
	orderWorker := worker.NewOrderWorker(pool, rdb, log)

	go progressWorker.Start(workerCtx)
	go violationWorker.Start(workerCtx)
	go resultWorker.Start(workerCtx)
	go orderWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
