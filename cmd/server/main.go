package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/router"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "quiz-server")
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("sweep_schedule", cfg.SweepSchedule).
		Msg("Starting ExStem Quiz")

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

	// ─── Initialize Services ──────────────────────────────────────────
	clk := clock.System
	txr := service.NewPgTransactor(pool)
	store := repository.NewStore(pool)

	authService := service.NewAuthService(cfg)
	quizService := service.NewQuizService(txr, rdb, cfg.QuizCacheTTL, log)
	gradeService := service.NewGradeService()
	accessService := service.NewAccessService(txr, quizService, gradeService,
		service.NewRedisPasswordFlags(rdb, cfg.JWTExpiry), cfg.TimeLeftThreshold)
	attemptService := service.NewAttemptService(txr, quizService, accessService, gradeService,
		service.NewRedisEventSink(rdb), service.AttemptConfig(cfg), clk, log)

	monitorService := service.NewMonitorService(repository.NewMonitorRepository(pool))

	sweeper := worker.NewOverdueSweeper(store, quizService, attemptService, cfg.SweepSafetyMargin, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Quiz:    handler.NewQuizHandler(accessService, attemptService, clk, log),
		Attempt: handler.NewAttemptHandler(attemptService, log),
		Admin:   handler.NewAdminHandler(quizService, sweeper, authService, clk, log),
		WS:      handler.NewWSHandler(attemptService, rdb, clk, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(pool, rdb, log),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, clk, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	eventWorker := worker.NewEventWorker(store,
		worker.NewRedisQueue(rdb, config.WorkerKey.PersistEventsQueue), log)
	notificationWorker := worker.NewNotificationWorker(store,
		worker.NewRedisQueue(rdb, config.WorkerKey.PersistNotificationsQueue), log)

	workers.Add(2)
	go func() { defer workers.Done(); eventWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); notificationWorker.Start(workerCtx) }()

	scheduler, err := worker.NewOverdueScheduler(cfg.SweepSchedule, sweeper, clk, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid sweep schedule")
	}
	scheduler.Start()

	// ─── Setup Router ──────────────────────────────────────────────────
	passwordLimiter := middleware.NewRateLimiter(ctx, 10, time.Minute)
	r := router.SetupRouter(authService, handlers, passwordLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 2. Let a running sweep finish, then stop the workers; they flush
	// their buffers before returning.
	scheduler.Stop(shutdownCtx)
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}
