package main

import (
	"context"
	"flag"
	"time"

	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

// sweep-overdue runs the overdue sweep once, for hosts that schedule it
// from outside the server (cron, a Kubernetes CronJob).
func main() {
	timeout := flag.Duration("timeout", worker.SweepTimeout, "Maximum duration of the sweep")
	at := flag.Int64("at", 0, "Sweep as of this Unix time instead of now")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "quiz-sweep")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
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

	clk := clock.System
	if *at > 0 {
		clk = clock.FixedUnix(*at)
	}

	txr := service.NewPgTransactor(pool)
	quizService := service.NewQuizService(txr, rdb, cfg.QuizCacheTTL, log)
	gradeService := service.NewGradeService()
	accessService := service.NewAccessService(txr, quizService, gradeService,
		service.NewRedisPasswordFlags(rdb, cfg.JWTExpiry), cfg.TimeLeftThreshold)
	attemptService := service.NewAttemptService(txr, quizService, accessService, gradeService,
		service.NewRedisEventSink(rdb), service.AttemptConfig(cfg), clk, log)

	sweeper := worker.NewOverdueSweeper(repository.NewStore(pool), quizService, attemptService, cfg.SweepSafetyMargin, log)

	started := time.Now()
	stats, err := sweeper.Run(ctx, clk.Unix())
	if err != nil {
		log.Fatal().Err(err).Msg("Overdue sweep failed")
	}
	log.Info().
		Dur("took", time.Since(started)).
		Int("processed", stats.Processed).
		Int("failures", stats.Failures).
		Msg("Done")
}
