package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// quiz-password sets or clears a quiz password from the terminal so the
// plain password never appears in shell history.
func main() {
	quizArg := flag.String("quiz", "", "Quiz ID")
	remove := flag.Bool("clear", false, "Remove the password instead of setting one")
	flag.Parse()

	quizID, err := uuid.Parse(*quizArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: -quiz must be a quiz UUID")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "quiz-password")

	stored := ""
	if !*remove {
		fmt.Print("Enter Password: ")
		first, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading password")
			os.Exit(1)
		}
		fmt.Print("Repeat Password: ")
		second, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading password")
			os.Exit(1)
		}
		if string(first) != string(second) {
			fmt.Fprintln(os.Stderr, "Error: passwords do not match")
			os.Exit(1)
		}
		if len(first) == 0 {
			fmt.Fprintln(os.Stderr, "Error: password is empty; use -clear to remove it")
			os.Exit(1)
		}

		hash, err := service.NewAuthService(cfg).HashPassword(string(first))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		stored = hash
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Redis is optional here; without it the cached quiz expires on its own.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, cached quiz will not be invalidated")
		rdb = nil
	} else {
		defer rdb.Close()
	}

	quizService := service.NewQuizService(service.NewPgTransactor(pool), rdb, cfg.QuizCacheTTL, log)
	if err := quizService.SetPassword(ctx, quizID, stored, time.Now().Unix()); err != nil {
		log.Fatal().Err(err).Str("quiz_id", quizID.String()).Msg("Failed to update quiz password")
	}

	if stored == "" {
		fmt.Println("Password removed.")
	} else {
		fmt.Println("Password updated.")
	}
}
