package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// SweepBatchSize is how many overdue attempts are listed per query.
const SweepBatchSize = 200

// OverdueLister lists open attempts whose next check is due.
type OverdueLister interface {
	ListOverdue(ctx context.Context, cutoff int64, after *model.AttemptCursor, limit int) ([]model.Attempt, error)
}

// QuizLoader reads a quiz definition fresh from the database.
type QuizLoader interface {
	Reload(ctx context.Context, quizID uuid.UUID) (*service.QuizData, error)
}

// ExpiryHandler runs the deadline check on one attempt.
type ExpiryHandler interface {
	HandleIfTimeExpired(ctx context.Context, attemptID uuid.UUID, data *service.QuizData, now, cutoff int64) (service.SweepResult, error)
}

// SweepStats summarises one sweep run.
type SweepStats struct {
	Processed int            `json:"processed"`
	Quizzes   int            `json:"quizzes"`
	Skipped   int            `json:"skipped"`
	Failures  int            `json:"failures"`
	States    map[string]int `json:"states"`
}

// OverdueSweeper closes attempts whose time ran out while nobody was looking.
type OverdueSweeper struct {
	lister   OverdueLister
	quizzes  QuizLoader
	attempts ExpiryHandler
	margin   time.Duration
	batch    int
	log      zerolog.Logger
}

// NewOverdueSweeper creates a new OverdueSweeper. Attempts are only touched
// once their check time is margin in the past.
func NewOverdueSweeper(lister OverdueLister, quizzes QuizLoader, attempts ExpiryHandler, margin time.Duration, log zerolog.Logger) *OverdueSweeper {
	return &OverdueSweeper{
		lister:   lister,
		quizzes:  quizzes,
		attempts: attempts,
		margin:   margin,
		batch:    SweepBatchSize,
		log:      log.With().Str("component", "overdue_sweeper").Logger(),
	}
}

// Run processes every attempt due at now minus the margin. A failing attempt
// or quiz is logged and counted, and the sweep moves on.
func (s *OverdueSweeper) Run(ctx context.Context, now int64) (SweepStats, error) {
	stats := SweepStats{States: make(map[string]int)}
	cutoff := now - int64(s.margin/time.Second)
	var (
		after       *model.AttemptCursor
		loaded      bool
		currentQuiz uuid.UUID
		data        *service.QuizData
		quizErr     error
	)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch, err := s.lister.ListOverdue(ctx, cutoff, after, s.batch)
		if err != nil {
			return stats, fmt.Errorf("list overdue attempts: %w", err)
		}

		for _, rec := range batch {
			if !loaded || rec.QuizID != currentQuiz {
				loaded = true
				currentQuiz = rec.QuizID
				data, quizErr = s.quizzes.Reload(ctx, rec.QuizID)
				stats.Quizzes++
				if quizErr != nil {
					s.log.Error().Err(quizErr).Str("quiz_id", rec.QuizID.String()).Msg("Failed to load quiz for sweep")
				}
			}
			if quizErr != nil {
				stats.Failures++
				continue
			}

			res, err := s.handle(ctx, rec, data, now, cutoff)
			if err != nil {
				stats.Failures++
				s.log.Error().Err(err).
					Str("attempt_id", rec.ID.String()).
					Str("quiz_id", rec.QuizID.String()).
					Int("user_id", rec.UserID).
					Msg("Overdue check failed")
				continue
			}
			if res.Skipped {
				stats.Skipped++
				continue
			}
			stats.Processed++
			stats.States[string(res.To)]++
			if res.From != res.To {
				s.log.Info().
					Str("attempt_id", rec.ID.String()).
					Int("user_id", rec.UserID).
					Str("from", string(res.From)).
					Str("to", string(res.To)).
					Msg("Attempt state changed by sweep")
			}
		}

		if len(batch) < s.batch {
			break
		}
		last := batch[len(batch)-1].Cursor()
		after = &last
	}

	s.log.Info().
		Int("processed", stats.Processed).
		Int("quizzes", stats.Quizzes).
		Int("skipped", stats.Skipped).
		Int("failures", stats.Failures).
		Msg("Overdue sweep complete")
	return stats, nil
}

func (s *OverdueSweeper) handle(ctx context.Context, rec model.Attempt, data *service.QuizData, now, cutoff int64) (res service.SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.attempts.HandleIfTimeExpired(ctx, rec.ID, data, now, cutoff)
}
