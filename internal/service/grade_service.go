package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// GradeService keeps quiz_grades in step with the attempts.
type GradeService struct{}

// NewGradeService creates a new GradeService.
func NewGradeService() *GradeService {
	return &GradeService{}
}

// RecomputeBestGrade recalculates a user's grade from their attempts and
// stores it, or removes it when no attempt is graded. It runs on st so that
// it shares the caller's transaction.
func (s *GradeService) RecomputeBestGrade(ctx context.Context, st Store, quiz model.Quiz, userID int, now int64) error {
	attempts, err := st.ListUserAttempts(ctx, quiz.ID, userID)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	raw, ok := grading.BestGrade(quiz.GradeMethod, attempts)
	if !ok {
		return st.DeleteGrade(ctx, quiz.ID, userID)
	}
	return st.UpsertGrade(ctx, &model.QuizGrade{
		QuizID:       quiz.ID,
		UserID:       userID,
		Grade:        grading.Rescale(raw, quiz),
		TimeModified: now,
	})
}

// Get returns the stored grade, or nil when the user has none.
func (s *GradeService) Get(ctx context.Context, st Store, quizID uuid.UUID, userID int) (*model.QuizGrade, error) {
	g, err := st.GetGrade(ctx, quizID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}
