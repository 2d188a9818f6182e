package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// GradeRepository handles best-grade data access.
type GradeRepository struct {
	db database.Querier
}

// NewGradeRepository creates a new GradeRepository.
func NewGradeRepository(db database.Querier) *GradeRepository {
	return &GradeRepository{db: db}
}

// GetGrade retrieves a user's best grade for a quiz.
func (r *GradeRepository) GetGrade(ctx context.Context, quizID uuid.UUID, userID int) (*model.QuizGrade, error) {
	g := &model.QuizGrade{}
	err := r.db.QueryRow(ctx,
		`SELECT quiz_id, user_id, grade, time_modified FROM quiz_grades
		 WHERE quiz_id = $1 AND user_id = $2`, quizID, userID,
	).Scan(&g.QuizID, &g.UserID, &g.Grade, &g.TimeModified)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// UpsertGrade stores a user's best grade.
func (r *GradeRepository) UpsertGrade(ctx context.Context, g *model.QuizGrade) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO quiz_grades (quiz_id, user_id, grade, time_modified)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (quiz_id, user_id) DO UPDATE
		 SET grade = EXCLUDED.grade, time_modified = EXCLUDED.time_modified`,
		g.QuizID, g.UserID, g.Grade, g.TimeModified)
	return err
}

// DeleteGrade removes a user's best grade.
func (r *GradeRepository) DeleteGrade(ctx context.Context, quizID uuid.UUID, userID int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM quiz_grades WHERE quiz_id = $1 AND user_id = $2`, quizID, userID)
	return err
}

// DeleteQuizGrades removes every grade of a quiz.
func (r *GradeRepository) DeleteQuizGrades(ctx context.Context, quizID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM quiz_grades WHERE quiz_id = $1`, quizID)
	return err
}
