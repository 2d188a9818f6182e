package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// OverrideRepository handles quiz override data access.
type OverrideRepository struct {
	db database.Querier
}

// NewOverrideRepository creates a new OverrideRepository.
func NewOverrideRepository(db database.Querier) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// ListOverrides retrieves every user and group override of a quiz.
func (r *OverrideRepository) ListOverrides(ctx context.Context, quizID uuid.UUID) ([]model.Override, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, quiz_id, user_id, group_id, time_open, time_close, time_limit, attempts, password
		 FROM quiz_overrides WHERE quiz_id = $1
		 ORDER BY id`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.ID, &o.QuizID, &o.UserID, &o.GroupID, &o.TimeOpen, &o.TimeClose,
			&o.TimeLimit, &o.Attempts, &o.Password); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
