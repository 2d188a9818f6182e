package repository

import (
	"github.com/stemsi/exstem-quiz/internal/database"
)

// Store bundles every repository over one Querier. Built over a pool it runs
// each statement on its own; built over a pgx.Tx it runs them all in that
// transaction.
type Store struct {
	*QuizRepository
	*OverrideRepository
	*GroupRepository
	*QuestionRepository
	*UsageRepository
	*AttemptRepository
	*GradeRepository
	*EventRepository
	*NotificationRepository
}

// NewStore creates a Store over db.
func NewStore(db database.Querier) *Store {
	return &Store{
		QuizRepository:         NewQuizRepository(db),
		OverrideRepository:     NewOverrideRepository(db),
		GroupRepository:        NewGroupRepository(db),
		QuestionRepository:     NewQuestionRepository(db),
		UsageRepository:        NewUsageRepository(db),
		AttemptRepository:      NewAttemptRepository(db),
		GradeRepository:        NewGradeRepository(db),
		EventRepository:        NewEventRepository(db),
		NotificationRepository: NewNotificationRepository(db),
	}
}

type scanner interface {
	Scan(dest ...any) error
}
