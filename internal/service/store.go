package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

// Store is the data access the services need. *repository.Store satisfies it
// over a pool or over a transaction.
type Store interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	UpdateQuizPassword(ctx context.Context, id uuid.UUID, password string, now int64) error
	ListSlots(ctx context.Context, quizID uuid.UUID) ([]model.Slot, error)
	ListSections(ctx context.Context, quizID uuid.UUID) ([]model.Section, error)
	UpdateSlotPages(ctx context.Context, quizID uuid.UUID, slots []model.Slot) error
	ListOverrides(ctx context.Context, quizID uuid.UUID) ([]model.Override, error)
	ListUserGroups(ctx context.Context, userID int) ([]int, error)

	ListCategories(ctx context.Context) ([]model.QuestionCategory, error)
	ListQuestionsByIDs(ctx context.Context, ids []int64) ([]model.Question, error)
	ListQuestionsInCategories(ctx context.Context, categoryIDs []int64) ([]model.Question, error)

	GetUsage(ctx context.Context, id uuid.UUID) (*questionusage.Usage, error)
	SaveUsage(ctx context.Context, u *questionusage.Usage) error
	DeleteUsage(ctx context.Context, id uuid.UUID) error

	GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetAttemptForUpdate(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetUnfinishedAttempt(ctx context.Context, quizID uuid.UUID, userID int) (*model.Attempt, error)
	ListUserAttempts(ctx context.Context, quizID uuid.UUID, userID int) ([]model.Attempt, error)
	ListOverdue(ctx context.Context, cutoff int64, after *model.AttemptCursor, limit int) ([]model.Attempt, error)
	CountQuizAttempts(ctx context.Context, quizID uuid.UUID) (int, error)
	InsertAttempt(ctx context.Context, a *model.Attempt) error
	UpdateAttempt(ctx context.Context, a *model.Attempt) error
	UpdateTimeCheckState(ctx context.Context, id uuid.UUID, ts *int64) error
	DeleteAttempt(ctx context.Context, id uuid.UUID) error
	DeleteQuizAttempts(ctx context.Context, quizID uuid.UUID) (int64, error)
	LockUserQuiz(ctx context.Context, quizID uuid.UUID, userID int) error

	GetGrade(ctx context.Context, quizID uuid.UUID, userID int) (*model.QuizGrade, error)
	UpsertGrade(ctx context.Context, g *model.QuizGrade) error
	DeleteGrade(ctx context.Context, quizID uuid.UUID, userID int) error
	DeleteQuizGrades(ctx context.Context, quizID uuid.UUID) error
}

var _ Store = (*repository.Store)(nil)

// Transactor hands out a Store outside or inside a transaction.
type Transactor interface {
	Store() Store
	InTx(ctx context.Context, fn func(st Store) error) error
}

// PgTransactor runs transactions on a pgx pool.
type PgTransactor struct {
	pool  *pgxpool.Pool
	store *repository.Store
}

// NewPgTransactor creates a PgTransactor.
func NewPgTransactor(pool *pgxpool.Pool) *PgTransactor {
	return &PgTransactor{pool: pool, store: repository.NewStore(pool)}
}

// Store returns the pool-backed store.
func (t *PgTransactor) Store() Store { return t.store }

// InTx runs fn with a store bound to a new transaction.
func (t *PgTransactor) InTx(ctx context.Context, fn func(st Store) error) error {
	return database.WithTx(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(repository.NewStore(tx))
	})
}
