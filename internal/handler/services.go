package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

// QuizAccess is the part of service.AccessService the handlers use.
type QuizAccess interface {
	Summary(ctx context.Context, quizID uuid.UUID, actor service.Actor, now int64) (*service.AccessSummary, error)
	CheckPassword(ctx context.Context, quizID uuid.UUID, actor service.Actor, input string) error
}

// Attempts is the part of service.AttemptService the handlers use.
type Attempts interface {
	StartOrContinue(ctx context.Context, quizID uuid.UUID, actor service.Actor, preview bool) (*service.AttemptView, error)
	View(ctx context.Context, attemptID uuid.UUID, actor service.Actor, page int) (*service.AttemptView, error)
	Autosave(ctx context.Context, attemptID uuid.UUID, actor service.Actor, actions []questionusage.Action) error
	Process(ctx context.Context, attemptID uuid.UUID, actor service.Actor, req service.ProcessRequest) (*service.AttemptView, error)
	Finish(ctx context.Context, attemptID uuid.UUID, actor service.Actor) (*service.AttemptView, error)
	Redo(ctx context.Context, attemptID uuid.UUID, actor service.Actor, slot int) (int, error)
	ToggleFlag(ctx context.Context, attemptID uuid.UUID, actor service.Actor, slot int) (bool, error)
	DeletePreview(ctx context.Context, attemptID uuid.UUID, actor service.Actor) error
}

// QuizAdmin is the part of service.QuizService the admin handler uses.
type QuizAdmin interface {
	Repaginate(ctx context.Context, quizID uuid.UUID, perPage int) ([]model.Slot, error)
	PurgeAttempts(ctx context.Context, quizID uuid.UUID) (int64, error)
	SetPassword(ctx context.Context, quizID uuid.UUID, password string, now int64) error
	Invalidate(ctx context.Context, quizID uuid.UUID) error
}

// Sweeper runs the overdue sweep on demand.
type Sweeper interface {
	Run(ctx context.Context, now int64) (worker.SweepStats, error)
}

// PasswordHasher hashes quiz passwords before they are stored.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

var (
	_ QuizAccess     = (*service.AccessService)(nil)
	_ Attempts       = (*service.AttemptService)(nil)
	_ QuizAdmin      = (*service.QuizService)(nil)
	_ Sweeper        = (*worker.OverdueSweeper)(nil)
	_ PasswordHasher = (*service.AuthService)(nil)
)
