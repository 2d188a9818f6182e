package model

import (
	"github.com/google/uuid"
)

// AttemptState enumerates the lifecycle states of an attempt.
type AttemptState string

const (
	StateInProgress AttemptState = "inprogress"
	StateOverdue    AttemptState = "overdue"
	StateFinished   AttemptState = "finished"
	StateAbandoned  AttemptState = "abandoned"
)

// IsTerminal reports FINISHED or ABANDONED.
func (s AttemptState) IsTerminal() bool {
	return s == StateFinished || s == StateAbandoned
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to AttemptState) bool {
	switch from {
	case StateInProgress:
		return to == StateOverdue || to == StateFinished || to == StateAbandoned
	case StateOverdue:
		return to == StateFinished || to == StateAbandoned
	default:
		return false
	}
}

// Attempt is one user's attempt at a quiz.
type Attempt struct {
	ID             uuid.UUID    `json:"id"`
	QuizID         uuid.UUID    `json:"quiz_id"`
	UserID         int          `json:"user_id"`
	Attempt        int          `json:"attempt"`
	UsageID        uuid.UUID    `json:"usage_id"`
	Layout         string       `json:"layout"`
	CurrentPage    int          `json:"current_page"`
	Preview        bool         `json:"preview"`
	State          AttemptState `json:"state"`
	TimeStart      int64        `json:"time_start"`
	TimeFinish     int64        `json:"time_finish"`
	TimeModified   int64        `json:"time_modified"`
	TimeCheckState *int64       `json:"time_check_state,omitempty"`
	SumGrades      *float64     `json:"sum_grades,omitempty"`

	// IgnoreTimeLimits records that the owner held quiz:ignoretimelimits at
	// start, so the overdue sweep applies the same rules.
	IgnoreTimeLimits bool `json:"ignore_time_limits,omitempty"`
}

// AttemptCursor is a position in the (quiz, user, id) ordering of attempts.
type AttemptCursor struct {
	QuizID uuid.UUID
	UserID int
	ID     uuid.UUID
}

// Cursor returns the position of a in that ordering.
func (a *Attempt) Cursor() AttemptCursor {
	return AttemptCursor{QuizID: a.QuizID, UserID: a.UserID, ID: a.ID}
}

// IsFinished reports an attempt in a terminal state.
func (a *Attempt) IsFinished() bool {
	return a.State.IsTerminal()
}
