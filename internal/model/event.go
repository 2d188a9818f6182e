package model

import (
	"github.com/google/uuid"
)

// Lifecycle event names.
const (
	EventAttemptStarted           = "attempt_started"
	EventAttemptPreviewStarted    = "attempt_preview_started"
	EventAttemptSubmitted         = "attempt_submitted"
	EventAttemptBecameOverdue     = "attempt_becameoverdue"
	EventAttemptAbandoned         = "attempt_abandoned"
	EventAttemptReviewed          = "attempt_reviewed"
	EventAttemptQuestionRestarted = "attempt_question_restarted"
	EventAttemptDeleted           = "attempt_deleted"
)

// Event is a lifecycle event delivered to the event sink after commit.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	AttemptID uuid.UUID         `json:"attempt_id"`
	QuizID    uuid.UUID         `json:"quiz_id"`
	UserID    int               `json:"user_id"`
	Time      int64             `json:"time"`
	Online    bool              `json:"online"`
	Data      map[string]string `json:"data,omitempty"`
}

// NotificationOverdue is sent when an attempt enters its grace period.
const NotificationOverdue = "attempt_overdue"

// Notification is a human-facing message for a user.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	UserID    int       `json:"user_id"`
	QuizID    uuid.UUID `json:"quiz_id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	DueDate   int64     `json:"due_date,omitempty"`
	CreatedAt int64     `json:"created_at"`
}
