package repository

import (
	"context"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// NotificationRepository persists user notifications.
type NotificationRepository struct {
	db database.Querier
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db database.Querier) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification stores a notification; redelivered ones are ignored.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n model.Notification) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (id, kind, user_id, quiz_id, attempt_id, subject, body, due_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Kind, n.UserID, n.QuizID, n.AttemptID, n.Subject, n.Body, n.DueDate, n.CreatedAt)
	return err
}
