package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// EventRepository persists the attempt event log.
type EventRepository struct {
	db database.Querier
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db database.Querier) *EventRepository {
	return &EventRepository{db: db}
}

var eventColumns = []string{"id", "name", "attempt_id", "quiz_id", "user_id", "time", "online", "data", "recorded_at"}

// CopyEvents bulk-inserts events with COPY.
func (r *EventRepository) CopyEvents(ctx context.Context, events []model.Event) (int64, error) {
	now := time.Now()
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.ID, e.Name, e.AttemptID, e.QuizID, e.UserID, e.Time, e.Online, e.Data, now})
	}
	return r.db.CopyFrom(ctx, pgx.Identifier{"attempt_events"}, eventColumns, pgx.CopyFromRows(rows))
}

// InsertEvent stores one event; duplicates are ignored.
func (r *EventRepository) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO attempt_events (id, name, attempt_id, quiz_id, user_id, time, online, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Name, e.AttemptID, e.QuizID, e.UserID, e.Time, e.Online, e.Data)
	return err
}
