package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// MonitorRepository provides the read-only queries behind the live quiz monitor.
type MonitorRepository struct {
	db database.Querier
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(db database.Querier) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// GetStateCounts counts the real (non-preview) attempts of a quiz per state.
func (r *MonitorRepository) GetStateCounts(ctx context.Context, quizID uuid.UUID) (map[model.AttemptState]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT state, COUNT(*)
		 FROM quiz_attempts
		 WHERE quiz_id = $1 AND NOT preview
		 GROUP BY state`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.AttemptState]int64)
	for rows.Next() {
		var state model.AttemptState
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

// ListOpenAttempts returns the in-progress and overdue attempts of a quiz.
func (r *MonitorRepository) ListOpenAttempts(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts
		 WHERE quiz_id = $1 AND NOT preview AND state IN ('inprogress', 'overdue')
		 ORDER BY time_start`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// GetAnsweredCounts returns, for every open attempt of the quiz, how many of
// its questions have a response saved.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, COUNT(qa.slot)
		 FROM quiz_attempts a
		 JOIN question_attempts qa ON qa.usage_id = a.usage_id AND qa.response <> '' AND qa.max_mark > 0
		 WHERE a.quiz_id = $1 AND NOT a.preview AND a.state IN ('inprogress', 'overdue')
		 GROUP BY a.id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		result[id] = count
	}
	return result, rows.Err()
}

// GetEventCounts counts the lifecycle events recorded for a quiz since a Unix time.
func (r *MonitorRepository) GetEventCounts(ctx context.Context, quizID uuid.UUID, since int64) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, COUNT(*)
		 FROM attempt_events
		 WHERE quiz_id = $1 AND time >= $2
		 GROUP BY name`,
		quizID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		counts[name] = count
	}
	return counts, rows.Err()
}
