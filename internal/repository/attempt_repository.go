package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrDuplicateAttempt is returned when an attempt number is already taken.
var ErrDuplicateAttempt = errors.New("attempt number already exists")

// AttemptRepository handles quiz attempt data access.
type AttemptRepository struct {
	db database.Querier
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(db database.Querier) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `id, quiz_id, user_id, attempt, usage_id, layout, current_page, preview, state,
	time_start, time_finish, time_modified, time_check_state, sum_grades, ignore_time_limits`

func scanAttempt(row scanner) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Attempt, &a.UsageID, &a.Layout, &a.CurrentPage, &a.Preview,
		&a.State, &a.TimeStart, &a.TimeFinish, &a.TimeModified, &a.TimeCheckState, &a.SumGrades, &a.IgnoreTimeLimits)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectAttempts(rows pgx.Rows) ([]model.Attempt, error) {
	defer rows.Close()
	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAttempt retrieves an attempt by ID.
func (r *AttemptRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, id))
}

// GetAttemptForUpdate retrieves an attempt and locks its row until the
// surrounding transaction ends.
func (r *AttemptRepository) GetAttemptForUpdate(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1 FOR UPDATE`, id))
}

// GetUnfinishedAttempt retrieves the user's open attempt (preview or not), if any.
func (r *AttemptRepository) GetUnfinishedAttempt(ctx context.Context, quizID uuid.UUID, userID int) (*model.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts
		 WHERE quiz_id = $1 AND user_id = $2 AND state IN ('inprogress', 'overdue')
		 ORDER BY time_start DESC
		 LIMIT 1`, quizID, userID))
}

// ListUserAttempts retrieves all of a user's attempts at a quiz, previews included.
func (r *AttemptRepository) ListUserAttempts(ctx context.Context, quizID uuid.UUID, userID int) ([]model.Attempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts
		 WHERE quiz_id = $1 AND user_id = $2
		 ORDER BY attempt, time_start`, quizID, userID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// ListOverdue retrieves open attempts whose next check is at or before cutoff,
// grouped by quiz so callers can reuse quiz data across consecutive rows.
// Listing resumes after the given cursor when it is set.
func (r *AttemptRepository) ListOverdue(ctx context.Context, cutoff int64, after *model.AttemptCursor, limit int) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM quiz_attempts
		 WHERE state IN ('inprogress', 'overdue')
		   AND time_check_state IS NOT NULL
		   AND time_check_state <= $1`
	args := []any{cutoff, limit}
	if after != nil {
		query += ` AND (quiz_id, user_id, id) > ($3, $4, $5)`
		args = append(args, after.QuizID, after.UserID, after.ID)
	}
	query += ` ORDER BY quiz_id, user_id, id LIMIT $2`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// CountQuizAttempts counts the attempts of a quiz, previews included.
func (r *AttemptRepository) CountQuizAttempts(ctx context.Context, quizID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1`, quizID).Scan(&n)
	return n, err
}

// InsertAttempt stores a new attempt.
func (r *AttemptRepository) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO quiz_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.QuizID, a.UserID, a.Attempt, a.UsageID, a.Layout, a.CurrentPage, a.Preview, a.State,
		a.TimeStart, a.TimeFinish, a.TimeModified, a.TimeCheckState, a.SumGrades, a.IgnoreTimeLimits)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("quiz %s user %d attempt %d: %w", a.QuizID, a.UserID, a.Attempt, ErrDuplicateAttempt)
	}
	return err
}

// UpdateAttempt writes back every mutable column.
func (r *AttemptRepository) UpdateAttempt(ctx context.Context, a *model.Attempt) error {
	_, err := r.db.Exec(ctx,
		`UPDATE quiz_attempts
		 SET current_page = $1, state = $2, time_finish = $3, time_modified = $4,
		     time_check_state = $5, sum_grades = $6
		 WHERE id = $7`,
		a.CurrentPage, a.State, a.TimeFinish, a.TimeModified, a.TimeCheckState, a.SumGrades, a.ID)
	return err
}

// UpdateTimeCheckState writes only the next-check time.
func (r *AttemptRepository) UpdateTimeCheckState(ctx context.Context, id uuid.UUID, ts *int64) error {
	_, err := r.db.Exec(ctx, `UPDATE quiz_attempts SET time_check_state = $1 WHERE id = $2`, ts, id)
	return err
}

// DeleteAttempt removes an attempt and its usage.
func (r *AttemptRepository) DeleteAttempt(ctx context.Context, id uuid.UUID) error {
	var usageID uuid.UUID
	err := r.db.QueryRow(ctx, `DELETE FROM quiz_attempts WHERE id = $1 RETURNING usage_id`, id).Scan(&usageID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `DELETE FROM question_usages WHERE id = $1`, usageID)
	return err
}

// DeleteQuizAttempts removes every attempt of a quiz with their usages and
// returns how many were deleted.
func (r *AttemptRepository) DeleteQuizAttempts(ctx context.Context, quizID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`WITH deleted AS (
		     DELETE FROM quiz_attempts WHERE quiz_id = $1 RETURNING usage_id
		 )
		 DELETE FROM question_usages WHERE id IN (SELECT usage_id FROM deleted)`, quizID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LockUserQuiz takes a transaction-scoped advisory lock on (quiz, user) so
// that concurrent starts are serialised.
func (r *AttemptRepository) LockUserQuiz(ctx context.Context, quizID uuid.UUID, userID int) error {
	_, err := r.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		fmt.Sprintf("%s:%d", quizID, userID))
	return err
}
