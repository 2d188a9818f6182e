package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// QuizRepository handles quiz, slot and section data access.
type QuizRepository struct {
	db database.Querier
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(db database.Querier) *QuizRepository {
	return &QuizRepository{db: db}
}

// GetQuiz retrieves a quiz by ID.
func (r *QuizRepository) GetQuiz(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, time_open, time_close, time_limit, grace_period, overdue_handling,
		        attempts, attempt_on_last, nav_method, shuffle_answers, questions_per_page,
		        grade_method, sum_grades, grade, password, subnet, delay1, delay2,
		        can_redo_questions, preferred_behaviour, time_modified
		 FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.Name, &q.TimeOpen, &q.TimeClose, &q.TimeLimit, &q.GracePeriod, &q.OverdueHandling,
		&q.Attempts, &q.AttemptOnLast, &q.NavMethod, &q.ShuffleAnswers, &q.QuestionsPerPage,
		&q.GradeMethod, &q.SumGrades, &q.Grade, &q.Password, &q.Subnet, &q.Delay1, &q.Delay2,
		&q.CanRedoQuestions, &q.PreferredBehaviour, &q.TimeModified)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuizPassword replaces the stored quiz password (plain or bcrypt hash).
func (r *QuizRepository) UpdateQuizPassword(ctx context.Context, id uuid.UUID, password string, now int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quizzes SET password = $1, time_modified = $2 WHERE id = $3`,
		password, now, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListSlots retrieves the slots of a quiz ordered by slot number.
func (r *QuizRepository) ListSlots(ctx context.Context, quizID uuid.UUID) ([]model.Slot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT quiz_id, slot, page, question_id, category_id, include_subcategories,
		        max_mark, require_previous, display_number
		 FROM quiz_slots WHERE quiz_id = $1
		 ORDER BY slot`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.QuizID, &s.Slot, &s.Page, &s.QuestionID, &s.CategoryID, &s.IncludeSubcategories,
			&s.MaxMark, &s.RequirePrevious, &s.DisplayNumber); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ListSections retrieves the sections of a quiz ordered by first slot.
func (r *QuizRepository) ListSections(ctx context.Context, quizID uuid.UUID) ([]model.Section, error) {
	rows, err := r.db.Query(ctx,
		`SELECT quiz_id, first_slot, heading, shuffle_questions
		 FROM quiz_sections WHERE quiz_id = $1
		 ORDER BY first_slot`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.QuizID, &s.FirstSlot, &s.Heading, &s.ShuffleQuestions); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// UpdateSlotPages writes the page of every given slot in one batch.
func (r *QuizRepository) UpdateSlotPages(ctx context.Context, quizID uuid.UUID, slots []model.Slot) error {
	b := &pgx.Batch{}
	for _, s := range slots {
		b.Queue(`UPDATE quiz_slots SET page = $1 WHERE quiz_id = $2 AND slot = $3`, s.Page, quizID, s.Slot)
	}
	return r.db.SendBatch(ctx, b).Close()
}
