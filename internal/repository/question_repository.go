package repository

import (
	"context"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	db database.Querier
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db database.Querier) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, category_id, name, qtype, question_text, length, variants, default_mark, right_answer, hidden`

// ListCategories retrieves the whole category tree.
func (r *QuestionRepository) ListCategories(ctx context.Context) ([]model.QuestionCategory, error) {
	rows, err := r.db.Query(ctx, `SELECT id, parent_id, name FROM question_categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []model.QuestionCategory
	for rows.Next() {
		var c model.QuestionCategory
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ListQuestionsByIDs retrieves the given questions.
func (r *QuestionRepository) ListQuestionsByIDs(ctx context.Context, ids []int64) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.listQuestions(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ANY($1) ORDER BY id`, ids)
}

// ListQuestionsInCategories retrieves every question in the given categories.
func (r *QuestionRepository) ListQuestionsInCategories(ctx context.Context, categoryIDs []int64) ([]model.Question, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	return r.listQuestions(ctx, `SELECT `+questionColumns+` FROM questions WHERE category_id = ANY($1) ORDER BY id`, categoryIDs)
}

func (r *QuestionRepository) listQuestions(ctx context.Context, sql string, arg []int64) ([]model.Question, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.CategoryID, &q.Name, &q.Type, &q.Text, &q.Length, &q.Variants,
			&q.DefaultMark, &q.RightAnswer, &q.Hidden); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
