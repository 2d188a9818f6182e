package model

import (
	"github.com/google/uuid"
)

// QuestionTypeDescription marks informational items that carry no number and no mark.
const QuestionTypeDescription = "description"

// Question is a question bank entry.
type Question struct {
	ID          int64   `json:"id"`
	CategoryID  int64   `json:"category_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	Length      int     `json:"length"`
	Variants    int     `json:"variants"`
	DefaultMark float64 `json:"default_mark"`
	RightAnswer string  `json:"-"`
	Hidden      bool    `json:"hidden"`
}

// IsInfo reports an informational item, which does not advance question numbering.
func (q Question) IsInfo() bool {
	return q.Length == 0
}

// QuestionCategory groups bank questions; random slots draw from a category.
type QuestionCategory struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}

// Slot is one question position within a quiz.
type Slot struct {
	QuizID               uuid.UUID `json:"quiz_id"`
	Slot                 int       `json:"slot"`
	Page                 int       `json:"page"`
	QuestionID           *int64    `json:"question_id,omitempty"`
	CategoryID           *int64    `json:"category_id,omitempty"`
	IncludeSubcategories bool      `json:"include_subcategories"`
	MaxMark              float64   `json:"max_mark"`
	RequirePrevious      bool      `json:"require_previous"`
	DisplayNumber        string    `json:"display_number,omitempty"`
}

// IsRandom reports a slot that draws its question from a category when an attempt starts.
func (s Slot) IsRandom() bool {
	return s.QuestionID == nil && s.CategoryID != nil
}

// Section is a run of slots starting at FirstSlot and ending before the next section.
type Section struct {
	QuizID           uuid.UUID `json:"quiz_id"`
	FirstSlot        int       `json:"first_slot"`
	Heading          string    `json:"heading"`
	ShuffleQuestions bool      `json:"shuffle_questions"`
}
