package model

import (
	"github.com/google/uuid"
)

// OverdueHandling decides what happens to an in-progress attempt once its deadline passes.
type OverdueHandling string

const (
	OverdueAutoSubmit  OverdueHandling = "autosubmit"
	OverdueGracePeriod OverdueHandling = "graceperiod"
	OverdueAutoAbandon OverdueHandling = "autoabandon"
)

// NavMethod enumerates how a learner may move between pages.
type NavMethod string

const (
	NavFree       NavMethod = "free"
	NavSequential NavMethod = "sequential"
)

// GradeMethod enumerates how several attempts combine into one grade.
type GradeMethod string

const (
	GradeHighest GradeMethod = "highest"
	GradeAverage GradeMethod = "average"
	GradeFirst   GradeMethod = "first"
	GradeLast    GradeMethod = "last"
)

// Question behaviours supported by the built-in question engine.
const (
	BehaviourDeferredFeedback  = "deferredfeedback"
	BehaviourImmediateFeedback = "immediatefeedback"
	BehaviourInteractive       = "interactive"
)

// Quiz is the activity definition. All times are Unix seconds, 0 meaning unset.
type Quiz struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	TimeOpen           int64           `json:"time_open"`
	TimeClose          int64           `json:"time_close"`
	TimeLimit          int64           `json:"time_limit"`
	GracePeriod        int64           `json:"grace_period"`
	OverdueHandling    OverdueHandling `json:"overdue_handling"`
	Attempts           int             `json:"attempts"`
	AttemptOnLast      bool            `json:"attempt_on_last"`
	NavMethod          NavMethod       `json:"nav_method"`
	ShuffleAnswers     bool            `json:"shuffle_answers"`
	QuestionsPerPage   int             `json:"questions_per_page"`
	GradeMethod        GradeMethod     `json:"grade_method"`
	SumGrades          float64         `json:"sum_grades"`
	Grade              float64         `json:"grade"`
	Password           string          `json:"-"`
	Subnet             string          `json:"subnet,omitempty"`
	Delay1             int64           `json:"delay1"`
	Delay2             int64           `json:"delay2"`
	CanRedoQuestions   bool            `json:"can_redo_questions"`
	PreferredBehaviour string          `json:"preferred_behaviour"`
	TimeModified       int64           `json:"time_modified"`
}

// HasGradeMismatch reports a quiz that awards a grade while its questions carry no marks.
func (q Quiz) HasGradeMismatch() bool {
	return q.Grade > 0 && q.SumGrades == 0
}

// QuizGrade is the best grade a user holds for a quiz.
type QuizGrade struct {
	QuizID       uuid.UUID `json:"quiz_id"`
	UserID       int       `json:"user_id"`
	Grade        float64   `json:"grade"`
	TimeModified int64     `json:"time_modified"`
}
