// Package attempt is the lifecycle of a single quiz attempt: creation,
// submission, expiry handling and the forced transitions driven by the
// overdue sweep. Every operation takes the current time explicitly and
// mutates the attempt in memory; the caller persists the result and applies
// the collected Effects in one transaction.
package attempt

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/layout"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

var (
	ErrNoQuestions         = errors.New("quiz has no questions")
	ErrGradesMismatch      = errors.New("quiz has a maximum grade but its questions carry no marks")
	ErrNoPreviousAttempt   = errors.New("cannot build on the previous attempt: none found")
	ErrMissingQuestion     = errors.New("slot refers to a question that does not exist")
	ErrHiddenQuestion      = errors.New("question from the previous attempt is no longer available")
	ErrAttemptFinished     = errors.New("attempt is already closed")
	ErrInvalidTransition   = errors.New("invalid attempt state transition")
	ErrRedoDisabled        = errors.New("redoing questions is not enabled for this quiz")
	ErrQuestionNotFinished = errors.New("question cannot be redone until it is finished")
	ErrPageNotAccessible   = errors.New("page is not accessible")
	ErrBlockedByPrevious   = errors.New("question is locked until the previous one is finished")
)

// Config holds the timing tolerances of interactive submissions.
type Config struct {
	// MinTimeToContinue: a submission this close to the deadline counts as time up.
	MinTimeToContinue int64
	// GracePeriodMin: responses later than this past the deadline are not processed.
	GracePeriodMin int64
	InfoLabel      string
}

// DefaultConfig returns the standard tolerances.
func DefaultConfig() Config {
	return Config{MinTimeToContinue: 2, GracePeriodMin: 60, InfoLabel: layout.DefaultInfoLabel}
}

// Effects are the side effects an operation asks its caller to apply.
// RecomputeGrade belongs in the same transaction; the rest run after commit.
type Effects struct {
	Events          []model.Event
	Notifications   []model.Notification
	RecomputeGrade  bool
	AttemptFinished bool
}

// Change says how much of the attempt must be written back.
type Change int

const (
	ChangeNone Change = iota
	ChangeTimeCheck
	ChangeRecord
)

// Attempt is an attempt record together with everything needed to move it forward.
type Attempt struct {
	rec       *model.Attempt
	rules     *access.Manager
	usage     *questionusage.Usage
	slots     map[int]model.Slot
	sections  []model.Section
	structure *layout.Structure
	cfg       Config

	effects      Effects
	change       Change
	usageChanged bool
}

// New wraps a stored attempt.
func New(rec *model.Attempt, rules *access.Manager, usage *questionusage.Usage, slots []model.Slot, sections []model.Section, cfg Config) (*Attempt, error) {
	a := &Attempt{
		rec:      rec,
		rules:    rules,
		usage:    usage,
		slots:    make(map[int]model.Slot, len(slots)),
		sections: sections,
		cfg:      cfg,
	}
	for _, s := range slots {
		a.slots[s.Slot] = s
	}
	if err := a.buildStructure(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Attempt) buildStructure() error {
	l, err := layout.Parse(a.rec.Layout)
	if err != nil {
		return fmt.Errorf("attempt %s: %w", a.rec.ID, err)
	}
	info := make(map[int]layout.SlotInfo, len(l))
	for _, slot := range l.Slots() {
		si := layout.SlotInfo{}
		if qa, err := a.usage.Get(slot); err == nil {
			si.Length = qa.Length
		}
		if def, ok := a.slots[slot]; ok {
			si.DisplayNumber = def.DisplayNumber
			si.RequirePrevious = def.RequirePrevious
		}
		info[slot] = si
	}
	st, err := layout.NewStructure(l, a.sections, info, a.cfg.InfoLabel)
	if err != nil {
		return fmt.Errorf("attempt %s: %w", a.rec.ID, err)
	}
	a.structure = st
	return nil
}

// Record returns the attempt record.
func (a *Attempt) Record() *model.Attempt { return a.rec }

// Usage returns the question usage.
func (a *Attempt) Usage() *questionusage.Usage { return a.usage }

// Rules returns the access manager the attempt is judged by.
func (a *Attempt) Rules() *access.Manager { return a.rules }

// Policy returns the effective policy.
func (a *Attempt) Policy() model.EffectivePolicy { return a.rules.Policy() }

// Structure returns the page and numbering view of the layout.
func (a *Attempt) Structure() *layout.Structure { return a.structure }

// Change reports what must be persisted.
func (a *Attempt) Change() Change { return a.change }

// UsageChanged reports whether the question usage must be persisted.
func (a *Attempt) UsageChanged() bool { return a.usageChanged }

// TakeEffects returns and clears the collected effects.
func (a *Attempt) TakeEffects() Effects {
	e := a.effects
	a.effects = Effects{}
	return e
}

// EndTime is the deadline imposed by the access rules.
func (a *Attempt) EndTime() (int64, bool) { return a.rules.EndTime(a.rec) }

// DueDate is the deadline, extended by the grace period while overdue.
func (a *Attempt) DueDate() (int64, bool) { return a.rules.DueDate(a.rec) }

// TimeLeft is the countdown to show, if any.
func (a *Attempt) TimeLeft(now int64) (int64, bool) {
	if a.rec.IsFinished() {
		return 0, false
	}
	return a.rules.TimeLeftDisplay(a.rec, now)
}

// QuestionNumber is the displayed number of slot; a superseded slot shows
// the number of the slot it was redone from.
func (a *Attempt) QuestionNumber(slot int) string {
	return a.structure.Number(a.usage.OriginalSlot(slot))
}

func (a *Attempt) markRecord() {
	a.change = ChangeRecord
}

func (a *Attempt) setTimeCheck(ts *int64) {
	cur := a.rec.TimeCheckState
	if (cur == nil && ts == nil) || (cur != nil && ts != nil && *cur == *ts) {
		return
	}
	if ts != nil {
		v := *ts
		ts = &v
	}
	a.rec.TimeCheckState = ts
	if a.change < ChangeTimeCheck {
		a.change = ChangeTimeCheck
	}
}

func (a *Attempt) transition(to model.AttemptState) error {
	if !model.CanTransition(a.rec.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.rec.State, to)
	}
	a.rec.State = to
	a.markRecord()
	return nil
}

func (a *Attempt) emit(name string, now int64, online bool, data map[string]string) {
	a.effects.Events = append(a.effects.Events, model.Event{
		ID:        uuid.New(),
		Name:      name,
		AttemptID: a.rec.ID,
		QuizID:    a.rec.QuizID,
		UserID:    a.rec.UserID,
		Time:      now,
		Online:    online,
		Data:      data,
	})
}
