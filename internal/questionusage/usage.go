// Package questionusage is a small question engine: one usage holds a
// question attempt per slot, each with its own state, response and mark.
package questionusage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/model"
)

var (
	ErrNoSuchSlot               = errors.New("no question attempt in slot")
	ErrQuestionFinished         = errors.New("question attempt is already finished")
	ErrNotEnoughRandomQuestions = errors.New("not enough questions in category for random slot")
)

// State is a question attempt's sub-state.
type State string

const (
	StateTodo        State = "todo"
	StateComplete    State = "complete"
	StateGradedRight State = "gradedright"
	StateGradedWrong State = "gradedwrong"
	StateGaveUp      State = "gaveup"
	StateFinished    State = "finished"
)

// IsFinished reports whether the question attempt can no longer change.
func (s State) IsFinished() bool {
	switch s {
	case StateGradedRight, StateGradedWrong, StateGaveUp, StateFinished:
		return true
	}
	return false
}

// MetaOriginalSlot links a superseded question attempt to the slot it came from.
const MetaOriginalSlot = "originalslot"

// QuestionAttempt is one question inside a usage.
type QuestionAttempt struct {
	Slot         int               `json:"slot"`
	QuestionID   int64             `json:"question_id"`
	Variant      int               `json:"variant"`
	MaxMark      float64           `json:"max_mark"`
	Length       int               `json:"length"`
	Behaviour    string            `json:"behaviour"`
	State        State             `json:"state"`
	Fraction     *float64          `json:"fraction,omitempty"`
	Response     string            `json:"response"`
	RightAnswer  string            `json:"-"`
	Flagged      bool              `json:"flagged"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	TimeModified int64             `json:"time_modified"`
}

// Mark is fraction * max mark, 0 when ungraded.
func (qa *QuestionAttempt) Mark() float64 {
	if qa.Fraction == nil {
		return 0
	}
	return *qa.Fraction * qa.MaxMark
}

// CanFinishDuringAttempt reports behaviours that grade a question before the attempt ends.
func (qa *QuestionAttempt) CanFinishDuringAttempt() bool {
	return qa.Behaviour == model.BehaviourImmediateFeedback || qa.Behaviour == model.BehaviourInteractive
}

func (qa *QuestionAttempt) isInfo() bool { return qa.Length == 0 }

// grade finishes the question against its answer key.
func (qa *QuestionAttempt) grade(now int64) {
	qa.TimeModified = now
	switch {
	case qa.isInfo():
		qa.State = StateFinished
		qa.Fraction = nil
	case strings.TrimSpace(qa.Response) == "":
		qa.State = StateGaveUp
		qa.Fraction = nil
	case normalize(qa.Response) == normalize(qa.RightAnswer):
		one := 1.0
		qa.State = StateGradedRight
		qa.Fraction = &one
	default:
		zero := 0.0
		qa.State = StateGradedWrong
		qa.Fraction = &zero
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Action is a submitted response for one slot. Submit asks behaviours that
// support it to grade the question now.
type Action struct {
	Slot     int    `json:"slot" binding:"required,min=1"`
	Response string `json:"response"`
	Submit   bool   `json:"submit"`
}

// Usage owns the question attempts of one quiz attempt. Slots are 1-based.
type Usage struct {
	ID        uuid.UUID          `json:"id"`
	Behaviour string             `json:"behaviour"`
	Attempts  []*QuestionAttempt `json:"attempts"`
}

// New creates an empty usage.
func New(id uuid.UUID, behaviour string) *Usage {
	if behaviour == "" {
		behaviour = model.BehaviourDeferredFeedback
	}
	return &Usage{ID: id, Behaviour: behaviour}
}

// Len returns the number of slots.
func (u *Usage) Len() int { return len(u.Attempts) }

// Get returns the question attempt in slot.
func (u *Usage) Get(slot int) (*QuestionAttempt, error) {
	if slot < 1 || slot > len(u.Attempts) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchSlot, slot)
	}
	return u.Attempts[slot-1], nil
}

func newAttempt(q model.Question, maxMark float64, behaviour string) *QuestionAttempt {
	return &QuestionAttempt{
		QuestionID:  q.ID,
		MaxMark:     maxMark,
		Length:      q.Length,
		Behaviour:   behaviour,
		State:       StateTodo,
		RightAnswer: q.RightAnswer,
		Variant:     1,
	}
}

// AddQuestion appends q and returns its slot.
func (u *Usage) AddQuestion(q model.Question, maxMark float64) int {
	qa := newAttempt(q, maxMark, u.Behaviour)
	qa.Slot = len(u.Attempts) + 1
	u.Attempts = append(u.Attempts, qa)
	return qa.Slot
}

// AddQuestionInPlaceOf moves the attempt in slot to a new slot at the end and
// puts q in slot with the old max mark. It returns the new slot.
func (u *Usage) AddQuestionInPlaceOf(slot int, q model.Question) (int, error) {
	old, err := u.Get(slot)
	if err != nil {
		return 0, err
	}
	newSlot := len(u.Attempts) + 1
	old.Slot = newSlot
	u.Attempts = append(u.Attempts, old)

	qa := newAttempt(q, old.MaxMark, u.Behaviour)
	qa.Slot = slot
	u.Attempts[slot-1] = qa
	return newSlot, nil
}

// VariantChooser picks a variant for a question that has several.
type VariantChooser interface {
	ChooseVariant(questionID int64, variants int) int
}

// StartAll starts every question, choosing variants through chooser.
// variants maps question id to its variant count.
func (u *Usage) StartAll(chooser VariantChooser, variants map[int64]int, now int64) {
	for _, qa := range u.Attempts {
		v := 1
		if n := variants[qa.QuestionID]; n > 1 && chooser != nil {
			v = chooser.ChooseVariant(qa.QuestionID, n)
		}
		u.start(qa, v, now)
	}
}

// StartQuestion restarts slot with the given variant.
func (u *Usage) StartQuestion(slot, variant int, now int64) error {
	qa, err := u.Get(slot)
	if err != nil {
		return err
	}
	u.start(qa, variant, now)
	return nil
}

func (u *Usage) start(qa *QuestionAttempt, variant int, now int64) {
	qa.Variant = variant
	qa.State = StateTodo
	qa.Fraction = nil
	qa.Response = ""
	qa.TimeModified = now
}

// StartBasedOn starts slot carrying over the response of old.
func (u *Usage) StartBasedOn(slot int, old *QuestionAttempt, now int64) error {
	qa, err := u.Get(slot)
	if err != nil {
		return err
	}
	u.start(qa, old.Variant, now)
	qa.Response = old.Response
	if strings.TrimSpace(qa.Response) != "" {
		qa.State = StateComplete
	}
	return nil
}

// ProcessActions saves responses, grading submitted ones when the behaviour allows it.
func (u *Usage) ProcessActions(now int64, actions []Action) error {
	for _, a := range actions {
		qa, err := u.Get(a.Slot)
		if err != nil {
			return err
		}
		if qa.State.IsFinished() {
			if a.Response == qa.Response && !a.Submit {
				continue
			}
			return fmt.Errorf("slot %d: %w", a.Slot, ErrQuestionFinished)
		}
		save(qa, a.Response, now)
		if a.Submit && qa.CanFinishDuringAttempt() {
			qa.grade(now)
		}
	}
	return nil
}

// ProcessAutosaves stores responses without grading. Finished questions are skipped.
func (u *Usage) ProcessAutosaves(now int64, actions []Action) error {
	for _, a := range actions {
		qa, err := u.Get(a.Slot)
		if err != nil {
			return err
		}
		if qa.State.IsFinished() {
			continue
		}
		save(qa, a.Response, now)
	}
	return nil
}

func save(qa *QuestionAttempt, response string, now int64) {
	qa.Response = response
	qa.TimeModified = now
	if strings.TrimSpace(response) == "" {
		qa.State = StateTodo
	} else {
		qa.State = StateComplete
	}
}

// FinishAll grades every unfinished question.
func (u *Usage) FinishAll(now int64) {
	for _, qa := range u.Attempts {
		if !qa.State.IsFinished() {
			qa.grade(now)
		}
	}
}

// TotalMark sums the marks of every slot.
func (u *Usage) TotalMark() float64 {
	var total float64
	for _, qa := range u.Attempts {
		total += qa.Mark()
	}
	return total
}

// SetMaxMark changes the weight of slot.
func (u *Usage) SetMaxMark(slot int, mark float64) error {
	qa, err := u.Get(slot)
	if err != nil {
		return err
	}
	qa.MaxMark = mark
	return nil
}

// SetMetadata records key=value on slot.
func (u *Usage) SetMetadata(slot int, key, value string) error {
	qa, err := u.Get(slot)
	if err != nil {
		return err
	}
	if qa.Metadata == nil {
		qa.Metadata = make(map[string]string)
	}
	qa.Metadata[key] = value
	return nil
}

// OriginalSlot follows the originalslot link; slots without one are their own origin.
func (u *Usage) OriginalSlot(slot int) int {
	qa, err := u.Get(slot)
	if err != nil {
		return slot
	}
	if v, ok := qa.Metadata[MetaOriginalSlot]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return slot
}

// ToggleFlag flips the review flag of slot and returns the new value.
func (u *Usage) ToggleFlag(slot int) (bool, error) {
	qa, err := u.Get(slot)
	if err != nil {
		return false, err
	}
	qa.Flagged = !qa.Flagged
	return qa.Flagged, nil
}

// CanFinishDuringAttempt reports whether slot's behaviour grades before the end.
func (u *Usage) CanFinishDuringAttempt(slot int) bool {
	qa, err := u.Get(slot)
	if err != nil {
		return false
	}
	return qa.CanFinishDuringAttempt()
}

// QuestionIDs returns every question id in the usage.
func (u *Usage) QuestionIDs() []int64 {
	out := make([]int64, len(u.Attempts))
	for i, qa := range u.Attempts {
		out[i] = qa.QuestionID
	}
	return out
}
