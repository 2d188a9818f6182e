package attempt

import (
	"fmt"

	"github.com/stemsi/exstem-quiz/internal/layout"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// CheckPageAccess applies the navigation method to a requested page.
func (a *Attempt) CheckPageAccess(page int, allowNext bool) bool {
	return layout.CanAccessPage(a.Policy().NavMethod, a.rec.CurrentPage, page, allowNext)
}

// SetCurrentPage records the page the user is on. Sequential navigation never
// moves backwards.
func (a *Attempt) SetCurrentPage(page int) error {
	if page == layout.SummaryPage || page == a.rec.CurrentPage {
		return nil
	}
	if page < 0 || page >= a.structure.NumPages() {
		return fmt.Errorf("%w: page %d", ErrPageNotAccessible, page)
	}
	if a.Policy().NavMethod == model.NavSequential && page < a.rec.CurrentPage {
		return fmt.Errorf("%w: page %d is behind page %d", ErrPageNotAccessible, page, a.rec.CurrentPage)
	}
	a.rec.CurrentPage = page
	a.markRecord()
	return nil
}

// IsBlockedByPrevious reports whether slot is locked behind the slot before it.
func (a *Attempt) IsBlockedByPrevious(slot int) bool {
	if slot <= 1 {
		return false
	}
	prev, err := a.usage.Get(slot - 1)
	if err != nil {
		return false
	}
	return a.structure.IsBlockedByPrevious(slot, a.Policy().NavMethod, prev.State.IsFinished(), prev.CanFinishDuringAttempt())
}

// ToggleFlag flips the review flag of slot.
func (a *Attempt) ToggleFlag(slot int) (bool, error) {
	if slot < 1 || slot > a.structure.NumSlots() {
		return false, fmt.Errorf("%w: %d", questionusage.ErrNoSuchSlot, slot)
	}
	on, err := a.usage.ToggleFlag(slot)
	if err != nil {
		return false, err
	}
	a.usageChanged = true
	return on, nil
}

// SlotView is what a page shows for one slot.
type SlotView struct {
	Slot       int                 `json:"slot"`
	Number     string              `json:"number"`
	Heading    string              `json:"heading,omitempty"`
	QuestionID int64               `json:"question_id"`
	MaxMark    float64             `json:"max_mark"`
	State      questionusage.State `json:"state"`
	Response   string              `json:"response,omitempty"`
	Flagged    bool                `json:"flagged"`
	Blocked    bool                `json:"blocked"`
	CanRedo    bool                `json:"can_redo"`
	Mark       *float64            `json:"mark,omitempty"`
}

// Page describes the slots on page. Marks are shown once the attempt is over.
func (a *Attempt) Page(page int) ([]SlotView, error) {
	slots, ok := a.structure.SlotsOnPage(page)
	if !ok {
		return nil, fmt.Errorf("%w: page %d", ErrPageNotAccessible, page)
	}
	out := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		qa, err := a.usage.Get(slot)
		if err != nil {
			return nil, err
		}
		v := SlotView{
			Slot:       slot,
			Number:     a.structure.Number(slot),
			QuestionID: qa.QuestionID,
			MaxMark:    qa.MaxMark,
			State:      qa.State,
			Response:   qa.Response,
			Flagged:    qa.Flagged,
			Blocked:    a.IsBlockedByPrevious(slot),
			CanRedo:    a.CanRedo(slot),
		}
		if a.structure.IsFirstInSection(slot) {
			if sec, ok := a.structure.Section(slot); ok {
				v.Heading = sec.Heading
			}
		}
		if a.rec.IsFinished() {
			m := qa.Mark()
			v.Mark = &m
		}
		out = append(out, v)
	}
	return out, nil
}
