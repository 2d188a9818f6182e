package attempt

import (
	"fmt"
	"strconv"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// CanRedo reports whether slot may be redone now.
func (a *Attempt) CanRedo(slot int) bool {
	if !a.Policy().CanRedoQuestions || a.rec.IsFinished() {
		return false
	}
	if slot < 1 || slot > a.structure.NumSlots() {
		return false
	}
	qa, err := a.usage.Get(slot)
	return err == nil && qa.State.IsFinished()
}

// RedoQuestion puts a fresh question in slot. The finished question attempt
// moves to a new slot with max mark 0 and an originalslot link back to slot;
// slot keeps its weight and number. Random slots draw again from their
// category, avoiding questions active elsewhere in the attempt. It returns
// the slot the old question attempt moved to.
func (a *Attempt) RedoQuestion(slot int, now int64, bank *questionusage.Bank, loader *questionusage.RandomLoader, variants questionusage.VariantChooser) (int, error) {
	if !a.Policy().CanRedoQuestions {
		return 0, ErrRedoDisabled
	}
	if a.rec.IsFinished() {
		return 0, ErrAttemptFinished
	}
	if slot < 1 || slot > a.structure.NumSlots() {
		return 0, fmt.Errorf("%w: %d", questionusage.ErrNoSuchSlot, slot)
	}
	current, err := a.usage.Get(slot)
	if err != nil {
		return 0, err
	}
	if !current.State.IsFinished() {
		return 0, ErrQuestionNotFinished
	}

	q, err := a.replacementFor(slot, current, bank, loader)
	if err != nil {
		return 0, err
	}

	newSlot, err := a.usage.AddQuestionInPlaceOf(slot, q)
	if err != nil {
		return 0, err
	}
	variant := 1
	if q.Variants > 1 && variants != nil {
		variant = variants.ChooseVariant(q.ID, q.Variants)
	}
	if err := a.usage.StartQuestion(slot, variant, now); err != nil {
		return 0, err
	}
	if err := a.usage.SetMaxMark(newSlot, 0); err != nil {
		return 0, err
	}
	if err := a.usage.SetMetadata(newSlot, questionusage.MetaOriginalSlot, strconv.Itoa(slot)); err != nil {
		return 0, err
	}
	a.usageChanged = true

	if err := a.buildStructure(); err != nil {
		return 0, err
	}
	a.emit(model.EventAttemptQuestionRestarted, now, true, map[string]string{
		"slot":          strconv.Itoa(slot),
		"new_question":  strconv.FormatInt(q.ID, 10),
		"superseded_by": strconv.Itoa(newSlot),
	})
	return newSlot, nil
}

func (a *Attempt) replacementFor(slot int, current *questionusage.QuestionAttempt, bank *questionusage.Bank, loader *questionusage.RandomLoader) (model.Question, error) {
	def, ok := a.slots[slot]
	if !ok || !def.IsRandom() {
		id := current.QuestionID
		if ok && def.QuestionID != nil {
			id = *def.QuestionID
		}
		if q, found := bank.Question(id); found {
			return q, nil
		}
		return model.Question{ID: current.QuestionID, Length: current.Length, RightAnswer: current.RightAnswer, Variants: 1}, nil
	}

	exclude := make(map[int64]bool)
	for s := 1; s <= a.structure.NumSlots(); s++ {
		if s == slot {
			continue
		}
		if qa, err := a.usage.Get(s); err == nil {
			exclude[qa.QuestionID] = true
		}
	}
	id, found := loader.Next(bank.CategoryQuestions(*def.CategoryID, def.IncludeSubcategories), exclude)
	if !found {
		return model.Question{}, fmt.Errorf("slot %d: %w", slot, questionusage.ErrNotEnoughRandomQuestions)
	}
	q, _ := bank.Question(id)
	return q, nil
}
