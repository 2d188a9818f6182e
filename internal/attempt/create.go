package attempt

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/layout"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// CreateParams describes a new attempt.
type CreateParams struct {
	Rules    *access.Manager
	Slots    []model.Slot
	Sections []model.Section
	Bank     *questionusage.Bank

	UserID  int
	Number  int
	Preview bool
	Now     int64

	// Last and LastUsage are the user's latest non-preview attempt, used when
	// the quiz builds each attempt on the last one.
	Last      *model.Attempt
	LastUsage *questionusage.Usage

	// Used counts how often each question appeared in the user's earlier
	// attempts; Prior holds those usages for variant selection.
	Used  map[int64]int
	Prior []*questionusage.Usage

	Rand   *rand.Rand
	Config Config
}

// Create starts a new attempt in IN_PROGRESS.
func Create(p CreateParams) (*Attempt, error) {
	policy := p.Rules.Policy()
	if len(p.Slots) == 0 {
		return nil, ErrNoQuestions
	}
	if policy.HasGradeMismatch() {
		return nil, ErrGradesMismatch
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	rec := &model.Attempt{
		ID:           uuid.New(),
		QuizID:       policy.ID,
		UserID:       p.UserID,
		Attempt:      p.Number,
		UsageID:      uuid.New(),
		Preview:      p.Preview,
		State:        model.StateInProgress,
		TimeStart:    p.Now,
		TimeModified: p.Now,
	}

	var (
		usage *questionusage.Usage
		err   error
	)
	if p.Number <= 1 || !policy.AttemptOnLast {
		usage, err = buildFresh(rec, policy, p, rnd)
	} else {
		if p.Last == nil || p.LastUsage == nil {
			return nil, ErrNoPreviousAttempt
		}
		usage, err = buildOnLast(rec, p)
	}
	if err != nil {
		return nil, err
	}

	if end, ok := p.Rules.EndTime(rec); ok && !p.Preview {
		rec.TimeCheckState = &end
	}

	a, err := New(rec, p.Rules, usage, p.Slots, p.Sections, p.Config)
	if err != nil {
		return nil, err
	}
	a.change = ChangeRecord
	a.usageChanged = true
	name := model.EventAttemptStarted
	if p.Preview {
		name = model.EventAttemptPreviewStarted
	}
	a.emit(name, p.Now, true, nil)
	return a, nil
}

func buildFresh(rec *model.Attempt, policy model.EffectivePolicy, p CreateParams, rnd *rand.Rand) (*questionusage.Usage, error) {
	ordered := append([]model.Slot(nil), p.Slots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slot < ordered[j].Slot })

	chosen := make([]model.Question, len(ordered))
	inUsage := make(map[int64]bool)

	// Fixed questions first so random slots avoid them.
	for i, s := range ordered {
		if s.IsRandom() {
			continue
		}
		if s.QuestionID == nil {
			return nil, fmt.Errorf("slot %d: %w", s.Slot, ErrMissingQuestion)
		}
		q, ok := p.Bank.Question(*s.QuestionID)
		if !ok {
			return nil, fmt.Errorf("slot %d: %w", s.Slot, ErrMissingQuestion)
		}
		chosen[i] = q
		inUsage[q.ID] = true
	}

	used := make(map[int64]int, len(p.Used))
	for id, n := range p.Used {
		used[id] = n
	}
	for id := range inUsage {
		used[id]++
	}
	loader := questionusage.NewRandomLoader(used, rnd)
	for i, s := range ordered {
		if !s.IsRandom() {
			continue
		}
		id, ok := loader.Next(p.Bank.CategoryQuestions(*s.CategoryID, s.IncludeSubcategories), inUsage)
		if !ok {
			return nil, fmt.Errorf("slot %d: %w", s.Slot, questionusage.ErrNotEnoughRandomQuestions)
		}
		q, _ := p.Bank.Question(id)
		chosen[i] = q
		inUsage[id] = true
	}

	usage := questionusage.New(rec.UsageID, policy.PreferredBehaviour)
	variants := make(map[int64]int, len(chosen))
	for i, q := range chosen {
		usage.AddQuestion(q, ordered[i].MaxMark)
		variants[q.ID] = q.Variants
	}
	usage.StartAll(questionusage.NewLeastUsedVariants(p.Prior, rnd), variants, p.Now)

	l, err := layout.Build(ordered, p.Sections, policy.QuestionsPerPage, rnd)
	if err != nil {
		return nil, err
	}
	rec.Layout = l.String()
	return usage, nil
}

func buildOnLast(rec *model.Attempt, p CreateParams) (*questionusage.Usage, error) {
	old, err := layout.Parse(p.Last.Layout)
	if err != nil {
		return nil, err
	}
	oldSlots := old.Slots()
	sort.Ints(oldSlots)

	usage := questionusage.New(rec.UsageID, p.LastUsage.Behaviour)
	mapping := make(map[int]int, len(oldSlots))
	for _, oldSlot := range oldSlots {
		oldQA, err := p.LastUsage.Get(oldSlot)
		if err != nil {
			return nil, err
		}
		q, ok := p.Bank.Question(oldQA.QuestionID)
		if !ok {
			q = model.Question{ID: oldQA.QuestionID, Length: oldQA.Length, RightAnswer: oldQA.RightAnswer}
		}
		if q.Hidden {
			return nil, fmt.Errorf("question %d: %w", q.ID, ErrHiddenQuestion)
		}
		newSlot := usage.AddQuestion(q, oldQA.MaxMark)
		if err := usage.StartBasedOn(newSlot, oldQA, p.Now); err != nil {
			return nil, err
		}
		mapping[oldSlot] = newSlot
	}

	l, err := old.Remap(mapping)
	if err != nil {
		return nil, err
	}
	rec.Layout = l.String()
	return usage, nil
}
