package service

import (
	"sort"
	"sync"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// QuizData is everything needed to judge and advance attempts at one quiz.
type QuizData struct {
	Quiz       model.Quiz
	Slots      []model.Slot
	Sections   []model.Section
	Overrides  []model.Override
	Questions  []model.Question
	Categories []model.QuestionCategory

	bankOnce sync.Once
	bank     *questionusage.Bank
}

// Bank indexes the loaded questions.
func (d *QuizData) Bank() *questionusage.Bank {
	d.bankOnce.Do(func() {
		d.bank = questionusage.NewBank(d.Questions, d.Categories)
	})
	return d.bank
}

// BankWith indexes the loaded questions plus extra ones, which win on conflict.
func (d *QuizData) BankWith(extra []model.Question) *questionusage.Bank {
	if len(extra) == 0 {
		return d.Bank()
	}
	merged := make([]model.Question, 0, len(d.Questions)+len(extra))
	seen := make(map[int64]bool, len(extra))
	for _, q := range extra {
		seen[q.ID] = true
		merged = append(merged, q)
	}
	for _, q := range d.Questions {
		if !seen[q.ID] {
			merged = append(merged, q)
		}
	}
	return questionusage.NewBank(merged, d.Categories)
}

func fixedQuestionIDs(slots []model.Slot) []int64 {
	var ids []int64
	for _, s := range slots {
		if s.QuestionID != nil {
			ids = append(ids, *s.QuestionID)
		}
	}
	return ids
}

// randomCategoryIDs lists every category a random slot may draw from,
// expanding subcategories where the slot asks for them.
func randomCategoryIDs(slots []model.Slot, categories []model.QuestionCategory) []int64 {
	children := make(map[int64][]int64)
	for _, c := range categories {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}
	seen := make(map[int64]bool)
	expanded := make(map[int64]bool)
	var out []int64
	var walk func(id int64, sub bool)
	walk = func(id int64, sub bool) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
		if !sub || expanded[id] {
			return
		}
		expanded[id] = true
		for _, c := range children[id] {
			walk(c, true)
		}
	}
	for _, s := range slots {
		if s.IsRandom() {
			walk(*s.CategoryID, s.IncludeSubcategories)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
