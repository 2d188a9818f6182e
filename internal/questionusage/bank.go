package questionusage

import (
	"sort"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Bank is the slice of the question bank one quiz needs: its fixed questions
// and every visible question of the categories its random slots draw from.
type Bank struct {
	questions map[int64]model.Question
	byCat     map[int64][]int64
	children  map[int64][]int64
}

// NewBank indexes questions and the category tree.
func NewBank(questions []model.Question, categories []model.QuestionCategory) *Bank {
	b := &Bank{
		questions: make(map[int64]model.Question, len(questions)),
		byCat:     make(map[int64][]int64),
		children:  make(map[int64][]int64),
	}
	for _, q := range questions {
		b.questions[q.ID] = q
		if !q.Hidden {
			b.byCat[q.CategoryID] = append(b.byCat[q.CategoryID], q.ID)
		}
	}
	for _, c := range categories {
		if c.ParentID != nil {
			b.children[*c.ParentID] = append(b.children[*c.ParentID], c.ID)
		}
	}
	return b
}

// Question looks up a question by id.
func (b *Bank) Question(id int64) (model.Question, bool) {
	q, ok := b.questions[id]
	return q, ok
}

// CategoryQuestions lists the visible questions of a category, optionally
// including every descendant category. Informational items are excluded.
func (b *Bank) CategoryQuestions(categoryID int64, includeSub bool) []int64 {
	cats := []int64{categoryID}
	if includeSub {
		seen := map[int64]bool{categoryID: true}
		for i := 0; i < len(cats); i++ {
			for _, child := range b.children[cats[i]] {
				if !seen[child] {
					seen[child] = true
					cats = append(cats, child)
				}
			}
		}
	}
	var out []int64
	for _, c := range cats {
		for _, id := range b.byCat[c] {
			if !b.questions[id].IsInfo() {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
