package layout

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/stemsi/exstem-quiz/internal/model"
)

var (
	ErrInvalidSections = errors.New("invalid sections")
	ErrInvalidSlots    = errors.New("slots are not numbered 1..n")
)

// Span is a section with its resolved last slot.
type Span struct {
	model.Section
	LastSlot int
}

// Contains reports whether slot lies in the span.
func (s Span) Contains(slot int) bool {
	return slot >= s.FirstSlot && slot <= s.LastSlot
}

// Spans resolves sections into contiguous slot ranges covering 1..numSlots.
// With no sections the whole quiz is one unshuffled section.
func Spans(sections []model.Section, numSlots int) ([]Span, error) {
	if len(sections) == 0 {
		return []Span{{Section: model.Section{FirstSlot: 1}, LastSlot: numSlots}}, nil
	}
	sorted := append([]model.Section(nil), sections...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FirstSlot < sorted[j].FirstSlot })
	if sorted[0].FirstSlot != 1 {
		return nil, fmt.Errorf("%w: first section starts at slot %d", ErrInvalidSections, sorted[0].FirstSlot)
	}
	spans := make([]Span, len(sorted))
	for i, s := range sorted {
		if i > 0 && s.FirstSlot == sorted[i-1].FirstSlot {
			return nil, fmt.Errorf("%w: two sections start at slot %d", ErrInvalidSections, s.FirstSlot)
		}
		if numSlots > 0 && s.FirstSlot > numSlots {
			return nil, fmt.Errorf("%w: section starts at slot %d of %d", ErrInvalidSections, s.FirstSlot, numSlots)
		}
		last := numSlots
		if i+1 < len(sorted) {
			last = sorted[i+1].FirstSlot - 1
		}
		spans[i] = Span{Section: s, LastSlot: last}
	}
	return spans, nil
}

// Build lays out a fresh attempt. Unshuffled sections keep the quiz's pages;
// shuffled sections are shuffled and split perPage at a time (0 = one page).
// Every section ends with a page break.
func Build(slots []model.Slot, sections []model.Section, perPage int, rnd *rand.Rand) (Layout, error) {
	ordered, err := sortSlots(slots)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return Layout{}, nil
	}
	spans, err := Spans(sections, len(ordered))
	if err != nil {
		return nil, err
	}

	var pages [][]int
	for _, sp := range spans {
		if sp.ShuffleQuestions {
			in := make([]int, 0, sp.LastSlot-sp.FirstSlot+1)
			for s := sp.FirstSlot; s <= sp.LastSlot; s++ {
				in = append(in, s)
			}
			rnd.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })
			pages = append(pages, chunk(in, perPage)...)
			continue
		}
		var cur []int
		curPage := ordered[sp.FirstSlot-1].Page
		for s := sp.FirstSlot; s <= sp.LastSlot; s++ {
			if p := ordered[s-1].Page; p != curPage {
				pages = append(pages, cur)
				cur = nil
				curPage = p
			}
			cur = append(cur, s)
		}
		pages = append(pages, cur)
	}
	return FromPages(pages), nil
}

// Repaginate reassigns quiz slot pages so that each holds perPage slots.
// perPage 0 puts everything on page 1.
func Repaginate(slots []model.Slot, perPage int) ([]model.Slot, error) {
	ordered, err := sortSlots(slots)
	if err != nil {
		return nil, err
	}
	out := make([]model.Slot, len(ordered))
	for i, s := range ordered {
		s.Page = 1
		if perPage > 0 {
			s.Page = i/perPage + 1
		}
		out[i] = s
	}
	return out, nil
}

func chunk(in []int, size int) [][]int {
	if size <= 0 {
		return [][]int{in}
	}
	var out [][]int
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	return append(out, in)
}

func sortSlots(slots []model.Slot) ([]model.Slot, error) {
	ordered := append([]model.Slot(nil), slots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slot < ordered[j].Slot })
	for i, s := range ordered {
		if s.Slot != i+1 {
			return nil, fmt.Errorf("%w: position %d holds slot %d", ErrInvalidSlots, i+1, s.Slot)
		}
	}
	return ordered, nil
}
