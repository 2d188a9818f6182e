package layout

import (
	"strconv"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// DefaultInfoLabel is shown in place of a number for informational items.
const DefaultInfoLabel = "i"

// SlotInfo is what numbering and navigation need to know about a slot.
type SlotInfo struct {
	// Length is how many numbers the question consumes; 0 for informational items.
	Length          int
	DisplayNumber   string
	RequirePrevious bool
}

// Structure is the page, section and numbering view derived from a layout.
type Structure struct {
	pages          [][]int
	pageOf         map[int]int
	numbers        map[int]string
	firstInSection map[int]bool
	spans          []Span
	sectionOf      map[int]int
	info           map[int]SlotInfo
}

// NewStructure derives the structure of a layout holding slots 1..len(l).
func NewStructure(l Layout, sections []model.Section, info map[int]SlotInfo, infoLabel string) (*Structure, error) {
	n := len(l)
	if err := l.Validate(n); err != nil {
		return nil, err
	}
	spans, err := Spans(sections, n)
	if err != nil {
		return nil, err
	}
	if infoLabel == "" {
		infoLabel = DefaultInfoLabel
	}

	s := &Structure{
		pages:          l.Pages(),
		pageOf:         make(map[int]int, n),
		numbers:        make(map[int]string, n),
		firstInSection: make(map[int]bool, n),
		spans:          spans,
		sectionOf:      make(map[int]int, n),
		info:           info,
	}
	for slot := 1; slot <= n; slot++ {
		for i, sp := range spans {
			if sp.Contains(slot) {
				s.sectionOf[slot] = i
				break
			}
		}
	}

	// Walk pages in order: a shuffled section's lowest slot need not come first.
	seen := make(map[int]bool, len(spans))
	number := 1
	for page, slots := range s.pages {
		for _, slot := range slots {
			s.pageOf[slot] = page
			sec := s.sectionOf[slot]
			if !seen[sec] {
				seen[sec] = true
				s.firstInSection[slot] = true
			}

			si := info[slot]
			if si.Length > 0 {
				s.numbers[slot] = strconv.Itoa(number)
				number += si.Length
			} else {
				s.numbers[slot] = infoLabel
			}
			if si.DisplayNumber != "" && !spans[sec].ShuffleQuestions {
				s.numbers[slot] = si.DisplayNumber
			}
		}
	}
	return s, nil
}

// NumPages returns the page count.
func (s *Structure) NumPages() int { return len(s.pages) }

// NumSlots returns the slot count.
func (s *Structure) NumSlots() int { return len(s.pageOf) }

// SlotsOnPage returns the ordered slots of page (0-based).
func (s *Structure) SlotsOnPage(page int) ([]int, bool) {
	if page < 0 || page >= len(s.pages) {
		return nil, false
	}
	return append([]int(nil), s.pages[page]...), true
}

// PageOf returns the page holding slot.
func (s *Structure) PageOf(slot int) (int, bool) {
	p, ok := s.pageOf[slot]
	return p, ok
}

// Number returns the displayed question number of slot.
func (s *Structure) Number(slot int) string {
	return s.numbers[slot]
}

// IsFirstInSection reports whether slot is the first of its section to appear.
func (s *Structure) IsFirstInSection(slot int) bool {
	return s.firstInSection[slot]
}

// Section returns the section holding slot.
func (s *Structure) Section(slot int) (Span, bool) {
	i, ok := s.sectionOf[slot]
	if !ok {
		return Span{}, false
	}
	return s.spans[i], true
}

// IsLastPage reports whether page is the final one.
func (s *Structure) IsLastPage(page int) bool {
	return page == len(s.pages)-1
}

// IsBlockedByPrevious reports whether slot is gated until slot-1 is finished.
// The gate never applies when either slot's section is shuffled, under
// sequential navigation, or when the previous question cannot finish during
// the attempt.
func (s *Structure) IsBlockedByPrevious(slot int, nav model.NavMethod, prevFinished, prevCanFinish bool) bool {
	if slot <= 1 || !s.info[slot].RequirePrevious {
		return false
	}
	cur, ok := s.Section(slot)
	if !ok {
		return false
	}
	prev, ok := s.Section(slot - 1)
	if !ok {
		return false
	}
	if cur.ShuffleQuestions || prev.ShuffleQuestions {
		return false
	}
	if nav == model.NavSequential {
		return false
	}
	return !prevFinished && prevCanFinish
}
