// Package layout maps an attempt's flat list of slots onto pages and sections
// and answers the navigation questions that depend on that mapping.
package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidLayout        = errors.New("invalid layout")
	ErrLayoutSlotMissing    = errors.New("layout is missing a slot")
	ErrLayoutSlotDuplicated = errors.New("layout repeats a slot")
)

// Entry is one slot in page order. PageBreakAfter ends the page after it.
type Entry struct {
	Slot           int  `json:"slot"`
	PageBreakAfter bool `json:"page_break_after"`
}

// Layout is the frozen order of an attempt's slots.
type Layout []Entry

// Parse reads the storage form: comma-separated slot numbers where a bare 0
// marks a page break. A final break is implied. Empty pages are dropped.
func Parse(s string) (Layout, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Layout{}, nil
	}
	var l Layout
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: token %q", ErrInvalidLayout, tok)
		}
		if n == 0 {
			if len(l) > 0 {
				l[len(l)-1].PageBreakAfter = true
			}
			continue
		}
		l = append(l, Entry{Slot: n})
	}
	if len(l) > 0 {
		l[len(l)-1].PageBreakAfter = true
	}
	return l, nil
}

// String renders the storage form, always ending in a page break.
func (l Layout) String() string {
	var b strings.Builder
	for i, e := range l {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(e.Slot))
		if e.PageBreakAfter || i == len(l)-1 {
			b.WriteString(",0")
		}
	}
	return b.String()
}

// Pages groups slots by page, in order.
func (l Layout) Pages() [][]int {
	var pages [][]int
	var cur []int
	for i, e := range l {
		cur = append(cur, e.Slot)
		if e.PageBreakAfter || i == len(l)-1 {
			pages = append(pages, cur)
			cur = nil
		}
	}
	return pages
}

// Slots returns every slot in page order.
func (l Layout) Slots() []int {
	out := make([]int, len(l))
	for i, e := range l {
		out[i] = e.Slot
	}
	return out
}

// FromPages builds a layout from page groups.
func FromPages(pages [][]int) Layout {
	var l Layout
	for _, page := range pages {
		if len(page) == 0 {
			continue
		}
		for i, slot := range page {
			l = append(l, Entry{Slot: slot, PageBreakAfter: i == len(page)-1})
		}
	}
	return l
}

// Remap renumbers slots through m, keeping the page structure.
func (l Layout) Remap(m map[int]int) (Layout, error) {
	out := make(Layout, len(l))
	for i, e := range l {
		n, ok := m[e.Slot]
		if !ok {
			return nil, fmt.Errorf("%w: slot %d has no mapping", ErrInvalidLayout, e.Slot)
		}
		out[i] = Entry{Slot: n, PageBreakAfter: e.PageBreakAfter}
	}
	return out, nil
}

// Validate checks that the layout holds slots 1..n exactly once each.
func (l Layout) Validate(n int) error {
	seen := make(map[int]bool, len(l))
	for _, e := range l {
		if e.Slot < 1 || e.Slot > n {
			return fmt.Errorf("%w: slot %d out of range 1..%d", ErrInvalidLayout, e.Slot, n)
		}
		if seen[e.Slot] {
			return fmt.Errorf("%w: %d", ErrLayoutSlotDuplicated, e.Slot)
		}
		seen[e.Slot] = true
	}
	for s := 1; s <= n; s++ {
		if !seen[s] {
			return fmt.Errorf("%w: %d", ErrLayoutSlotMissing, s)
		}
	}
	return nil
}
