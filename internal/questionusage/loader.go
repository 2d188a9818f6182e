package questionusage

import (
	"math/rand/v2"
	"sort"
)

// RandomLoader picks questions for random slots, preferring those the user
// has seen least across earlier usages.
type RandomLoader struct {
	used map[int64]int
	rnd  *rand.Rand
}

// NewRandomLoader starts from per-question usage counts of earlier attempts.
func NewRandomLoader(used map[int64]int, rnd *rand.Rand) *RandomLoader {
	counts := make(map[int64]int, len(used))
	for id, n := range used {
		counts[id] = n
	}
	return &RandomLoader{used: counts, rnd: rnd}
}

// Next picks one of candidates not in exclude, among the least used.
// It returns false when every candidate is excluded.
func (l *RandomLoader) Next(candidates []int64, exclude map[int64]bool) (int64, bool) {
	best := -1
	var pool []int64
	for _, id := range candidates {
		if exclude[id] {
			continue
		}
		n := l.used[id]
		switch {
		case best == -1 || n < best:
			best = n
			pool = []int64{id}
		case n == best:
			pool = append(pool, id)
		}
	}
	if len(pool) == 0 {
		return 0, false
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
	id := pool[l.rnd.IntN(len(pool))]
	l.used[id]++
	return id, true
}

// LeastUsedVariants chooses the variant a user has seen least often.
type LeastUsedVariants struct {
	seen map[int64]map[int]int
	rnd  *rand.Rand
}

// NewLeastUsedVariants counts variants across earlier usages.
func NewLeastUsedVariants(prior []*Usage, rnd *rand.Rand) *LeastUsedVariants {
	seen := make(map[int64]map[int]int)
	for _, u := range prior {
		for _, qa := range u.Attempts {
			if seen[qa.QuestionID] == nil {
				seen[qa.QuestionID] = make(map[int]int)
			}
			seen[qa.QuestionID][qa.Variant]++
		}
	}
	return &LeastUsedVariants{seen: seen, rnd: rnd}
}

func (s *LeastUsedVariants) ChooseVariant(questionID int64, variants int) int {
	counts := s.seen[questionID]
	best := -1
	var pool []int
	for v := 1; v <= variants; v++ {
		n := counts[v]
		switch {
		case best == -1 || n < best:
			best = n
			pool = []int{v}
		case n == best:
			pool = append(pool, v)
		}
	}
	v := pool[s.rnd.IntN(len(pool))]
	if s.seen[questionID] == nil {
		s.seen[questionID] = make(map[int]int)
	}
	s.seen[questionID][v]++
	return v
}
