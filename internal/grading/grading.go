// Package grading combines the summed marks of a user's attempts into one grade.
package grading

import (
	"sort"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// minSumGrades guards against dividing by a quiz whose questions carry no marks.
const minSumGrades = 0.000005

// BestGrade applies method to the finished, non-preview attempts, in attempt
// order. It returns false when there is nothing to grade.
func BestGrade(method model.GradeMethod, attempts []model.Attempt) (float64, bool) {
	graded := make([]model.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Preview || a.State != model.StateFinished {
			continue
		}
		graded = append(graded, a)
	}
	if len(graded) == 0 {
		return 0, false
	}
	sort.SliceStable(graded, func(i, j int) bool { return graded[i].Attempt < graded[j].Attempt })

	switch method {
	case model.GradeFirst:
		return value(graded[0])
	case model.GradeLast:
		return value(graded[len(graded)-1])
	case model.GradeAverage:
		var sum float64
		n := 0
		for _, a := range graded {
			if a.SumGrades != nil {
				sum += *a.SumGrades
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true
	default:
		var best float64
		found := false
		for _, a := range graded {
			if a.SumGrades != nil && (!found || *a.SumGrades > best) {
				best = *a.SumGrades
				found = true
			}
		}
		return best, found
	}
}

func value(a model.Attempt) (float64, bool) {
	if a.SumGrades == nil {
		return 0, false
	}
	return *a.SumGrades, true
}

// Rescale converts a raw mark out of SumGrades into a grade out of Grade.
func Rescale(raw float64, quiz model.Quiz) float64 {
	if quiz.SumGrades < minSumGrades {
		return 0
	}
	return raw * quiz.Grade / quiz.SumGrades
}
