package access

import (
	"fmt"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// NumAttemptsRule caps the number of attempts.
type NumAttemptsRule struct {
	base
	max int
}

// NewNumAttemptsRule returns nil when attempts are unlimited.
func NewNumAttemptsRule(policy model.EffectivePolicy) *NumAttemptsRule {
	if policy.Attempts == 0 {
		return nil
	}
	return &NumAttemptsRule{max: policy.Attempts}
}

func (r *NumAttemptsRule) Name() string { return "numattempts" }

func (r *NumAttemptsRule) PreventNewAttempt(numPrev int, _ *model.Attempt, _ int64) string {
	if numPrev >= r.max {
		return "No more attempts are allowed"
	}
	return ""
}

func (r *NumAttemptsRule) IsFinished(numPrev int, _ *model.Attempt, _ int64) bool {
	return numPrev >= r.max
}

func (r *NumAttemptsRule) Description(int64) []string {
	return []string{fmt.Sprintf("Attempts allowed: %d", r.max)}
}
