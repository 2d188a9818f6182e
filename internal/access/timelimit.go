package access

import (
	"github.com/stemsi/exstem-quiz/internal/model"
)

// TimeLimitRule bounds each attempt to start + limit.
type TimeLimitRule struct {
	base
	limit int64
}

// NewTimeLimitRule returns nil for unlimited quizzes or users allowed to ignore limits.
func NewTimeLimitRule(policy model.EffectivePolicy, ignoreLimits bool) *TimeLimitRule {
	if policy.TimeLimit == 0 || ignoreLimits {
		return nil
	}
	return &TimeLimitRule{limit: policy.TimeLimit}
}

func (r *TimeLimitRule) Name() string { return "timelimit" }

func (r *TimeLimitRule) EndTime(a *model.Attempt) (int64, bool) {
	return a.TimeStart + r.limit, true
}

func (r *TimeLimitRule) TimeLeftDisplay(a *model.Attempt, now int64) (int64, bool) {
	end, _ := r.EndTime(a)
	if a.Preview && now > end {
		return 0, false
	}
	return end - now, true
}

func (r *TimeLimitRule) Description(int64) []string {
	return []string{"Time limit: " + FormatDuration(r.limit)}
}
