package access

import (
	"github.com/stemsi/exstem-quiz/internal/model"
)

// DelayRule enforces a wait between attempts: Delay1 before the second
// attempt and Delay2 before every later one.
type DelayRule struct {
	base
	policy model.EffectivePolicy
}

// NewDelayRule returns nil when neither delay is set.
func NewDelayRule(policy model.EffectivePolicy) *DelayRule {
	if policy.Delay1 == 0 && policy.Delay2 == 0 {
		return nil
	}
	return &DelayRule{policy: policy}
}

func (r *DelayRule) Name() string { return "delaybetweenattempts" }

func (r *DelayRule) PreventNewAttempt(numPrev int, last *model.Attempt, now int64) string {
	p := r.policy
	if p.Attempts > 0 && numPrev >= p.Attempts {
		// No more attempts anyway.
		return ""
	}
	if p.TimeClose != 0 && now > p.TimeClose {
		return ""
	}
	next := r.nextStartTime(numPrev, last)
	if now >= next {
		return ""
	}
	if p.TimeClose == 0 || next <= p.TimeClose {
		return "You must wait before you may re-attempt this quiz. You will be allowed to start another attempt after " + FormatDate(next) + "."
	}
	return "This quiz closes before you will be allowed to start another attempt."
}

func (r *DelayRule) IsFinished(numPrev int, last *model.Attempt, now int64) bool {
	next := r.nextStartTime(numPrev, last)
	return now <= next && r.policy.TimeClose != 0 && next >= r.policy.TimeClose
}

// nextStartTime is the earliest moment another attempt may begin, or 0.
func (r *DelayRule) nextStartTime(numPrev int, last *model.Attempt) int64 {
	if numPrev == 0 || last == nil {
		return 0
	}
	finish := last.TimeFinish
	if r.policy.TimeLimit > 0 {
		finish = min(finish, last.TimeStart+r.policy.TimeLimit)
	}
	switch {
	case numPrev == 1 && r.policy.Delay1 > 0:
		return finish + r.policy.Delay1
	case numPrev > 1 && r.policy.Delay2 > 0:
		return finish + r.policy.Delay2
	}
	return 0
}
