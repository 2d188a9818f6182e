package access

import (
	"github.com/stemsi/exstem-quiz/internal/model"
)

// DefaultTimeLeftThreshold is how long before the close date a countdown appears.
const DefaultTimeLeftThreshold int64 = 3600

// OpenCloseRule enforces the open and close dates.
type OpenCloseRule struct {
	base
	policy    model.EffectivePolicy
	threshold int64
}

// NewOpenCloseRule returns nil when the quiz has neither date.
func NewOpenCloseRule(policy model.EffectivePolicy, threshold int64) *OpenCloseRule {
	if policy.TimeOpen == 0 && policy.TimeClose == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultTimeLeftThreshold
	}
	return &OpenCloseRule{policy: policy, threshold: threshold}
}

func (r *OpenCloseRule) Name() string { return "openclose" }

func (r *OpenCloseRule) PreventAccess(now int64) string {
	const msg = "This quiz is not currently available"
	p := r.policy
	if now < p.TimeOpen {
		return msg
	}
	if p.TimeClose == 0 || now <= p.TimeClose {
		return ""
	}
	if p.OverdueHandling != model.OverdueGracePeriod {
		return msg
	}
	if now <= p.TimeClose+p.GracePeriod {
		return ""
	}
	return msg
}

func (r *OpenCloseRule) IsFinished(_ int, _ *model.Attempt, now int64) bool {
	return r.policy.TimeClose != 0 && now > r.policy.TimeClose
}

func (r *OpenCloseRule) EndTime(*model.Attempt) (int64, bool) {
	if r.policy.TimeClose != 0 {
		return r.policy.TimeClose, true
	}
	return 0, false
}

func (r *OpenCloseRule) TimeLeftDisplay(a *model.Attempt, now int64) (int64, bool) {
	// A preview after the close date shows no countdown.
	if a.Preview && now > r.policy.TimeClose {
		return 0, false
	}
	end, ok := r.EndTime(a)
	if ok && now > end-r.threshold {
		return end - now, true
	}
	return 0, false
}

func (r *OpenCloseRule) Description(now int64) []string {
	p := r.policy
	var out []string
	switch {
	case now < p.TimeOpen:
		out = append(out, "The quiz will not be available until "+FormatDate(p.TimeOpen))
		if p.TimeClose != 0 {
			out = append(out, "This quiz will close on "+FormatDate(p.TimeClose)+".")
		}
	case p.TimeClose != 0 && now > p.TimeClose:
		out = append(out, "This quiz closed on "+FormatDate(p.TimeClose))
	default:
		if p.TimeOpen != 0 {
			out = append(out, "This quiz opened at "+FormatDate(p.TimeOpen))
		}
		if p.TimeClose != 0 {
			out = append(out, "This quiz will close on "+FormatDate(p.TimeClose)+".")
		}
	}
	return out
}
