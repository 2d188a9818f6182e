package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Options carries the per-request facts the rules need.
type Options struct {
	UserID int
	// IgnoreTimeLimits drops the time limit rule for privileged users.
	IgnoreTimeLimits bool
	RemoteIP         string
	// PasswordVerified is the remembered result of an earlier password check.
	PasswordVerified  bool
	PasswordStore     PasswordStore
	TimeLeftThreshold int64
}

// Manager combines the rules that apply to one user's view of one quiz.
type Manager struct {
	policy   model.EffectivePolicy
	rules    []Rule
	password *PasswordRule
}

// NewManager builds the fixed set of built-in rules that apply to policy.
func NewManager(policy model.EffectivePolicy, opts Options) *Manager {
	m := &Manager{policy: policy}
	if r := NewNumAttemptsRule(policy); r != nil {
		m.rules = append(m.rules, r)
	}
	if r := NewOpenCloseRule(policy, opts.TimeLeftThreshold); r != nil {
		m.rules = append(m.rules, r)
	}
	if r := NewTimeLimitRule(policy, opts.IgnoreTimeLimits); r != nil {
		m.rules = append(m.rules, r)
	}
	if r := NewDelayRule(policy); r != nil {
		m.rules = append(m.rules, r)
	}
	if r := NewPasswordRule(policy, opts.UserID, opts.PasswordVerified, opts.PasswordStore); r != nil {
		m.password = r
		m.rules = append(m.rules, r)
	}
	if r := NewSubnetRule(policy, opts.RemoteIP); r != nil {
		m.rules = append(m.rules, r)
	}
	return m
}

// NewManagerWithRules is used when the caller assembles the rules itself.
func NewManagerWithRules(policy model.EffectivePolicy, rules ...Rule) *Manager {
	m := &Manager{policy: policy, rules: rules}
	for _, r := range rules {
		if p, ok := r.(*PasswordRule); ok {
			m.password = p
		}
	}
	return m
}

// Policy returns the effective policy the rules were built from.
func (m *Manager) Policy() model.EffectivePolicy { return m.policy }

// Rules returns the active rules.
func (m *Manager) Rules() []Rule { return m.rules }

// PreventAccess returns every reason the user may not interact with the quiz now.
func (m *Manager) PreventAccess(now int64) []string {
	var msgs []string
	for _, r := range m.rules {
		if msg := r.PreventAccess(now); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// PreventNewAttempt returns every reason the user may not start another attempt.
func (m *Manager) PreventNewAttempt(numPrev int, last *model.Attempt, now int64) []string {
	var msgs []string
	for _, r := range m.rules {
		if msg := r.PreventNewAttempt(numPrev, last, now); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// IsFinished reports whether any rule says the user can make no more attempts.
func (m *Manager) IsFinished(numPrev int, last *model.Attempt, now int64) bool {
	for _, r := range m.rules {
		if r.IsFinished(numPrev, last, now) {
			return true
		}
	}
	return false
}

// EndTime is the earliest deadline any rule imposes on the attempt.
func (m *Manager) EndTime(a *model.Attempt) (int64, bool) {
	var end int64
	found := false
	for _, r := range m.rules {
		t, ok := r.EndTime(a)
		if ok && (!found || t < end) {
			end = t
			found = true
		}
	}
	return end, found
}

// DueDate is the end time, extended by the grace period while overdue.
// Terminal attempts have no due date.
func (m *Manager) DueDate(a *model.Attempt) (int64, bool) {
	end, ok := m.EndTime(a)
	if !ok {
		return 0, false
	}
	switch a.State {
	case model.StateOverdue:
		return end + m.policy.GracePeriod, true
	case model.StateFinished, model.StateAbandoned:
		return 0, false
	default:
		return end, true
	}
}

// TimeLeftDisplay is the smallest countdown any rule wants shown.
func (m *Manager) TimeLeftDisplay(a *model.Attempt, now int64) (int64, bool) {
	var left int64
	found := false
	for _, r := range m.rules {
		t, ok := r.TimeLeftDisplay(a, now)
		if ok && (!found || t < left) {
			left = t
			found = true
		}
	}
	return left, found
}

// Describe lists every rule's description.
func (m *Manager) Describe(now int64) []string {
	var out []string
	for _, r := range m.rules {
		out = append(out, r.Description(now)...)
	}
	return out
}

// VerifyPassword checks input against the password rule. Quizzes without a
// password accept anything.
func (m *Manager) VerifyPassword(ctx context.Context, input string) (bool, error) {
	if m.password == nil {
		return true, nil
	}
	return m.password.Verify(ctx, input)
}

// CurrentAttemptFinished tells stateful rules the user's attempt is over.
func (m *Manager) CurrentAttemptFinished(ctx context.Context) error {
	var errs []error
	for _, r := range m.rules {
		if l, ok := r.(FinishListener); ok {
			if err := l.CurrentAttemptFinished(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// DeniedError carries every denial message at once.
type DeniedError struct {
	Messages []string
}

func (e *DeniedError) Error() string {
	return "access denied: " + strings.Join(e.Messages, "; ")
}

// Denied wraps messages as an error, or returns nil when there are none.
func Denied(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &DeniedError{Messages: msgs}
}
