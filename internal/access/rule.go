// Package access evaluates the rules that decide whether a user may enter a
// quiz, start a new attempt, and how long an attempt may run.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Rule is one independent access restriction. Empty messages mean "no objection".
type Rule interface {
	Name() string
	// PreventAccess is consulted on every page view.
	PreventAccess(now int64) string
	// PreventNewAttempt is consulted only when about to start a new attempt.
	PreventNewAttempt(numPrev int, last *model.Attempt, now int64) string
	// IsFinished reports the user has used every attempt this rule permits.
	IsFinished(numPrev int, last *model.Attempt, now int64) bool
	// EndTime is the deadline this rule imposes on the attempt.
	EndTime(a *model.Attempt) (int64, bool)
	// TimeLeftDisplay is the countdown to show, if any.
	TimeLeftDisplay(a *model.Attempt, now int64) (int64, bool)
	// Description lists human-readable facts about the restriction.
	Description(now int64) []string
}

// FinishListener is implemented by rules that keep per-attempt state.
type FinishListener interface {
	CurrentAttemptFinished(ctx context.Context) error
}

// base supplies the no-objection defaults.
type base struct{}

func (base) PreventAccess(int64) string                          { return "" }
func (base) PreventNewAttempt(int, *model.Attempt, int64) string { return "" }
func (base) IsFinished(int, *model.Attempt, int64) bool          { return false }
func (base) EndTime(*model.Attempt) (int64, bool)                { return 0, false }
func (base) TimeLeftDisplay(*model.Attempt, int64) (int64, bool) { return 0, false }
func (base) Description(int64) []string                          { return nil }

const dateLayout = "Monday, 2 January 2006, 3:04 PM"

// FormatDate renders a Unix timestamp for user-facing messages.
func FormatDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(dateLayout)
}

// FormatDuration renders seconds as e.g. "1 hour 30 mins".
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0 secs"
	}
	units := []struct {
		size int64
		one  string
		many string
	}{
		{86400, "day", "days"},
		{3600, "hour", "hours"},
		{60, "min", "mins"},
		{1, "sec", "secs"},
	}
	parts := make([]string, 0, 2)
	for _, u := range units {
		if secs < u.size {
			continue
		}
		n := secs / u.size
		secs %= u.size
		label := u.many
		if n == 1 {
			label = u.one
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " ")
}
