package attempt

import (
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// ProcessAutosave stores draft responses without grading.
func (a *Attempt) ProcessAutosave(now int64, actions []questionusage.Action) error {
	if a.rec.State.IsTerminal() {
		return ErrAttemptFinished
	}
	if err := a.usage.ProcessAutosaves(now, actions); err != nil {
		return err
	}
	a.usageChanged = true
	a.rec.TimeModified = now
	a.markRecord()
	return nil
}

// ProcessSubmittedActions applies responses and, when becomingOverdue is set,
// moves the attempt into its grace period.
func (a *Attempt) ProcessSubmittedActions(now int64, actions []questionusage.Action, becomingOverdue bool) error {
	if err := a.usage.ProcessActions(now, actions); err != nil {
		return err
	}
	a.usageChanged = true
	a.rec.TimeModified = now
	if a.rec.State == model.StateFinished {
		total := a.usage.TotalMark()
		a.rec.SumGrades = &total
	}
	if becomingOverdue {
		if err := a.ProcessGoingOverdue(now, true); err != nil {
			return err
		}
	} else {
		a.markRecord()
	}
	if !a.rec.Preview && a.rec.State == model.StateFinished {
		a.effects.RecomputeGrade = true
	}
	return nil
}

// ProcessAttempt handles an interactive submission: it saves responses,
// optionally finishes the attempt, and applies the deadline. timeUp is the
// client's belief that time ran out; it only counts near the deadline.
// It returns the resulting state.
func (a *Attempt) ProcessAttempt(now int64, actions []questionusage.Action, finish, timeUp bool) (model.AttemptState, error) {
	if a.rec.State.IsTerminal() {
		return a.rec.State, ErrAttemptFinished
	}
	policy := a.Policy()
	end, hasEnd := a.EndTime()
	if a.rec.Preview {
		hasEnd = false
	}

	tooLate := false
	if hasEnd {
		if now > end-a.cfg.MinTimeToContinue {
			timeUp = true
			if now > end+a.cfg.GracePeriodMin {
				tooLate = true
			}
		} else {
			timeUp = false
		}
	}

	becomingOverdue := false
	becomingAbandoned := false
	if timeUp {
		if policy.OverdueHandling == model.OverdueGracePeriod {
			if now > end+policy.GracePeriod+a.cfg.GracePeriodMin {
				finish = true
				becomingAbandoned = true
			} else {
				becomingOverdue = true
			}
		} else {
			finish = true
		}
	}

	if !finish {
		if tooLate {
			if err := a.ProcessGoingOverdue(now, true); err != nil {
				return a.rec.State, err
			}
		} else if err := a.ProcessSubmittedActions(now, actions, becomingOverdue); err != nil {
			return a.rec.State, err
		}
		return a.rec.State, nil
	}

	if becomingAbandoned {
		return a.rec.State, a.ProcessAbandon(now, true)
	}

	finishTime := now
	if tooLate && policy.OverdueHandling != model.OverdueGracePeriod {
		// Responses were too late to count; record the deadline instead.
		finishTime = end
	}
	var submitted []questionusage.Action
	if !tooLate {
		submitted = actions
		if submitted == nil {
			submitted = []questionusage.Action{}
		}
	}
	if err := a.ProcessFinish(now, submitted, finishTime, true); err != nil {
		return a.rec.State, err
	}
	return a.rec.State, nil
}
