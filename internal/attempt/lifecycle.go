package attempt

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// HandleIfTimeExpired moves the attempt to wherever its deadline says it
// should be at now. It is safe to call repeatedly and from the sweep, where
// online is false. Terminal attempts and attempts without a deadline only
// have their next-check time cleared.
func (a *Attempt) HandleIfTimeExpired(now int64, online bool) error {
	// Going overdue is re-examined once so that the next-check time lands on
	// the end of the grace period, or the attempt is abandoned outright.
	for i := 0; i < 2; i++ {
		again, err := a.checkExpiry(now, online)
		if err != nil || !again {
			return err
		}
	}
	return nil
}

func (a *Attempt) checkExpiry(now int64, online bool) (bool, error) {
	if a.rec.State.IsTerminal() {
		a.setTimeCheck(nil)
		return false, nil
	}
	end, ok := a.EndTime()
	if !ok || a.rec.Preview {
		a.setTimeCheck(nil)
		return false, nil
	}
	if now < end {
		a.setTimeCheck(&end)
		return false, nil
	}

	policy := a.Policy()
	if a.rec.State == model.StateOverdue {
		if now-end > policy.GracePeriod {
			return false, a.ProcessAbandon(now, online)
		}
		due := end + policy.GracePeriod
		a.setTimeCheck(&due)
		return false, nil
	}

	switch policy.OverdueHandling {
	case model.OverdueAutoSubmit:
		finish := end
		if online {
			finish = now
		}
		return false, a.ProcessFinish(now, nil, finish, online)
	case model.OverdueGracePeriod:
		if err := a.ProcessGoingOverdue(now, online); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, a.ProcessAbandon(now, online)
	}
}

// ProcessFinish closes the attempt. submitted, when non-nil, is applied first.
// timeFinish 0 means now.
func (a *Attempt) ProcessFinish(now int64, submitted []questionusage.Action, timeFinish int64, online bool) error {
	if a.rec.State.IsTerminal() {
		return ErrAttemptFinished
	}
	if submitted != nil {
		if err := a.usage.ProcessActions(now, submitted); err != nil {
			return err
		}
	}
	a.usage.FinishAll(now)
	a.usageChanged = true

	if err := a.transition(model.StateFinished); err != nil {
		return err
	}
	total := a.usage.TotalMark()
	if timeFinish == 0 {
		timeFinish = now
	}
	a.rec.TimeModified = now
	a.rec.TimeFinish = timeFinish
	a.rec.SumGrades = &total
	a.rec.TimeCheckState = nil

	if !a.rec.Preview {
		a.effects.RecomputeGrade = true
		a.effects.AttemptFinished = true
		a.emit(model.EventAttemptSubmitted, now, online, nil)
	}
	return nil
}

// ProcessGoingOverdue moves the attempt into its grace period. The next check
// is set to now; a later expiry check computes the precise boundary.
func (a *Attempt) ProcessGoingOverdue(now int64, online bool) error {
	switch a.rec.State {
	case model.StateOverdue:
		a.rec.TimeModified = now
		a.rec.TimeCheckState = &now
		a.markRecord()
		return nil
	case model.StateInProgress:
	default:
		return ErrAttemptFinished
	}
	if err := a.transition(model.StateOverdue); err != nil {
		return err
	}
	a.rec.TimeModified = now
	a.rec.TimeCheckState = &now

	a.emit(model.EventAttemptBecameOverdue, now, online, nil)
	a.effects.Notifications = append(a.effects.Notifications, a.overdueNotification(now))
	return nil
}

// ProcessAbandon abandons the attempt; its finish time is left as it was.
func (a *Attempt) ProcessAbandon(now int64, online bool) error {
	if a.rec.State.IsTerminal() {
		return ErrAttemptFinished
	}
	if err := a.transition(model.StateAbandoned); err != nil {
		return err
	}
	a.rec.TimeModified = now
	a.rec.TimeCheckState = nil
	a.emit(model.EventAttemptAbandoned, now, online, nil)
	return nil
}

func (a *Attempt) overdueNotification(now int64) model.Notification {
	policy := a.Policy()
	n := model.Notification{
		ID:        uuid.New(),
		Kind:      model.NotificationOverdue,
		UserID:    a.rec.UserID,
		QuizID:    a.rec.QuizID,
		AttemptID: a.rec.ID,
		Subject:   fmt.Sprintf("Your attempt at %s is overdue", policy.Name),
		CreatedAt: now,
	}
	if due, ok := a.DueDate(); ok {
		n.DueDate = due
		n.Body = fmt.Sprintf("Your attempt %d at %s is now overdue. You must submit it before %s for it to count.",
			a.rec.Attempt, policy.Name, access.FormatDate(due))
	} else {
		n.Body = fmt.Sprintf("Your attempt %d at %s is now overdue.", a.rec.Attempt, policy.Name)
	}
	return n
}
