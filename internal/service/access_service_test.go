package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stemsi/exstem-quiz/internal/model"
)

const passwordMessage = "To attempt this quiz you need to know the quiz password"

func TestPasswordCheckIsRememberedUntilAttemptEnds(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) { q.Password = "secret" })
	ctx := context.Background()

	sum, err := h.access.Summary(ctx, h.quiz.ID, student, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.PasswordRequired || !slices.Contains(sum.PreventAccess, passwordMessage) {
		t.Fatalf("summary = %+v", sum)
	}

	if err := h.access.CheckPassword(ctx, h.quiz.ID, student, "guess"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong password err = %v", err)
	}
	if err := h.access.CheckPassword(ctx, h.quiz.ID, student, "secret"); err != nil {
		t.Fatalf("right password err = %v", err)
	}

	sum, err = h.access.Summary(ctx, h.quiz.ID, student, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.PreventAccess) != 0 {
		t.Fatalf("still denied: %v", sum.PreventAccess)
	}

	v := h.start(t, student, false)
	if _, err := h.attempts.Finish(ctx, v.Attempt.ID, student); err != nil {
		t.Fatal(err)
	}
	if ok, _ := h.flags.IsVerified(ctx, h.quiz.ID, student.UserID); ok {
		t.Error("password flag should be cleared when the attempt ends")
	}
}

func TestGroupPasswordIsAccepted(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) { q.Password = "secret" })
	group, pw := 5, "groupword"
	h.st.groups[student.UserID] = []int{group}
	h.st.overrides[h.quiz.ID] = []model.Override{{ID: 1, QuizID: h.quiz.ID, GroupID: &group, Password: &pw}}

	if err := h.access.CheckPassword(context.Background(), h.quiz.ID, student, "groupword"); err != nil {
		t.Fatalf("group password rejected: %v", err)
	}
}

func TestSummaryListsAttemptsAndGrade(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) { q.Attempts = 1 })
	ctx := context.Background()

	v := h.start(t, student, false)
	sum, err := h.access.Summary(ctx, h.quiz.ID, student, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Unfinished == nil || sum.Unfinished.ID != v.Attempt.ID {
		t.Errorf("unfinished = %+v", sum.Unfinished)
	}
	if sum.Grade != nil {
		t.Error("no grade before finishing")
	}

	if _, err := h.attempts.Finish(ctx, v.Attempt.ID, student); err != nil {
		t.Fatal(err)
	}
	sum, err = h.access.Summary(ctx, h.quiz.ID, student, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Attempts) != 1 || sum.Unfinished != nil {
		t.Errorf("attempts = %d, unfinished = %v", len(sum.Attempts), sum.Unfinished)
	}
	if sum.Grade == nil || *sum.Grade != 0 {
		t.Errorf("grade = %v, want 0", sum.Grade)
	}
	if !sum.NoMoreAttempts || len(sum.PreventNewAttempt) == 0 {
		t.Errorf("attempt limit not reported: %+v", sum)
	}
}
