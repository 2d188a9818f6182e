package service

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/attempt"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/layout"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

func i64p(v int64) *int64 { return &v }

type harness struct {
	st       *fakeStore
	sink     *fakeSink
	flags    *fakeFlags
	now      int64
	quiz     model.Quiz
	quizzes  *QuizService
	access   *AccessService
	grades   *GradeService
	attempts *AttemptService
}

var student = Actor{UserID: 7, Capabilities: []string{string(model.PermissionQuizAttempt)}}

func newHarness(t *testing.T, mutate func(q *model.Quiz)) *harness {
	t.Helper()
	h := &harness{st: newFakeStore(), sink: &fakeSink{}, flags: &fakeFlags{}, now: 10000}
	h.quiz = model.Quiz{
		ID:                 uuid.New(),
		Name:               "Service quiz",
		TimeClose:          20000,
		OverdueHandling:    model.OverdueAutoSubmit,
		NavMethod:          model.NavFree,
		GradeMethod:        model.GradeHighest,
		QuestionsPerPage:   1,
		SumGrades:          3,
		Grade:              10,
		PreferredBehaviour: model.BehaviourDeferredFeedback,
	}
	if mutate != nil {
		mutate(&h.quiz)
	}
	h.st.quizzes[h.quiz.ID] = h.quiz
	h.st.questions[1] = model.Question{ID: 1, CategoryID: 1, Length: 1, Variants: 1, RightAnswer: "one"}
	h.st.questions[2] = model.Question{ID: 2, CategoryID: 1, Length: 1, Variants: 1, RightAnswer: "two"}
	h.st.categories = []model.QuestionCategory{{ID: 1, Name: "Default"}}
	h.st.slots[h.quiz.ID] = []model.Slot{
		{QuizID: h.quiz.ID, Slot: 1, Page: 1, QuestionID: i64p(1), MaxMark: 2},
		{QuizID: h.quiz.ID, Slot: 2, Page: 2, QuestionID: i64p(2), MaxMark: 1},
	}

	clk := func() time.Time { return time.Unix(h.now, 0) }
	log := zerolog.Nop()
	h.quizzes = NewQuizService(h.st, nil, time.Minute, log)
	h.grades = NewGradeService()
	h.access = NewAccessService(h.st, h.quizzes, h.grades, h.flags, time.Hour)
	h.attempts = NewAttemptService(h.st, h.quizzes, h.access, h.grades, h.sink, attempt.DefaultConfig(), clk, log)
	return h
}

func (h *harness) start(t *testing.T, actor Actor, preview bool) *AttemptView {
	t.Helper()
	v, err := h.attempts.StartOrContinue(context.Background(), h.quiz.ID, actor, preview)
	if err != nil {
		t.Fatalf("StartOrContinue: %v", err)
	}
	return v
}

func TestStartThenContinue(t *testing.T) {
	h := newHarness(t, nil)

	v := h.start(t, student, false)
	if v.Continued {
		t.Error("first call should start a new attempt")
	}
	rec := v.Attempt
	if rec.Attempt != 1 || rec.State != model.StateInProgress {
		t.Fatalf("attempt = %d %s", rec.Attempt, rec.State)
	}
	if rec.TimeCheckState == nil || *rec.TimeCheckState != 20000 {
		t.Errorf("time check = %v, want close time", rec.TimeCheckState)
	}
	if v.NumPages != 2 {
		t.Errorf("pages = %d, want 2", v.NumPages)
	}
	if got := h.sink.names(); !slices.Equal(got, []string{model.EventAttemptStarted}) {
		t.Errorf("events = %v", got)
	}

	h.now = 10100
	again := h.start(t, student, false)
	if !again.Continued || again.Attempt.ID != rec.ID {
		t.Errorf("second call should continue %s, got %s (continued=%v)", rec.ID, again.Attempt.ID, again.Continued)
	}
}

func TestStartClosesExpiredAttemptEvenWhenDenied(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) { q.Attempts = 1 })
	first := h.start(t, student, false)

	h.now = 20500
	_, err := h.attempts.StartOrContinue(context.Background(), h.quiz.ID, student, false)
	var denied *access.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want access denial", err)
	}

	stored, _ := h.st.attempt(first.Attempt.ID)
	if stored.State != model.StateFinished {
		t.Fatalf("expired attempt state = %s, want finished", stored.State)
	}
	if stored.TimeFinish != 20500 {
		t.Errorf("finish time = %d, want 20500", stored.TimeFinish)
	}
	if stored.TimeCheckState != nil {
		t.Errorf("finished attempt still has a time check")
	}
	if _, ok := h.st.grades[gradeKey{h.quiz.ID, student.UserID}]; !ok {
		t.Error("grade was not recorded")
	}
	if !slices.Contains(h.sink.names(), model.EventAttemptSubmitted) {
		t.Errorf("events = %v, want a submission", h.sink.names())
	}
}

func TestProcessFinishGradesAttempt(t *testing.T) {
	h := newHarness(t, nil)
	v := h.start(t, student, false)

	h.now = 10100
	out, err := h.attempts.Process(context.Background(), v.Attempt.ID, student, ProcessRequest{
		Actions: []questionusage.Action{{Slot: 1, Response: "one"}, {Slot: 2, Response: "nope"}},
		Finish:  true,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Attempt.State != model.StateFinished {
		t.Fatalf("state = %s", out.Attempt.State)
	}
	if out.Page != layout.SummaryPage || len(out.Slots) != 2 {
		t.Errorf("finished view = page %d with %d slots", out.Page, len(out.Slots))
	}
	if out.Slots[0].Mark == nil || *out.Slots[0].Mark != 2 {
		t.Errorf("slot 1 mark = %v, want 2", out.Slots[0].Mark)
	}

	g := h.st.grades[gradeKey{h.quiz.ID, student.UserID}]
	if math.Abs(g.Grade-20.0/3) > 1e-9 {
		t.Errorf("grade = %v, want %v", g.Grade, 20.0/3)
	}

	_, err = h.attempts.Process(context.Background(), v.Attempt.ID, student, ProcessRequest{Finish: true})
	if !errors.Is(err, attempt.ErrAttemptFinished) {
		t.Errorf("second finish err = %v", err)
	}
}

func TestViewMovesPageAndRecordsReview(t *testing.T) {
	h := newHarness(t, nil)
	v := h.start(t, student, false)
	ctx := context.Background()

	page, err := h.attempts.View(ctx, v.Attempt.ID, student, 1)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if page.Attempt.CurrentPage != 1 || !page.LastPage {
		t.Errorf("current page = %d, last = %v", page.Attempt.CurrentPage, page.LastPage)
	}
	if len(page.Slots) != 1 || page.Slots[0].Slot != 2 {
		t.Errorf("page 1 slots = %+v", page.Slots)
	}
	if stored, _ := h.st.attempt(v.Attempt.ID); stored.CurrentPage != 1 {
		t.Errorf("stored page = %d", stored.CurrentPage)
	}

	if _, err := h.attempts.Finish(ctx, v.Attempt.ID, student); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := h.attempts.View(ctx, v.Attempt.ID, student, 0); err != nil {
		t.Fatalf("review: %v", err)
	}
	if !slices.Contains(h.sink.names(), model.EventAttemptReviewed) {
		t.Errorf("events = %v, want a review", h.sink.names())
	}
}

func TestAttemptBelongsToOwner(t *testing.T) {
	h := newHarness(t, nil)
	v := h.start(t, student, false)

	other := Actor{UserID: 8, Capabilities: student.Capabilities}
	if _, err := h.attempts.View(context.Background(), v.Attempt.ID, other, 0); !errors.Is(err, ErrNotYourAttempt) {
		t.Errorf("err = %v, want ErrNotYourAttempt", err)
	}
	if _, err := h.attempts.View(context.Background(), uuid.New(), student, 0); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestPreviewReplacesEarlierPreview(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) { q.Attempts = 1 })
	ctx := context.Background()

	if _, err := h.attempts.StartOrContinue(ctx, h.quiz.ID, student, true); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("err = %v, want ErrNotAllowed", err)
	}

	previewer := Actor{UserID: 99, Capabilities: []string{string(model.PermissionQuizPreview)}}
	first := h.start(t, previewer, true)
	if !first.Attempt.Preview || first.Attempt.TimeCheckState != nil {
		t.Fatalf("preview = %+v", first.Attempt)
	}
	if first.DueDate != nil {
		t.Error("previews have no due date")
	}
	if _, err := h.attempts.Finish(ctx, first.Attempt.ID, previewer); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, ok := h.st.grades[gradeKey{h.quiz.ID, previewer.UserID}]; ok {
		t.Error("preview must not be graded")
	}

	second := h.start(t, previewer, true)
	if second.Attempt.ID == first.Attempt.ID || second.Attempt.Attempt != 1 {
		t.Errorf("second preview = %+v", second.Attempt)
	}
	if _, ok := h.st.attempt(first.Attempt.ID); ok {
		t.Error("earlier preview was not deleted")
	}

	if err := h.attempts.DeletePreview(ctx, second.Attempt.ID, previewer); err != nil {
		t.Fatalf("DeletePreview: %v", err)
	}
	if _, ok := h.st.attempt(second.Attempt.ID); ok {
		t.Error("preview still stored")
	}
}

func TestDeletePreviewRejectsRealAttempt(t *testing.T) {
	h := newHarness(t, nil)
	v := h.start(t, student, false)
	if err := h.attempts.DeletePreview(context.Background(), v.Attempt.ID, student); !errors.Is(err, ErrNotPreview) {
		t.Errorf("err = %v, want ErrNotPreview", err)
	}
}

func TestSweepGracePeriodThenAbandon(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) {
		q.OverdueHandling = model.OverdueGracePeriod
		q.GracePeriod = 600
	})
	v := h.start(t, student, false)
	ctx := context.Background()
	data, err := h.quizzes.LoadStructure(ctx, h.quiz.ID)
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.attempts.HandleIfTimeExpired(ctx, v.Attempt.ID, data, 20100, 20040)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || res.From != model.StateInProgress || res.To != model.StateOverdue {
		t.Fatalf("result = %+v", res)
	}
	stored, _ := h.st.attempt(v.Attempt.ID)
	if stored.TimeCheckState == nil || *stored.TimeCheckState != 20600 {
		t.Errorf("time check = %v, want end of grace period", stored.TimeCheckState)
	}
	if len(h.sink.notifications) != 1 || h.sink.notifications[0].Kind != model.NotificationOverdue {
		t.Errorf("notifications = %+v", h.sink.notifications)
	}

	res, err = h.attempts.HandleIfTimeExpired(ctx, v.Attempt.ID, data, 20500, 20440)
	if err != nil || !res.Skipped {
		t.Errorf("check not yet due: %+v, %v", res, err)
	}

	res, err = h.attempts.HandleIfTimeExpired(ctx, v.Attempt.ID, data, 20700, 20640)
	if err != nil {
		t.Fatal(err)
	}
	if res.To != model.StateAbandoned {
		t.Errorf("to = %s, want abandoned", res.To)
	}
	stored, _ = h.st.attempt(v.Attempt.ID)
	if stored.TimeCheckState != nil {
		t.Error("abandoned attempt still has a time check")
	}
}

func TestSweepKeepsTimeLimitExemption(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) {
		q.TimeLimit = 600
		q.OverdueHandling = model.OverdueGracePeriod
		q.GracePeriod = 1000
	})
	exempt := Actor{UserID: 8, Capabilities: []string{
		string(model.PermissionQuizAttempt),
		string(model.PermissionQuizIgnoreTimeLimits),
	}}
	v := h.start(t, exempt, false)
	if v.Attempt.TimeCheckState == nil || *v.Attempt.TimeCheckState != 20000 {
		t.Fatalf("time check = %v, want close time", v.Attempt.TimeCheckState)
	}
	if stored, _ := h.st.attempt(v.Attempt.ID); !stored.IgnoreTimeLimits {
		t.Fatal("exemption not recorded on the attempt")
	}
	limited := h.start(t, student, false)
	if limited.Attempt.TimeCheckState == nil || *limited.Attempt.TimeCheckState != 10600 {
		t.Fatalf("student time check = %v, want end of time limit", limited.Attempt.TimeCheckState)
	}

	ctx := context.Background()
	data, err := h.quizzes.LoadStructure(ctx, h.quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.attempts.HandleIfTimeExpired(ctx, v.Attempt.ID, data, 20100, 20040)
	if err != nil {
		t.Fatal(err)
	}
	if res.From != model.StateInProgress || res.To != model.StateOverdue {
		t.Fatalf("result = %+v, want inprogress -> overdue", res)
	}
	stored, _ := h.st.attempt(v.Attempt.ID)
	if stored.TimeCheckState == nil || *stored.TimeCheckState != 21000 {
		t.Errorf("time check = %v, want close plus grace period", stored.TimeCheckState)
	}
}

func TestAttemptConfigFromEnvironment(t *testing.T) {
	c := AttemptConfig(&config.Config{
		SweepSafetyMargin: 90 * time.Second,
		MinTimeToContinue: 5 * time.Second,
		InfoItemLabel:     "info",
	})
	if c.GracePeriodMin != 90 || c.MinTimeToContinue != 5 || c.InfoLabel != "info" {
		t.Errorf("config = %+v", c)
	}

	def := attempt.DefaultConfig()
	if got := AttemptConfig(&config.Config{}); got != def {
		t.Errorf("empty config = %+v, want defaults %+v", got, def)
	}
}

func TestRedoKeepsFinishedQuestionAttempt(t *testing.T) {
	h := newHarness(t, func(q *model.Quiz) {
		q.CanRedoQuestions = true
		q.PreferredBehaviour = model.BehaviourImmediateFeedback
	})
	v := h.start(t, student, false)
	ctx := context.Background()

	if _, err := h.attempts.Redo(ctx, v.Attempt.ID, student, 1); !errors.Is(err, attempt.ErrQuestionNotFinished) {
		t.Fatalf("redo before finishing: %v", err)
	}
	if _, err := h.attempts.Process(ctx, v.Attempt.ID, student, ProcessRequest{
		Actions: []questionusage.Action{{Slot: 1, Response: "one", Submit: true}},
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	moved, err := h.attempts.Redo(ctx, v.Attempt.ID, student, 1)
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if moved != 3 {
		t.Errorf("moved to slot %d, want 3", moved)
	}
	u, _ := h.st.GetUsage(ctx, v.Attempt.UsageID)
	if u.Len() != 3 {
		t.Fatalf("usage has %d slots", u.Len())
	}
	old, _ := u.Get(3)
	if old.MaxMark != 0 || old.Metadata[questionusage.MetaOriginalSlot] != "1" || old.State != questionusage.StateGradedRight {
		t.Errorf("superseded attempt = %+v", old)
	}
	fresh, _ := u.Get(1)
	if fresh.State != questionusage.StateTodo || fresh.MaxMark != 2 {
		t.Errorf("fresh attempt = %+v", fresh)
	}
}

func TestToggleFlag(t *testing.T) {
	h := newHarness(t, nil)
	v := h.start(t, student, false)
	on, err := h.attempts.ToggleFlag(context.Background(), v.Attempt.ID, student, 2)
	if err != nil || !on {
		t.Fatalf("ToggleFlag = %v, %v", on, err)
	}
	u, _ := h.st.GetUsage(context.Background(), v.Attempt.UsageID)
	if qa, _ := u.Get(2); !qa.Flagged {
		t.Error("flag not saved")
	}
}
