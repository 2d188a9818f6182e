package access

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-quiz/internal/model"
)

func policy(q model.Quiz) model.EffectivePolicy {
	return model.DefaultPolicy(q)
}

func containsAll(t *testing.T, msgs []string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		found := false
		for _, m := range msgs {
			if strings.Contains(m, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("messages %q do not mention %q", msgs, w)
		}
	}
}

func TestCloseDateCountdown(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeClose: 20000}), Options{})
	a := &model.Attempt{TimeStart: 10000, State: model.StateInProgress}

	tests := []struct {
		now    int64
		want   int64
		wantOK bool
	}{
		{now: 20000 - 3600, wantOK: false},
		{now: 19900, want: 100, wantOK: true},
		{now: 20000, want: 0, wantOK: true},
		{now: 20100, want: -100, wantOK: true},
	}
	for _, tt := range tests {
		got, ok := m.TimeLeftDisplay(a, tt.now)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("now=%d: TimeLeftDisplay = (%d, %v), want (%d, %v)", tt.now, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCountdownThresholdIsConfigurable(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeClose: 20000}), Options{TimeLeftThreshold: 600})
	a := &model.Attempt{TimeStart: 10000}
	if _, ok := m.TimeLeftDisplay(a, 19000); ok {
		t.Fatal("countdown shown outside a 600s threshold")
	}
	if got, ok := m.TimeLeftDisplay(a, 19500); !ok || got != 500 {
		t.Fatalf("TimeLeftDisplay = (%d, %v), want (500, true)", got, ok)
	}
}

func TestPreviewAfterCloseHidesCountdown(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeClose: 20000}), Options{})
	a := &model.Attempt{TimeStart: 10000, Preview: true}
	if _, ok := m.TimeLeftDisplay(a, 20001); ok {
		t.Fatal("preview after close shows countdown")
	}
}

func TestTimeLimitCountdownAlwaysShown(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeLimit: 7200}), Options{})
	a := &model.Attempt{TimeStart: 1000}
	if got, ok := m.TimeLeftDisplay(a, 1000); !ok || got != 7200 {
		t.Fatalf("TimeLeftDisplay = (%d, %v), want (7200, true)", got, ok)
	}
}

func TestBothDatesDescription(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeOpen: 10000, TimeClose: 20000}), Options{})

	desc := m.Describe(9999)
	containsAll(t, desc, "not be available until", "will close on")
	if len(desc) != 2 {
		t.Errorf("before open: %d messages, want 2", len(desc))
	}
	if len(m.PreventAccess(9999)) == 0 {
		t.Error("access permitted before open")
	}

	desc = m.Describe(10000)
	containsAll(t, desc, "opened at", "will close on")
	if len(desc) != 2 {
		t.Errorf("while open: %d messages, want 2", len(desc))
	}
	if msgs := m.PreventAccess(10000); len(msgs) != 0 {
		t.Errorf("access blocked while open: %v", msgs)
	}

	desc = m.Describe(20001)
	containsAll(t, desc, "closed on")
	if len(desc) != 1 {
		t.Errorf("after close: %d messages, want 1", len(desc))
	}
	if len(m.PreventAccess(20001)) == 0 {
		t.Error("access permitted after close")
	}
}

func TestGracePeriodKeepsQuizAccessible(t *testing.T) {
	m := NewManager(policy(model.Quiz{
		TimeClose:       20000,
		GracePeriod:     1000,
		OverdueHandling: model.OverdueGracePeriod,
	}), Options{})

	for _, now := range []int64{20000, 20001, 21000} {
		if msgs := m.PreventAccess(now); len(msgs) != 0 {
			t.Errorf("now=%d: blocked with %v", now, msgs)
		}
	}
	if len(m.PreventAccess(21001)) == 0 {
		t.Error("now=21001: access still permitted")
	}
}

func TestEndTimeIsEarliestDeadline(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeClose: 20000, TimeLimit: 3600}), Options{})

	early := &model.Attempt{TimeStart: 10000}
	if end, ok := m.EndTime(early); !ok || end != 13600 {
		t.Errorf("EndTime = (%d, %v), want 13600", end, ok)
	}
	late := &model.Attempt{TimeStart: 19000}
	if end, ok := m.EndTime(late); !ok || end != 20000 {
		t.Errorf("EndTime = (%d, %v), want 20000", end, ok)
	}

	unlimited := NewManager(policy(model.Quiz{}), Options{})
	if _, ok := unlimited.EndTime(early); ok {
		t.Error("unlimited quiz reports an end time")
	}
}

func TestIgnoreTimeLimitsDropsLimit(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeLimit: 3600}), Options{IgnoreTimeLimits: true})
	if _, ok := m.EndTime(&model.Attempt{TimeStart: 1}); ok {
		t.Fatal("time limit still applied")
	}
}

func TestDueDateExtendsWhileOverdue(t *testing.T) {
	m := NewManager(policy(model.Quiz{TimeClose: 20000, GracePeriod: 500}), Options{})
	a := &model.Attempt{State: model.StateInProgress}
	if d, _ := m.DueDate(a); d != 20000 {
		t.Errorf("in progress due date = %d", d)
	}
	a.State = model.StateOverdue
	if d, _ := m.DueDate(a); d != 20500 {
		t.Errorf("overdue due date = %d", d)
	}
	a.State = model.StateFinished
	if _, ok := m.DueDate(a); ok {
		t.Error("finished attempt has a due date")
	}
}

func TestNumAttempts(t *testing.T) {
	m := NewManager(policy(model.Quiz{Attempts: 2}), Options{})
	if msgs := m.PreventNewAttempt(1, nil, 0); len(msgs) != 0 {
		t.Errorf("blocked after one attempt: %v", msgs)
	}
	msgs := m.PreventNewAttempt(2, nil, 0)
	containsAll(t, msgs, "No more attempts")
	if !m.IsFinished(2, nil, 0) {
		t.Error("IsFinished = false after using all attempts")
	}
}

func TestDelayBetweenAttempts(t *testing.T) {
	p := policy(model.Quiz{Delay1: 600, Delay2: 1200, TimeLimit: 300})
	last := &model.Attempt{TimeStart: 1000, TimeFinish: 1500}

	m := NewManager(p, Options{})
	// Finish is capped by start+limit = 1300.
	containsAll(t, m.PreventNewAttempt(1, last, 1800), "You must wait")
	if msgs := m.PreventNewAttempt(1, last, 1900); len(msgs) != 0 {
		t.Errorf("still blocked at 1900: %v", msgs)
	}
	containsAll(t, m.PreventNewAttempt(2, last, 2400), "You must wait")
	if msgs := m.PreventNewAttempt(2, last, 2500); len(msgs) != 0 {
		t.Errorf("still blocked at 2500: %v", msgs)
	}

	p.TimeClose = 1700
	closing := NewManager(p, Options{})
	containsAll(t, closing.PreventNewAttempt(1, last, 1600), "closes before")
	if !closing.IsFinished(1, last, 1600) {
		t.Error("IsFinished = false when the wait outlasts the close date")
	}
}

func TestDelaySilentWhenNoAttemptsLeft(t *testing.T) {
	m := NewManager(policy(model.Quiz{Delay1: 600, Attempts: 1}), Options{})
	last := &model.Attempt{TimeStart: 1000, TimeFinish: 1500}
	msgs := m.PreventNewAttempt(1, last, 1600)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "No more attempts") {
		t.Fatalf("messages = %v, want only the attempts message", msgs)
	}
}

type fakePasswordStore struct {
	verified map[int]bool
}

func (s *fakePasswordStore) MarkVerified(_ context.Context, _ uuid.UUID, userID int) error {
	s.verified[userID] = true
	return nil
}

func (s *fakePasswordStore) Forget(_ context.Context, _ uuid.UUID, userID int) error {
	delete(s.verified, userID)
	return nil
}

func TestPasswordRule(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	p := policy(model.Quiz{ID: uuid.New(), Password: string(hash)})
	p.ExtraPasswords = []string{"group-pass"}
	store := &fakePasswordStore{verified: map[int]bool{}}
	ctx := context.Background()

	m := NewManager(p, Options{UserID: 9, PasswordStore: store})
	containsAll(t, m.PreventAccess(0), "quiz password")

	if ok, _ := m.VerifyPassword(ctx, "wrong"); ok {
		t.Fatal("wrong password accepted")
	}
	if ok, err := m.VerifyPassword(ctx, "group-pass"); !ok || err != nil {
		t.Fatalf("extra password rejected: %v", err)
	}
	if msgs := m.PreventAccess(0); len(msgs) != 0 {
		t.Errorf("still blocked after verification: %v", msgs)
	}
	if !store.verified[9] {
		t.Error("verification not remembered")
	}

	fresh := NewManager(p, Options{UserID: 9, PasswordStore: store, PasswordVerified: true})
	if ok, _ := fresh.VerifyPassword(ctx, "secret"); !ok {
		t.Error("bcrypt password rejected")
	}
	if err := fresh.CurrentAttemptFinished(ctx); err != nil {
		t.Fatal(err)
	}
	if store.verified[9] {
		t.Error("verification survived the finished attempt")
	}
	if len(fresh.PreventAccess(0)) == 0 {
		t.Error("access permitted after verification was cleared")
	}
}

func TestAddressInSubnet(t *testing.T) {
	tests := []struct {
		addr, list string
		want       bool
	}{
		{"10.1.2.3", "10.0.0.0/8", true},
		{"11.1.2.3", "10.0.0.0/8", false},
		{"192.168.1.5", "192.168.1.5", true},
		{"192.168.1.50", "192.168.1.5", false},
		{"172.16.4.4", "172.16.", true},
		{"172.16.4.4", "172.16", true},
		{"172.160.4.4", "172.16", false},
		{"10.1.2.7", "10.1.2.3-10", true},
		{"10.1.2.11", "10.1.2.3-10", false},
		{"10.1.3.7", "10.1.2.3-10", false},
		{"8.8.8.8", " 1.1.1.1 , 8.8.8.0/24", true},
		{"2001:db8::1", "2001:db8::/32", true},
		{"not-an-ip", "0.0.0.0/0", false},
	}
	for _, tt := range tests {
		if got := AddressInSubnet(tt.addr, tt.list); got != tt.want {
			t.Errorf("AddressInSubnet(%q, %q) = %v, want %v", tt.addr, tt.list, got, tt.want)
		}
	}
}

func TestManagerUnionsMessages(t *testing.T) {
	p := policy(model.Quiz{
		TimeOpen: 10000,
		Password: "pw",
		Subnet:   "10.0.0.0/8",
		Attempts: 1,
	})
	m := NewManager(p, Options{RemoteIP: "192.168.0.1"})

	msgs := m.PreventAccess(5000)
	if len(msgs) != 3 {
		t.Fatalf("PreventAccess returned %d messages, want 3: %v", len(msgs), msgs)
	}
	all := append(msgs, m.PreventNewAttempt(1, nil, 5000)...)
	containsAll(t, all, "not currently available", "quiz password", "certain locations", "No more attempts")
}

func TestFormatDuration(t *testing.T) {
	tests := map[int64]string{
		0:     "0 secs",
		45:    "45 secs",
		60:    "1 min",
		5400:  "1 hour 30 mins",
		90061: "1 day 1 hour",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}
