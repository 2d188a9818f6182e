package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// fakeAttempts serves ListOverdue from an ordered set of due attempts;
// handled ones drop out, failed ones stay due.
type fakeAttempts struct {
	mu      sync.Mutex
	due     []model.Attempt
	fail    map[uuid.UUID]bool
	panics  map[uuid.UUID]bool
	cutoffs []int64
	done    map[uuid.UUID]bool
	handled []uuid.UUID
}

func (f *fakeAttempts) ListOverdue(ctx context.Context, cutoff int64, after *model.AttemptCursor, limit int) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	start := 0
	if after != nil {
		for i, a := range f.due {
			if a.ID == after.ID {
				start = i + 1
			}
		}
	}
	var out []model.Attempt
	for _, a := range f.due[start:] {
		if len(out) == limit {
			break
		}
		if f.done[a.ID] {
			continue
		}
		if a.TimeCheckState != nil && *a.TimeCheckState <= cutoff {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttempts) HandleIfTimeExpired(ctx context.Context, id uuid.UUID, data *service.QuizData, now, cutoff int64) (service.SweepResult, error) {
	if f.panics[id] {
		panic("boom")
	}
	if f.fail[id] {
		return service.SweepResult{}, errors.New("locked")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.due {
		if a.ID == id && !f.done[id] {
			if a.QuizID != data.Quiz.ID {
				return service.SweepResult{}, errors.New("wrong quiz")
			}
			if f.done == nil {
				f.done = make(map[uuid.UUID]bool)
			}
			f.done[id] = true
			f.handled = append(f.handled, id)
			return service.SweepResult{From: a.State, To: model.StateFinished}, nil
		}
	}
	return service.SweepResult{Skipped: true}, nil
}

type fakeQuizzes struct {
	broken map[uuid.UUID]bool
	loads  []uuid.UUID
}

func (f *fakeQuizzes) Reload(ctx context.Context, id uuid.UUID) (*service.QuizData, error) {
	f.loads = append(f.loads, id)
	if f.broken[id] {
		return nil, errors.New("quiz gone")
	}
	return &service.QuizData{Quiz: model.Quiz{ID: id}}, nil
}

func dueAttempt(quiz uuid.UUID, user int, check int64) model.Attempt {
	return model.Attempt{ID: uuid.New(), QuizID: quiz, UserID: user, State: model.StateInProgress, TimeCheckState: &check}
}

func sortedByQuiz(list []model.Attempt) []model.Attempt {
	sort.SliceStable(list, func(i, j int) bool { return list[i].QuizID.String() < list[j].QuizID.String() })
	return list
}

func TestOverdueSweeperRun(t *testing.T) {
	quizA, quizB := uuid.New(), uuid.New()
	early := dueAttempt(quizA, 1, 900)
	notYet := dueAttempt(quizA, 2, 990)
	other := dueAttempt(quizB, 3, 800)
	attempts := &fakeAttempts{due: sortedByQuiz([]model.Attempt{early, notYet, other})}
	quizzes := &fakeQuizzes{}

	s := NewOverdueSweeper(attempts, quizzes, attempts, 60*time.Second, zerolog.Nop())
	stats, err := s.Run(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if attempts.cutoffs[0] != 940 {
		t.Errorf("cutoff = %d, want 940", attempts.cutoffs[0])
	}
	if stats.Processed != 2 || stats.Failures != 0 {
		t.Errorf("stats = %+v, want 2 processed", stats)
	}
	if stats.Quizzes != 2 || len(quizzes.loads) != 2 {
		t.Errorf("quizzes = %d loads = %d, want 2 and 2", stats.Quizzes, len(quizzes.loads))
	}
	if stats.States[string(model.StateFinished)] != 2 {
		t.Errorf("states = %v", stats.States)
	}
	for _, id := range attempts.handled {
		if id == notYet.ID {
			t.Errorf("attempt inside the margin was swept")
		}
	}
}

func TestOverdueSweeperContinuesPastFailures(t *testing.T) {
	quizA, quizB, quizC := uuid.New(), uuid.New(), uuid.New()
	bad := dueAttempt(quizA, 1, 100)
	crash := dueAttempt(quizA, 2, 100)
	good := dueAttempt(quizA, 3, 100)
	orphan := dueAttempt(quizB, 4, 100)
	last := dueAttempt(quizC, 5, 100)

	attempts := &fakeAttempts{
		due:    []model.Attempt{bad, crash, good, orphan, last},
		fail:   map[uuid.UUID]bool{bad.ID: true},
		panics: map[uuid.UUID]bool{crash.ID: true},
	}
	quizzes := &fakeQuizzes{broken: map[uuid.UUID]bool{quizB: true}}

	s := NewOverdueSweeper(attempts, quizzes, attempts, 0, zerolog.Nop())
	s.batch = 2
	stats, err := s.Run(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Processed != 2 {
		t.Errorf("processed = %d, want 2", stats.Processed)
	}
	if stats.Quizzes != 3 {
		t.Errorf("quizzes = %d, want 3", stats.Quizzes)
	}
	if stats.Failures != 3 {
		t.Errorf("failures = %d, want 3", stats.Failures)
	}
	if len(attempts.handled) != 2 || attempts.handled[0] != good.ID || attempts.handled[1] != last.ID {
		t.Errorf("handled = %v", attempts.handled)
	}
}
