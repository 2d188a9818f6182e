package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

type gradeKey struct {
	quiz uuid.UUID
	user int
}

type fakeState struct {
	quizzes    map[uuid.UUID]model.Quiz
	slots      map[uuid.UUID][]model.Slot
	sections   map[uuid.UUID][]model.Section
	overrides  map[uuid.UUID][]model.Override
	groups     map[int][]int
	categories []model.QuestionCategory
	questions  map[int64]model.Question
	usages     map[uuid.UUID]*questionusage.Usage
	attempts   map[uuid.UUID]model.Attempt
	grades     map[gradeKey]model.QuizGrade
}

// fakeStore is an in-memory Store. InTx restores the previous state when
// fn fails, which is all the rollback the tests need.
type fakeStore struct {
	mu sync.Mutex
	fakeState
	txCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{fakeState: fakeState{
		quizzes:   make(map[uuid.UUID]model.Quiz),
		slots:     make(map[uuid.UUID][]model.Slot),
		sections:  make(map[uuid.UUID][]model.Section),
		overrides: make(map[uuid.UUID][]model.Override),
		groups:    make(map[int][]int),
		questions: make(map[int64]model.Question),
		usages:    make(map[uuid.UUID]*questionusage.Usage),
		attempts:  make(map[uuid.UUID]model.Attempt),
		grades:    make(map[gradeKey]model.QuizGrade),
	}}
}

func (f *fakeStore) Store() Store { return f }

func (f *fakeStore) InTx(ctx context.Context, fn func(st Store) error) error {
	f.mu.Lock()
	snap := f.fakeState.clone()
	f.txCount++
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.fakeState = snap
		f.mu.Unlock()
		return err
	}
	return nil
}

func (s fakeState) clone() fakeState {
	out := s
	out.attempts = make(map[uuid.UUID]model.Attempt, len(s.attempts))
	for k, v := range s.attempts {
		out.attempts[k] = copyAttempt(v)
	}
	out.usages = make(map[uuid.UUID]*questionusage.Usage, len(s.usages))
	for k, v := range s.usages {
		out.usages[k] = copyUsage(v)
	}
	out.grades = make(map[gradeKey]model.QuizGrade, len(s.grades))
	for k, v := range s.grades {
		out.grades[k] = v
	}
	out.slots = make(map[uuid.UUID][]model.Slot, len(s.slots))
	for k, v := range s.slots {
		out.slots[k] = append([]model.Slot(nil), v...)
	}
	return out
}

func copyAttempt(a model.Attempt) model.Attempt {
	if a.TimeCheckState != nil {
		v := *a.TimeCheckState
		a.TimeCheckState = &v
	}
	if a.SumGrades != nil {
		v := *a.SumGrades
		a.SumGrades = &v
	}
	return a
}

func copyUsage(u *questionusage.Usage) *questionusage.Usage {
	out := &questionusage.Usage{ID: u.ID, Behaviour: u.Behaviour}
	for _, qa := range u.Attempts {
		c := *qa
		if qa.Fraction != nil {
			v := *qa.Fraction
			c.Fraction = &v
		}
		if qa.Metadata != nil {
			c.Metadata = make(map[string]string, len(qa.Metadata))
			for k, v := range qa.Metadata {
				c.Metadata[k] = v
			}
		}
		out.Attempts = append(out.Attempts, &c)
	}
	return out
}

func (f *fakeStore) GetQuiz(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &q, nil
}

func (f *fakeStore) UpdateQuizPassword(_ context.Context, id uuid.UUID, password string, now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quizzes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	q.Password = password
	q.TimeModified = now
	f.quizzes[id] = q
	return nil
}

func (f *fakeStore) ListSlots(_ context.Context, quizID uuid.UUID) ([]model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Slot(nil), f.slots[quizID]...), nil
}

func (f *fakeStore) ListSections(_ context.Context, quizID uuid.UUID) ([]model.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Section(nil), f.sections[quizID]...), nil
}

func (f *fakeStore) UpdateSlotPages(_ context.Context, quizID uuid.UUID, slots []model.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[quizID] = append([]model.Slot(nil), slots...)
	return nil
}

func (f *fakeStore) ListOverrides(_ context.Context, quizID uuid.UUID) ([]model.Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Override(nil), f.overrides[quizID]...), nil
}

func (f *fakeStore) ListUserGroups(_ context.Context, userID int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.groups[userID]...), nil
}

func (f *fakeStore) ListCategories(context.Context) ([]model.QuestionCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QuestionCategory(nil), f.categories...), nil
}

func (f *fakeStore) ListQuestionsByIDs(_ context.Context, ids []int64) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Question
	for _, id := range ids {
		if q, ok := f.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) ListQuestionsInCategories(_ context.Context, categoryIDs []int64) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[int64]bool, len(categoryIDs))
	for _, c := range categoryIDs {
		want[c] = true
	}
	var out []model.Question
	for _, q := range f.questions {
		if want[q.CategoryID] {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetUsage(_ context.Context, id uuid.UUID) (*questionusage.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.usages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyUsage(u), nil
}

func (f *fakeStore) SaveUsage(_ context.Context, u *questionusage.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usages[u.ID] = copyUsage(u)
	return nil
}

func (f *fakeStore) DeleteUsage(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.usages, id)
	return nil
}

func (f *fakeStore) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := copyAttempt(a)
	return &c, nil
}

func (f *fakeStore) GetAttemptForUpdate(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return f.GetAttempt(ctx, id)
}

func (f *fakeStore) sortedAttempts(keep func(model.Attempt) bool) []model.Attempt {
	var out []model.Attempt
	for _, a := range f.attempts {
		if keep(a) {
			out = append(out, copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempt != out[j].Attempt {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].TimeStart < out[j].TimeStart
	})
	return out
}

func (f *fakeStore) GetUnfinishedAttempt(_ context.Context, quizID uuid.UUID, userID int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	open := f.sortedAttempts(func(a model.Attempt) bool {
		return a.QuizID == quizID && a.UserID == userID && !a.IsFinished()
	})
	if len(open) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &open[len(open)-1], nil
}

func (f *fakeStore) ListUserAttempts(_ context.Context, quizID uuid.UUID, userID int) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedAttempts(func(a model.Attempt) bool {
		return a.QuizID == quizID && a.UserID == userID
	}), nil
}

func (f *fakeStore) ListOverdue(_ context.Context, cutoff int64, after *model.AttemptCursor, limit int) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sortedAttempts(func(a model.Attempt) bool {
		return !a.IsFinished() && a.TimeCheckState != nil && *a.TimeCheckState <= cutoff
	})
	sort.SliceStable(out, func(i, j int) bool { return cursorLess(out[i].Cursor(), out[j].Cursor()) })
	if after != nil {
		i := 0
		for i < len(out) && !cursorLess(*after, out[i].Cursor()) {
			i++
		}
		out = out[i:]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cursorLess(a, b model.AttemptCursor) bool {
	if a.QuizID != b.QuizID {
		return a.QuizID.String() < b.QuizID.String()
	}
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.ID.String() < b.ID.String()
}

func (f *fakeStore) CountQuizAttempts(_ context.Context, quizID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) InsertAttempt(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !a.Preview {
		for _, o := range f.attempts {
			if !o.Preview && o.QuizID == a.QuizID && o.UserID == a.UserID && o.Attempt == a.Attempt {
				return fmt.Errorf("insert: %w", repository.ErrDuplicateAttempt)
			}
		}
	}
	f.attempts[a.ID] = copyAttempt(*a)
	return nil
}

func (f *fakeStore) UpdateAttempt(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attempts[a.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.attempts[a.ID] = copyAttempt(*a)
	return nil
}

func (f *fakeStore) UpdateTimeCheckState(_ context.Context, id uuid.UUID, ts *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.TimeCheckState = ts
	f.attempts[id] = copyAttempt(a)
	return nil
}

func (f *fakeStore) DeleteAttempt(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(f.attempts, id)
	delete(f.usages, a.UsageID)
	return nil
}

func (f *fakeStore) DeleteQuizAttempts(_ context.Context, quizID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, a := range f.attempts {
		if a.QuizID == quizID {
			delete(f.attempts, id)
			delete(f.usages, a.UsageID)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) LockUserQuiz(context.Context, uuid.UUID, int) error { return nil }

func (f *fakeStore) GetGrade(_ context.Context, quizID uuid.UUID, userID int) (*model.QuizGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grades[gradeKey{quizID, userID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &g, nil
}

func (f *fakeStore) UpsertGrade(_ context.Context, g *model.QuizGrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grades[gradeKey{g.QuizID, g.UserID}] = *g
	return nil
}

func (f *fakeStore) DeleteGrade(_ context.Context, quizID uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grades, gradeKey{quizID, userID})
	return nil
}

func (f *fakeStore) DeleteQuizGrades(_ context.Context, quizID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.grades {
		if k.quiz == quizID {
			delete(f.grades, k)
		}
	}
	return nil
}

// attempt returns the stored copy of an attempt.
func (f *fakeStore) attempt(id uuid.UUID) (model.Attempt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	return a, ok
}

type fakeSink struct {
	mu            sync.Mutex
	events        []model.Event
	notifications []model.Notification
}

func (s *fakeSink) Publish(_ context.Context, events []model.Event, notifications []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	s.notifications = append(s.notifications, notifications...)
	return nil
}

func (s *fakeSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name
	}
	return out
}

type fakeFlags struct {
	mu       sync.Mutex
	verified map[int]bool
}

func (f *fakeFlags) MarkVerified(_ context.Context, _ uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verified == nil {
		f.verified = make(map[int]bool)
	}
	f.verified[userID] = true
	return nil
}

func (f *fakeFlags) Forget(_ context.Context, _ uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.verified, userID)
	return nil
}

func (f *fakeFlags) IsVerified(_ context.Context, _ uuid.UUID, userID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified[userID], nil
}
