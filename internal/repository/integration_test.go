package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// These tests need a migrated database:
//
//	EXSTEM_QUIZ_INTEGRATION=1 DATABASE_URL=postgres://... go test ./internal/repository
//
// Each runs inside a transaction that is rolled back.
func withTestTx(t *testing.T) (context.Context, pgx.Tx) {
	t.Helper()
	if os.Getenv("EXSTEM_QUIZ_INTEGRATION") != "1" {
		t.Skip("set EXSTEM_QUIZ_INTEGRATION=1 to run against Postgres")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(ctx) })
	return ctx, tx
}

func seedQuiz(t *testing.T, ctx context.Context, tx pgx.Tx) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	if err := tx.QueryRow(ctx, `INSERT INTO quizzes (name) VALUES ('integration') RETURNING id`).Scan(&id); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	return id
}

func seedAttempt(t *testing.T, ctx context.Context, tx pgx.Tx, st *Store, quizID uuid.UUID, userID, number int, checkAt *int64) *model.Attempt {
	t.Helper()
	usageID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO question_usages (id, behaviour) VALUES ($1, 'deferredfeedback')`, usageID); err != nil {
		t.Fatalf("insert usage: %v", err)
	}
	a := &model.Attempt{
		ID:             uuid.New(),
		QuizID:         quizID,
		UserID:         userID,
		Attempt:        number,
		UsageID:        usageID,
		Layout:         "1,0",
		State:          model.StateInProgress,
		TimeStart:      100,
		TimeModified:   100,
		TimeCheckState: checkAt,
	}
	if err := st.InsertAttempt(ctx, a); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}
	return a
}

func int64p(v int64) *int64 { return &v }

func TestListOverdueResumesAfterCursor(t *testing.T) {
	ctx, tx := withTestTx(t)
	st := NewStore(tx)
	quizID := seedQuiz(t, ctx, tx)

	want := map[uuid.UUID]bool{}
	for user := 1; user <= 3; user++ {
		want[seedAttempt(t, ctx, tx, st, quizID, user, 1, int64p(500)).ID] = true
	}
	seedAttempt(t, ctx, tx, st, quizID, 4, 1, int64p(5000))
	seedAttempt(t, ctx, tx, st, quizID, 5, 1, nil)

	got := map[uuid.UUID]int{}
	var after *model.AttemptCursor
	for {
		batch, err := st.ListOverdue(ctx, 1000, after, 2)
		if err != nil {
			t.Fatalf("ListOverdue: %v", err)
		}
		for _, a := range batch {
			if a.QuizID == quizID {
				got[a.ID]++
			}
		}
		if len(batch) < 2 {
			break
		}
		c := batch[len(batch)-1].Cursor()
		after = &c
	}

	if len(got) != len(want) {
		t.Fatalf("listed %d attempts of the quiz, want %d", len(got), len(want))
	}
	for id, n := range got {
		if !want[id] || n != 1 {
			t.Errorf("attempt %s listed %d times (wanted: %v)", id, n, want[id])
		}
	}
}

func TestMonitorCounts(t *testing.T) {
	ctx, tx := withTestTx(t)
	st := NewStore(tx)
	mon := NewMonitorRepository(tx)
	quizID := seedQuiz(t, ctx, tx)

	open := seedAttempt(t, ctx, tx, st, quizID, 1, 1, nil)
	done := seedAttempt(t, ctx, tx, st, quizID, 2, 1, nil)
	done.State = model.StateFinished
	done.TimeFinish = 200
	if err := st.UpdateAttempt(ctx, done); err != nil {
		t.Fatalf("UpdateAttempt: %v", err)
	}

	counts, err := mon.GetStateCounts(ctx, quizID)
	if err != nil {
		t.Fatalf("GetStateCounts: %v", err)
	}
	if counts[model.StateInProgress] != 1 || counts[model.StateFinished] != 1 {
		t.Errorf("counts = %v", counts)
	}

	openList, err := mon.ListOpenAttempts(ctx, quizID)
	if err != nil {
		t.Fatalf("ListOpenAttempts: %v", err)
	}
	if len(openList) != 1 || openList[0].ID != open.ID {
		t.Errorf("open = %+v", openList)
	}
}

func TestInsertAttemptRejectsDuplicateNumber(t *testing.T) {
	ctx, tx := withTestTx(t)
	st := NewStore(tx)
	quizID := seedQuiz(t, ctx, tx)
	seedAttempt(t, ctx, tx, st, quizID, 1, 1, nil)

	usageID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO question_usages (id, behaviour) VALUES ($1, 'deferredfeedback')`, usageID); err != nil {
		t.Fatalf("insert usage: %v", err)
	}
	dup := &model.Attempt{ID: uuid.New(), QuizID: quizID, UserID: 1, Attempt: 1, UsageID: usageID,
		Layout: "1,0", State: model.StateInProgress, TimeStart: 100, TimeModified: 100}
	if err := st.InsertAttempt(ctx, dup); !errors.Is(err, ErrDuplicateAttempt) {
		t.Fatalf("err = %v, want ErrDuplicateAttempt", err)
	}
}

func TestAttemptKeepsTimeLimitExemption(t *testing.T) {
	ctx, tx := withTestTx(t)
	st := NewStore(tx)
	quizID := seedQuiz(t, ctx, tx)

	usageID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO question_usages (id, behaviour) VALUES ($1, 'deferredfeedback')`, usageID); err != nil {
		t.Fatalf("insert usage: %v", err)
	}
	a := &model.Attempt{
		ID:               uuid.New(),
		QuizID:           quizID,
		UserID:           1,
		Attempt:          1,
		UsageID:          usageID,
		Layout:           "1,0",
		State:            model.StateInProgress,
		TimeStart:        100,
		TimeModified:     100,
		TimeCheckState:   int64p(900),
		IgnoreTimeLimits: true,
	}
	if err := st.InsertAttempt(ctx, a); err != nil {
		t.Fatalf("InsertAttempt: %v", err)
	}
	plain := seedAttempt(t, ctx, tx, st, quizID, 2, 1, int64p(900))

	got, err := st.GetAttemptForUpdate(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttemptForUpdate: %v", err)
	}
	if !got.IgnoreTimeLimits {
		t.Error("exemption lost on read")
	}
	got, err = st.GetAttempt(ctx, plain.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.IgnoreTimeLimits {
		t.Error("attempt without exemption reads as exempt")
	}
}
