package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

// MonitorReader is the data the quiz monitor reads.
type MonitorReader interface {
	GetStateCounts(ctx context.Context, quizID uuid.UUID) (map[model.AttemptState]int64, error)
	ListOpenAttempts(ctx context.Context, quizID uuid.UUID) ([]model.Attempt, error)
	GetAnsweredCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error)
	GetEventCounts(ctx context.Context, quizID uuid.UUID, since int64) (map[string]int64, error)
}

var _ MonitorReader = (*repository.MonitorRepository)(nil)

// MonitorWindow is how far back the event counts reach.
const MonitorWindow = 3600

// MonitorService orchestrates live quiz monitoring.
type MonitorService struct {
	monitorRepo MonitorReader
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo MonitorReader) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// OpenAttemptProgress is one open attempt and how far along it is.
type OpenAttemptProgress struct {
	AttemptID      uuid.UUID          `json:"attempt_id"`
	UserID         int                `json:"user_id"`
	Attempt        int                `json:"attempt"`
	State          model.AttemptState `json:"state"`
	TimeStart      int64              `json:"time_start"`
	TimeCheckState *int64             `json:"time_check_state,omitempty"`
	Answered       int64              `json:"answered"`
}

// QuizProgressSnapshot is the monitor view of a quiz.
type QuizProgressSnapshot struct {
	States map[model.AttemptState]int64 `json:"states"`
	Open   []OpenAttemptProgress        `json:"open"`
	// Events in the last MonitorWindow seconds, by name.
	Events map[string]int64 `json:"events"`
}

// GetQuizProgress returns attempt counts, open attempt progress and recent
// event counts. The three reads run in parallel; event counts are best-effort.
func (s *MonitorService) GetQuizProgress(ctx context.Context, quizID uuid.UUID, now int64) (*QuizProgressSnapshot, error) {
	snapshot := &QuizProgressSnapshot{
		States: make(map[model.AttemptState]int64),
		Open:   []OpenAttemptProgress{},
		Events: make(map[string]int64),
	}

	var (
		states      map[model.AttemptState]int64
		open        []model.Attempt
		answered    map[uuid.UUID]int64
		events      map[string]int64
		statesErr   error
		openErr     error
		answeredErr error
		eventsErr   error
		wg          sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		states, statesErr = s.monitorRepo.GetStateCounts(ctx, quizID)
	}()
	go func() {
		defer wg.Done()
		open, openErr = s.monitorRepo.ListOpenAttempts(ctx, quizID)
		if openErr == nil {
			answered, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, quizID)
		}
	}()
	go func() {
		defer wg.Done()
		events, eventsErr = s.monitorRepo.GetEventCounts(ctx, quizID, now-MonitorWindow)
	}()
	wg.Wait()

	for _, err := range []error{statesErr, openErr, answeredErr} {
		if err != nil {
			return nil, err
		}
	}

	for k, v := range states {
		snapshot.States[k] = v
	}
	for _, a := range open {
		snapshot.Open = append(snapshot.Open, OpenAttemptProgress{
			AttemptID:      a.ID,
			UserID:         a.UserID,
			Attempt:        a.Attempt,
			State:          a.State,
			TimeStart:      a.TimeStart,
			TimeCheckState: a.TimeCheckState,
			Answered:       answered[a.ID],
		})
	}
	if eventsErr == nil {
		for k, v := range events {
			snapshot.Events[k] = v
		}
	}
	return snapshot, nil
}
