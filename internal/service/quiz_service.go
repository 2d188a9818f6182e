package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/layout"
	"github.com/stemsi/exstem-quiz/internal/model"
)

var (
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrQuizHasAttempts = errors.New("quiz already has attempts")
)

// QuizService loads quiz definitions and runs quiz-wide maintenance.
type QuizService struct {
	tx  Transactor
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewQuizService creates a new QuizService. rdb may be nil to disable caching.
func NewQuizService(tx Transactor, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuizService {
	return &QuizService{
		tx:  tx,
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "quiz_service").Logger(),
	}
}

// cachedQuestion and friends keep the fields hidden from API responses when
// the definition goes through Redis.
type cachedQuestion struct {
	model.Question
	RightAnswer string `json:"right_answer"`
}

type cachedQuiz struct {
	model.Quiz
	Password string `json:"password"`
}

type cachedOverride struct {
	model.Override
	Password *string `json:"password,omitempty"`
}

type cachedPayload struct {
	Quiz       cachedQuiz               `json:"quiz"`
	Slots      []model.Slot             `json:"slots"`
	Sections   []model.Section          `json:"sections"`
	Questions  []cachedQuestion         `json:"questions"`
	Categories []model.QuestionCategory `json:"categories"`
}

// LoadStructure returns the quiz with its slots, sections, overrides and the
// questions its slots may use, from Redis when cached.
func (s *QuizService) LoadStructure(ctx context.Context, quizID uuid.UUID) (*QuizData, error) {
	if data, ok := s.fromCache(ctx, quizID); ok {
		return data, nil
	}

	data, err := s.loadFromDB(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, data)
	return data, nil
}

func (s *QuizService) loadFromDB(ctx context.Context, quizID uuid.UUID) (*QuizData, error) {
	st := s.tx.Store()
	data := &QuizData{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := st.GetQuiz(gctx, quizID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrQuizNotFound
			}
			return fmt.Errorf("get quiz: %w", err)
		}
		data.Quiz = *q
		return nil
	})
	g.Go(func() (err error) {
		data.Slots, err = st.ListSlots(gctx, quizID)
		return err
	})
	g.Go(func() (err error) {
		data.Sections, err = st.ListSections(gctx, quizID)
		return err
	})
	g.Go(func() (err error) {
		data.Overrides, err = st.ListOverrides(gctx, quizID)
		return err
	})
	g.Go(func() (err error) {
		data.Categories, err = st.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fixed, random []model.Question
	g, gctx = errgroup.WithContext(ctx)
	if ids := fixedQuestionIDs(data.Slots); len(ids) > 0 {
		g.Go(func() (err error) {
			fixed, err = st.ListQuestionsByIDs(gctx, ids)
			return err
		})
	}
	if cats := randomCategoryIDs(data.Slots, data.Categories); len(cats) > 0 {
		g.Go(func() (err error) {
			random, err = st.ListQuestionsInCategories(gctx, cats)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	seen := make(map[int64]bool, len(fixed)+len(random))
	for _, q := range append(fixed, random...) {
		if !seen[q.ID] {
			seen[q.ID] = true
			data.Questions = append(data.Questions, q)
		}
	}
	return data, nil
}

func (s *QuizService) fromCache(ctx context.Context, quizID uuid.UUID) (*QuizData, bool) {
	if s.rdb == nil {
		return nil, false
	}
	id := quizID.String()
	res, err := s.rdb.MGet(ctx, config.CacheKey.QuizPayloadKey(id), config.CacheKey.QuizOverridesKey(id)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("quiz_id", id).Msg("Quiz cache read failed")
		return nil, false
	}
	payloadRaw, ok1 := res[0].(string)
	overridesRaw, ok2 := res[1].(string)
	if !ok1 || !ok2 {
		return nil, false
	}

	var payload cachedPayload
	var overrides []cachedOverride
	if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(overridesRaw), &overrides); err != nil {
		return nil, false
	}

	data := &QuizData{
		Quiz:       payload.Quiz.Quiz,
		Slots:      payload.Slots,
		Sections:   payload.Sections,
		Categories: payload.Categories,
	}
	data.Quiz.Password = payload.Quiz.Password
	for _, q := range payload.Questions {
		mq := q.Question
		mq.RightAnswer = q.RightAnswer
		data.Questions = append(data.Questions, mq)
	}
	for _, o := range overrides {
		mo := o.Override
		mo.Password = o.Password
		data.Overrides = append(data.Overrides, mo)
	}
	return data, true
}

func (s *QuizService) toCache(ctx context.Context, data *QuizData) {
	if s.rdb == nil {
		return
	}
	payload := cachedPayload{
		Quiz:       cachedQuiz{Quiz: data.Quiz, Password: data.Quiz.Password},
		Slots:      data.Slots,
		Sections:   data.Sections,
		Categories: data.Categories,
	}
	for _, q := range data.Questions {
		payload.Questions = append(payload.Questions, cachedQuestion{Question: q, RightAnswer: q.RightAnswer})
	}
	overrides := make([]cachedOverride, 0, len(data.Overrides))
	for _, o := range data.Overrides {
		overrides = append(overrides, cachedOverride{Override: o, Password: o.Password})
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return
	}
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return
	}

	id := data.Quiz.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(id), payloadJSON, s.ttl)
	pipe.Set(ctx, config.CacheKey.QuizOverridesKey(id), overridesJSON, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", id).Msg("Quiz cache write failed")
	}
}

// Invalidate drops the cached definition of a quiz.
func (s *QuizService) Invalidate(ctx context.Context, quizID uuid.UUID) error {
	if s.rdb == nil {
		return nil
	}
	id := quizID.String()
	return s.rdb.Del(ctx, config.CacheKey.QuizPayloadKey(id), config.CacheKey.QuizOverridesKey(id)).Err()
}

// Reload reads the quiz from the database and refreshes the cache.
func (s *QuizService) Reload(ctx context.Context, quizID uuid.UUID) (*QuizData, error) {
	data, err := s.loadFromDB(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, data)
	return data, nil
}

// Repaginate rewrites slot pages to perPage questions each. Quizzes with
// attempts keep their pages, since every attempt's layout points at them.
func (s *QuizService) Repaginate(ctx context.Context, quizID uuid.UUID, perPage int) ([]model.Slot, error) {
	var out []model.Slot
	err := s.tx.InTx(ctx, func(st Store) error {
		n, err := st.CountQuizAttempts(ctx, quizID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if n > 0 {
			return ErrQuizHasAttempts
		}
		slots, err := st.ListSlots(ctx, quizID)
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		out, err = layout.Repaginate(slots, perPage)
		if err != nil {
			return err
		}
		return st.UpdateSlotPages(ctx, quizID, out)
	})
	if err != nil {
		return nil, err
	}
	if err := s.Invalidate(ctx, quizID); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Cache invalidation failed")
	}
	s.log.Info().Str("quiz_id", quizID.String()).Int("per_page", perPage).Msg("Quiz repaginated")
	return out, nil
}

// PurgeAttempts deletes every attempt and grade of a quiz.
func (s *QuizService) PurgeAttempts(ctx context.Context, quizID uuid.UUID) (int64, error) {
	var n int64
	err := s.tx.InTx(ctx, func(st Store) error {
		var err error
		if n, err = st.DeleteQuizAttempts(ctx, quizID); err != nil {
			return fmt.Errorf("delete attempts: %w", err)
		}
		return st.DeleteQuizGrades(ctx, quizID)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("quiz_id", quizID.String()).Int64("attempts", n).Msg("Quiz attempts purged")
	return n, nil
}

// SetPassword stores a new quiz password, already hashed or plain.
func (s *QuizService) SetPassword(ctx context.Context, quizID uuid.UUID, password string, now int64) error {
	if err := s.tx.Store().UpdateQuizPassword(ctx, quizID, password, now); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuizNotFound
		}
		return err
	}
	return s.Invalidate(ctx, quizID)
}
