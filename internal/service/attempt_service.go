package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/attempt"
	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/layout"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNotYourAttempt  = errors.New("attempt belongs to another user")
	ErrConcurrentStart = errors.New("another attempt was started at the same time")
	ErrNotPreview      = errors.New("only preview attempts can be deleted")
)

// AttemptService drives attempts through their lifecycle. Every mutation
// locks the attempt row, saves the attempt and its usage in one transaction,
// recomputes the grade in that transaction and hands events to the sink once
// it has committed.
type AttemptService struct {
	tx      Transactor
	quizzes *QuizService
	access  *AccessService
	grades  *GradeService
	sink    EventSink
	cfg     attempt.Config
	clock   clock.Clock
	newRand func() *rand.Rand
	log     zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	tx Transactor,
	quizzes *QuizService,
	accessSvc *AccessService,
	grades *GradeService,
	sink EventSink,
	cfg attempt.Config,
	clk clock.Clock,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		tx:      tx,
		quizzes: quizzes,
		access:  accessSvc,
		grades:  grades,
		sink:    sink,
		cfg:     cfg,
		clock:   clk,
		newRand: func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
		log:     log.With().Str("component", "attempt_service").Logger(),
	}
}

// AttemptConfig reads the attempt tolerances from the environment config.
func AttemptConfig(cfg *config.Config) attempt.Config {
	c := attempt.DefaultConfig()
	if cfg.MinTimeToContinue > 0 {
		c.MinTimeToContinue = int64(cfg.MinTimeToContinue / time.Second)
	}
	if cfg.SweepSafetyMargin > 0 {
		c.GracePeriodMin = int64(cfg.SweepSafetyMargin / time.Second)
	}
	if cfg.InfoItemLabel != "" {
		c.InfoLabel = cfg.InfoItemLabel
	}
	return c
}

// AttemptView is an attempt as shown to its owner.
type AttemptView struct {
	Attempt   *model.Attempt     `json:"attempt"`
	Page      int                `json:"page"`
	NumPages  int                `json:"num_pages"`
	LastPage  bool               `json:"last_page"`
	Slots     []attempt.SlotView `json:"slots"`
	TimeLeft  *int64             `json:"time_left,omitempty"`
	DueDate   *int64             `json:"due_date,omitempty"`
	Continued bool               `json:"continued,omitempty"`
}

// ProcessRequest is an interactive submission.
type ProcessRequest struct {
	Actions []questionusage.Action
	Finish  bool
	// TimeUp is the client's belief that the timer ran out.
	TimeUp bool
	// Page, when set, is where the user navigates next.
	Page *int
}

// session is one loaded, locked attempt inside a transaction.
type session struct {
	st   Store
	data *QuizData
	a    *attempt.Attempt
	from model.AttemptState
	now  int64

	// Collected for after commit.
	events        []model.Event
	notifications []model.Notification
	finished      bool
}

func (sess *session) event(name string, data map[string]string) {
	sess.events = append(sess.events, newEvent(name, sess.a.Record(), sess.now, true, data))
}

func newEvent(name string, rec *model.Attempt, now int64, online bool, data map[string]string) model.Event {
	return model.Event{
		ID:        uuid.New(),
		Name:      name,
		AttemptID: rec.ID,
		QuizID:    rec.QuizID,
		UserID:    rec.UserID,
		Time:      now,
		Online:    online,
		Data:      data,
	}
}

// StartOrContinue returns the actor's unfinished attempt, or starts a new one
// when there is none. Preview attempts need quiz:preview, ignore the access
// denials and replace the actor's earlier previews.
func (s *AttemptService) StartOrContinue(ctx context.Context, quizID uuid.UUID, actor Actor, preview bool) (*AttemptView, error) {
	if preview && !actor.Can(model.PermissionQuizPreview) {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, model.PermissionQuizPreview)
	}
	if !preview && !actor.Can(model.PermissionQuizAttempt) {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, model.PermissionQuizAttempt)
	}
	data, err := s.quizzes.LoadStructure(ctx, quizID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Unix()

	// An unfinished attempt is checked against its deadline in a transaction
	// of its own, so that closing it sticks even if no new attempt may start.
	var current *session
	err = s.tx.InTx(ctx, func(st Store) error {
		if err := st.LockUserQuiz(ctx, quizID, actor.UserID); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		unfinished, err := st.GetUnfinishedAttempt(ctx, quizID, actor.UserID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return fmt.Errorf("get unfinished attempt: %w", err)
		}
		rules, err := s.access.Rules(ctx, st, data, actor)
		if err != nil {
			return err
		}
		if current, err = s.open(ctx, st, data, rules, unfinished, now); err != nil {
			return err
		}
		if err := current.a.HandleIfTimeExpired(now, true); err != nil {
			return err
		}
		return s.persist(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	if current != nil {
		s.finish(ctx, current)
		rec := current.a.Record()
		if !rec.IsFinished() {
			if !rec.Preview {
				if err := access.Denied(current.a.Rules().PreventAccess(now)); err != nil {
					return nil, err
				}
			}
			view, err := s.view(current, rec.CurrentPage)
			if err != nil {
				return nil, err
			}
			view.Continued = true
			return view, nil
		}
	}

	var sess *session
	err = s.tx.InTx(ctx, func(st Store) error {
		if err := st.LockUserQuiz(ctx, quizID, actor.UserID); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		if _, err := st.GetUnfinishedAttempt(ctx, quizID, actor.UserID); err == nil {
			return ErrConcurrentStart
		} else if !isNoRows(err) {
			return fmt.Errorf("get unfinished attempt: %w", err)
		}
		rules, err := s.access.Rules(ctx, st, data, actor)
		if err != nil {
			return err
		}
		sess, err = s.create(ctx, st, data, rules, actor, preview, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, sess)
	return s.view(sess, sess.a.Record().CurrentPage)
}

func (s *AttemptService) create(ctx context.Context, st Store, data *QuizData, rules *access.Manager, actor Actor, preview bool, now int64) (*session, error) {
	all, err := st.ListUserAttempts(ctx, data.Quiz.ID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var counted []model.Attempt
	for _, a := range all {
		if a.Preview {
			if preview {
				if err := st.DeleteAttempt(ctx, a.ID); err != nil {
					return nil, fmt.Errorf("delete old preview: %w", err)
				}
			}
			continue
		}
		counted = append(counted, a)
	}
	var last *model.Attempt
	if len(counted) > 0 {
		last = &counted[len(counted)-1]
	}

	if !preview {
		msgs := append(rules.PreventAccess(now), rules.PreventNewAttempt(len(counted), last, now)...)
		if err := access.Denied(msgs); err != nil {
			return nil, err
		}
	}

	used := make(map[int64]int)
	var prior []*questionusage.Usage
	var lastUsage *questionusage.Usage
	for i := range counted {
		u, err := st.GetUsage(ctx, counted[i].UsageID)
		if err != nil {
			return nil, fmt.Errorf("load usage of attempt %d: %w", counted[i].Attempt, err)
		}
		prior = append(prior, u)
		for _, id := range u.QuestionIDs() {
			used[id]++
		}
		if &counted[i] == last {
			lastUsage = u
		}
	}

	bank := data.Bank()
	if data.Quiz.AttemptOnLast && lastUsage != nil {
		extra, err := st.ListQuestionsByIDs(ctx, lastUsage.QuestionIDs())
		if err != nil {
			return nil, fmt.Errorf("load questions of last attempt: %w", err)
		}
		bank = data.BankWith(extra)
	}

	a, err := attempt.Create(attempt.CreateParams{
		Rules:     rules,
		Slots:     data.Slots,
		Sections:  data.Sections,
		Bank:      bank,
		UserID:    actor.UserID,
		Number:    len(counted) + 1,
		Preview:   preview,
		Now:       now,
		Last:      last,
		LastUsage: lastUsage,
		Used:      used,
		Prior:     prior,
		Rand:      s.newRand(),
		Config:    s.cfg,
	})
	if err != nil {
		return nil, err
	}

	rec := a.Record()
	rec.IgnoreTimeLimits = actor.Can(model.PermissionQuizIgnoreTimeLimits)
	if err := st.SaveUsage(ctx, a.Usage()); err != nil {
		return nil, fmt.Errorf("save usage: %w", err)
	}
	if err := st.InsertAttempt(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			return nil, ErrConcurrentStart
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	sess := &session{st: st, data: data, a: a, from: rec.State, now: now}
	if err := s.applyEffects(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("attempt_id", rec.ID.String()).
		Str("quiz_id", rec.QuizID.String()).
		Int("user_id", rec.UserID).
		Int("attempt", rec.Attempt).
		Bool("preview", rec.Preview).
		Msg("Attempt started")
	return sess, nil
}

// CurrentPage asks View for the page the attempt is on, or the summary once
// it is closed.
const CurrentPage = -2

// View checks the deadline, moves to page and returns it. Closed attempts
// are shown for review, which is recorded as an event.
func (s *AttemptService) View(ctx context.Context, attemptID uuid.UUID, actor Actor, page int) (*AttemptView, error) {
	sess, err := s.mutate(ctx, attemptID, actor, func(sess *session) error {
		a := sess.a
		if !a.Record().IsFinished() {
			if err := a.HandleIfTimeExpired(sess.now, true); err != nil {
				return err
			}
		}
		if page == CurrentPage {
			page = a.Record().CurrentPage
			if a.Record().IsFinished() {
				page = layout.SummaryPage
			}
		}
		if a.Record().IsFinished() {
			sess.event(model.EventAttemptReviewed, map[string]string{"page": strconv.Itoa(page)})
			return nil
		}
		if !a.Record().Preview {
			if err := access.Denied(a.Rules().PreventAccess(sess.now)); err != nil {
				return err
			}
		}
		if !a.CheckPageAccess(page, true) {
			return fmt.Errorf("%w: page %d", attempt.ErrPageNotAccessible, page)
		}
		return a.SetCurrentPage(page)
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess, page)
}

// Autosave stores draft responses.
func (s *AttemptService) Autosave(ctx context.Context, attemptID uuid.UUID, actor Actor, actions []questionusage.Action) error {
	_, err := s.mutate(ctx, attemptID, actor, func(sess *session) error {
		if err := checkBlocked(sess.a, actions); err != nil {
			return err
		}
		return sess.a.ProcessAutosave(sess.now, actions)
	})
	return err
}

// Process handles an interactive submission and returns the attempt as it
// now stands.
func (s *AttemptService) Process(ctx context.Context, attemptID uuid.UUID, actor Actor, req ProcessRequest) (*AttemptView, error) {
	sess, err := s.mutate(ctx, attemptID, actor, func(sess *session) error {
		a := sess.a
		if a.Record().IsFinished() {
			return attempt.ErrAttemptFinished
		}
		if req.Page != nil && !a.CheckPageAccess(*req.Page, true) {
			return fmt.Errorf("%w: page %d", attempt.ErrPageNotAccessible, *req.Page)
		}
		if err := checkBlocked(a, req.Actions); err != nil {
			return err
		}
		if _, err := a.ProcessAttempt(sess.now, req.Actions, req.Finish, req.TimeUp); err != nil {
			return err
		}
		if req.Page != nil && !a.Record().IsFinished() {
			return a.SetCurrentPage(*req.Page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	page := sess.a.Record().CurrentPage
	if sess.a.Record().IsFinished() {
		page = layout.SummaryPage
	}
	return s.view(sess, page)
}

// Finish submits the attempt as it stands.
func (s *AttemptService) Finish(ctx context.Context, attemptID uuid.UUID, actor Actor) (*AttemptView, error) {
	return s.Process(ctx, attemptID, actor, ProcessRequest{Finish: true})
}

// Redo replaces the question in slot with a fresh one and returns the slot
// the finished question attempt moved to.
func (s *AttemptService) Redo(ctx context.Context, attemptID uuid.UUID, actor Actor, slot int) (int, error) {
	var moved int
	_, err := s.mutate(ctx, attemptID, actor, func(sess *session) error {
		a := sess.a
		rec := a.Record()
		all, err := sess.st.ListUserAttempts(ctx, rec.QuizID, rec.UserID)
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}
		used := make(map[int64]int)
		var prior []*questionusage.Usage
		for _, other := range all {
			if other.Preview || other.ID == rec.ID {
				continue
			}
			u, err := sess.st.GetUsage(ctx, other.UsageID)
			if err != nil {
				return fmt.Errorf("load usage: %w", err)
			}
			prior = append(prior, u)
			for _, id := range u.QuestionIDs() {
				used[id]++
			}
		}
		for _, id := range a.Usage().QuestionIDs() {
			used[id]++
		}
		rnd := s.newRand()
		moved, err = a.RedoQuestion(slot, sess.now, sess.data.Bank(),
			questionusage.NewRandomLoader(used, rnd), questionusage.NewLeastUsedVariants(prior, rnd))
		return err
	})
	return moved, err
}

// ToggleFlag flips the review flag of slot.
func (s *AttemptService) ToggleFlag(ctx context.Context, attemptID uuid.UUID, actor Actor, slot int) (bool, error) {
	var on bool
	_, err := s.mutate(ctx, attemptID, actor, func(sess *session) error {
		var err error
		on, err = sess.a.ToggleFlag(slot)
		return err
	})
	return on, err
}

// DeletePreview removes one of the actor's preview attempts.
func (s *AttemptService) DeletePreview(ctx context.Context, attemptID uuid.UUID, actor Actor) error {
	var rec *model.Attempt
	err := s.tx.InTx(ctx, func(st Store) error {
		var err error
		rec, err = st.GetAttemptForUpdate(ctx, attemptID)
		if err != nil {
			if isNoRows(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if rec.UserID != actor.UserID {
			return ErrNotYourAttempt
		}
		if !rec.Preview {
			return ErrNotPreview
		}
		return st.DeleteAttempt(ctx, attemptID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, []model.Event{newEvent(model.EventAttemptDeleted, rec, s.clock.Unix(), true, nil)}, nil)
	return nil
}

// SweepResult says what an expiry check did to one attempt.
type SweepResult struct {
	From model.AttemptState
	To   model.AttemptState
	// Skipped is set when the attempt no longer needed a check.
	Skipped bool
}

// HandleIfTimeExpired runs the deadline check on one attempt for the overdue
// sweep, offline, as its owner with the capabilities recorded at start. data is the quiz the
// attempt belongs to. The attempt is skipped when, under the row lock, it no
// longer has a check due at or before cutoff.
func (s *AttemptService) HandleIfTimeExpired(ctx context.Context, attemptID uuid.UUID, data *QuizData, now, cutoff int64) (SweepResult, error) {
	var res SweepResult
	var sess *session
	err := s.tx.InTx(ctx, func(st Store) error {
		rec, err := st.GetAttemptForUpdate(ctx, attemptID)
		if err != nil {
			if isNoRows(err) {
				res.Skipped = true
				return nil
			}
			return err
		}
		res.From, res.To = rec.State, rec.State
		if rec.IsFinished() || rec.TimeCheckState == nil || *rec.TimeCheckState > cutoff {
			res.Skipped = true
			return nil
		}
		if rec.QuizID != data.Quiz.ID {
			return fmt.Errorf("attempt %s belongs to quiz %s, not %s", rec.ID, rec.QuizID, data.Quiz.ID)
		}
		rules, err := s.access.Rules(ctx, st, data, ownerActor(rec))
		if err != nil {
			return err
		}
		sess, err = s.open(ctx, st, data, rules, rec, now)
		if err != nil {
			return err
		}
		if err := sess.a.HandleIfTimeExpired(now, false); err != nil {
			return err
		}
		res.To = sess.a.Record().State
		return s.persist(ctx, sess)
	})
	if err != nil {
		return res, err
	}
	if sess != nil {
		s.finish(ctx, sess)
	}
	return res, nil
}

// mutate loads and locks the actor's attempt, runs fn, and saves the result.
func (s *AttemptService) mutate(ctx context.Context, attemptID uuid.UUID, actor Actor, fn func(sess *session) error) (*session, error) {
	head, err := s.tx.Store().GetAttempt(ctx, attemptID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if head.UserID != actor.UserID {
		return nil, ErrNotYourAttempt
	}
	data, err := s.quizzes.LoadStructure(ctx, head.QuizID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Unix()

	var sess *session
	err = s.tx.InTx(ctx, func(st Store) error {
		rec, err := st.GetAttemptForUpdate(ctx, attemptID)
		if err != nil {
			if isNoRows(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		rules, err := s.access.Rules(ctx, st, data, actor)
		if err != nil {
			return err
		}
		sess, err = s.open(ctx, st, data, rules, rec, now)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		return s.persist(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, sess)
	return sess, nil
}

func (s *AttemptService) open(ctx context.Context, st Store, data *QuizData, rules *access.Manager, rec *model.Attempt, now int64) (*session, error) {
	usage, err := st.GetUsage(ctx, rec.UsageID)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	a, err := attempt.New(rec, rules, usage, data.Slots, data.Sections, s.cfg)
	if err != nil {
		return nil, err
	}
	return &session{st: st, data: data, a: a, from: rec.State, now: now}, nil
}

// persist writes back whatever the operation changed.
func (s *AttemptService) persist(ctx context.Context, sess *session) error {
	a := sess.a
	rec := a.Record()
	if a.UsageChanged() {
		if err := sess.st.SaveUsage(ctx, a.Usage()); err != nil {
			return fmt.Errorf("save usage: %w", err)
		}
	}
	switch a.Change() {
	case attempt.ChangeRecord:
		if err := sess.st.UpdateAttempt(ctx, rec); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
	case attempt.ChangeTimeCheck:
		if err := sess.st.UpdateTimeCheckState(ctx, rec.ID, rec.TimeCheckState); err != nil {
			return fmt.Errorf("update time check: %w", err)
		}
	}
	return s.applyEffects(ctx, sess)
}

// applyEffects handles the in-transaction effects and keeps the rest on the
// session for after commit.
func (s *AttemptService) applyEffects(ctx context.Context, sess *session) error {
	e := sess.a.TakeEffects()
	if e.RecomputeGrade {
		if err := s.grades.RecomputeBestGrade(ctx, sess.st, sess.data.Quiz, sess.a.Record().UserID, sess.now); err != nil {
			return fmt.Errorf("recompute grade: %w", err)
		}
	}
	sess.events = append(sess.events, e.Events...)
	sess.notifications = append(sess.notifications, e.Notifications...)
	sess.finished = sess.finished || e.AttemptFinished
	return nil
}

// finish runs the after-commit effects. Failures are logged and never undo
// the committed change.
func (s *AttemptService) finish(ctx context.Context, sess *session) {
	rec := sess.a.Record()
	if sess.from != rec.State {
		s.log.Info().
			Str("attempt_id", rec.ID.String()).
			Str("quiz_id", rec.QuizID.String()).
			Int("user_id", rec.UserID).
			Str("from", string(sess.from)).
			Str("to", string(rec.State)).
			Msg("Attempt state changed")
	}
	if sess.finished {
		if err := sess.a.Rules().CurrentAttemptFinished(ctx); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", rec.ID.String()).Msg("Access rule cleanup failed")
		}
	}
	s.publish(ctx, sess.events, sess.notifications)
	sess.events, sess.notifications, sess.finished = nil, nil, false
}

func (s *AttemptService) publish(ctx context.Context, events []model.Event, notifications []model.Notification) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, events, notifications); err != nil {
		s.log.Error().Err(err).Int("events", len(events)).Msg("Failed to publish attempt events")
	}
}

func checkBlocked(a *attempt.Attempt, actions []questionusage.Action) error {
	for _, act := range actions {
		if a.IsBlockedByPrevious(act.Slot) {
			return fmt.Errorf("%w: slot %d", attempt.ErrBlockedByPrevious, act.Slot)
		}
	}
	return nil
}

// view renders page, or every page for the summary page.
func (s *AttemptService) view(sess *session, page int) (*AttemptView, error) {
	a := sess.a
	rec := a.Record()
	st := a.Structure()
	v := &AttemptView{
		Attempt:  rec,
		Page:     page,
		NumPages: st.NumPages(),
		LastPage: st.IsLastPage(page),
		Slots:    []attempt.SlotView{},
	}
	pages := []int{page}
	if page == layout.SummaryPage {
		pages = pages[:0]
		for p := 0; p < st.NumPages(); p++ {
			pages = append(pages, p)
		}
	}
	for _, p := range pages {
		slots, err := a.Page(p)
		if err != nil {
			return nil, err
		}
		v.Slots = append(v.Slots, slots...)
	}
	if left, ok := a.TimeLeft(sess.now); ok {
		v.TimeLeft = &left
	}
	if due, ok := a.DueDate(); ok && !rec.Preview {
		v.DueDate = &due
	}
	return v, nil
}
