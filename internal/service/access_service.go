package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/override"
)

var (
	ErrWrongPassword = errors.New("wrong quiz password")
	ErrNotAllowed    = errors.New("missing capability")
)

// Actor is the user an operation runs for, with the capabilities from their token.
type Actor struct {
	UserID       int
	Capabilities []string
	RemoteIP     string
}

// Can reports whether the actor holds the capability.
func (a Actor) Can(p model.Permission) bool {
	return slices.Contains(a.Capabilities, string(p))
}

// ownerActor is the attempt's owner as seen without a request: only the
// capabilities stored on the attempt.
func ownerActor(rec *model.Attempt) Actor {
	actor := Actor{UserID: rec.UserID}
	if rec.IgnoreTimeLimits {
		actor.Capabilities = []string{string(model.PermissionQuizIgnoreTimeLimits)}
	}
	return actor
}

// PasswordFlags remembers successful quiz password checks.
type PasswordFlags interface {
	access.PasswordStore
	IsVerified(ctx context.Context, quizID uuid.UUID, userID int) (bool, error)
}

// RedisPasswordFlags keeps the password-verified flag in Redis.
type RedisPasswordFlags struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPasswordFlags creates a new RedisPasswordFlags.
func NewRedisPasswordFlags(rdb *redis.Client, ttl time.Duration) *RedisPasswordFlags {
	return &RedisPasswordFlags{rdb: rdb, ttl: ttl}
}

func (f *RedisPasswordFlags) MarkVerified(ctx context.Context, quizID uuid.UUID, userID int) error {
	return f.rdb.Set(ctx, config.CacheKey.PasswordVerifiedKey(quizID.String(), userID), 1, f.ttl).Err()
}

func (f *RedisPasswordFlags) Forget(ctx context.Context, quizID uuid.UUID, userID int) error {
	return f.rdb.Del(ctx, config.CacheKey.PasswordVerifiedKey(quizID.String(), userID)).Err()
}

func (f *RedisPasswordFlags) IsVerified(ctx context.Context, quizID uuid.UUID, userID int) (bool, error) {
	n, err := f.rdb.Exists(ctx, config.CacheKey.PasswordVerifiedKey(quizID.String(), userID)).Result()
	return n > 0, err
}

// AccessService builds the effective policy and rules for one user.
type AccessService struct {
	tx        Transactor
	quizzes   *QuizService
	grades    *GradeService
	passwords PasswordFlags
	threshold int64
}

// NewAccessService creates a new AccessService. threshold is how close a
// close date must be before its countdown is shown.
func NewAccessService(tx Transactor, quizzes *QuizService, grades *GradeService, passwords PasswordFlags, threshold time.Duration) *AccessService {
	return &AccessService{
		tx:        tx,
		quizzes:   quizzes,
		grades:    grades,
		passwords: passwords,
		threshold: int64(threshold / time.Second),
	}
}

// Rules resolves the actor's overrides and assembles the access rules.
func (s *AccessService) Rules(ctx context.Context, st Store, data *QuizData, actor Actor) (*access.Manager, error) {
	groups, err := st.ListUserGroups(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	policy := override.Resolve(data.Quiz, actor.UserID, groups, data.Overrides)

	verified := false
	if policy.Password != "" && s.passwords != nil {
		if verified, err = s.passwords.IsVerified(ctx, data.Quiz.ID, actor.UserID); err != nil {
			return nil, fmt.Errorf("password flag: %w", err)
		}
	}

	var store access.PasswordStore
	if s.passwords != nil {
		store = s.passwords
	}
	return access.NewManager(policy, access.Options{
		UserID:            actor.UserID,
		IgnoreTimeLimits:  actor.Can(model.PermissionQuizIgnoreTimeLimits),
		RemoteIP:          actor.RemoteIP,
		PasswordVerified:  verified,
		PasswordStore:     store,
		TimeLeftThreshold: s.threshold,
	}), nil
}

// AccessSummary is what the quiz entry page shows.
type AccessSummary struct {
	QuizID            uuid.UUID                     `json:"quiz_id"`
	Name              string                        `json:"name"`
	Descriptions      []string                      `json:"descriptions"`
	PreventAccess     []string                      `json:"prevent_access"`
	PreventNewAttempt []string                      `json:"prevent_new_attempt"`
	NoMoreAttempts    bool                          `json:"no_more_attempts"`
	PasswordRequired  bool                          `json:"password_required"`
	Attempts          []model.Attempt               `json:"attempts"`
	Unfinished        *model.Attempt                `json:"unfinished,omitempty"`
	Grade             *float64                      `json:"grade,omitempty"`
	Policy            map[string]model.PolicySource `json:"policy_sources"`
}

// Summary describes the quiz rules and the actor's standing.
func (s *AccessService) Summary(ctx context.Context, quizID uuid.UUID, actor Actor, now int64) (*AccessSummary, error) {
	data, err := s.quizzes.LoadStructure(ctx, quizID)
	if err != nil {
		return nil, err
	}
	st := s.tx.Store()
	rules, err := s.Rules(ctx, st, data, actor)
	if err != nil {
		return nil, err
	}
	all, err := st.ListUserAttempts(ctx, quizID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	out := &AccessSummary{
		QuizID:           quizID,
		Name:             data.Quiz.Name,
		Descriptions:     rules.Describe(now),
		PreventAccess:    rules.PreventAccess(now),
		PasswordRequired: rules.Policy().Password != "",
		Attempts:         []model.Attempt{},
		Policy:           rules.Policy().Sources,
	}
	var last *model.Attempt
	for i := range all {
		a := all[i]
		if !a.IsFinished() && out.Unfinished == nil {
			out.Unfinished = &a
		}
		if a.Preview {
			continue
		}
		out.Attempts = append(out.Attempts, a)
		last = &out.Attempts[len(out.Attempts)-1]
	}
	out.PreventNewAttempt = rules.PreventNewAttempt(len(out.Attempts), last, now)
	out.NoMoreAttempts = rules.IsFinished(len(out.Attempts), last, now)

	g, err := s.grades.Get(ctx, st, quizID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("get grade: %w", err)
	}
	if g != nil {
		out.Grade = &g.Grade
	}
	return out, nil
}

// CheckPassword verifies the quiz password and remembers a match until the
// user's attempt ends.
func (s *AccessService) CheckPassword(ctx context.Context, quizID uuid.UUID, actor Actor, input string) error {
	data, err := s.quizzes.LoadStructure(ctx, quizID)
	if err != nil {
		return err
	}
	rules, err := s.Rules(ctx, s.tx.Store(), data, actor)
	if err != nil {
		return err
	}
	ok, err := rules.VerifyPassword(ctx, input)
	if err != nil {
		return fmt.Errorf("remember password: %w", err)
	}
	if !ok {
		return ErrWrongPassword
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
