package access

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// PasswordStore remembers which users have passed the password check.
type PasswordStore interface {
	MarkVerified(ctx context.Context, quizID uuid.UUID, userID int) error
	Forget(ctx context.Context, quizID uuid.UUID, userID int) error
}

// PasswordRule requires the quiz password, or any extra password granted by a
// group override, before the quiz can be entered.
type PasswordRule struct {
	base
	quizID    uuid.UUID
	userID    int
	passwords []string
	verified  bool
	store     PasswordStore
}

// NewPasswordRule returns nil when the effective policy has no password.
// verified is the remembered outcome of an earlier check.
func NewPasswordRule(policy model.EffectivePolicy, userID int, verified bool, store PasswordStore) *PasswordRule {
	if policy.Password == "" {
		return nil
	}
	passwords := append([]string{policy.Password}, policy.ExtraPasswords...)
	return &PasswordRule{
		quizID:    policy.ID,
		userID:    userID,
		passwords: passwords,
		verified:  verified,
		store:     store,
	}
}

func (r *PasswordRule) Name() string { return "password" }

func (r *PasswordRule) PreventAccess(int64) string {
	if r.verified {
		return ""
	}
	return "To attempt this quiz you need to know the quiz password"
}

func (r *PasswordRule) Description(int64) []string {
	return []string{"This quiz requires a password"}
}

// Verify checks input against every acceptable password and remembers a match.
func (r *PasswordRule) Verify(ctx context.Context, input string) (bool, error) {
	for _, p := range r.passwords {
		if passwordMatches(p, input) {
			r.verified = true
			if r.store != nil {
				return true, r.store.MarkVerified(ctx, r.quizID, r.userID)
			}
			return true, nil
		}
	}
	return false, nil
}

// Verified reports whether the user has passed the check.
func (r *PasswordRule) Verified() bool { return r.verified }

func (r *PasswordRule) CurrentAttemptFinished(ctx context.Context) error {
	r.verified = false
	if r.store == nil {
		return nil
	}
	return r.store.Forget(ctx, r.quizID, r.userID)
}

// passwordMatches accepts bcrypt hashes or plain stored passwords.
func passwordMatches(stored, input string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(input)) == 1
}
