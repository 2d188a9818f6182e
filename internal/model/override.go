package model

import (
	"errors"

	"github.com/google/uuid"
)

// ErrOverrideTarget is returned for an override that does not name exactly one of user or group.
var ErrOverrideTarget = errors.New("override must target exactly one of user or group")

// Override replaces a subset of quiz settings for one user or one group.
// Nil fields fall through to the next source.
type Override struct {
	ID        int64     `json:"id"`
	QuizID    uuid.UUID `json:"quiz_id"`
	UserID    *int      `json:"user_id,omitempty"`
	GroupID   *int      `json:"group_id,omitempty"`
	TimeOpen  *int64    `json:"time_open,omitempty"`
	TimeClose *int64    `json:"time_close,omitempty"`
	TimeLimit *int64    `json:"time_limit,omitempty"`
	Attempts  *int      `json:"attempts,omitempty"`
	Password  *string   `json:"-"`
}

// Validate enforces the user XOR group invariant.
func (o Override) Validate() error {
	if (o.UserID == nil) == (o.GroupID == nil) {
		return ErrOverrideTarget
	}
	return nil
}

// Policy field names used in EffectivePolicy.Sources.
const (
	FieldTimeOpen  = "time_open"
	FieldTimeClose = "time_close"
	FieldTimeLimit = "time_limit"
	FieldAttempts  = "attempts"
	FieldPassword  = "password"
)

// SourceKind says where an effective value came from.
type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceUser    SourceKind = "user"
	SourceGroup   SourceKind = "group"
)

// PolicySource traces one effective field to the quiz default or a single override.
type PolicySource struct {
	Kind       SourceKind `json:"kind"`
	OverrideID int64      `json:"override_id,omitempty"`
}

// EffectivePolicy is a quiz with one user's overrides applied. It is never persisted.
type EffectivePolicy struct {
	Quiz
	ExtraPasswords []string                `json:"-"`
	Sources        map[string]PolicySource `json:"sources"`
}

// DefaultPolicy returns the policy of a user with no applicable overrides.
func DefaultPolicy(q Quiz) EffectivePolicy {
	return EffectivePolicy{
		Quiz: q,
		Sources: map[string]PolicySource{
			FieldTimeOpen:  {Kind: SourceDefault},
			FieldTimeClose: {Kind: SourceDefault},
			FieldTimeLimit: {Kind: SourceDefault},
			FieldAttempts:  {Kind: SourceDefault},
			FieldPassword:  {Kind: SourceDefault},
		},
	}
}
