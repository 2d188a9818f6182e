// Package override merges quiz defaults with user and group overrides into
// the effective policy for one user.
package override

import (
	"sort"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Resolve computes the effective policy of userID, who belongs to groupIDs.
//
// A user override wins for every field it sets. Each field still unset is
// merged independently across all applicable group overrides, taking the most
// lenient value. Remaining fields fall back to the quiz. Overrides that do not
// target exactly one of user or group are ignored.
func Resolve(quiz model.Quiz, userID int, groupIDs []int, overrides []model.Override) model.EffectivePolicy {
	policy := model.DefaultPolicy(quiz)

	inGroup := make(map[int]bool, len(groupIDs))
	for _, g := range groupIDs {
		inGroup[g] = true
	}

	var user *model.Override
	var groups []model.Override
	for _, o := range sortedByID(overrides) {
		if o.Validate() != nil {
			continue
		}
		switch {
		case o.UserID != nil && *o.UserID == userID:
			if user == nil {
				u := o
				user = &u
			}
		case o.GroupID != nil && inGroup[*o.GroupID]:
			groups = append(groups, o)
		}
	}

	if user != nil {
		applyUser(&policy, *user)
	}

	if policy.Sources[model.FieldTimeOpen].Kind == model.SourceDefault {
		if v, src, ok := earliest(groups, func(o model.Override) *int64 { return o.TimeOpen }); ok {
			policy.TimeOpen = v
			policy.Sources[model.FieldTimeOpen] = src
		}
	}
	if policy.Sources[model.FieldTimeClose].Kind == model.SourceDefault {
		if v, src, ok := zeroOrMax(groups, func(o model.Override) *int64 { return o.TimeClose }); ok {
			policy.TimeClose = v
			policy.Sources[model.FieldTimeClose] = src
		}
	}
	if policy.Sources[model.FieldTimeLimit].Kind == model.SourceDefault {
		if v, src, ok := zeroOrMax(groups, func(o model.Override) *int64 { return o.TimeLimit }); ok {
			policy.TimeLimit = v
			policy.Sources[model.FieldTimeLimit] = src
		}
	}
	if policy.Sources[model.FieldAttempts].Kind == model.SourceDefault {
		if v, src, ok := zeroOrMax(groups, func(o model.Override) *int64 {
			if o.Attempts == nil {
				return nil
			}
			n := int64(*o.Attempts)
			return &n
		}); ok {
			policy.Attempts = int(v)
			policy.Sources[model.FieldAttempts] = src
		}
	}
	if policy.Sources[model.FieldPassword].Kind == model.SourceDefault {
		applyGroupPasswords(&policy, groups)
	}

	return policy
}

func applyUser(p *model.EffectivePolicy, o model.Override) {
	src := model.PolicySource{Kind: model.SourceUser, OverrideID: o.ID}
	if o.TimeOpen != nil {
		p.TimeOpen = *o.TimeOpen
		p.Sources[model.FieldTimeOpen] = src
	}
	if o.TimeClose != nil {
		p.TimeClose = *o.TimeClose
		p.Sources[model.FieldTimeClose] = src
	}
	if o.TimeLimit != nil {
		p.TimeLimit = *o.TimeLimit
		p.Sources[model.FieldTimeLimit] = src
	}
	if o.Attempts != nil {
		p.Attempts = *o.Attempts
		p.Sources[model.FieldAttempts] = src
	}
	if o.Password != nil {
		p.Password = *o.Password
		p.Sources[model.FieldPassword] = src
	}
}

// earliest picks the minimum set value; an earlier open is more lenient.
func earliest(groups []model.Override, field func(model.Override) *int64) (int64, model.PolicySource, bool) {
	var best int64
	var src model.PolicySource
	found := false
	for _, o := range groups {
		v := field(o)
		if v == nil {
			continue
		}
		if !found || *v < best {
			best = *v
			src = model.PolicySource{Kind: model.SourceGroup, OverrideID: o.ID}
			found = true
		}
	}
	return best, src, found
}

// zeroOrMax picks 0 (unlimited) if any override sets it, else the maximum.
func zeroOrMax(groups []model.Override, field func(model.Override) *int64) (int64, model.PolicySource, bool) {
	var best int64
	var src model.PolicySource
	found := false
	for _, o := range groups {
		v := field(o)
		if v == nil {
			continue
		}
		if *v == 0 {
			return 0, model.PolicySource{Kind: model.SourceGroup, OverrideID: o.ID}, true
		}
		if !found || *v > best {
			best = *v
			src = model.PolicySource{Kind: model.SourceGroup, OverrideID: o.ID}
			found = true
		}
	}
	return best, src, found
}

// applyGroupPasswords keeps the first distinct group password as the password
// and every other distinct one as an extra acceptable password.
func applyGroupPasswords(p *model.EffectivePolicy, groups []model.Override) {
	seen := make(map[string]bool)
	first := true
	for _, o := range groups {
		if o.Password == nil || seen[*o.Password] {
			continue
		}
		seen[*o.Password] = true
		if first {
			p.Password = *o.Password
			p.Sources[model.FieldPassword] = model.PolicySource{Kind: model.SourceGroup, OverrideID: o.ID}
			first = false
			continue
		}
		p.ExtraPasswords = append(p.ExtraPasswords, *o.Password)
	}
}

func sortedByID(overrides []model.Override) []model.Override {
	out := make([]model.Override, len(overrides))
	copy(out, overrides)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
