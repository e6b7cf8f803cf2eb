package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrRateNotFound = errors.New("rate_not_configured")

// ScopeKey identifies the set of rate rows one strategy inspects.
// ProjectID is only set for user rates pinned to a single project.
type ScopeKey struct {
	OrgID     snowflake.ID
	Scope     Scope
	ScopeID   snowflake.ID
	ProjectID snowflake.ID
	RateType  RateType
}

// Subject is what a rate is being resolved for.
type Subject struct {
	OrgID     snowflake.ID
	ProjectID snowflake.ID
	ClientID  *snowflake.ID
	UserID    snowflake.ID
	RateType  RateType
	At        time.Time
	// Currency restricts candidates when non-empty.
	Currency string
}

// Source yields every rate row stored under key, in any order.
type Source interface {
	Rates(ctx context.Context, key ScopeKey) ([]Rate, error)
}

// Strategy maps a subject to the key of one scope in the cascade.
type Strategy struct {
	Scope Scope
	Key   func(Subject) (ScopeKey, bool)
}

// UserOnProjectScope matches a user rate pinned to the subject's project.
func UserOnProjectScope() Strategy {
	return Strategy{Scope: ScopeUser, Key: func(s Subject) (ScopeKey, bool) {
		if s.UserID == 0 {
			return ScopeKey{}, false
		}
		return ScopeKey{OrgID: s.OrgID, Scope: ScopeUser, ScopeID: s.UserID, ProjectID: s.ProjectID, RateType: s.RateType}, true
	}}
}

// UserScope matches a user rate that applies on every project.
func UserScope() Strategy {
	return Strategy{Scope: ScopeUser, Key: func(s Subject) (ScopeKey, bool) {
		if s.UserID == 0 {
			return ScopeKey{}, false
		}
		return ScopeKey{OrgID: s.OrgID, Scope: ScopeUser, ScopeID: s.UserID, RateType: s.RateType}, true
	}}
}

func ProjectScope() Strategy {
	return Strategy{Scope: ScopeProject, Key: func(s Subject) (ScopeKey, bool) {
		if s.ProjectID == 0 {
			return ScopeKey{}, false
		}
		return ScopeKey{OrgID: s.OrgID, Scope: ScopeProject, ScopeID: s.ProjectID, RateType: s.RateType}, true
	}}
}

func ClientScope() Strategy {
	return Strategy{Scope: ScopeClient, Key: func(s Subject) (ScopeKey, bool) {
		if s.ClientID == nil || *s.ClientID == 0 {
			return ScopeKey{}, false
		}
		return ScopeKey{OrgID: s.OrgID, Scope: ScopeClient, ScopeID: *s.ClientID, RateType: s.RateType}, true
	}}
}

func DefaultScope() Strategy {
	return Strategy{Scope: ScopeDefault, Key: func(s Subject) (ScopeKey, bool) {
		return ScopeKey{OrgID: s.OrgID, Scope: ScopeDefault, RateType: s.RateType}, true
	}}
}

// DefaultStrategies is the resolution cascade, highest priority first.
func DefaultStrategies() []Strategy {
	return []Strategy{UserOnProjectScope(), UserScope(), ProjectScope(), ClientScope(), DefaultScope()}
}

type Resolver struct {
	strategies []Strategy
}

func NewResolver(strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{strategies: strategies}
}

// Resolve walks the cascade and returns the first scope holding a rate effective at
// subject.At. ErrRateNotFound means no scope is configured; callers must not treat it as zero.
func (r *Resolver) Resolve(ctx context.Context, src Source, subject Subject) (ResolvedRate, error) {
	for _, strategy := range r.strategies {
		key, ok := strategy.Key(subject)
		if !ok {
			continue
		}
		rates, err := src.Rates(ctx, key)
		if err != nil {
			return ResolvedRate{}, err
		}
		picked := PickEffective(rates, subject.At, subject.Currency)
		if picked == nil {
			continue
		}
		resolved := ResolvedRate{
			HourlyRate: picked.HourlyRate,
			Currency:   picked.Currency,
			Source:     strategy.Scope,
			RateID:     picked.ID,
		}
		if picked.ScopeID != nil {
			scopeID := *picked.ScopeID
			resolved.ResolvedScopeID = &scopeID
		}
		return resolved, nil
	}
	return ResolvedRate{}, ErrRateNotFound
}

// PickEffective returns the rate covering at. Ties go to the latest EffectiveFrom
// (an absent bound sorts first) and then to the highest id.
func PickEffective(rates []Rate, at time.Time, currency string) *Rate {
	var picked *Rate
	for i := range rates {
		candidate := &rates[i]
		if currency != "" && candidate.Currency != currency {
			continue
		}
		if !candidate.Covers(at) {
			continue
		}
		if picked == nil || startsLater(candidate, picked) {
			picked = candidate
		}
	}
	return picked
}

func startsLater(a, b *Rate) bool {
	switch {
	case a.EffectiveFrom == nil && b.EffectiveFrom == nil:
		return a.ID > b.ID
	case a.EffectiveFrom == nil:
		return false
	case b.EffectiveFrom == nil:
		return true
	case a.EffectiveFrom.Equal(*b.EffectiveFrom):
		return a.ID > b.ID
	default:
		return a.EffectiveFrom.After(*b.EffectiveFrom)
	}
}

// SnapshotSource serves lookups from one preloaded set of rows so a caller can
// resolve many subjects against a single consistent read.
type SnapshotSource struct {
	byKey map[ScopeKey][]Rate
}

func NewSnapshotSource(rates []Rate) *SnapshotSource {
	byKey := make(map[ScopeKey][]Rate)
	for _, rate := range rates {
		key := KeyOf(rate)
		byKey[key] = append(byKey[key], rate)
	}
	return &SnapshotSource{byKey: byKey}
}

func (s *SnapshotSource) Rates(_ context.Context, key ScopeKey) ([]Rate, error) {
	return s.byKey[key], nil
}

// KeyOf returns the lookup key a stored rate belongs to.
func KeyOf(rate Rate) ScopeKey {
	key := ScopeKey{OrgID: rate.OrgID, Scope: rate.Scope, RateType: rate.RateType}
	if rate.ScopeID != nil {
		key.ScopeID = *rate.ScopeID
	}
	if rate.ProjectID != nil {
		key.ProjectID = *rate.ProjectID
	}
	return key
}
