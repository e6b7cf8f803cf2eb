package domain

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orgID     snowflake.ID = 1
	projectID snowflake.ID = 100
	clientID  snowflake.ID = 200
	userID    snowflake.ID = 300
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func rate(id snowflake.ID, scope Scope, scopeID snowflake.ID, amount string, from, to *time.Time) Rate {
	r := Rate{
		ID:            id,
		OrgID:         orgID,
		Scope:         scope,
		RateType:      RateTypeBillable,
		Currency:      "USD",
		HourlyRate:    decimal.RequireFromString(amount),
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
	if scopeID != 0 {
		r.ScopeID = ptr(scopeID)
	}
	return r
}

func subject(at time.Time) Subject {
	return Subject{
		OrgID:     orgID,
		ProjectID: projectID,
		ClientID:  ptr(clientID),
		UserID:    userID,
		RateType:  RateTypeBillable,
		At:        at,
	}
}

func TestResolveSelectsWindowByInstant(t *testing.T) {
	src := NewSnapshotSource([]Rate{
		rate(1, ScopeProject, projectID, "50", ptr(day(2024, 1, 1)), ptr(day(2024, 3, 1))),
		rate(2, ScopeProject, projectID, "70", ptr(day(2024, 3, 1)), nil),
	})
	resolver := NewResolver()

	feb, err := resolver.Resolve(context.Background(), src, subject(day(2024, 2, 15)))
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), feb.RateID)

	mar, err := resolver.Resolve(context.Background(), src, subject(day(2024, 3, 2)))
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), mar.RateID)

	// the boundary instant belongs to the later window
	boundary, err := resolver.Resolve(context.Background(), src, subject(day(2024, 3, 1)))
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), boundary.RateID)
}

func TestResolveProjectBeatsDefault(t *testing.T) {
	src := NewSnapshotSource([]Rate{
		rate(1, ScopeDefault, 0, "40", nil, nil),
		rate(2, ScopeProject, projectID, "60", ptr(day(2024, 1, 1)), nil),
	})

	resolved, err := NewResolver().Resolve(context.Background(), src, subject(day(2024, 2, 1)))
	require.NoError(t, err)
	assert.True(t, resolved.HourlyRate.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, ScopeProject, resolved.Source)
	require.NotNil(t, resolved.ResolvedScopeID)
	assert.Equal(t, projectID, *resolved.ResolvedScopeID)
}

func TestResolveCascadeOrder(t *testing.T) {
	userOnProject := rate(1, ScopeUser, userID, "90", nil, nil)
	userOnProject.ProjectID = ptr(projectID)
	userGeneric := rate(2, ScopeUser, userID, "80", nil, nil)
	project := rate(3, ScopeProject, projectID, "70", nil, nil)
	client := rate(4, ScopeClient, clientID, "60", nil, nil)
	fallback := rate(5, ScopeDefault, 0, "50", nil, nil)

	cases := []struct {
		name   string
		rates  []Rate
		source Scope
		amount int64
	}{
		{"user on project", []Rate{fallback, client, project, userGeneric, userOnProject}, ScopeUser, 90},
		{"user generic", []Rate{fallback, client, project, userGeneric}, ScopeUser, 80},
		{"project", []Rate{fallback, client, project}, ScopeProject, 70},
		{"client", []Rate{fallback, client}, ScopeClient, 60},
		{"default", []Rate{fallback}, ScopeDefault, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := NewResolver().Resolve(context.Background(), NewSnapshotSource(tc.rates), subject(day(2024, 5, 1)))
			require.NoError(t, err)
			assert.Equal(t, tc.source, resolved.Source)
			assert.True(t, resolved.HourlyRate.Equal(decimal.NewFromInt(tc.amount)))
		})
	}
}

func TestResolveWithoutUserSkipsUserScopes(t *testing.T) {
	src := NewSnapshotSource([]Rate{
		rate(1, ScopeUser, userID, "80", nil, nil),
		rate(2, ScopeDefault, 0, "50", nil, nil),
	})
	subj := subject(day(2024, 5, 1))
	subj.UserID = 0

	resolved, err := NewResolver().Resolve(context.Background(), src, subj)
	require.NoError(t, err)
	assert.Equal(t, ScopeDefault, resolved.Source)
}

func TestResolveNotFound(t *testing.T) {
	src := NewSnapshotSource([]Rate{
		rate(1, ScopeProject, projectID, "50", ptr(day(2024, 1, 1)), ptr(day(2024, 2, 1))),
	})

	_, err := NewResolver().Resolve(context.Background(), src, subject(day(2024, 6, 1)))
	assert.ErrorIs(t, err, ErrRateNotFound)
}

func TestResolveIgnoresOtherRateType(t *testing.T) {
	internal := rate(1, ScopeProject, projectID, "30", nil, nil)
	internal.RateType = RateTypeInternal
	src := NewSnapshotSource([]Rate{internal})

	_, err := NewResolver().Resolve(context.Background(), src, subject(day(2024, 6, 1)))
	assert.ErrorIs(t, err, ErrRateNotFound)

	subj := subject(day(2024, 6, 1))
	subj.RateType = RateTypeInternal
	resolved, err := NewResolver().Resolve(context.Background(), src, subj)
	require.NoError(t, err)
	assert.True(t, resolved.HourlyRate.Equal(decimal.NewFromInt(30)))
}

func TestPickEffectivePrefersLatestStart(t *testing.T) {
	rates := []Rate{
		rate(1, ScopeProject, projectID, "10", nil, nil),
		rate(2, ScopeProject, projectID, "20", ptr(day(2024, 1, 1)), nil),
		rate(3, ScopeProject, projectID, "30", ptr(day(2023, 1, 1)), nil),
	}

	picked := PickEffective(rates, day(2024, 6, 1), "")
	require.NotNil(t, picked)
	assert.Equal(t, snowflake.ID(2), picked.ID)

	assert.Nil(t, PickEffective(rates, day(2024, 6, 1), "EUR"))
}

func TestOverlaps(t *testing.T) {
	janFeb := rate(1, ScopeProject, projectID, "10", ptr(day(2024, 1, 1)), ptr(day(2024, 2, 1)))
	febOn := rate(2, ScopeProject, projectID, "10", ptr(day(2024, 2, 1)), nil)
	always := rate(3, ScopeProject, projectID, "10", nil, nil)
	midJan := rate(4, ScopeProject, projectID, "10", ptr(day(2024, 1, 15)), ptr(day(2024, 1, 20)))

	assert.False(t, janFeb.Overlaps(febOn))
	assert.False(t, febOn.Overlaps(janFeb))
	assert.True(t, always.Overlaps(janFeb))
	assert.True(t, janFeb.Overlaps(midJan))
	assert.False(t, febOn.Overlaps(midJan))
}
