package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	projectrepository "github.com/smallbiznis/timeledger/internal/project/repository"
	"github.com/smallbiznis/timeledger/internal/testutil"
	"github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/smallbiznis/timeledger/internal/timeentry/repository"
	"github.com/smallbiznis/timeledger/pkg/db/pagination"
	"github.com/smallbiznis/timeledger/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*testutil.Env, domain.Service, projectdomain.Project) {
	t.Helper()
	env := testutil.New(t)
	project := env.SeedProject(t, "Client Portal", "USD")
	svc := New(Params{
		DB:          env.DB,
		Log:         env.Log,
		GenID:       env.Node,
		Clock:       env.Clock,
		Cfg:         env.Cfg,
		Repo:        repository.Provide(),
		ProjectRepo: projectrepository.Provide(),
		AuditSvc:    env.Audit,
		Invalidator: env.Invalidator,
	})
	return env, svc, project
}

func hoursAgo(h int) time.Time {
	return testutil.Epoch.Add(-time.Duration(h) * time.Hour)
}

func lockEntry(t *testing.T, env *testutil.Env, id snowflake.ID) {
	t.Helper()
	require.NoError(t, env.DB.Model(&domain.TimeEntry{}).Where("id = ?", id).
		Update("invoice_id", env.Node.Generate()).Error)
}

func TestStartAllowsOneRunningTimer(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()

	entry, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String(), IdempotencyKey: "tab-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, entry.State())
	assert.True(t, entry.Billable)
	assert.Equal(t, domain.SourceTimer, entry.Source)

	retried, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String(), IdempotencyKey: "tab-1"})
	require.NoError(t, err)
	assert.Equal(t, entry.ID, retried.ID)

	_, err = svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String()})
	assert.ErrorIs(t, err, domain.ErrTimerRunning)

	// Another user has their own slot.
	other := env.Node.Generate()
	_, err = svc.Start(env.ContextAs(other), domain.StartTimerRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)

	env.Clock.Advance(10 * time.Minute)
	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current.Entry)
	assert.Equal(t, entry.ID, current.Entry.ID)
	assert.Equal(t, int64(600), current.ElapsedSeconds)

	_, err = svc.Start(ctx, domain.StartTimerRequest{ProjectID: env.Node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestConcurrentStartsLeaveOneOpenEntry(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()

	const attempts = 16
	var (
		wg       sync.WaitGroup
		started  atomic.Int32
		rejected atomic.Int32
		failures = make(chan error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String()})
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, domain.ErrTimerRunning):
				rejected.Add(1)
			default:
				failures <- err
			}
		}()
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Errorf("unexpected start error: %v", err)
	}
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(attempts-1), rejected.Load())

	var open int64
	require.NoError(t, env.DB.Model(&domain.TimeEntry{}).
		Where("user_id = ? AND end_ts IS NULL", env.UserID).
		Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestTimerLifecycle(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()

	entry, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String(), Description: " Sprint review "})
	require.NoError(t, err)
	assert.Equal(t, "Sprint review", entry.Description)
	req := domain.EntryRequest{ID: entry.ID.String()}

	_, err = svc.Resume(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	env.Clock.Advance(10 * time.Minute)
	paused, err := svc.Pause(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, paused.State())

	env.Clock.Advance(5 * time.Minute)
	_, err = svc.Pause(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = svc.Resume(ctx, req)
	require.NoError(t, err)

	env.Clock.Advance(15 * time.Minute)
	stopped, err := svc.Stop(ctx, domain.StopTimerRequest{ID: entry.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.StateStopped, stopped.State())
	assert.Equal(t, int64(25*60), stopped.DurationSeconds)
	assert.Nil(t, stopped.IdleSuggestion.Data())

	_, err = svc.Stop(ctx, domain.StopTimerRequest{ID: entry.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current.Entry)
}

func TestStopAppliesServerIdleTrim(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()

	entry, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	req := domain.HeartbeatRequest{ID: entry.ID.String()}

	env.Clock.Advance(time.Minute)
	_, err = svc.Heartbeat(ctx, req)
	require.NoError(t, err)
	env.Clock.Advance(time.Minute)
	beat, err := svc.Heartbeat(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, beat.LastHeartbeatAt)

	env.Clock.Advance(28 * time.Minute)
	stopped, err := svc.Stop(ctx, domain.StopTimerRequest{ID: entry.ID.String(), AcceptServerIdleTrim: true})
	require.NoError(t, err)

	suggestion := stopped.IdleSuggestion.Data()
	require.NotNil(t, suggestion)
	assert.Equal(t, domain.BasisServer, suggestion.Basis)
	assert.Equal(t, int64(23*60), suggestion.SuggestedTrimSeconds)
	assert.Equal(t, int64(23*60), stopped.IdleTrimAppliedSeconds)
	assert.Equal(t, int64(7*60), stopped.DurationSeconds)

	_, err = svc.Heartbeat(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestStopWithClientIdleLeavesTrimToUser(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()

	entry, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	env.Clock.Advance(30 * time.Minute)

	stopped, err := svc.Stop(ctx, domain.StopTimerRequest{
		ID: entry.ID.String(),
		ClientIdleIntervals: []domain.Interval{
			{Start: testutil.Epoch.Add(10 * time.Minute), End: testutil.Epoch.Add(20 * time.Minute)},
		},
	})
	require.NoError(t, err)
	suggestion := stopped.IdleSuggestion.Data()
	require.NotNil(t, suggestion)
	assert.Equal(t, domain.BasisClient, suggestion.Basis)
	assert.Equal(t, int64(600), suggestion.SuggestedTrimSeconds)
	assert.Zero(t, stopped.IdleTrimAppliedSeconds)
	assert.Equal(t, int64(30*60), stopped.DurationSeconds)

	trimmed, err := svc.ApplyIdleTrim(ctx, domain.ApplyIdleTrimRequest{ID: entry.ID.String(), TrimSeconds: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(20*60), trimmed.DurationSeconds)

	_, err = svc.ApplyIdleTrim(ctx, domain.ApplyIdleTrimRequest{ID: entry.ID.String(), TrimSeconds: 31 * 60})
	assert.ErrorIs(t, err, domain.ErrTrimExceedsDuration)
	_, err = svc.ApplyIdleTrim(ctx, domain.ApplyIdleTrimRequest{ID: entry.ID.String(), TrimSeconds: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidTrim)

	stored, err := svc.Get(ctx, domain.EntryRequest{ID: entry.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(600), stored.IdleTrimAppliedSeconds)
}

func TestCreateManualValidatesAndRejectsOverlap(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	manual := func(from, to time.Time, allowOverlap bool) (domain.TimeEntry, error) {
		return svc.CreateManual(ctx, domain.CreateManualEntryRequest{
			ProjectID:    project.ID.String(),
			StartTS:      from,
			EndTS:        to,
			AllowOverlap: allowOverlap,
		})
	}

	first, err := manual(hoursAgo(5), hoursAgo(4), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), first.DurationSeconds)
	assert.Equal(t, domain.SourceManual, first.Source)

	_, err = manual(hoursAgo(4), hoursAgo(3), false)
	require.NoError(t, err, "adjacent entries do not overlap")

	_, err = manual(hoursAgo(5).Add(30*time.Minute), hoursAgo(4).Add(30*time.Minute), false)
	assert.ErrorIs(t, err, domain.ErrOverlap)

	_, err = manual(hoursAgo(5).Add(30*time.Minute), hoursAgo(4).Add(30*time.Minute), true)
	require.NoError(t, err)

	_, err = manual(hoursAgo(2), hoursAgo(2), false)
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	_, err = svc.CreateManual(ctx, domain.CreateManualEntryRequest{
		ProjectID: project.ID.String(), StartTS: hoursAgo(9), EndTS: hoursAgo(8), Source: "fax",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSource)

	_, err = svc.CreateManual(ctx, domain.CreateManualEntryRequest{
		ProjectID: env.Node.Generate().String(), StartTS: hoursAgo(9), EndTS: hoursAgo(8),
	})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)

	nonBillable, err := svc.CreateManual(ctx, domain.CreateManualEntryRequest{
		ProjectID: project.ID.String(), StartTS: hoursAgo(12), EndTS: hoursAgo(11),
		Billable: testutil.Ptr(false), Source: "calendar",
	})
	require.NoError(t, err)
	stored, err := svc.Get(ctx, domain.EntryRequest{ID: nonBillable.ID.String()})
	require.NoError(t, err)
	assert.False(t, stored.Billable)
	assert.Equal(t, domain.SourceCalendar, stored.Source)
}

func TestManualEntryOverlapsRunningTimer(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()

	_, err := svc.Start(ctx, domain.StartTimerRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	env.Clock.Advance(time.Hour)

	_, err = svc.CreateManual(ctx, domain.CreateManualEntryRequest{
		ProjectID: project.ID.String(),
		StartTS:   testutil.Epoch.Add(30 * time.Minute),
		EndTS:     testutil.Epoch.Add(45 * time.Minute),
	})
	assert.ErrorIs(t, err, domain.ErrOverlap)
}

func TestUpdateReschedulesEntry(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	entry := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(6), time.Hour, true)
	env.SeedEntry(t, env.UserID, project.ID, hoursAgo(3), time.Hour, true)

	end := hoursAgo(4)
	updated, err := svc.Update(ctx, domain.UpdateEntryRequest{
		ID:          entry.ID.String(),
		EndTS:       &end,
		Description: testutil.Ptr("Design handoff"),
		Billable:    testutil.Ptr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2*3600), updated.DurationSeconds)
	assert.Equal(t, "Design handoff", updated.Description)
	assert.False(t, updated.Billable)
	assert.Equal(t, entry.Version+1, updated.Version)

	late := hoursAgo(2)
	_, err = svc.Update(ctx, domain.UpdateEntryRequest{ID: entry.ID.String(), EndTS: &late})
	assert.ErrorIs(t, err, domain.ErrOverlap)

	early := hoursAgo(7)
	_, err = svc.Update(ctx, domain.UpdateEntryRequest{ID: entry.ID.String(), EndTS: &early})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}

func TestOwnershipAndBillingLocks(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	entry := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(6), time.Hour, true)
	req := domain.EntryRequest{ID: entry.ID.String()}

	intruder := env.ContextAs(env.Node.Generate())
	_, err := svc.Update(intruder, domain.UpdateEntryRequest{ID: entry.ID.String(), Description: testutil.Ptr("mine now")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(intruder, req), domain.ErrForbidden)

	lockEntry(t, env, entry.ID)
	_, err = svc.Update(ctx, domain.UpdateEntryRequest{ID: entry.ID.String(), Description: testutil.Ptr("late fix")})
	assert.ErrorIs(t, err, domain.ErrEntryLocked)
	_, err = svc.ApplyIdleTrim(ctx, domain.ApplyIdleTrimRequest{ID: entry.ID.String(), TrimSeconds: 60})
	assert.ErrorIs(t, err, domain.ErrEntryLocked)
	assert.ErrorIs(t, svc.Delete(ctx, req), domain.ErrEntryLocked)

	deletable := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(3), time.Hour, true)
	require.NoError(t, svc.Delete(ctx, domain.EntryRequest{ID: deletable.ID.String()}))
	_, err = svc.Get(ctx, domain.EntryRequest{ID: deletable.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, domain.EntryRequest{ID: deletable.ID.String()}), domain.ErrNotFound)
}

func TestBulkAdjustIsAllOrNothing(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	a := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(8), time.Hour, true)
	b := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(6), time.Hour, true)
	locked := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(4), time.Hour, true)
	lockEntry(t, env, locked.ID)

	_, err := svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		IDs:        []string{a.ID.String(), locked.ID.String()},
		Adjustment: domain.Adjustment{Kind: domain.AdjustMultiply, Factor: decimal.RequireFromString("1.5")},
	})
	assert.ErrorIs(t, err, domain.ErrEntryLocked)
	itemErr, ok := errs.AsItemError(err)
	require.True(t, ok)
	assert.Equal(t, locked.ID.String(), itemErr.ID)

	stored, err := svc.Get(ctx, domain.EntryRequest{ID: a.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), stored.DurationSeconds, "first item must roll back")

	adjusted, err := svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		IDs:        []string{a.ID.String(), b.ID.String()},
		Adjustment: domain.Adjustment{Kind: domain.AdjustAddSeconds, Seconds: 600},
	})
	require.NoError(t, err)
	require.Len(t, adjusted, 2)
	for _, entry := range adjusted {
		assert.Equal(t, int64(4200), entry.DurationSeconds)
	}

	// Growing a into b's slot collides.
	_, err = svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		IDs:        []string{a.ID.String()},
		Adjustment: domain.Adjustment{Kind: domain.AdjustSetDuration, Seconds: 3 * 3600},
	})
	assert.ErrorIs(t, err, domain.ErrOverlap)

	_, err = svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		IDs:        []string{a.ID.String()},
		Adjustment: domain.Adjustment{Kind: domain.AdjustAddSeconds, Seconds: -5000},
	})
	assert.ErrorIs(t, err, domain.ErrNegativeDuration)

	_, err = svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		IDs:        []string{a.ID.String(), a.ID.String()},
		Adjustment: domain.Adjustment{Kind: domain.AdjustAddSeconds, Seconds: 60},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateItem)

	_, err = svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		Adjustment: domain.Adjustment{Kind: domain.AdjustAddSeconds, Seconds: 60},
	})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	_, err = svc.BulkAdjust(ctx, domain.BulkAdjustRequest{
		IDs:        []string{a.ID.String()},
		Adjustment: domain.Adjustment{Kind: "round_up"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAdjustment)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	oldest := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(9), time.Hour, true)
	middle := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(6), time.Hour, false)
	newest := env.SeedEntry(t, env.UserID, project.ID, hoursAgo(3), time.Hour, true)

	page, err := svc.List(ctx, domain.ListTimeEntryRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.TimeEntries, 2)
	assert.Equal(t, newest.ID, page.TimeEntries[0].ID)
	assert.Equal(t, middle.ID, page.TimeEntries[1].ID)
	require.True(t, page.HasMore)

	next, err := svc.List(ctx, domain.ListTimeEntryRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.TimeEntries, 1)
	assert.Equal(t, oldest.ID, next.TimeEntries[0].ID)
	assert.False(t, next.HasMore)

	billable, err := svc.List(ctx, domain.ListTimeEntryRequest{Billable: testutil.Ptr(true)})
	require.NoError(t, err)
	assert.Len(t, billable.TimeEntries, 2)

	_, err = svc.List(ctx, domain.ListTimeEntryRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
