package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/auditcontext"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	"github.com/smallbiznis/timeledger/internal/lock"
	obscontext "github.com/smallbiznis/timeledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeOverdue struct {
	results []int
	calls   int
	limits  []int
	jobs    []string
}

func (f *fakeOverdue) MarkOverdue(ctx context.Context, limit int) (int, error) {
	f.limits = append(f.limits, limit)
	f.jobs = append(f.jobs, auditcontext.JobFromContext(ctx))
	f.calls++
	if len(f.results) == 0 {
		return 0, nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next, nil
}

type fakeRefresher struct {
	count int
	err   error
	calls int
}

func (f *fakeRefresher) RefreshStale(context.Context, int) (int, error) {
	f.calls++
	return f.count, f.err
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *fakeOverdue, *fakeRefresher, *lock.LocalLocker) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	locker := lock.NewLocalLocker()
	invoices := &fakeOverdue{}
	financials := &fakeRefresher{}
	return &Scheduler{
		log:        zaptest.NewLogger(t),
		cfg:        cfg.withDefaults(),
		genID:      node,
		clock:      clock.NewFakeClock(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)),
		locker:     locker,
		invoices:   invoices,
		financials: financials,
	}, invoices, financials, locker
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.NoError(t, err)
}

func TestRunJobWrapsError(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestInvoiceOverdueJobDrainsFullBatches(t *testing.T) {
	s, invoices, _, _ := newTestScheduler(t, Config{BatchSize: 10})
	invoices.results = []int{10, 10, 3}

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 3, invoices.calls)
	assert.Equal(t, []int{10, 10, 10}, invoices.limits)
	assert.Equal(t, JobInvoiceOverdue, invoices.jobs[0])
}

func TestRunOnceSkipsJobWhoseLeaseIsHeld(t *testing.T) {
	s, invoices, financials, locker := newTestScheduler(t, Config{})
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, jobLockPrefix+JobInvoiceOverdue, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RunOnce(ctx))
	assert.Zero(t, invoices.calls)
	assert.Equal(t, 1, financials.calls)

	require.NoError(t, locker.Release(ctx, jobLockPrefix+JobInvoiceOverdue, token))
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, 1, invoices.calls)
}

func TestRunOnceJoinsErrorsAndReleasesLeases(t *testing.T) {
	s, invoices, financials, locker := newTestScheduler(t, Config{})
	financials.err = errors.New("database is locked")
	ctx := context.Background()

	err := s.RunOnce(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), JobFinancialsRefresh)
	assert.Equal(t, 1, invoices.calls)

	for _, job := range []string{JobInvoiceOverdue, JobFinancialsRefresh} {
		_, ok, err := locker.TryLock(ctx, jobLockPrefix+job, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, job)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	s, invoices, financials, _ := newTestScheduler(t, Config{EnabledJobs: []string{"FINANCIALS_REFRESH"}})

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Zero(t, invoices.calls)
	assert.Equal(t, 1, financials.calls)
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{})

	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.GreaterOrEqual(t, cfg.LockTTL, cfg.JobTimeout)

	cfg = ProvideConfig(config.Config{Scheduler: config.SchedulerConfig{RunInterval: 5 * time.Second, BatchSize: 7}})
	assert.Equal(t, 5*time.Second, cfg.RunInterval)
	assert.Equal(t, 7, cfg.BatchSize)
}

func TestRunJobCarriesCorrelationID(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})

	var correlationID string
	require.NoError(t, s.runJob(context.Background(), "probe", 1, time.Second, func(ctx context.Context) error {
		correlationID = obscontext.CorrelationIDFromContext(ctx)
		return nil
	}))

	assert.NotEmpty(t, correlationID)
}
