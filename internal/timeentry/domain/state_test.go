package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func running() *TimeEntry {
	return &TimeEntry{StartTS: t0}
}

// stoppedWithPause runs 09:00-10:00 with a pause from 09:10 to 09:15.
func stoppedWithPause(t *testing.T) *TimeEntry {
	t.Helper()
	entry := running()
	require.NoError(t, entry.Pause(at(10)))
	require.NoError(t, entry.Resume(at(15)))
	require.NoError(t, entry.Finish(at(60)))
	return entry
}

func TestTimerTransitions(t *testing.T) {
	entry := running()
	assert.Equal(t, StateRunning, entry.State())
	assert.ErrorIs(t, entry.Resume(at(1)), ErrInvalidState)

	require.NoError(t, entry.Pause(at(10)))
	assert.Equal(t, StatePaused, entry.State())
	assert.ErrorIs(t, entry.Pause(at(11)), ErrInvalidState)

	require.NoError(t, entry.Resume(at(15)))
	assert.Equal(t, StateRunning, entry.State())
	assert.Equal(t, int64(5*60), entry.PausedSeconds(at(30)))

	require.NoError(t, entry.Finish(at(60)))
	assert.Equal(t, StateStopped, entry.State())
	assert.Equal(t, int64(55*60), entry.DurationSeconds)

	assert.ErrorIs(t, entry.Finish(at(70)), ErrInvalidState)
	assert.ErrorIs(t, entry.Pause(at(70)), ErrInvalidState)
}

func TestFinishWhilePausedClosesPause(t *testing.T) {
	entry := running()
	require.NoError(t, entry.Pause(at(20)))
	require.NoError(t, entry.Finish(at(50)))

	require.Len(t, entry.PausedIntervals, 1)
	require.NotNil(t, entry.PausedIntervals[0].End)
	assert.True(t, entry.PausedIntervals[0].End.Equal(at(50)))
	assert.Equal(t, int64(20*60), entry.DurationSeconds)
}

func TestGrossSecondsOfRunningEntry(t *testing.T) {
	entry := running()
	require.NoError(t, entry.Pause(at(10)))
	assert.Equal(t, int64(10*60), entry.GrossSeconds(at(25)))
	assert.Zero(t, entry.DurationSeconds)
}

func TestApplyTrimReplacesPreviousTrim(t *testing.T) {
	entry := stoppedWithPause(t)

	require.NoError(t, entry.ApplyTrim(300))
	assert.Equal(t, int64(55*60-300), entry.DurationSeconds)

	require.NoError(t, entry.ApplyTrim(100))
	assert.Equal(t, int64(100), entry.IdleTrimAppliedSeconds)
	assert.Equal(t, int64(55*60-100), entry.DurationSeconds)

	assert.ErrorIs(t, entry.ApplyTrim(-1), ErrInvalidTrim)
	assert.ErrorIs(t, entry.ApplyTrim(55*60+1), ErrTrimExceedsDuration)
	assert.Equal(t, int64(100), entry.IdleTrimAppliedSeconds)

	assert.ErrorIs(t, running().ApplyTrim(10), ErrInvalidState)
}

func TestResizeLaysOutAcrossRunningSpans(t *testing.T) {
	entry := stoppedWithPause(t)

	require.NoError(t, entry.Resize(30*60))
	assert.Equal(t, int64(30*60), entry.DurationSeconds)
	assert.True(t, entry.EndTS.Equal(at(35)), entry.EndTS.String())
	require.Len(t, entry.PausedIntervals, 1)

	require.NoError(t, entry.Resize(5*60))
	assert.True(t, entry.EndTS.Equal(at(5)))
	assert.Empty(t, entry.PausedIntervals)
	assert.Equal(t, int64(5*60), entry.DurationSeconds)

	assert.ErrorIs(t, entry.Resize(-1), ErrNegativeDuration)
}

func TestResizeExtendsPastEnd(t *testing.T) {
	entry := stoppedWithPause(t)

	require.NoError(t, entry.Resize(70*60))
	assert.True(t, entry.EndTS.Equal(at(75)), entry.EndTS.String())
	assert.Equal(t, int64(70*60), entry.DurationSeconds)
}

func TestResizeKeepsIdleTrim(t *testing.T) {
	entry := stoppedWithPause(t)
	require.NoError(t, entry.ApplyTrim(600))

	require.NoError(t, entry.Resize(20*60))
	assert.Equal(t, int64(20*60), entry.DurationSeconds)
	assert.Equal(t, int64(600), entry.IdleTrimAppliedSeconds)
}

func TestReschedule(t *testing.T) {
	entry := stoppedWithPause(t)

	require.NoError(t, entry.Reschedule(at(12), at(40)))
	require.Len(t, entry.PausedIntervals, 1)
	assert.True(t, entry.PausedIntervals[0].Start.Equal(at(12)))
	assert.Equal(t, int64(25*60), entry.DurationSeconds)

	assert.ErrorIs(t, entry.Reschedule(at(40), at(40)), ErrInvalidTimeRange)

	require.NoError(t, entry.ApplyTrim(20*60))
	assert.ErrorIs(t, entry.Reschedule(at(0), at(10)), ErrTrimExceedsDuration)
}
