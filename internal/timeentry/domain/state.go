package domain

import "time"

func (e *TimeEntry) State() State {
	if e.EndTS != nil {
		return StateStopped
	}
	if e.openPause() >= 0 {
		return StatePaused
	}
	return StateRunning
}

// Billed reports whether a non-cancelled invoice references the entry.
func (e *TimeEntry) Billed() bool {
	return e.InvoiceID != nil
}

func (e *TimeEntry) openPause() int {
	for i := len(e.PausedIntervals) - 1; i >= 0; i-- {
		if e.PausedIntervals[i].End == nil {
			return i
		}
	}
	return -1
}

func (e *TimeEntry) Pause(now time.Time) error {
	if e.State() != StateRunning {
		return ErrInvalidState
	}
	if n := len(e.PausedIntervals); n > 0 {
		last := e.PausedIntervals[n-1]
		if last.End != nil && now.Before(*last.End) {
			return ErrInvalidState
		}
	}
	e.PausedIntervals = append(e.PausedIntervals, PausedInterval{Start: now})
	return nil
}

func (e *TimeEntry) Resume(now time.Time) error {
	if e.State() != StatePaused {
		return ErrInvalidState
	}
	e.closePause(now)
	return nil
}

// Finish closes any open pause and sets the end bound.
func (e *TimeEntry) Finish(now time.Time) error {
	if e.State() == StateStopped {
		return ErrInvalidState
	}
	if now.Before(e.StartTS) {
		now = e.StartTS
	}
	e.closePause(now)
	end := now
	e.EndTS = &end
	e.Recalculate()
	return nil
}

func (e *TimeEntry) closePause(now time.Time) {
	idx := e.openPause()
	if idx < 0 {
		return
	}
	if now.Before(e.PausedIntervals[idx].Start) {
		now = e.PausedIntervals[idx].Start
	}
	end := now
	intervals := make([]PausedInterval, len(e.PausedIntervals))
	copy(intervals, e.PausedIntervals)
	intervals[idx].End = &end
	e.PausedIntervals = intervals
}

// PausedSeconds sums closed pauses, and an open pause up to until.
func (e *TimeEntry) PausedSeconds(until time.Time) int64 {
	var total int64
	for _, p := range e.PausedIntervals {
		end := until
		if p.End != nil {
			end = *p.End
		}
		total += Interval{Start: p.Start, End: end}.Seconds()
	}
	return total
}

// GrossSeconds is the worked span before any idle trim.
func (e *TimeEntry) GrossSeconds(now time.Time) int64 {
	end := now
	if e.EndTS != nil {
		end = *e.EndTS
	}
	gross := Interval{Start: e.StartTS, End: end}.Seconds() - e.PausedSeconds(end)
	if gross < 0 {
		return 0
	}
	return gross
}

// Recalculate derives DurationSeconds for a stopped entry.
func (e *TimeEntry) Recalculate() {
	if e.EndTS == nil {
		e.DurationSeconds = 0
		return
	}
	duration := e.GrossSeconds(*e.EndTS) - e.IdleTrimAppliedSeconds
	if duration < 0 {
		duration = 0
	}
	e.DurationSeconds = duration
}

// ApplyTrim commits trimSeconds as the idle trim, replacing any earlier trim.
func (e *TimeEntry) ApplyTrim(trimSeconds int64) error {
	if e.State() != StateStopped {
		return ErrInvalidState
	}
	if trimSeconds < 0 {
		return ErrInvalidTrim
	}
	if e.GrossSeconds(*e.EndTS)-trimSeconds < 0 {
		return ErrTrimExceedsDuration
	}
	e.IdleTrimAppliedSeconds = trimSeconds
	e.Recalculate()
	return nil
}

// RunningSpans returns the worked sub-spans of [start, end) with pauses removed.
func (e *TimeEntry) RunningSpans(end time.Time) []Interval {
	spans := make([]Interval, 0, len(e.PausedIntervals)+1)
	cursor := e.StartTS
	for _, p := range e.PausedIntervals {
		pauseEnd := end
		if p.End != nil {
			pauseEnd = *p.End
		}
		if p.Start.After(cursor) {
			spans = append(spans, Interval{Start: cursor, End: minTime(p.Start, end)})
		}
		if pauseEnd.After(cursor) {
			cursor = pauseEnd
		}
	}
	if end.After(cursor) {
		spans = append(spans, Interval{Start: cursor, End: end})
	}
	return spans
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// Resize moves EndTS so DurationSeconds becomes seconds. Worked time is laid out
// across the running spans; pauses past the new end are dropped or clipped.
func (e *TimeEntry) Resize(seconds int64) error {
	if e.State() != StateStopped {
		return ErrInvalidState
	}
	if seconds < 0 {
		return ErrNegativeDuration
	}

	remaining := time.Duration(seconds+e.IdleTrimAppliedSeconds) * time.Second
	end := e.EndTS.Add(remaining)
	spans := e.RunningSpans(*e.EndTS)
	for _, span := range spans {
		length := span.End.Sub(span.Start)
		if remaining <= length {
			end = span.Start.Add(remaining)
			break
		}
		remaining -= length
		end = e.EndTS.Add(remaining)
	}

	e.clipPauses(e.StartTS, end)
	e.EndTS = &end
	e.Recalculate()
	return nil
}

// Reschedule sets new bounds on a stopped entry and clips pauses into them.
func (e *TimeEntry) Reschedule(start, end time.Time) error {
	if e.State() != StateStopped {
		return ErrInvalidState
	}
	if !end.After(start) {
		return ErrInvalidTimeRange
	}
	e.clipPauses(start, end)
	e.StartTS = start
	e.EndTS = &end
	if e.GrossSeconds(end) < e.IdleTrimAppliedSeconds {
		return ErrTrimExceedsDuration
	}
	e.Recalculate()
	return nil
}

func (e *TimeEntry) clipPauses(start, end time.Time) {
	kept := make([]PausedInterval, 0, len(e.PausedIntervals))
	for _, p := range e.PausedIntervals {
		pauseEnd := end
		if p.End != nil && p.End.Before(end) {
			pauseEnd = *p.End
		}
		pauseStart := p.Start
		if pauseStart.Before(start) {
			pauseStart = start
		}
		if !pauseEnd.After(pauseStart) {
			continue
		}
		closed := pauseEnd
		kept = append(kept, PausedInterval{Start: pauseStart, End: &closed})
	}
	e.PausedIntervals = kept
}
