package domain

import (
	"math"
	"sort"
	"time"
)

const (
	BasisClient   = "client"
	BasisServer   = "server"
	BasisCombined = "combined"
)

// ServerIdleIntervals applies heartbeat-gap detection to the running spans of an
// entry. Inside each span the span bounds and every heartbeat count as activity;
// a silence longer than gap is idle except for its first gap seconds.
// With no heartbeats at all the server has no evidence and returns nil.
func ServerIdleIntervals(spans []Interval, heartbeats []time.Time, gap time.Duration) []Interval {
	if len(heartbeats) == 0 || gap <= 0 {
		return nil
	}
	sorted := make([]time.Time, len(heartbeats))
	copy(sorted, heartbeats)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var idle []Interval
	for _, span := range spans {
		points := []time.Time{span.Start}
		for _, hb := range sorted {
			if hb.After(span.Start) && hb.Before(span.End) {
				points = append(points, hb)
			}
		}
		points = append(points, span.End)

		for i := 1; i < len(points); i++ {
			silence := points[i].Sub(points[i-1])
			if silence > gap {
				idle = append(idle, Interval{Start: points[i-1].Add(gap), End: points[i]})
			}
		}
	}
	return idle
}

// SuggestIdle combines client-reported idle intervals with the server heuristic.
// Idle seconds are the union of both sources; the suggested trim is what both
// agree on when both report, otherwise whichever source reported. It returns nil
// when neither source has anything to say.
func SuggestIdle(spans []Interval, client, server []Interval, grossSeconds int64) *IdleSuggestion {
	client = ClipTo(client, spans)
	server = ClipTo(server, spans)
	if client == nil && server == nil {
		return nil
	}

	var basis string
	var suggested []Interval
	switch {
	case client != nil && server != nil:
		basis = BasisCombined
		suggested = Intersect(client, server)
	case client != nil:
		basis = BasisClient
		suggested = client
	default:
		basis = BasisServer
		suggested = server
	}

	idleSeconds := Total(Union(client, server))
	trimSeconds := Total(suggested)
	if idleSeconds > grossSeconds {
		idleSeconds = grossSeconds
	}
	if trimSeconds > grossSeconds {
		trimSeconds = grossSeconds
	}

	var percent float64
	if grossSeconds > 0 {
		percent = math.Round(float64(idleSeconds)/float64(grossSeconds)*10000) / 100
	}
	return &IdleSuggestion{
		IdleSeconds:          idleSeconds,
		IdlePercent:          percent,
		SuggestedTrimSeconds: trimSeconds,
		Basis:                basis,
	}
}

// Union merges intervals into a sorted, non-overlapping list.
func Union(sets ...[]Interval) []Interval {
	var all []Interval
	for _, set := range sets {
		for _, iv := range set {
			if iv.End.After(iv.Start) {
				all = append(all, iv)
			}
		}
	}
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })

	merged := []Interval{all[0]}
	for _, iv := range all[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Intersect returns the instants covered by both a and b.
func Intersect(a, b []Interval) []Interval {
	a, b = Union(a), Union(b)
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := maxTime(a[i].Start, b[j].Start)
		end := minTime(a[i].End, b[j].End)
		if end.After(start) {
			out = append(out, Interval{Start: start, End: end})
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// ClipTo keeps only the parts of intervals inside spans. A nil input stays nil so
// callers can tell "not reported" from "reported nothing".
func ClipTo(intervals, spans []Interval) []Interval {
	if intervals == nil {
		return nil
	}
	clipped := Intersect(intervals, spans)
	if clipped == nil {
		return []Interval{}
	}
	return clipped
}

func Total(intervals []Interval) int64 {
	var total int64
	for _, iv := range Union(intervals) {
		total += iv.Seconds()
	}
	return total
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
