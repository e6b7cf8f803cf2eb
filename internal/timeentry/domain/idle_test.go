package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func span(from, to int) Interval {
	return Interval{Start: at(from), End: at(to)}
}

func TestServerIdleIntervalsFromHeartbeatGaps(t *testing.T) {
	spans := []Interval{span(0, 60)}
	heartbeats := []time.Time{at(40), at(5), at(10)}

	idle := ServerIdleIntervals(spans, heartbeats, 5*time.Minute)

	assert.Equal(t, []Interval{span(15, 40), span(45, 60)}, idle)
	assert.Equal(t, int64(40*60), Total(idle))
}

func TestServerIdleIntervalsRespectsPauses(t *testing.T) {
	spans := []Interval{span(0, 10), span(30, 60)}
	heartbeats := []time.Time{at(8), at(35)}

	idle := ServerIdleIntervals(spans, heartbeats, 5*time.Minute)

	assert.Equal(t, []Interval{span(40, 60)}, idle)
}

func TestServerIdleIntervalsWithoutEvidence(t *testing.T) {
	assert.Nil(t, ServerIdleIntervals([]Interval{span(0, 60)}, nil, 5*time.Minute))
	assert.Nil(t, ServerIdleIntervals([]Interval{span(0, 60)}, []time.Time{at(1)}, 0))
}

func TestSuggestIdleCombinesSources(t *testing.T) {
	spans := []Interval{span(0, 60)}
	server := []Interval{span(15, 40), span(45, 60)}
	client := []Interval{span(20, 50)}

	suggestion := SuggestIdle(spans, client, server, 60*60)

	require.NotNil(t, suggestion)
	assert.Equal(t, BasisCombined, suggestion.Basis)
	assert.Equal(t, int64(45*60), suggestion.IdleSeconds)
	assert.Equal(t, int64(25*60), suggestion.SuggestedTrimSeconds)
	assert.InDelta(t, 75.0, suggestion.IdlePercent, 0.001)
}

func TestSuggestIdleSingleSource(t *testing.T) {
	spans := []Interval{span(0, 60)}

	client := SuggestIdle(spans, []Interval{span(50, 90)}, nil, 60*60)
	require.NotNil(t, client)
	assert.Equal(t, BasisClient, client.Basis)
	assert.Equal(t, int64(10*60), client.SuggestedTrimSeconds)

	server := SuggestIdle(spans, nil, []Interval{span(0, 30)}, 60*60)
	require.NotNil(t, server)
	assert.Equal(t, BasisServer, server.Basis)
	assert.Equal(t, int64(30*60), server.SuggestedTrimSeconds)
	assert.InDelta(t, 50.0, server.IdlePercent, 0.001)
}

func TestSuggestIdleDistinguishesNothingReported(t *testing.T) {
	spans := []Interval{span(0, 60)}

	assert.Nil(t, SuggestIdle(spans, nil, nil, 60*60))

	empty := SuggestIdle(spans, []Interval{}, nil, 60*60)
	require.NotNil(t, empty)
	assert.Equal(t, BasisClient, empty.Basis)
	assert.Zero(t, empty.SuggestedTrimSeconds)
	assert.Zero(t, empty.IdlePercent)
}

func TestIntervalSetOperations(t *testing.T) {
	merged := Union([]Interval{span(0, 10), span(5, 20)}, []Interval{span(20, 25), span(40, 40)})
	assert.Equal(t, []Interval{span(0, 25)}, merged)

	overlap := Intersect([]Interval{span(0, 30)}, []Interval{span(10, 20), span(25, 40)})
	assert.Equal(t, []Interval{span(10, 20), span(25, 30)}, overlap)

	assert.Nil(t, Intersect([]Interval{span(0, 5)}, []Interval{span(5, 10)}))
	assert.Equal(t, int64(25*60), Total([]Interval{span(0, 10), span(5, 25)}))
}
