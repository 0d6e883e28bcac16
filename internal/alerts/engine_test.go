package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForThresholds(t *testing.T) {
	e := NewEngine(65, 80, time.Minute, nil, nil)
	assert.Equal(t, LevelNone, e.levelFor(10))
	assert.Equal(t, LevelGreen, e.levelFor(70))
	assert.Equal(t, LevelOrange, e.levelFor(90))
}

// fillSamples pushes n one-second-spaced samples into w60 ending at now,
// all with the given mid and imbalance fraction, except that the first
// sample (the ~30s-ago reference) gets refMid so a return can be driven.
func fillSamples(st *keyState, now time.Time, n int, mid, refMid, imbalance float64) {
	for i := n - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * time.Second)
		m := mid
		if i >= 30 {
			m = refMid
		}
		st.w60.push(sample{at: at, mid: m, imbalanceFrac: imbalance})
	}
}

func TestScoreBelowMinSamplesIsZero(t *testing.T) {
	// 29 samples in the 60s ring is below the scoring minimum, so the key
	// scores 0 and emits nothing, even though its imbalance alone would
	// clear these thresholds once 30 samples were present.
	e := NewEngine(1, 2, time.Minute, nil, nil)
	now := time.Now()
	st := &keyState{w60: &ring{window: window60}, w300: &ring{window: window300}, w900: &ring{window: window900}}
	fillSamples(st, now, 29, 100, 100, 0.9)
	assert.Less(t, len(st.w60.samples), minSamples60)

	e.states = map[string]*keyState{"XYZUSD": st}
	e.score()
	assert.Empty(t, e.Trail())
}

func TestComputeScoreMomentumAndImbalance(t *testing.T) {
	// ret_30s=0.02, imbalance=0.80 ->
	// momentum term = min(40, 0.02*2000) = 40
	// imbalance term = (0.80-0.60)*100 = 20
	// score = 60
	now := time.Now()
	st := &keyState{w60: &ring{window: window60}}
	refMid := 100.0
	mid := refMid * 1.02
	fillSamples(st, now, 31, mid, refMid, 0.80)

	score := computeScore(st.w60.samples)
	assert.InDelta(t, 60, score, 1)
}

func TestScoreEmitsAlertAboveThresholdAndRespectsCooldown(t *testing.T) {
	e := NewEngine(20, 50, time.Minute, nil, nil)
	st := &keyState{
		w60:  &ring{window: window60},
		w300: &ring{window: window300},
		w900: &ring{window: window900},
	}
	now := time.Now()
	fillSamples(st, now, 31, 103, 100, 0.95)
	e.states = map[string]*keyState{"XYZUSD": st}

	e.score()
	trail := e.Trail()
	require.Len(t, trail, 1)
	assert.Equal(t, "XYZUSD", trail[0].Key)
	assert.Equal(t, LevelOrange, trail[0].Level)

	// Cooldown: a second score pass immediately after must not emit again.
	e.score()
	assert.Len(t, e.Trail(), 1)
}

func TestRingDropsSamplesOutsideWindow(t *testing.T) {
	r := &ring{window: time.Second}
	base := time.Now()
	r.push(sample{at: base})
	r.push(sample{at: base.Add(2 * time.Second)})
	assert.Len(t, r.samples, 1)
}

func TestTrailCapacityBound(t *testing.T) {
	e := NewEngine(1, 2, 0, nil, nil)
	for i := 0; i < trailCapacity+10; i++ {
		e.trail = append(e.trail, Alert{Key: "k"})
		if len(e.trail) > trailCapacity {
			e.trail = e.trail[len(e.trail)-trailCapacity:]
		}
	}
	assert.Len(t, e.Trail(), trailCapacity)
}
