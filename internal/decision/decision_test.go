package decision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewThresholds_MatchesStandardSPRTConstants(t *testing.T) {
	th := NewThresholds(0.05, 0.20)
	assert.InDelta(t, 2.77, th.A, 0.01)
	assert.InDelta(t, -1.38, th.B, 0.01)
}

func TestEngine_OnlyNullHypothesisActive_NeverExecutes(t *testing.T) {
	e := NewEngine(DefaultGamma, NewThresholds(0.05, 0.20))
	// with no other hypothesis ever scored, nothing can ever cross A.
	assert.Equal(t, 0.0, e.LogOdds("nonexistent"))
	// scoring the null against itself adds no evidence either.
	for i := 0; i < 500; i++ {
		assert.NotEqual(t, OutcomeExecute, e.Update("null", -1.2, -1.2, i, 1000, false))
	}
}

func TestEngine_StrongPositiveEvidenceReachesExecute(t *testing.T) {
	e := NewEngine(DefaultGamma, NewThresholds(0.05, 0.20))
	var last Outcome
	for i := 0; i < 100; i++ {
		last = e.Update("h1", 0.05, 0.0, i, 1000, false)
		if last == OutcomeExecute {
			break
		}
	}
	assert.Equal(t, OutcomeExecute, last)
}

func TestEngine_ContradictoryEvidenceAbandons(t *testing.T) {
	e := NewEngine(DefaultGamma, NewThresholds(0.05, 0.20))
	var last Outcome
	for i := 0; i < 150; i++ {
		last = e.Update("h1", -0.03, 0.0, i, 1000, false)
		if last == OutcomeAbandon {
			break
		}
	}
	assert.Equal(t, OutcomeAbandon, last)
	assert.Equal(t, 0.0, e.LogOdds("h1"), "log-odds forgotten after abandonment")
}

func TestEngine_AgeExceedsHorizon_Expires(t *testing.T) {
	e := NewEngine(DefaultGamma, NewThresholds(0.05, 0.20))
	out := e.Update("h1", 0.001, 0.0, 11, 10, false)
	assert.Equal(t, OutcomeExpired, out)
}

func TestEngine_FrozenTickDoesNotUpdateButStillAges(t *testing.T) {
	e := NewEngine(DefaultGamma, NewThresholds(0.05, 0.20))
	e.Update("h1", 0.05, 0.0, 0, 1000, false)
	before := e.LogOdds("h1")
	out := e.Update("h1", 5.0, 0.0, 1, 1000, true)
	assert.Equal(t, before, e.LogOdds("h1"), "frozen tick must not change log-odds")
	assert.Equal(t, OutcomeContinue, out)
}

func TestEngine_ZeroGamma_DependsOnlyOnCurrentTick(t *testing.T) {
	e := NewEngine(0, NewThresholds(0.05, 0.20))
	e.Update("h1", 10.0, 0.0, 0, 1000, false)
	out := e.Update("h1", 0.01, 0.0, 1, 1000, false)
	assert.InDelta(t, 0.01, e.LogOdds("h1"), 1e-9)
	assert.Equal(t, OutcomeContinue, out)
}

func TestResolveTies_PicksHighestLogOdds(t *testing.T) {
	cands := []Candidate{
		{HypothesisID: "a", LogOdds: 3.0},
		{HypothesisID: "b", LogOdds: 5.0},
		{HypothesisID: "c", LogOdds: 2.9},
	}
	winner, ok := ResolveTies(cands)
	assert.True(t, ok)
	assert.Equal(t, "b", winner.HypothesisID)
}

func TestResolveTies_EmptyHasNoWinner(t *testing.T) {
	_, ok := ResolveTies(nil)
	assert.False(t, ok)
}

func TestThresholds_AIsPositiveBIsNegative(t *testing.T) {
	th := NewThresholds(0.05, 0.20)
	assert.Greater(t, th.A, 0.0)
	assert.Less(t, th.B, 0.0)
	assert.False(t, math.IsNaN(th.A))
}
