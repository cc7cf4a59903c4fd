package hypothesis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_LRUEvictsOldestAtCapacity(t *testing.T) {
	e := NewEvaluator("BTCUSDT", 2)
	now := time.Now()
	var firstID string
	for i := 0; i < MaxActive+1; i++ {
		h := NewHypothesis("BTCUSDT", 1, []float64{0.001, -0.001}, []float64{1e-6, 1e-6}, 10, i, now)
		if i == 0 {
			firstID = h.ID
		}
		e.Add(h)
	}
	active := e.Active()
	assert.Len(t, active, MaxActive)
	for _, h := range active {
		assert.NotEqual(t, firstID, h.ID, "oldest hypothesis should have been evicted")
	}
}

func TestEvaluator_Score_NullVsDirectionalSeparation(t *testing.T) {
	e := NewEvaluator("BTCUSDT", 2)
	now := time.Now()
	h := NewHypothesis("BTCUSDT", 1, []float64{0.01, -0.01}, []float64{1e-6, 1e-6}, 50, 0, now)
	e.Add(h)

	// strongly bullish regime, realized return matches the bull hypothesis
	alpha := []float64{0.95, 0.05}
	scores := e.Score(alpha, 0.01, 0, 0)
	require.Contains(t, scores.PerHypothesis, h.ID)
	assert.Greater(t, scores.PerHypothesis[h.ID], scores.Null,
		"a hypothesis whose direction matches the realized return should out-score the null")
}

func TestEvaluator_RegimeTransitionedRequiresHoldTicks(t *testing.T) {
	e := NewEvaluator("BTCUSDT", 3)
	bull := []float64{0.9, 0.05, 0.05}
	bear := []float64{0.05, 0.9, 0.05}

	assert.False(t, e.RegimeTransitioned(bull)) // establishes baseline
	assert.False(t, e.RegimeTransitioned(bear)) // streak=1
	assert.False(t, e.RegimeTransitioned(bear)) // streak=2
	assert.True(t, e.RegimeTransitioned(bear))  // streak=3 -> fires
	assert.False(t, e.RegimeTransitioned(bear))  // no repeat fire on same streak
}

func TestEntanglementHub_CrossContributionWeightedAverage(t *testing.T) {
	weights := map[string]map[string]float64{
		"BTCUSDT": {"ETHUSDT": 0.5},
	}
	hub := NewEntanglementHub(func(i, j string) float64 {
		if row, ok := weights[i]; ok {
			return row[j]
		}
		if row, ok := weights[j]; ok {
			return row[i]
		}
		return 0
	})
	hub.Publish("ETHUSDT", 0.02, time.Now())

	crossReturn, crossWeight := hub.CrossContribution("BTCUSDT")
	assert.InDelta(t, 0.02, crossReturn, 1e-12)
	assert.InDelta(t, 0.5, crossWeight, 1e-12)

	_, zeroWeight := hub.CrossContribution("SOLUSDT")
	assert.Equal(t, 0.0, zeroWeight)
}

func TestBucketByRegime_FallsBackToGlobalWhenRegimeUnseen(t *testing.T) {
	alphaHistory := [][]float64{{1, 0}, {1, 0}, {1, 0}}
	returns := []float64{0.01, 0.02, 0.03}
	mean, variance := bucketByRegime(2, alphaHistory, returns)
	assert.InDelta(t, 0.02, mean[0], 1e-9)
	assert.InDelta(t, mean[0], mean[1], 1e-9, "unseen regime falls back to the global mean")
	assert.Greater(t, variance[0], 0.0)
}

func TestGenerateOnTransition_CreatesOppositeDirectionPair(t *testing.T) {
	alphaHistory := [][]float64{{0.9, 0.1}, {0.8, 0.2}}
	returns := []float64{0.01, 0.015}
	bull, bear := GenerateOnTransition("BTCUSDT", 2, alphaHistory, returns, 100, 10, time.Now())
	assert.Equal(t, 1, bull.Direction)
	assert.Equal(t, -1, bear.Direction)
	assert.Equal(t, "BTCUSDT", bull.Instrument)
	assert.Equal(t, bull.ExpectedReturnPerRegime, bear.ExpectedReturnPerRegime)
}
