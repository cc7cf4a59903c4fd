package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize_PositiveExpectedReturnProducesBoundedFraction(t *testing.T) {
	alpha := []float64{0.9, 0.1}
	mu := []float64{0.01, -0.01}
	variance := []float64{0.0001, 0.0001}
	s := Size(alpha, 1, mu, variance, DefaultCostBps, DefaultKellyMultiplier, DefaultCap)
	assert.False(t, s.Suppressed)
	assert.Greater(t, s.PositionFraction, 0.0)
	assert.LessOrEqual(t, s.PositionFraction, DefaultCap)
}

func TestSize_NonPositiveExpectedReturnSuppressesSignal(t *testing.T) {
	alpha := []float64{0.5, 0.5}
	mu := []float64{0.0001, -0.0001}
	variance := []float64{0.0001, 0.0001}
	s := Size(alpha, 1, mu, variance, DefaultCostBps, DefaultKellyMultiplier, DefaultCap)
	assert.True(t, s.Suppressed)
	assert.Equal(t, 0.0, s.PositionFraction)
}

func TestSize_FractionNeverExceedsCapEvenWithHugeEdge(t *testing.T) {
	alpha := []float64{1.0}
	mu := []float64{10.0}
	variance := []float64{1e-9}
	s := Size(alpha, 1, mu, variance, 0, 1.0, 0.08)
	assert.Equal(t, 0.08, s.PositionFraction)
}

func TestSize_ConfidenceIsOneMinusNormalizedEntropy(t *testing.T) {
	peaked := Size([]float64{0.999, 0.001}, 1, []float64{0.01, -0.01}, []float64{0.0001, 0.0001}, 0, 0.2, 0.08)
	uniform := Size([]float64{0.5, 0.5}, 1, []float64{0.01, -0.01}, []float64{0.0001, 0.0001}, 0, 0.2, 0.08)
	assert.Greater(t, peaked.Confidence, uniform.Confidence)
	assert.GreaterOrEqual(t, peaked.Confidence, 0.0)
	assert.LessOrEqual(t, peaked.Confidence, 1.0)
}
