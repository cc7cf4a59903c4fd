package hmm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParams(k int) *Params {
	return NewWeaklyInformativePrior(k, 1e-4, 2.5, 30)
}

func TestTransitionMatrix_RowStochastic(t *testing.T) {
	p := newTestParams(6)
	for _, z := range [][]float64{{0, 0, 0}, {0.5, -0.2, 0.1}, {-3, 2, 9}} {
		a := p.TransitionMatrix(z)
		for i, row := range a {
			sum := 0.0
			for _, v := range row {
				assert.GreaterOrEqual(t, v, 0.0)
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "row %d must sum to 1", i)
		}
	}
}

func TestFilter_PosteriorNormalizes(t *testing.T) {
	p := newTestParams(3)
	alpha := append([]float64(nil), p.Pi...)
	for i := 0; i < 50; i++ {
		x := []float64{0.001 * float64(i%5-2), -5, 0, 0.1}
		z := []float64{0, -5, 0.1}
		res := p.Filter(alpha, x, z)
		sum := 0.0
		for _, v := range res.Alpha {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		alpha = res.Alpha
	}
}

func TestEntropy_UniformIsMaximal(t *testing.T) {
	uniform := []float64{0.25, 0.25, 0.25, 0.25}
	peaked := []float64{0.97, 0.01, 0.01, 0.01}
	assert.Greater(t, Entropy(uniform), Entropy(peaked))
	assert.InDelta(t, math.Log(4), Entropy(uniform), 1e-9)
}

func TestProjectSPD_FloorsSmallEigenvalues(t *testing.T) {
	p := newTestParams(1)
	// construct a near-singular covariance
	data := []float64{1e-12, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	sigma := symFromFlatTest(data)
	proj := ProjectSPD(sigma)
	var eig struct{}
	_ = eig
	// the smallest eigenvalue of the projected matrix must be >= SPDFloor
	minEig := smallestEigenvalue(proj)
	assert.GreaterOrEqual(t, minEig, SPDFloor*0.999)
	_ = p
}

func TestForwardBackward_GammaNormalizesAndConsistentWithAlphaBeta(t *testing.T) {
	p := newTestParams(2)
	rng := rand.New(rand.NewSource(1))
	xs := make([][]float64, 40)
	zs := make([][]float64, 40)
	for i := range xs {
		xs[i] = []float64{rng.NormFloat64() * 0.01, -5, 0, 0}
		zs[i] = []float64{0, -5, 0}
	}
	result := p.ForwardBackward(xs, zs)
	require.Len(t, result.Gamma, 40)
	for _, g := range result.Gamma {
		sum := 0.0
		for _, v := range g {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	require.Len(t, result.Xi, 39)
	for _, row := range result.Xi {
		sum := 0.0
		for _, r := range row {
			for _, v := range r {
				sum += v
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	// β is 1 at the final step, so γ there must equal the filtered α.
	alpha := p.ForwardBackward(xs[:1], zs[:1]).Gamma[0]
	for i := 1; i < len(xs); i++ {
		alpha = p.Filter(alpha, xs[i], zs[i]).Alpha
	}
	for h, v := range alpha {
		assert.InDelta(t, v, result.Gamma[len(xs)-1][h], 1e-6)
	}
}

func TestEngine_InstabilityDetectorTripsOnSustainedHighEntropy(t *testing.T) {
	p := newTestParams(6)
	e := NewEngine("BTCUSDT", p, 100000, 1000)
	for i := 0; i < InstabilityWindow+1; i++ {
		// near-identical evidence across all regimes keeps the posterior
		// close to uniform, i.e. high entropy.
		e.Step([]float64{0, -5, 0, 0}, []float64{0, -5, 0})
	}
	assert.True(t, e.Unstable())
}

func TestEngine_QuarantineAfterThreeConsecutiveEMFailures(t *testing.T) {
	p := newTestParams(2)
	e := NewEngine("BTCUSDT", p, 1, 5)
	for i := 0; i < 3; i++ {
		e.recordFailure()
	}
	assert.True(t, e.Quarantined())
}

func TestLogSumExp_MatchesNaiveOnWellConditionedInputs(t *testing.T) {
	v := []float64{-1, -2, -3, -0.5}
	naive := 0.0
	for _, x := range v {
		naive += math.Exp(x)
	}
	naive = math.Log(naive)
	assert.InDelta(t, naive, logSumExp(v), 1e-6)
}
