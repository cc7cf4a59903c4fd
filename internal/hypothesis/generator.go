package hypothesis

import "time"

// GenerateOnTransition creates a direction=+1 and a direction=-1 hypothesis
// when a regime transition event has fired (spec.md §4.4). Per-regime
// expected return and variance are estimated as the mean and variance of
// the last T_window realized returns falling into each regime's
// highest-posterior bucket — the residual-window-mean estimator mandated by
// spec.md's Open Question on this formula (see DESIGN.md).
func GenerateOnTransition(instrument string, k int, alphaHistory [][]float64, returns []float64, horizonTicks, nowTick int, now time.Time) (bull, bear *Hypothesis) {
	mean, variance := bucketByRegime(k, alphaHistory, returns)

	bullReturn := append([]float64(nil), mean...)
	bullVariance := append([]float64(nil), variance...)
	bull = NewHypothesis(instrument, +1, bullReturn, bullVariance, horizonTicks, nowTick, now)

	bearReturn := append([]float64(nil), mean...)
	bearVariance := append([]float64(nil), variance...)
	bear = NewHypothesis(instrument, -1, bearReturn, bearVariance, horizonTicks, nowTick, now)

	return bull, bear
}

// bucketByRegime assigns each realized return to the regime with the
// highest posterior probability at that tick and returns the per-regime
// mean and variance, falling back to the global mean/variance for any
// regime that received no samples in the window.
func bucketByRegime(k int, alphaHistory [][]float64, returns []float64) (mean, variance []float64) {
	sums := make([]float64, k)
	sumSq := make([]float64, k)
	counts := make([]int, k)

	var globalSum, globalSumSq float64
	n := len(returns)
	for i := 0; i < n && i < len(alphaHistory); i++ {
		r := returns[i]
		globalSum += r
		globalSumSq += r * r
		h := argmaxIndex(alphaHistory[i])
		sums[h] += r
		sumSq[h] += r * r
		counts[h]++
	}

	globalMean, globalVar := 0.0, 1e-8
	if n > 0 {
		globalMean = globalSum / float64(n)
		globalVar = globalSumSq/float64(n) - globalMean*globalMean
		if globalVar < 1e-8 {
			globalVar = 1e-8
		}
	}

	mean = make([]float64, k)
	variance = make([]float64, k)
	for h := 0; h < k; h++ {
		if counts[h] == 0 {
			mean[h] = globalMean
			variance[h] = globalVar
			continue
		}
		m := sums[h] / float64(counts[h])
		v := sumSq[h]/float64(counts[h]) - m*m
		if v < 1e-8 {
			v = 1e-8
		}
		mean[h] = m
		variance[h] = v
	}
	return mean, variance
}

// RefreshStale re-estimates expected return/variance for every EVALUATING
// hypothesis older than RefreshPeriod, using the same residual-window
// estimator as hypothesis creation (spec.md §4.4 "periodic timer (60s)").
func RefreshStale(active []*Hypothesis, k int, alphaHistory [][]float64, returns []float64, now time.Time) {
	mean, variance := bucketByRegime(k, alphaHistory, returns)
	for _, h := range active {
		if now.Sub(h.CreatedAt) < RefreshPeriod {
			continue
		}
		h.ExpectedReturnPerRegime = append([]float64(nil), mean...)
		h.ExpectedVariancePerRegime = append([]float64(nil), variance...)
	}
}
