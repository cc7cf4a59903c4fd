package hmm

import "math"

// SmoothResult holds a forward-backward pass over a window of T
// observations: smoothed posteriors γ_t(h) and pairwise ξ_t(i,j) (spec.md
// §4.3 "Online parameter update").
type SmoothResult struct {
	Gamma [][]float64   // T x K, each row sums to 1
	Xi    [][][]float64 // (T-1) x K x K
	LogZ  []float64     // per-tick marginal log-likelihood from the forward pass
}

// ForwardBackward runs the vectorized forward-backward algorithm over a
// window of observations using the *current* Θ (spec.md §4.3). xs and zs
// must have equal length T; the initial distribution is p.Pi.
func (p *Params) ForwardBackward(xs, zs [][]float64) SmoothResult {
	t := len(xs)
	k := p.K

	as := make([][][]float64, t)
	logAlpha := make([][]float64, t)
	logZ := make([]float64, t)

	for step := 0; step < t; step++ {
		as[step] = p.TransitionMatrix(zs[step])
		logEmission := make([]float64, k)
		for h := 0; h < k; h++ {
			logEmission[h] = p.studentTLogPDF(h, xs[step])
		}
		unnorm := make([]float64, k)
		if step == 0 {
			for h := 0; h < k; h++ {
				unnorm[h] = math.Log(p.Pi[h]+tinyFloor) + logEmission[h]
			}
		} else {
			for h := 0; h < k; h++ {
				sum := 0.0
				for i := 0; i < k; i++ {
					sum += math.Exp(logAlpha[step-1][i]) * as[step][i][h]
				}
				unnorm[h] = math.Log(sum+tinyFloor) + logEmission[h]
			}
		}
		z := logSumExp(unnorm)
		logZ[step] = z
		normalized := make([]float64, k)
		for h := range normalized {
			normalized[h] = unnorm[h] - z
		}
		logAlpha[step] = normalized
	}

	logBeta := make([][]float64, t)
	logBeta[t-1] = make([]float64, k) // log(1) = 0

	emissionCache := make([][]float64, t)
	for step := 0; step < t; step++ {
		emissionCache[step] = make([]float64, k)
		for h := 0; h < k; h++ {
			emissionCache[step][h] = p.studentTLogPDF(h, xs[step])
		}
	}

	for step := t - 2; step >= 0; step-- {
		logBeta[step] = make([]float64, k)
		aNext := as[step+1]
		for i := 0; i < k; i++ {
			terms := make([]float64, k)
			for j := 0; j < k; j++ {
				terms[j] = math.Log(aNext[i][j]+tinyFloor) + emissionCache[step+1][j] + logBeta[step+1][j]
			}
			logBeta[step][i] = logSumExp(terms)
		}
	}

	gamma := make([][]float64, t)
	for step := 0; step < t; step++ {
		raw := make([]float64, k)
		for h := 0; h < k; h++ {
			raw[h] = logAlpha[step][h] + logBeta[step][h]
		}
		z := logSumExp(raw)
		gamma[step] = make([]float64, k)
		for h := 0; h < k; h++ {
			gamma[step][h] = math.Exp(raw[h] - z)
		}
		normalizeInPlace(gamma[step])
	}

	xi := make([][][]float64, 0)
	if t > 1 {
		xi = make([][][]float64, t-1)
		for step := 0; step < t-1; step++ {
			xi[step] = make([][]float64, k)
			raw := make([][]float64, k)
			maxVal := math.Inf(-1)
			for i := 0; i < k; i++ {
				raw[i] = make([]float64, k)
				for j := 0; j < k; j++ {
					v := logAlpha[step][i] + math.Log(as[step+1][i][j]+tinyFloor) +
						emissionCache[step+1][j] + logBeta[step+1][j]
					raw[i][j] = v
					if v > maxVal {
						maxVal = v
					}
				}
			}
			sum := 0.0
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					sum += math.Exp(raw[i][j] - maxVal)
				}
			}
			logNorm := maxVal + math.Log(sum+tinyFloor)
			for i := 0; i < k; i++ {
				xi[step][i] = make([]float64, k)
				for j := 0; j < k; j++ {
					xi[step][i][j] = math.Exp(raw[i][j] - logNorm)
				}
			}
		}
	}

	return SmoothResult{Gamma: gamma, Xi: xi, LogZ: logZ}
}

// ObservedLogLikelihood sums the forward pass's per-tick marginal
// log-likelihoods, used by the EM-monotonicity property (spec.md §8
// invariant 11).
func (r SmoothResult) ObservedLogLikelihood() float64 {
	sum := 0.0
	for _, lz := range r.LogZ {
		sum += lz
	}
	return sum
}
