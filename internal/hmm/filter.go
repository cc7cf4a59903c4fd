package hmm

import "math"

// TransitionMatrix computes A_t[i][j] = softmax_j(b[i,j] + W[i,j,:]·z_t)
// (spec.md §3, §4.3 step 1). Every row sums to 1 within 1e-9 (spec.md §8
// invariant 1).
func (p *Params) TransitionMatrix(z []float64) [][]float64 {
	a := make([][]float64, p.K)
	for i := 0; i < p.K; i++ {
		logits := make([]float64, p.K)
		maxLogit := math.Inf(-1)
		for j := 0; j < p.K; j++ {
			l := p.B[i][j]
			for c := 0; c < CovDim; c++ {
				l += p.W[i][j][c] * z[c]
			}
			logits[j] = l
			if l > maxLogit {
				maxLogit = l
			}
		}
		sum := 0.0
		row := make([]float64, p.K)
		for j, l := range logits {
			row[j] = math.Exp(l - maxLogit)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
		a[i] = row
	}
	return a
}

// FilterResult is the outcome of one filter step: the updated posterior and
// the tick's marginal log-likelihood (spec.md §4.3).
type FilterResult struct {
	Alpha []float64 // updated filtered posterior α_t, sums to 1
	LogZ  float64   // marginal log-likelihood of this tick's observation
}

// Filter runs one filter step (spec.md §4.3 "Filter step"):
//  1. compute A_t from (b, W, z_t)
//  2. predict ᾱ_t = α_{t-1}^T · A_t
//  3. compute per-regime emission log-likelihoods
//  4. update in log-space with log-sum-exp normalization
func (p *Params) Filter(alphaPrev []float64, x, z []float64) FilterResult {
	a := p.TransitionMatrix(z)

	alphaBar := make([]float64, p.K)
	for h := 0; h < p.K; h++ {
		sum := 0.0
		for i := 0; i < p.K; i++ {
			sum += alphaPrev[i] * a[i][h]
		}
		alphaBar[h] = sum
	}

	logAlphaUnnorm := make([]float64, p.K)
	for h := 0; h < p.K; h++ {
		ll := p.studentTLogPDF(h, x)
		logPredict := math.Log(alphaBar[h] + tinyFloor)
		logAlphaUnnorm[h] = logPredict + ll
	}

	logZ := logSumExp(logAlphaUnnorm)
	alpha := make([]float64, p.K)
	for h := range alpha {
		alpha[h] = math.Exp(logAlphaUnnorm[h] - logZ)
	}
	normalizeInPlace(alpha)

	return FilterResult{Alpha: alpha, LogZ: logZ}
}

const tinyFloor = 1e-300

func logSumExp(v []float64) float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	if math.IsInf(maxV, -1) {
		return maxV
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - maxV)
	}
	return maxV + math.Log(sum)
}

// normalizeInPlace rescales a probability vector to sum exactly to 1,
// correcting the small drift floating point arithmetic introduces.
func normalizeInPlace(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		uniform := 1.0 / float64(len(v))
		for i := range v {
			v[i] = uniform
		}
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

// Entropy returns the Shannon entropy (natural log) of a probability vector,
// used by the regime-instability detector and the Kelly confidence score.
func Entropy(p []float64) float64 {
	h := 0.0
	for _, v := range p {
		if v <= 0 {
			continue
		}
		h -= v * math.Log(v)
	}
	return h
}
