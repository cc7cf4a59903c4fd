package hmm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EMUpdate runs one EM step over a forward-backward smoothing result
// (spec.md §4.3 "One EM update"). It returns a new Params built from a Clone
// of prior — the caller publishes it only after ObservedLogLikelihood has
// not regressed beyond tolerance (copy-on-write, spec.md §5).
func EMUpdate(prior *Params, xs, zs [][]float64, smoothed SmoothResult) *Params {
	next := prior.Clone()
	k := next.K
	t := len(xs)

	updateTransitionLogits(next, zs, smoothed.Xi)

	for h := 0; h < k; h++ {
		weights := make([]float64, t)
		for step := 0; step < t; step++ {
			weights[step] = smoothed.Gamma[step][h]
		}
		updateEmissionMeanAndCov(next, prior, h, xs, weights)
		next.Nu[h] = clamp(updateNu(next, h, xs, weights), next.NuMin, next.NuMax)
	}

	if err := next.rebuildCholesky(); err != nil {
		// A numerically broken update reverts to the prior (spec.md §4.3,
		// §7 "revert Θ; continue filtering").
		return prior
	}

	if t > 0 {
		uniform := make([]float64, k)
		for h := 0; h < k; h++ {
			uniform[h] = smoothed.Gamma[0][h]
		}
		normalizeInPlace(uniform)
		next.Pi = uniform
	}

	return next
}

// updateTransitionLogits fits each row i's transition logits by weighted
// multinomial logistic regression on samples (z_t -> j, weight ξ_t(i,j))
// using damped Newton steps with a diagonal Gauss-Newton Hessian (step 0.5,
// max 10 iters). When the iterations do not converge, the last iterate is
// kept as is; no separate gradient step is taken.
func updateTransitionLogits(p *Params, zs [][]float64, xi [][][]float64) {
	k := p.K
	if len(xi) == 0 {
		return
	}
	for i := 0; i < k; i++ {
		// flatten samples: for each step, target distribution over j is
		// xi[step][i][:] normalized; covariate is zs[step+1].
		const maxIter = 10
		const dampedStep = 0.5
		params := make([]float64, k*CovDim+k) // [b_i0..b_ik][W_i0_0..]
		// layout: params[j] = bias for j, params[k + j*CovDim + c] = weight
		for j := 0; j < k; j++ {
			params[j] = p.B[i][j]
			for c := 0; c < CovDim; c++ {
				params[k+j*CovDim+c] = p.W[i][j][c]
			}
		}

		converged := false
		for iter := 0; iter < maxIter; iter++ {
			grad := make([]float64, len(params))
			hessDiag := make([]float64, len(params)) // diagonal Gauss-Newton approximation
			totalWeight := 0.0

			for step := range xi {
				z := zs[step+1]
				rowWeightSum := 0.0
				for j := 0; j < k; j++ {
					rowWeightSum += xi[step][i][j]
				}
				if rowWeightSum <= 0 {
					continue
				}
				target := make([]float64, k)
				for j := 0; j < k; j++ {
					target[j] = xi[step][i][j] / rowWeightSum
				}

				logits := make([]float64, k)
				for j := 0; j < k; j++ {
					l := params[j]
					for c := 0; c < CovDim; c++ {
						l += params[k+j*CovDim+c] * z[c]
					}
					logits[j] = l
				}
				pred := softmax(logits)

				for j := 0; j < k; j++ {
					diff := (pred[j] - target[j]) * rowWeightSum
					grad[j] += diff
					hessDiag[j] += pred[j] * (1 - pred[j]) * rowWeightSum
					for c := 0; c < CovDim; c++ {
						idx := k + j*CovDim + c
						grad[idx] += diff * z[c]
						hessDiag[idx] += pred[j]*(1-pred[j])*rowWeightSum*z[c]*z[c] + 1e-6
					}
				}
				totalWeight += rowWeightSum
			}

			if totalWeight <= 0 {
				break
			}

			maxStep := 0.0
			for idx := range params {
				h := hessDiag[idx]
				if h < 1e-9 {
					h = 1e-9
				}
				step := dampedStep * grad[idx] / h
				params[idx] -= step
				if math.Abs(step) > maxStep {
					maxStep = math.Abs(step)
				}
			}
			if maxStep < 1e-6 {
				converged = true
				break
			}
		}
		if !converged {
			// the last damped iterate is kept; no further step is taken.
			_ = converged
		}

		for j := 0; j < k; j++ {
			p.B[i][j] = params[j]
			for c := 0; c < CovDim; c++ {
				p.W[i][j][c] = params[k+j*CovDim+c]
			}
		}
	}
}

func softmax(logits []float64) []float64 {
	maxV := math.Inf(-1)
	for _, l := range logits {
		if l > maxV {
			maxV = l
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// updateEmissionMeanAndCov updates μ_h and Σ_h with Student-t re-weighting
// (spec.md §4.3): w_t,h = (ν_h + d) / (ν_h + δ_t,h).
func updateEmissionMeanAndCov(next, prior *Params, h int, xs [][]float64, gammaWeights []float64) {
	d := float64(ObsDim)
	nu := prior.Nu[h]

	totalW := 0.0
	mean := make([]float64, ObsDim)
	rawWeights := make([]float64, len(xs))
	for step, x := range xs {
		delta := prior.mahalanobis(h, x)
		w := gammaWeights[step] * (nu + d) / (nu + delta)
		rawWeights[step] = w
		totalW += w
		for dim := 0; dim < ObsDim; dim++ {
			mean[dim] += w * x[dim]
		}
	}
	if totalW <= 0 {
		return
	}
	for dim := range mean {
		mean[dim] /= totalW
	}

	scatter := make([]float64, ObsDim*ObsDim)
	for step, x := range xs {
		w := rawWeights[step]
		for a := 0; a < ObsDim; a++ {
			da := x[a] - mean[a]
			for b := 0; b < ObsDim; b++ {
				db := x[b] - mean[b]
				scatter[a*ObsDim+b] += w * da * db
			}
		}
	}
	for i := range scatter {
		scatter[i] /= totalW
	}

	sym := mat.NewSymDense(ObsDim, scatter)
	next.Mu[h] = mean
	next.Sigma[h] = ProjectSPD(sym)
}
