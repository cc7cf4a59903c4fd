package hmm

import "math"

// updateNu re-estimates ν_h by a one-dimensional root-find of the Student-t
// ν-score equation (spec.md §4.3): the standard EM fixed-point score,
//
//	-ψ(ν/2) + ln(ν/2) + 1 + mean(ln w_i - w_i) + ψ((ν_old+d)/2) - ln((ν_old+d)/2) = 0
//
// solved by bisection over [next.NuMin, next.NuMax] since the score is
// monotone decreasing in ν on that range. The result is clamped by the
// caller regardless, so a bisection that fails to bracket a root (flat or
// degenerate weights) simply returns the prior's Nu[h] unchanged.
func updateNu(next *Params, h int, xs [][]float64, gammaWeights []float64) float64 {
	d := float64(ObsDim)
	nuOld := next.Nu[h]

	totalW := 0.0
	sumLogWMinusW := 0.0
	for step, x := range xs {
		delta := next.mahalanobis(h, x)
		w := (nuOld + d) / (nuOld + delta)
		g := gammaWeights[step]
		if g <= 0 {
			continue
		}
		totalW += g
		sumLogWMinusW += g * (math.Log(w) - w)
	}
	if totalW <= 0 {
		return nuOld
	}
	meanTerm := sumLogWMinusW / totalW

	score := func(nu float64) float64 {
		return -digamma(nu/2) + math.Log(nu/2) + 1 + meanTerm +
			digamma((nuOld+d)/2) - math.Log((nuOld+d)/2)
	}

	lo, hi := next.NuMin, next.NuMax
	sLo, sHi := score(lo), score(hi)
	if math.IsNaN(sLo) || math.IsNaN(sHi) || sLo*sHi > 0 {
		// no sign change to bracket; keep the prior value rather than
		// extrapolate (spec.md §7: numerical failures revert, not guess).
		return nuOld
	}
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		sMid := score(mid)
		if sLo*sMid <= 0 {
			hi = mid
			sHi = sMid
		} else {
			lo = mid
			sLo = sMid
		}
		if hi-lo < 1e-6 {
			break
		}
	}
	return (lo + hi) / 2
}

// digamma approximates ψ(x) via the asymptotic expansion after shifting x
// up by recurrence until it is large enough for the expansion to be
// accurate (standard technique, adequate for the ν range [2.5, 30]).
func digamma(x float64) float64 {
	result := 0.0
	for x < 6 {
		result -= 1 / x
		x++
	}
	inv := 1 / x
	inv2 := inv * inv
	result += math.Log(x) - 0.5*inv -
		inv2*(1.0/12-inv2*(1.0/120-inv2*(1.0/252)))
	return result
}
