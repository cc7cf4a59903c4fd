package hmm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// studentTLogPDF computes the multivariate Student-t log-density of x under
// regime h's (μ_h, Σ_h, ν_h), using the cached Cholesky factor of Σ_h
// (spec.md §4.3).
func (p *Params) studentTLogPDF(h int, x []float64) float64 {
	d := float64(len(x))
	nu := p.Nu[h]

	diff := mat.NewVecDense(len(x), nil)
	for i, xi := range x {
		diff.SetVec(i, xi-p.Mu[h][i])
	}

	var solved mat.VecDense
	if err := p.chol[h].SolveVecTo(&solved, diff); err != nil {
		return math.Inf(-1)
	}
	delta := mat.Dot(diff, &solved)
	if delta < 0 {
		delta = 0
	}

	logDet := p.chol[h].LogDet()

	lg1 := lgamma((nu + d) / 2)
	lg2 := lgamma(nu / 2)
	term := lg1 - lg2 - (d/2)*math.Log(nu*math.Pi) - 0.5*logDet
	term -= (nu + d) / 2 * math.Log1p(delta/nu)
	return term
}

// mahalanobis returns the squared Mahalanobis distance δ used by the online
// EM update's Student-t re-weighting factor (spec.md §4.3).
func (p *Params) mahalanobis(h int, x []float64) float64 {
	diff := mat.NewVecDense(len(x), nil)
	for i, xi := range x {
		diff.SetVec(i, xi-p.Mu[h][i])
	}
	var solved mat.VecDense
	if err := p.chol[h].SolveVecTo(&solved, diff); err != nil {
		return math.Inf(1)
	}
	delta := mat.Dot(diff, &solved)
	if delta < 0 {
		delta = 0
	}
	return delta
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
