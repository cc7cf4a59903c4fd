// Package hmm implements the time-varying Hidden Markov Model regime engine
// (spec.md §4.3): vectorized forward-backward inference, Student-t emission
// tails, covariate-dependent transitions, and incremental (online) parameter
// updates via EM.
package hmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ObsDim and CovDim mirror internal/feature's vector dimensionalities.
const (
	ObsDim = 4
	CovDim = 3
)

// SPDFloor is the minimum eigenvalue enforced on every emission covariance
// after a parameter update (spec.md §3 Invariants).
const SPDFloor = 1e-8

// Params is Θ: the HMM's emission and transition parameters for K regimes.
// It is immutable once published — online updates build a new Params and
// swap it in atomically (spec.md §5 Shared-resource policy).
type Params struct {
	K int

	Mu    [][]float64    // K x ObsDim emission means
	Sigma []*mat.SymDense // K emission covariances, ObsDim x ObsDim
	Nu    []float64      // K degrees of freedom, clamped to [NuMin, NuMax]

	B [][]float64 // K x K transition logit bias
	W [][][]float64 // K x K x CovDim transition logit covariate weights

	Pi []float64 // K initial distribution

	NuMin, NuMax float64

	chol []*mat.Cholesky // cached Cholesky factors of Sigma, recomputed on update
}

// NewWeaklyInformativePrior builds Θ with zero means, identity covariances
// scaled by empiricalVariance (1 when it is not positive), zero transition
// logits, ν=6 and a uniform initial distribution (spec.md §6). It does not
// look at any observations itself.
func NewWeaklyInformativePrior(k int, empiricalVariance float64, nuMin, nuMax float64) *Params {
	if empiricalVariance <= 0 {
		empiricalVariance = 1
	}
	p := &Params{
		K:     k,
		Mu:    make([][]float64, k),
		Sigma: make([]*mat.SymDense, k),
		Nu:    make([]float64, k),
		B:     make([][]float64, k),
		W:     make([][][]float64, k),
		Pi:    make([]float64, k),
		NuMin: nuMin,
		NuMax: nuMax,
		chol:  make([]*mat.Cholesky, k),
	}
	for h := 0; h < k; h++ {
		p.Mu[h] = make([]float64, ObsDim)
		data := make([]float64, ObsDim*ObsDim)
		for d := 0; d < ObsDim; d++ {
			data[d*ObsDim+d] = empiricalVariance
		}
		p.Sigma[h] = mat.NewSymDense(ObsDim, data)
		p.Nu[h] = clamp(6, nuMin, nuMax)
		p.B[h] = make([]float64, k)
		p.W[h] = make([][]float64, k)
		for j := 0; j < k; j++ {
			p.W[h][j] = make([]float64, CovDim)
		}
		p.Pi[h] = 1.0 / float64(k)
	}
	if err := p.rebuildCholesky(); err != nil {
		// the identity-scaled prior is SPD by construction; a failure here
		// indicates a programming error, not bad input data.
		panic(fmt.Sprintf("weakly informative prior is not SPD: %v", err))
	}
	return p
}

// Clone returns a deep copy, used as the mutation target for an EM update so
// the currently-published Θ is never mutated in place (copy-on-write,
// spec.md §5 Cancellation).
func (p *Params) Clone() *Params {
	c := &Params{
		K:     p.K,
		Mu:    make([][]float64, p.K),
		Sigma: make([]*mat.SymDense, p.K),
		Nu:    append([]float64(nil), p.Nu...),
		B:     make([][]float64, p.K),
		W:     make([][][]float64, p.K),
		Pi:    append([]float64(nil), p.Pi...),
		NuMin: p.NuMin,
		NuMax: p.NuMax,
		chol:  make([]*mat.Cholesky, p.K),
	}
	for h := 0; h < p.K; h++ {
		c.Mu[h] = append([]float64(nil), p.Mu[h]...)
		sigmaCopy := mat.NewSymDense(ObsDim, nil)
		sigmaCopy.CopySym(p.Sigma[h])
		c.Sigma[h] = sigmaCopy
		c.B[h] = append([]float64(nil), p.B[h]...)
		c.W[h] = make([][]float64, p.K)
		for j := 0; j < p.K; j++ {
			c.W[h][j] = append([]float64(nil), p.W[h][j]...)
		}
	}
	if err := c.rebuildCholesky(); err != nil {
		// Clone is only ever called on an already-validated Params.
		panic(fmt.Sprintf("clone of valid params is not SPD: %v", err))
	}
	return c
}

// rebuildCholesky recomputes and caches the Cholesky factor of every Σ_h,
// used by the Student-t log-density (spec.md §4.3: "cached and recomputed
// on parameter updates only").
func (p *Params) rebuildCholesky() error {
	p.chol = make([]*mat.Cholesky, p.K)
	for h := 0; h < p.K; h++ {
		var chol mat.Cholesky
		if ok := chol.Factorize(p.Sigma[h]); !ok {
			return fmt.Errorf("regime %d: covariance is not positive definite", h)
		}
		p.chol[h] = &chol
	}
	return nil
}

// ProjectSPD floors the eigenvalues of Σ_h at SPDFloor and reconstructs a
// symmetric matrix, guaranteeing the covariance invariant after an update
// that might otherwise drift non-SPD through numerical error (spec.md §3,
// §4.3 "project to SPD (eigen-floor 1e-8)").
func ProjectSPD(sigma *mat.SymDense) *mat.SymDense {
	n := sigma.SymmetricDim()
	var eig mat.EigenSym
	if ok := eig.Factorize(sigma, true); !ok {
		// fall back to a scaled identity if the eigendecomposition itself
		// fails (can happen on a NaN-poisoned matrix upstream).
		data := make([]float64, n*n)
		for i := 0; i < n; i++ {
			data[i*n+i] = SPDFloor
		}
		return mat.NewSymDense(n, data)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	floored := make([]float64, n)
	for i, v := range values {
		if v < SPDFloor {
			v = SPDFloor
		}
		floored[i] = v
	}

	var scaled mat.Dense
	scaled.Apply(func(i, j int, v float64) float64 {
		return v * floored[j]
	}, &vectors)

	var recon mat.Dense
	recon.Mul(&scaled, vectors.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (recon.At(i, j) + recon.At(j, i)) / 2
			out.SetSym(i, j, v)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
