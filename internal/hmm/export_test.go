package hmm

import "gonum.org/v1/gonum/mat"

// symFromFlatTest and smallestEigenvalue are test-only helpers exposing
// package-internal matrix plumbing to hmm_test.go without widening the
// public API.
func symFromFlatTest(data []float64) *mat.SymDense {
	return mat.NewSymDense(4, data)
}

func smallestEigenvalue(sigma *mat.SymDense) float64 {
	var eig mat.EigenSym
	if !eig.Factorize(sigma, false) {
		return 0
	}
	values := eig.Values(nil)
	min := values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
	}
	return min
}
