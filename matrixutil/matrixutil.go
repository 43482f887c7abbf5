// Package matrixutil provides small matrix helpers used by the
// particle filter family for plain (unweighted) particle-cloud
// diagnostics, as opposed to the weighted covariance the filters
// themselves maintain. Grounded on the teacher's matrix/matrix.go
// (RowSums/ColSums, kept verbatim) plus its
// github.com/milosgajdos/matrix dependency, whose Cov function the
// teacher's own particle/bf/bf.go used for exactly this purpose.
package matrixutil

import (
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowSums returns a slice containing m's row sums. It panics if m is
// nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)
	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}
	return sum
}

// ColSums returns a slice containing m's column sums. It panics if m
// is nil.
func ColSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	sum := make([]float64, cols)
	for i := 0; i < cols; i++ {
		sum[i] = mat.Sum(m.ColView(i))
	}
	return sum
}

// UnweightedCov returns the plain sample covariance of a particle
// cloud x (state dimension as rows, one column per particle), ignoring
// particle weights entirely. Used for the auxiliary filter's
// UnweightedCov diagnostic, where the weighted covariance the filter
// otherwise tracks would double-count the auxiliary reweighting
// already applied to those same particles.
func UnweightedCov(x *mat.Dense) (*mat.SymDense, error) {
	return matrix.Cov(x, "cols")
}
