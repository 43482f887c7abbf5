package matrixutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRowSums(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	sums := RowSums(m)
	assert.Equal(t, []float64{6, 15}, sums)
}

func TestColSums(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	sums := ColSums(m)
	assert.Equal(t, []float64{5, 7, 9}, sums)
}

func TestUnweightedCov(t *testing.T) {
	x := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		1, 2, 3, 4,
	})
	cov, err := UnweightedCov(x)
	require.NoError(t, err)
	assert.Equal(t, 2, cov.SymmetricDim())
	assert.Greater(t, cov.At(0, 0), 0.0)
}
