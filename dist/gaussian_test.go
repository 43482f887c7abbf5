package dist

import (
	"math"
	"testing"

	"github.com/go-ssm/ssm/prng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussian(t *testing.T) {
	g, err := NewGaussian([]float64{1, 2}, mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Dim())
	assert.InDelta(t, 1.0, g.Mean().AtVec(0), 1e-9)
	assert.InDelta(t, 2.0, g.Mean().AtVec(1), 1e-9)
}

func TestGaussianSampleDeterministic(t *testing.T) {
	g, err := NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	require.NoError(t, err)

	a := g.Sample(prng.New(1))
	b := g.Sample(prng.New(1))
	assert.Equal(t, mat.Col(nil, 0, a), mat.Col(nil, 0, b))
}

func TestGaussianLogPDF(t *testing.T) {
	g, err := NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	require.NoError(t, err)

	atMean := g.LogPDF(mat.NewVecDense(1, []float64{0}))
	offMean := g.LogPDF(mat.NewVecDense(1, []float64{3}))
	assert.Greater(t, atMean, offMean)
	assert.False(t, math.IsNaN(atMean))
}

func TestGaussianCovIsCopy(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	g, err := NewGaussian([]float64{0, 0}, cov)
	require.NoError(t, err)

	c := g.Cov()
	cov.SetSym(0, 0, 99)
	assert.NotEqual(t, 99.0, c.At(0, 0), "Cov must return an independent copy")
}
