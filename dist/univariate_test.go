package dist

import (
	"testing"

	"github.com/go-ssm/ssm/prng"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestUnivariateGaussianDim(t *testing.T) {
	u := NewUnivariateGaussian(0, 1)
	assert.Equal(t, 1, u.Dim())
	assert.Equal(t, 0.0, u.Mean())
	assert.Equal(t, 1.0, u.StdDev())
}

func TestUnivariateGaussianSample(t *testing.T) {
	u := NewUnivariateGaussian(5, 0.001)
	rng := prng.New(1)
	x := u.Sample(rng)
	assert.InDelta(t, 5.0, x.AtVec(0), 1.0)
}

func TestUnivariateGaussianLogPDF(t *testing.T) {
	u := NewUnivariateGaussian(0, 1)
	atMean := u.LogPDF(mat.NewVecDense(1, []float64{0}))
	offMean := u.LogPDF(mat.NewVecDense(1, []float64{5}))
	assert.Greater(t, atMean, offMean)
}
