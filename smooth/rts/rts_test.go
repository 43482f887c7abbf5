package rts

import (
	"math"
	"os"
	"testing"

	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	sys *model.Discrete
	dx0 *dist.Gaussian
	q   *dist.Gaussian
	r   *dist.Gaussian
)

func setup() {
	A := mat.NewDense(2, 2, []float64{1, 1, 0, 1})
	C := mat.NewDense(1, 2, []float64{1, 0})
	var err error
	sys, err = model.NewDiscrete(A, nil, C, nil)
	if err != nil {
		panic(err)
	}
	dx0, err = dist.NewGaussian([]float64{1.0, 3.0}, mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25}))
	if err != nil {
		panic(err)
	}
	q, err = dist.NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01}))
	if err != nil {
		panic(err)
	}
	r, err = dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.1}))
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func TestNewRTS(t *testing.T) {
	s, err := New(sys, dx0, q, r)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestNewRTSInvalidConfig(t *testing.T) {
	_, err := New(nil, dx0, q, r)
	assert.Error(t, err)
}

func TestSmooth(t *testing.T) {
	s, err := New(sys, dx0, q, r)
	require.NoError(t, err)

	y := []mat.Vector{
		mat.NewVecDense(1, []float64{1.1}),
		mat.NewVecDense(1, []float64{2.4}),
		mat.NewVecDense(1, []float64{3.9}),
		mat.NewVecDense(1, []float64{5.2}),
	}

	means, covs, loglik, err := s.Smooth(nil, y)
	require.NoError(t, err)
	require.Len(t, means, len(y))
	require.Len(t, covs, len(y))
	assert.False(t, math.IsNaN(loglik))

	for i, cov := range covs {
		assert.LessOrEqual(t, cov.At(0, 0), 0.25+1e-9, "smoothed variance at step %d should not exceed the prior", i)
	}
}

func TestSmoothLengthMismatch(t *testing.T) {
	s, err := New(sys, dx0, q, r)
	require.NoError(t, err)

	y := []mat.Vector{mat.NewVecDense(1, []float64{1.0})}
	u := []mat.Vector{mat.NewVecDense(1, []float64{0}), mat.NewVecDense(1, []float64{0})}
	_, _, _, err = s.Smooth(u, y)
	assert.Error(t, err)
}
