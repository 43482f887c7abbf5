package pf

import (
	"math"
	"os"
	"testing"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	dx0 *dist.Gaussian
	df  *dist.Gaussian
	dg  *dist.Gaussian
	u   *mat.VecDense
	z   *mat.VecDense
)

func dyn(x, u mat.Vector, _ ssm.Params, _ int) (mat.Vector, error) {
	pos := x.AtVec(0) + x.AtVec(1)
	vel := x.AtVec(1)
	if u != nil {
		vel += u.AtVec(0)
	}
	return mat.NewVecDense(2, []float64{pos, vel}), nil
}

func meas(x, _ mat.Vector, _ ssm.Params, _ int) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{x.AtVec(0)}), nil
}

func setup() {
	u = mat.NewVecDense(1, []float64{-1.0})
	z = mat.NewVecDense(1, []float64{-1.5})

	initCov := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})
	var err error
	dx0, err = dist.NewGaussian([]float64{1.0, 3.0}, initCov)
	if err != nil {
		panic(err)
	}
	df, err = dist.NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01}))
	if err != nil {
		panic(err)
	}
	dg, err = dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.25}))
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	f, err := New(100, dyn, meas, df, dg, dx0, WithSeed(1))
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, 100, f.N())
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(0, dyn, meas, df, dg, dx0)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)

	_, err = New(10, nil, meas, df, dg, dx0)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestPredictCorrect(t *testing.T) {
	f, err := New(200, dyn, meas, df, dg, dx0, WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	delta, err := f.Correct(z)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(delta))

	badZ := mat.NewVecDense(2, nil)
	_, err = f.Correct(badZ)
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}

func TestStep(t *testing.T) {
	f, err := New(200, dyn, meas, df, dg, dx0, WithSeed(1))
	require.NoError(t, err)

	ll, err := f.Step(u, z)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
}

func TestESSTriggersResample(t *testing.T) {
	f, err := New(50, dyn, meas, df, dg, dx0, WithSeed(1), WithResampleThreshold(1.0))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	_, err = f.Correct(z)
	require.NoError(t, err)
	// threshold of 1.0 always resamples, which resets weights to uniform.
	for _, w := range f.Weights() {
		assert.InDelta(t, -math.Log(50), w, 1e-9)
	}
}

func TestReset(t *testing.T) {
	f, err := New(50, dyn, meas, df, dg, dx0, WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	_, err = f.Correct(z)
	require.NoError(t, err)

	require.NoError(t, f.Reset())
	assert.Equal(t, 0.0, f.LogLik())
}

func TestWeightedMeanAndCov(t *testing.T) {
	f, err := New(500, dyn, meas, df, dg, dx0, WithSeed(1))
	require.NoError(t, err)

	mean := f.WeightedMean()
	assert.InDelta(t, 1.0, mean.AtVec(0), 0.5)

	cov := f.WeightedCov()
	assert.Greater(t, cov.At(0, 0), 0.0)
}
