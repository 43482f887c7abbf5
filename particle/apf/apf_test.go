package apf

import (
	"math"
	"os"
	"testing"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/particle/pf"
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
	f, err := New(100, dyn, meas, df, dg, dx0, pf.WithSeed(1))
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestPredictCorrect(t *testing.T) {
	f, err := New(200, dyn, meas, df, dg, dx0, pf.WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	delta, err := f.Correct(z)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(delta))

	badZ := mat.NewVecDense(2, nil)
	_, err = f.Correct(badZ)
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}

func TestUnweightedCov(t *testing.T) {
	f, err := New(200, dyn, meas, df, dg, dx0, pf.WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	_, err = f.Correct(z)
	require.NoError(t, err)

	cov, err := f.UnweightedCov()
	require.NoError(t, err)
	assert.Equal(t, 2, cov.SymmetricDim())
}

func TestReset(t *testing.T) {
	f, err := New(50, dyn, meas, df, dg, dx0, pf.WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	_, err = f.Correct(z)
	require.NoError(t, err)

	require.NoError(t, f.Reset())
	assert.Equal(t, 0.0, f.LogLik())
}

func TestDims(t *testing.T) {
	f, err := New(50, dyn, meas, df, dg, dx0, pf.WithSeed(1))
	require.NoError(t, err)

	nx, _, ny := f.Dims()
	assert.Equal(t, 2, nx)
	assert.Equal(t, 1, ny)
}
