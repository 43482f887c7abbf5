package advpf

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
	u   *mat.VecDense
	z   *mat.VecDense
)

func advDyn(x, u mat.Vector, _ ssm.Params, _ int, noise bool) (mat.Vector, error) {
	pos := x.AtVec(0) + x.AtVec(1)
	vel := x.AtVec(1)
	if u != nil {
		vel += u.AtVec(0)
	}
	out := mat.NewVecDense(2, []float64{pos, vel})
	if noise {
		out.SetVec(0, out.AtVec(0)+0.01)
	}
	return out, nil
}

func advLik(x, _, y mat.Vector, _ ssm.Params, _ int) (float64, error) {
	diff := x.AtVec(0) - y.AtVec(0)
	return -0.5 * diff * diff / 0.25, nil
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
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	f, err := New(100, 1, advDyn, advLik, dx0, WithSeed(1))
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(0, 1, advDyn, advLik, dx0)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)

	_, err = New(10, 0, advDyn, advLik, dx0)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestPredictCorrect(t *testing.T) {
	f, err := New(200, 1, advDyn, advLik, dx0, WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	delta, err := f.Correct(z)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(delta))

	badZ := mat.NewVecDense(2, nil)
	_, err = f.Correct(badZ)
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}

func TestReset(t *testing.T) {
	f, err := New(50, 1, advDyn, advLik, dx0, WithSeed(1))
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	_, err = f.Correct(z)
	require.NoError(t, err)

	require.NoError(t, f.Reset())
	assert.Equal(t, 0.0, f.LogLik())
}

func TestDims(t *testing.T) {
	f, err := New(50, 1, advDyn, advLik, dx0, WithSeed(1))
	require.NoError(t, err)

	nx, _, ny := f.Dims()
	assert.Equal(t, 2, nx)
	assert.Equal(t, 1, ny)
}
