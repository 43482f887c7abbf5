package ekf

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
	q   *dist.Gaussian
	r   *dist.Gaussian
	u   *mat.VecDense
	z   *mat.VecDense
)

// dyn is a mildly nonlinear scalar-velocity model: position advances
// by velocity, velocity decays by a nonlinear damping term.
func dyn(x, u mat.Vector, _ ssm.Params, _ int) (mat.Vector, error) {
	pos := x.AtVec(0) + x.AtVec(1)
	vel := x.AtVec(1) * math.Cos(x.AtVec(1))
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
	q, err = dist.NewGaussian([]float64{0, 0}, initCov)
	if err != nil {
		panic(err)
	}
	r, err = dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.25}))
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	f, err := New(2, 1, 1, dyn, meas, dx0, q, r)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(-10, 0, 8, dyn, meas, dx0, q, r)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)

	_, err = New(2, 1, 1, nil, meas, dx0, q, r)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestPredict(t *testing.T) {
	f, err := New(2, 1, 1, dyn, meas, dx0, q, r)
	require.NoError(t, err)

	err = f.Predict(u)
	assert.NoError(t, err)
	assert.Equal(t, 2, f.State().Len())
}

func TestPredictCorrect(t *testing.T) {
	f, err := New(2, 1, 1, dyn, meas, dx0, q, r)
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	delta, err := f.Correct(z)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(delta))

	badZ := mat.NewVecDense(3, nil)
	_, err = f.Correct(badZ)
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}

func TestReset(t *testing.T) {
	f, err := New(2, 1, 1, dyn, meas, dx0, q, r)
	require.NoError(t, err)

	require.NoError(t, f.Predict(u))
	_, err = f.Correct(z)
	require.NoError(t, err)

	require.NoError(t, f.Reset())
	assert.Equal(t, 0.0, f.LogLik())
	assert.InDeltaSlice(t, []float64{1.0, 3.0}, mat.Col(nil, 0, f.State()), 1e-9)
}

func TestDims(t *testing.T) {
	f, err := New(2, 1, 1, dyn, meas, dx0, q, r)
	require.NoError(t, err)

	nx, nu, ny := f.Dims()
	assert.Equal(t, 2, nx)
	assert.Equal(t, 1, nu)
	assert.Equal(t, 1, ny)
}
