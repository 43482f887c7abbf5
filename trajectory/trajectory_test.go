package trajectory

import (
	"math"
	"os"
	"testing"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/kalman/kf"
	"github.com/go-ssm/ssm/model"
	"github.com/go-ssm/ssm/prng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	sys      *model.Discrete
	dx0, q, r *dist.Gaussian
)

func setup() {
	A := mat.NewDense(1, 1, []float64{1})
	C := mat.NewDense(1, 1, []float64{1})
	var err error
	sys, err = model.NewDiscrete(A, nil, C, nil)
	if err != nil {
		panic(err)
	}
	dx0, err = dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		panic(err)
	}
	q, err = dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.1}))
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

func TestForwardTrajectory(t *testing.T) {
	f, err := kf.New(sys, dx0, q, r)
	require.NoError(t, err)

	y := []mat.Vector{
		mat.NewVecDense(1, []float64{0.1}),
		mat.NewVecDense(1, []float64{0.2}),
		mat.NewVecDense(1, []float64{0.3}),
	}
	sol, err := ForwardTrajectory(f, nil, y)
	require.NoError(t, err)
	assert.Len(t, sol.States, 3)
	assert.Len(t, sol.Covs, 3)
	assert.False(t, math.IsNaN(sol.LogLik))
}

func TestForwardTrajectoryEmptyMeasurements(t *testing.T) {
	f, err := kf.New(sys, dx0, q, r)
	require.NoError(t, err)

	_, err = ForwardTrajectory(f, nil, nil)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestForwardTrajectoryLengthMismatch(t *testing.T) {
	f, err := kf.New(sys, dx0, q, r)
	require.NoError(t, err)

	y := []mat.Vector{mat.NewVecDense(1, []float64{0.1})}
	u := []mat.Vector{mat.NewVecDense(1, []float64{0}), mat.NewVecDense(1, []float64{0})}
	_, err = ForwardTrajectory(f, u, y)
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}

func TestSimulate(t *testing.T) {
	dyn := sys.Dynamics()
	meas := sys.Measurement()
	rng := prng.New(1)

	gt, err := Simulate(5, dyn, meas, q, r, dx0, nil, rng)
	require.NoError(t, err)
	assert.Len(t, gt.States, 5)
	assert.Len(t, gt.Obs, 5)
}

func TestSimulateInvalidSteps(t *testing.T) {
	dyn := sys.Dynamics()
	meas := sys.Measurement()
	rng := prng.New(1)

	_, err := Simulate(0, dyn, meas, q, r, dx0, nil, rng)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestMeanTrajectory(t *testing.T) {
	sol1 := &Solution{States: []mat.Vector{mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, []float64{2})}}
	sol2 := &Solution{States: []mat.Vector{mat.NewVecDense(1, []float64{3}), mat.NewVecDense(1, []float64{4})}}

	mean, err := MeanTrajectory([]*Solution{sol1, sol2})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mean[0].AtVec(0), 1e-9)
	assert.InDelta(t, 3.0, mean[1].AtVec(0), 1e-9)
}

func TestMeanTrajectoryEmpty(t *testing.T) {
	_, err := MeanTrajectory(nil)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestMeanTrajectoryMismatch(t *testing.T) {
	sol1 := &Solution{States: []mat.Vector{mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, []float64{2})}}
	sol2 := &Solution{States: []mat.Vector{mat.NewVecDense(1, []float64{3})}}

	_, err := MeanTrajectory([]*Solution{sol1, sol2})
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}
