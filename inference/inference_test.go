package inference

import (
	"math"
	"os"
	"testing"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/kalman/kf"
	"github.com/go-ssm/ssm/logging"
	"github.com/go-ssm/ssm/model"
	"github.com/go-ssm/ssm/prng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var y []mat.Vector

func setup() {
	y = []mat.Vector{
		mat.NewVecDense(1, []float64{0.1}),
		mat.NewVecDense(1, []float64{0.3}),
		mat.NewVecDense(1, []float64{0.2}),
	}
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func newFilter(theta []float64) (ssm.Filter, error) {
	A := mat.NewDense(1, 1, []float64{1})
	C := mat.NewDense(1, 1, []float64{1})
	sys, err := model.NewDiscrete(A, nil, C, nil)
	if err != nil {
		return nil, err
	}
	dx0, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		return nil, err
	}
	qVar := math.Exp(theta[0])
	rVar := math.Exp(theta[1])
	q, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{qVar}))
	if err != nil {
		return nil, err
	}
	r, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{rVar}))
	if err != nil {
		return nil, err
	}
	return kf.New(sys, dx0, q, r)
}

func TestLogLik(t *testing.T) {
	f, err := newFilter([]float64{0, 0})
	require.NoError(t, err)

	ll, err := LogLik(f, nil, y)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
}

func TestLogLikelihoodFunc(t *testing.T) {
	target := LogLikelihoodFunc(newFilter, nil, nil, y)
	ll := target([]float64{0, 0})
	assert.False(t, math.IsNaN(ll))
	assert.Greater(t, ll, negInf)
}

func TestLogLikelihoodFuncPriorLengthMismatch(t *testing.T) {
	priors := []dist.Distribution{dist.NewUnivariateGaussian(0, 1)}
	target := LogLikelihoodFunc(newFilter, priors, nil, y)
	ll := target([]float64{0, 0})
	assert.Equal(t, negInf, ll)
}

func TestLogLikelihoodFuncErrorRegion(t *testing.T) {
	badFilter := func(theta []float64) (ssm.Filter, error) {
		return nil, ssm.ErrInvalidConfiguration
	}
	target := LogLikelihoodFunc(badFilter, nil, nil, y)
	assert.Equal(t, negInf, target([]float64{0, 0}))
}

func TestMetropolis(t *testing.T) {
	target := LogLikelihoodFunc(newFilter, nil, nil, y)
	draw := func(theta []float64, rng *prng.Source) []float64 {
		next := make([]float64, len(theta))
		for i, v := range theta {
			next[i] = v + rng.NormFloat64()*0.1
		}
		return next
	}
	rng := prng.New(1)
	chain, lls := Metropolis(target, 50, []float64{0, 0}, draw, rng)
	assert.Len(t, chain, 51)
	assert.Len(t, lls, 51)
}

func TestMetropolisThreaded(t *testing.T) {
	target := LogLikelihoodFunc(newFilter, nil, nil, y)
	draw := func(theta []float64, rng *prng.Source) []float64 {
		next := make([]float64, len(theta))
		for i, v := range theta {
			next[i] = v + rng.NormFloat64()*0.1
		}
		return next
	}
	chains := MetropolisThreaded(3, 10, 40, target, []float64{0, 0}, draw, 7, logging.NoOp())
	assert.Len(t, chains, 3)
	for _, c := range chains {
		assert.Len(t, c, 31)
	}
}
