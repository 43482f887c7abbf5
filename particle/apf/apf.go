// Package apf implements the auxiliary particle filter (Pitt &
// Shephard, 1999): before propagating, particles are pre-weighted by
// how likely their noise-free one-step-ahead prediction is to explain
// the incoming measurement, resampled on that auxiliary weight, and
// only then propagated with noise and reweighted by their true
// likelihood divided by the auxiliary weight of their ancestor. This
// concentrates particles in regions the next measurement favors before
// noise is added, instead of after, which the plain bootstrap filter
// in particle/pf can only do retroactively.
package apf

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/matrixutil"
	"github.com/go-ssm/ssm/particle/pf"
	"github.com/go-ssm/ssm/resample"
	"github.com/go-ssm/ssm/weight"
	"gonum.org/v1/gonum/mat"
)

// APF is an auxiliary particle filter. It composes a *pf.PF for
// particle storage, its random source and its initial-state sampling,
// but replaces PF's Predict/Correct with its own fused predict-resample-
// correct step, per spec.md's steer away from wrapping by inheritance.
type APF struct {
	base *pf.PF

	dyn  ssm.DynamicsFunc
	meas ssm.MeasurementFunc
	df   dist.Distribution
	dg   dist.Distribution

	t        int
	pendingU mat.Vector
}

// New returns an auxiliary particle filter with n particles.
func New(n int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, df, dg, dx0 dist.Distribution, opts ...pf.Option) (*APF, error) {
	base, err := pf.New(n, dyn, meas, df, dg, dx0, opts...)
	if err != nil {
		return nil, err
	}
	return &APF{base: base, dyn: dyn, meas: meas, df: df, dg: dg}, nil
}

// Predict records the control input for the fused step Correct
// performs; the particle cloud does not change until Correct runs,
// since auxiliary pre-weighting needs the incoming measurement before
// any particle is propagated.
func (a *APF) Predict(u mat.Vector) error {
	a.pendingU = u
	return nil
}

// Correct runs the auxiliary particle filter's fused predict-resample-
// correct step against measurement y and the control input recorded by
// the preceding Predict, and returns the step's incremental
// log-likelihood.
func (a *APF) Correct(y mat.Vector) (float64, error) {
	nx, _, ny := a.base.Dims()
	if y.Len() != ny {
		return 0, fmt.Errorf("%w: measurement has length %d, want %d", ssm.ErrDimensionMismatch, y.Len(), ny)
	}
	n := a.base.N()
	rng := a.base.RNG()
	w := a.base.RawWeights()
	particles := a.base.Particles()

	// Auxiliary weights: how well each particle's noise-free
	// one-step-ahead prediction explains y.
	auxLogLik := make([]float64, n)
	means := make([]mat.Vector, n)
	for c := 0; c < n; c++ {
		mu, err := a.dyn(particles.(*mat.Dense).ColView(c), a.pendingU, nil, a.t)
		if err != nil {
			return 0, fmt.Errorf("particle %d auxiliary propagation failed: %w", c, err)
		}
		means[c] = mu
		yHat, err := a.meas(mu, a.pendingU, nil, a.t)
		if err != nil {
			return 0, fmt.Errorf("particle %d auxiliary observation failed: %w", c, err)
		}
		innov := mat.NewVecDense(ny, nil)
		innov.SubVec(y, yHat)
		auxLogLik[c] = a.dg.LogPDF(innov)
	}

	aux, err := weight.New(n)
	if err != nil {
		return 0, err
	}
	for c := 0; c < n; c++ {
		aux.Set(c, w.Log()[c]+auxLogLik[c])
	}
	auxLSE, err := aux.Normalize()
	if err != nil {
		return 0, err
	}

	u01 := rng.Float64() / float64(n)
	idx, err := resample.Systematic(aux.ExpWeights(), u01)
	if err != nil {
		return 0, err
	}

	// Propagate the resampled ancestors with noise, and reweight by
	// true likelihood over ancestor auxiliary likelihood so the
	// pre-weighting used to bias resampling cancels out.
	next := mat.NewDense(nx, n, nil)
	finalLogLik := make([]float64, n)
	for c, ancestor := range idx {
		xNext := mat.NewVecDense(nx, nil)
		xNext.AddVec(means[ancestor], a.df.Sample(rng))
		next.SetCol(c, mat.Col(nil, 0, xNext))

		yPred, err := a.meas(xNext, a.pendingU, nil, a.t)
		if err != nil {
			return 0, fmt.Errorf("particle %d observation failed: %w", c, err)
		}
		innov := mat.NewVecDense(ny, nil)
		innov.SubVec(y, yPred)
		finalLogLik[c] = a.dg.LogPDF(innov) - auxLogLik[ancestor]
	}
	a.base.SetParticles(next)

	for c, lw := range finalLogLik {
		w.Set(c, lw)
	}

	lse, err := w.Normalize()
	if err != nil {
		return 0, err
	}
	// Incremental likelihood: the auxiliary normalizer times the mean
	// of the second-stage (unnormalized) weights.
	dl := auxLSE + lse - math.Log(float64(n))
	a.base.AddLogLik(dl)
	a.t++
	a.pendingU = nil
	return dl, nil
}

// Particles returns a copy of the current particle cloud.
func (a *APF) Particles() mat.Matrix { return a.base.Particles() }

// Weights returns the current normalized log-weights.
func (a *APF) Weights() []float64 { return a.base.Weights() }

// ExpWeights returns the current normalized weights in probability
// space.
func (a *APF) ExpWeights() []float64 { return a.base.ExpWeights() }

// State returns the weighted-mean point estimate.
func (a *APF) State() mat.Vector { return a.base.WeightedMean() }

// Cov returns the weighted particle covariance.
func (a *APF) Cov() mat.Symmetric { return a.base.WeightedCov() }

// LogLik returns the cumulative log-likelihood absorbed since the
// last Reset.
func (a *APF) LogLik() float64 { return a.base.LogLik() }

// Reset reinitializes the particle cloud and zeroes the time index and
// cumulative log-likelihood.
func (a *APF) Reset() error {
	a.t = 0
	a.pendingU = nil
	return a.base.Reset()
}

// Dims returns the filter's state, control and measurement dimensions.
func (a *APF) Dims() (nx, nu, ny int) { return a.base.Dims() }

// UnweightedCov returns the plain (unweighted) sample covariance of
// the current particle cloud, distinct from Cov's weighted estimate.
// Auxiliary reweighting has already biased particle placement toward
// the incoming measurement by the time Correct returns, so the
// unweighted spread is a useful diagnostic for how much that
// pre-weighting concentrated the cloud.
func (a *APF) UnweightedCov() (mat.Symmetric, error) {
	x, ok := a.base.Particles().(*mat.Dense)
	if !ok {
		return nil, fmt.Errorf("%w: particle cloud is not a *mat.Dense", ssm.ErrInvalidConfiguration)
	}
	return matrixutil.UnweightedCov(x)
}
