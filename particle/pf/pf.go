// Package pf implements the bootstrap (SIR) particle filter: propagate
// each particle through the process model plus a noise draw, reweight
// by measurement likelihood, and resample when the particle cloud
// degenerates. Grounded on the teacher's particle/bf package,
// generalized to log-space weights, a per-filter random source and
// systematic resampling.
package pf

import (
	"fmt"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/prng"
	"github.com/go-ssm/ssm/resample"
	"github.com/go-ssm/ssm/weight"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PF is a bootstrap particle filter.
type PF struct {
	dyn  ssm.DynamicsFunc
	meas ssm.MeasurementFunc
	df   dist.Distribution // process noise
	dg   dist.Distribution // measurement noise, evaluated on the innovation
	dx0  dist.Distribution // initial state distribution

	x *mat.Dense // nx x N, one particle per column
	w *weight.Vector

	rng        *prng.Source
	resampleCfg *resample.Config

	nx, nu, ny int
	t          int
	lastU      mat.Vector
	loglik     float64
}

// Option configures a PF at construction.
type Option func(*config)

type config struct {
	seed      *uint64
	rng       *prng.Source
	threshold *float64
}

// WithSeed seeds the filter's random source deterministically.
func WithSeed(seed uint64) Option {
	return func(c *config) { c.seed = &seed }
}

// WithSource supplies a pre-built random source, taking precedence
// over WithSeed. Useful when a caller wants to hand a chain-derived
// prng.Source (e.g. from Source.Split) to the filter.
func WithSource(rng *prng.Source) Option {
	return func(c *config) { c.rng = rng }
}

// WithResampleThreshold overrides the default ESS/N resampling
// threshold of 0.5.
func WithResampleThreshold(t float64) Option {
	return func(c *config) { c.threshold = &t }
}

// New returns a bootstrap particle filter with n particles.
//
//   - dyn, meas: the model's dynamics and measurement callables
//   - df: process noise distribution, dimension nx
//   - dg: measurement noise distribution, dimension ny, evaluated on
//     the innovation y - meas(x)
//   - dx0: initial-state distribution, dimension nx
func New(n int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, df, dg, dx0 dist.Distribution, opts ...Option) (*PF, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: particle count must be positive, got %d", ssm.ErrInvalidConfiguration, n)
	}
	if dyn == nil || meas == nil || df == nil || dg == nil || dx0 == nil {
		return nil, fmt.Errorf("%w: dynamics, measurement and all three distributions are required", ssm.ErrInvalidConfiguration)
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	rng := cfg.rng
	if rng == nil {
		if cfg.seed != nil {
			rng = prng.New(*cfg.seed)
		} else {
			var err error
			rng, err = prng.NewFromEntropy()
			if err != nil {
				return nil, err
			}
		}
	}

	resampleOpts := []resample.Option{}
	if cfg.threshold != nil {
		resampleOpts = append(resampleOpts, resample.WithThreshold(*cfg.threshold))
	}
	resampleCfg, err := resample.NewConfig(resampleOpts...)
	if err != nil {
		return nil, err
	}

	nx := dx0.Dim()
	ny := dg.Dim()

	w, err := weight.New(n)
	if err != nil {
		return nil, err
	}

	x := mat.NewDense(nx, n, nil)
	for c := 0; c < n; c++ {
		x.SetCol(c, mat.Col(nil, 0, dx0.Sample(rng)))
	}

	return &PF{
		dyn: dyn, meas: meas,
		df: df, dg: dg, dx0: dx0,
		x: x, w: w,
		rng: rng, resampleCfg: resampleCfg,
		nx: nx, ny: ny,
	}, nil
}

// Predict propagates every particle through the dynamics plus an
// independent process-noise draw, and advances the time index.
func (p *PF) Predict(u mat.Vector) error {
	n := p.w.Len()
	next := mat.NewDense(p.nx, n, nil)
	for c := 0; c < n; c++ {
		xNext, err := p.dyn(p.x.ColView(c), u, nil, p.t)
		if err != nil {
			return fmt.Errorf("particle %d propagation failed: %w", c, err)
		}
		noise := p.df.Sample(p.rng)
		perturbed := mat.NewVecDense(p.nx, nil)
		perturbed.AddVec(xNext, noise)
		next.SetCol(c, mat.Col(nil, 0, perturbed))
	}
	p.x = next
	p.lastU = u
	p.t++
	return nil
}

// Correct reweights particles by the measurement likelihood of y,
// renormalizes, resamples if the effective sample size has degraded
// past the configured threshold, and returns the step's incremental
// log-likelihood.
func (p *PF) Correct(y mat.Vector) (float64, error) {
	if y.Len() != p.ny {
		return 0, fmt.Errorf("%w: measurement has length %d, want %d", ssm.ErrDimensionMismatch, y.Len(), p.ny)
	}
	n := p.w.Len()
	loglikDelta := make([]float64, n)
	innov := mat.NewVecDense(p.ny, nil)
	for c := 0; c < n; c++ {
		yPred, err := p.meas(p.x.ColView(c), p.lastU, nil, p.t)
		if err != nil {
			return 0, fmt.Errorf("particle %d observation failed: %w", c, err)
		}
		innov.SubVec(y, yPred)
		loglikDelta[c] = p.dg.LogPDF(innov)
	}
	if err := p.w.AddLogWeights(loglikDelta); err != nil {
		return 0, err
	}
	lse, err := p.w.Normalize()
	if err != nil {
		return 0, err
	}
	p.loglik += lse

	if p.resampleCfg.ShouldResample(p.w.ESS(), n) {
		if err := p.resample(); err != nil {
			return 0, err
		}
	}
	return lse, nil
}

// Step runs one filtering step: Correct on y, then Predict under u,
// matching the atomic filter(u, y) call form.
func (p *PF) Step(u, y mat.Vector) (float64, error) {
	ll, err := p.Correct(y)
	if err != nil {
		return 0, err
	}
	if err := p.Predict(u); err != nil {
		return 0, err
	}
	return ll, nil
}

// resample draws N ancestor indices via systematic resampling on the
// current normalized weights and replaces the particle cloud with
// their perturbation-free copies, resetting weights to uniform.
func (p *PF) resample() error {
	n := p.w.Len()
	u01 := p.rng.Float64() / float64(n)
	idx, err := resample.Systematic(p.w.ExpWeights(), u01)
	if err != nil {
		return err
	}
	resampled := mat.NewDense(p.nx, n, nil)
	for c, parent := range idx {
		resampled.SetCol(c, mat.Col(nil, 0, p.x.ColView(parent)))
	}
	p.x = resampled
	p.w.Reset()
	return nil
}

// Particles returns a copy of the current particle cloud, nx x N.
func (p *PF) Particles() mat.Matrix {
	m := new(mat.Dense)
	m.CloneFrom(p.x)
	return m
}

// Weights returns the current normalized log-weights.
func (p *PF) Weights() []float64 {
	w := make([]float64, p.w.Len())
	copy(w, p.w.Log())
	return w
}

// ExpWeights returns the current normalized weights in probability
// space.
func (p *PF) ExpWeights() []float64 {
	src := p.w.ExpWeights()
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// WeightedMean returns the particle cloud's weighted mean.
func (p *PF) WeightedMean() mat.Vector {
	weights := p.w.ExpWeights()
	mean := mat.NewVecDense(p.nx, nil)
	for r := 0; r < p.nx; r++ {
		var acc float64
		for c := 0; c < p.w.Len(); c++ {
			acc += weights[c] * p.x.At(r, c)
		}
		mean.SetVec(r, acc)
	}
	return mean
}

// WeightedCov returns the particle cloud's weighted covariance, via
// gonum's stat.CovarianceMatrix (the teacher's own matrix.Cov helper
// has no weighted variant).
func (p *PF) WeightedCov() mat.Symmetric {
	n := p.w.Len()
	weights := p.w.ExpWeights()
	data := mat.NewDense(n, p.nx, nil)
	for c := 0; c < n; c++ {
		for r := 0; r < p.nx; r++ {
			data.Set(c, r, p.x.At(r, c))
		}
	}
	cov := mat.NewSymDense(p.nx, nil)
	stat.CovarianceMatrix(cov, data, weights)
	return cov
}

// State returns the weighted-mean point estimate.
func (p *PF) State() mat.Vector { return p.WeightedMean() }

// Cov returns the weighted particle covariance.
func (p *PF) Cov() mat.Symmetric { return p.WeightedCov() }

// LogLik returns the cumulative log-likelihood absorbed since the
// last Reset.
func (p *PF) LogLik() float64 { return p.loglik }

// Reset redraws the particle cloud from the initial-state distribution
// and zeroes the time index and cumulative log-likelihood.
func (p *PF) Reset() error {
	n := p.w.Len()
	for c := 0; c < n; c++ {
		p.x.SetCol(c, mat.Col(nil, 0, p.dx0.Sample(p.rng)))
	}
	p.w.Reset()
	p.t = 0
	p.lastU = nil
	p.loglik = 0
	return nil
}

// Dims returns the filter's state, control and measurement dimensions.
func (p *PF) Dims() (nx, nu, ny int) { return p.nx, p.nu, p.ny }

// ESS returns the effective sample size of the current weights.
func (p *PF) ESS() float64 { return p.w.ESS() }

// N returns the number of particles.
func (p *PF) N() int { return p.w.Len() }

// SetParticles replaces the particle cloud wholesale. Exposed for
// particle/apf, which composes a PF for its particle storage and
// random source but drives its own auxiliary resampling and
// reweighting logic on top.
func (p *PF) SetParticles(x *mat.Dense) { p.x = x }

// RawWeights returns the filter's underlying log-weight vector.
// Exposed for particle/apf's composition; ordinary callers should use
// Weights/ExpWeights instead.
func (p *PF) RawWeights() *weight.Vector { return p.w }

// RNG returns the filter's random source. Exposed for particle/apf's
// composition, so the wrapping filter draws from the same stream
// instead of maintaining a redundant one.
func (p *PF) RNG() *prng.Source { return p.rng }

// AddLogLik adds delta to the filter's cumulative log-likelihood.
// Exposed for particle/apf, which computes its own per-step increment
// outside PF.Correct.
func (p *PF) AddLogLik(delta float64) { p.loglik += delta }
