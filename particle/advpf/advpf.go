// Package advpf implements the advanced particle filter: instead of
// composing dynamics-plus-additive-noise and measurement-plus-additive-
// noise the way particle/pf does, it hands the model direct control
// over noise injection (AdvancedDynamicsFunc's noise flag) and direct
// control over the measurement log-density (MeasurementLikelihoodFunc),
// so models with state-dependent, multiplicative or otherwise
// non-additive noise can express themselves without contorting into
// the additive-noise contract.
package advpf

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

// AdvancedPF is a particle filter driven by an AdvancedDynamicsFunc and
// a MeasurementLikelihoodFunc rather than the additive-noise contract
// particle/pf.PF uses.
type AdvancedPF struct {
	dyn  ssm.AdvancedDynamicsFunc
	lik  ssm.MeasurementLikelihoodFunc
	dx0  dist.Distribution
	x    *mat.Dense
	w    *weight.Vector
	rng  *prng.Source
	resampleCfg *resample.Config

	nx, nu, ny int
	t          int
	lastU      mat.Vector
	loglik     float64
}

// Option configures an AdvancedPF at construction.
type Option func(*config)

type config struct {
	seed      *uint64
	rng       *prng.Source
	threshold *float64
}

// WithSeed seeds the filter's random source deterministically.
func WithSeed(seed uint64) Option { return func(c *config) { c.seed = &seed } }

// WithSource supplies a pre-built random source.
func WithSource(rng *prng.Source) Option { return func(c *config) { c.rng = rng } }

// WithResampleThreshold overrides the default ESS/N resampling
// threshold of 0.5.
func WithResampleThreshold(t float64) Option { return func(c *config) { c.threshold = &t } }

// New returns an advanced particle filter with n particles, measurement
// dimension ny.
func New(n, ny int, dyn ssm.AdvancedDynamicsFunc, lik ssm.MeasurementLikelihoodFunc, dx0 dist.Distribution, opts ...Option) (*AdvancedPF, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: particle count must be positive, got %d", ssm.ErrInvalidConfiguration, n)
	}
	if dyn == nil || lik == nil || dx0 == nil {
		return nil, fmt.Errorf("%w: dynamics, likelihood and initial-state distribution are required", ssm.ErrInvalidConfiguration)
	}
	if ny <= 0 {
		return nil, fmt.Errorf("%w: measurement dimension must be positive, got %d", ssm.ErrInvalidConfiguration, ny)
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
	w, err := weight.New(n)
	if err != nil {
		return nil, err
	}
	x := mat.NewDense(nx, n, nil)
	for c := 0; c < n; c++ {
		x.SetCol(c, mat.Col(nil, 0, dx0.Sample(rng)))
	}

	return &AdvancedPF{dyn: dyn, lik: lik, dx0: dx0, x: x, w: w, rng: rng, resampleCfg: resampleCfg, nx: nx, ny: ny}, nil
}

// Predict propagates every particle through dyn with noise=true so the
// model injects its own process noise, and advances the time index.
func (p *AdvancedPF) Predict(u mat.Vector) error {
	n := p.w.Len()
	next := mat.NewDense(p.nx, n, nil)
	for c := 0; c < n; c++ {
		xNext, err := p.dyn(p.x.ColView(c), u, nil, p.t, true)
		if err != nil {
			return fmt.Errorf("particle %d propagation failed: %w", c, err)
		}
		next.SetCol(c, mat.Col(nil, 0, xNext))
	}
	p.x = next
	p.lastU = u
	p.t++
	return nil
}

// Correct reweights particles directly by lik(x, u, y), which folds
// measurement-noise evaluation into a single call instead of composing
// a noise-free prediction with a separately evaluated noise PDF.
func (p *AdvancedPF) Correct(y mat.Vector) (float64, error) {
	if y.Len() != p.ny {
		return 0, fmt.Errorf("%w: measurement has length %d, want %d", ssm.ErrDimensionMismatch, y.Len(), p.ny)
	}
	n := p.w.Len()
	loglikDelta := make([]float64, n)
	for c := 0; c < n; c++ {
		ll, err := p.lik(p.x.ColView(c), p.lastU, y, nil, p.t)
		if err != nil {
			return 0, fmt.Errorf("particle %d likelihood evaluation failed: %w", c, err)
		}
		loglikDelta[c] = ll
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

func (p *AdvancedPF) resample() error {
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

// Particles returns a copy of the current particle cloud.
func (p *AdvancedPF) Particles() mat.Matrix {
	m := new(mat.Dense)
	m.CloneFrom(p.x)
	return m
}

// Weights returns the current normalized log-weights.
func (p *AdvancedPF) Weights() []float64 {
	w := make([]float64, p.w.Len())
	copy(w, p.w.Log())
	return w
}

// State returns the weighted-mean point estimate.
func (p *AdvancedPF) State() mat.Vector {
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

// Cov returns the weighted particle covariance.
func (p *AdvancedPF) Cov() mat.Symmetric {
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

// LogLik returns the cumulative log-likelihood absorbed since the last
// Reset.
func (p *AdvancedPF) LogLik() float64 { return p.loglik }

// Reset redraws the particle cloud from the initial-state distribution
// and zeroes the time index and cumulative log-likelihood.
func (p *AdvancedPF) Reset() error {
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
func (p *AdvancedPF) Dims() (nx, nu, ny int) { return p.nx, p.nu, p.ny }
