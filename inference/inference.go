// Package inference implements likelihood-based parameter estimation
// over any ssm.Filter: point-in-time log-likelihood evaluation for MLE
// grid search, a likelihood closure suitable for optimization or MCMC,
// and a symmetric-proposal Metropolis sampler for particle marginal
// Metropolis-Hastings over particle-filter likelihoods (whose
// likelihood surface is stochastic, unlike a Kalman filter's). There
// is no teacher equivalent: the teacher repo only ever ran its filters
// forward by hand in examples and never estimated parameters from
// data. Grounded on trajectory.ForwardTrajectory for the forward pass
// and on viamrobotics-rdk's goroutine/sync.WaitGroup idiom for
// MetropolisThreaded's parallel chains.
package inference

import (
	"math"
	"sync"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/prng"
	"github.com/go-ssm/ssm/trajectory"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// LogLik resets f, runs it forward over control sequence u and
// measurement sequence y via trajectory.ForwardTrajectory, and returns
// the cumulative log-likelihood absorbed. That pass still builds the
// per-step state and covariance history; LogLik discards it.
func LogLik(f ssm.Filter, u, y []mat.Vector) (float64, error) {
	if err := f.Reset(); err != nil {
		return 0, err
	}
	sol, err := trajectory.ForwardTrajectory(f, u, y)
	if err != nil {
		return 0, err
	}
	return sol.LogLik, nil
}

// LogLikelihoodFunc closes over a filter factory and a fixed
// control/measurement sequence, returning a function of the parameter
// vector theta suitable for optimization or as a Metropolis target.
// newFilter rebuilds a filter for the given theta rather than mutating
// one in place, since most filter constructors close over their model
// matrices and noise covariances at construction time. priors, if
// non-nil, are summed as a log-prior term via each Distribution's
// LogPDF evaluated at the corresponding scalar in theta wrapped as a
// length-1 vector; a theta of length len(priors) is assumed. On any
// error building or running the filter, the returned function reports
// negInf (-1e300, a finite stand-in for -Inf), so a caller performing
// Metropolis sampling from any ordinary log-likelihood always
// rejects across invalid regions of parameter space instead of
// panicking.
func LogLikelihoodFunc(newFilter func(theta []float64) (ssm.Filter, error), priors []dist.Distribution, u, y []mat.Vector) func([]float64) float64 {
	return func(theta []float64) float64 {
		var logPrior float64
		if priors != nil {
			if len(priors) != len(theta) {
				return negInf
			}
			for i, p := range priors {
				logPrior += p.LogPDF(mat.NewVecDense(1, []float64{theta[i]}))
			}
		}
		f, err := newFilter(theta)
		if err != nil {
			return negInf
		}
		ll, err := LogLik(f, u, y)
		if err != nil {
			return negInf
		}
		return ll + logPrior
	}
}

const negInf = -1e300

// Metropolis runs a single-chain symmetric-proposal Metropolis sampler
// against target f for iters iterations starting at theta0, proposing
// the next candidate via draw(current, rng), and returns the sampled
// chain (length iters+1, including theta0) and the target
// log-density at each sampled point.
func Metropolis(f func([]float64) float64, iters int, theta0 []float64, draw func([]float64, *prng.Source) []float64, rng *prng.Source) (chain [][]float64, lls []float64) {
	chain = make([][]float64, iters+1)
	lls = make([]float64, iters+1)

	current := append([]float64(nil), theta0...)
	currentLL := f(current)
	chain[0] = current
	lls[0] = currentLL

	for i := 1; i <= iters; i++ {
		candidate := draw(current, rng)
		candidateLL := f(candidate)
		if accept(currentLL, candidateLL, rng) {
			current = candidate
			currentLL = candidateLL
		}
		chain[i] = append([]float64(nil), current...)
		lls[i] = currentLL
	}
	return chain, lls
}

func accept(currentLL, candidateLL float64, rng *prng.Source) bool {
	if candidateLL >= currentLL {
		return true
	}
	return rng.Float64() < math.Exp(candidateLL-currentLL)
}

// MetropolisThreaded runs nChains independent Metropolis chains
// concurrently, one goroutine per chain, each seeded from an
// independently split prng.Source so chains never share a random
// stream, and discards the first burnin samples of each chain before
// returning. Every chain uses the same target f, initial point theta0
// and proposal draw.
func MetropolisThreaded(nChains, burnin, iters int, f func([]float64) float64, theta0 []float64, draw func([]float64, *prng.Source) []float64, seed uint64, logger *zap.Logger) [][][]float64 {
	logger = orNoOp(logger)
	root := prng.New(seed)
	chains := make([][][]float64, nChains)

	var wg sync.WaitGroup
	for c := 0; c < nChains; c++ {
		chainRng := root.Split()
		wg.Add(1)
		go func(idx int, rng *prng.Source) {
			defer wg.Done()
			full, lls := Metropolis(f, iters, theta0, draw, rng)
			start := burnin
			if start > len(full) {
				start = len(full)
			}
			kept := full[start:]
			accepted := 0
			for i := 1; i < len(full); i++ {
				if lls[i] != lls[i-1] {
					accepted++
				}
			}
			if iters > 0 {
				logger.Debug("metropolis chain finished",
					zap.Int("chain", idx),
					zap.Float64("acceptance_rate", float64(accepted)/float64(iters)))
			}
			chains[idx] = kept
		}(c, chainRng)
	}
	wg.Wait()

	return chains
}

func orNoOp(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
