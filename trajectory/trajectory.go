// Package trajectory drives an ssm.Filter (or a ground-truth model)
// across a sequence of control inputs and measurements. It has no
// analogue in the teacher repo, whose examples always drove a single
// filter's Predict/Update by hand in a for loop; this package
// generalizes that loop into a reusable driver so every filter and
// smoother in this module shares one iteration contract.
package trajectory

import (
	"fmt"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/prng"
	"gonum.org/v1/gonum/mat"
)

// Solution holds the outcome of running a filter forward over a
// trajectory: per-step point estimates, covariances and the
// cumulative log-likelihood.
type Solution struct {
	States []mat.Vector
	Covs   []mat.Symmetric
	LogLik float64
}

// ForwardTrajectory runs f's Predict/Correct recursion over control
// sequence u and measurement sequence y, both indexed by time step and
// of equal length, and collects the resulting Solution. u[i] may be
// nil for models with no control input. f is not Reset before
// running; callers that want a clean run call f.Reset() first.
func ForwardTrajectory(f ssm.Filter, u, y []mat.Vector) (*Solution, error) {
	if len(y) == 0 {
		return nil, fmt.Errorf("%w: measurement sequence must be non-empty", ssm.ErrInvalidConfiguration)
	}
	if u != nil && len(u) != len(y) {
		return nil, fmt.Errorf("%w: control sequence has length %d, want %d", ssm.ErrDimensionMismatch, len(u), len(y))
	}

	states := make([]mat.Vector, len(y))
	covs := make([]mat.Symmetric, len(y))

	for i := range y {
		var ui mat.Vector
		if u != nil {
			ui = u[i]
		}
		if err := f.Predict(ui); err != nil {
			return nil, fmt.Errorf("predict at step %d: %w", i, err)
		}
		if _, err := f.Correct(y[i]); err != nil {
			return nil, fmt.Errorf("correct at step %d: %w", i, err)
		}
		states[i] = f.State()
		covs[i] = f.Cov()
	}

	return &Solution{States: states, Covs: covs, LogLik: f.LogLik()}, nil
}

// GroundTruth holds a simulated state-and-measurement trajectory
// generated by Simulate.
type GroundTruth struct {
	States []mat.Vector
	Obs    []mat.Vector
}

// Simulate draws a synthetic trajectory of length steps from dyn and
// meas under process noise df and measurement noise dg, starting from
// a draw of dx0, using rng for every random draw. u, if non-nil, must
// have length steps; nil entries are passed through as no control
// input.
func Simulate(steps int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, df, dg, dx0 dist.Distribution, u []mat.Vector, rng *prng.Source) (*GroundTruth, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", ssm.ErrInvalidConfiguration, steps)
	}
	if u != nil && len(u) != steps {
		return nil, fmt.Errorf("%w: control sequence has length %d, want %d", ssm.ErrDimensionMismatch, len(u), steps)
	}

	x := dx0.Sample(rng)
	states := make([]mat.Vector, steps)
	obs := make([]mat.Vector, steps)

	for i := 0; i < steps; i++ {
		var ui mat.Vector
		if u != nil {
			ui = u[i]
		}
		xNext, err := dyn(x, ui, nil, i)
		if err != nil {
			return nil, fmt.Errorf("dynamics at step %d: %w", i, err)
		}
		noisy := mat.NewVecDense(xNext.Len(), nil)
		noisy.AddVec(xNext, df.Sample(rng))

		y, err := meas(noisy, ui, nil, i)
		if err != nil {
			return nil, fmt.Errorf("measurement at step %d: %w", i, err)
		}
		noisyY := mat.NewVecDense(y.Len(), nil)
		noisyY.AddVec(y, dg.Sample(rng))

		states[i] = noisy
		obs[i] = noisyY
		x = noisy
	}

	return &GroundTruth{States: states, Obs: obs}, nil
}

// MeanTrajectory averages several independent Solutions step-by-step,
// e.g. across repeated particle filter runs with different random
// seeds, returning the pointwise mean state at each step. All
// solutions must have equal, non-zero length and dimension.
func MeanTrajectory(sols []*Solution) ([]mat.Vector, error) {
	if len(sols) == 0 {
		return nil, fmt.Errorf("%w: at least one solution is required", ssm.ErrInvalidConfiguration)
	}
	steps := len(sols[0].States)
	if steps == 0 {
		return nil, fmt.Errorf("%w: solutions must be non-empty", ssm.ErrInvalidConfiguration)
	}
	nx := sols[0].States[0].Len()

	mean := make([]mat.Vector, steps)
	for t := 0; t < steps; t++ {
		acc := mat.NewVecDense(nx, nil)
		for _, s := range sols {
			if len(s.States) != steps || s.States[t].Len() != nx {
				return nil, fmt.Errorf("%w: solutions have mismatched shapes", ssm.ErrDimensionMismatch)
			}
			acc.AddVec(acc, s.States[t])
		}
		acc.ScaleVec(1/float64(len(sols)), acc)
		mean[t] = acc
	}
	return mean, nil
}
