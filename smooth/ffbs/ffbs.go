// Package ffbs implements forward-filtering backward-simulation, the
// particle-filter analogue of smooth/rts: a full forward particle
// filter pass whose entire history of particle clouds and weights is
// kept, followed by one or more backward passes that each sample a
// full state trajectory conditioned on all observations. There is no
// teacher equivalent — the teacher's particle filter package never
// retained cross-step history — so this is grounded on the shape of
// particle/pf.PF's forward recursion, generalized to retain history,
// combined with dist.Categorical for the backward draws.
package ffbs

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/prng"
	"github.com/go-ssm/ssm/resample"
	"github.com/go-ssm/ssm/weight"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// debugThreshold is the N*M*T work unit count above which Run logs a
// Debug diagnostic about the smoother's cost, per the O(N*M*T)
// complexity of drawing M backward trajectories over T steps with N
// particles each.
const debugThreshold = 10_000_000

// Trajectory is one backward-sampled realization of the hidden state
// path, conditioned on the full observation sequence.
type Trajectory struct {
	States []mat.Vector
}

// Forward holds the retained particle cloud and normalized weight
// history from a single forward filtering pass, reusable across
// multiple independent backward draws.
type Forward struct {
	dyn    ssm.DynamicsFunc
	df     dist.Distribution
	xHist  []*mat.Dense
	wHist  [][]float64
	u      []mat.Vector
	nx, ny int
	steps  int
}

// RunForward performs forward particle filtering with n particles over
// control sequence u and measurement sequence y, retaining the full
// particle-cloud and weight history needed for backward simulation. u
// may be nil for models with no control input.
func RunForward(n int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, df, dg, dx0 dist.Distribution, u, y []mat.Vector, rng *prng.Source) (*Forward, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: particle count must be positive, got %d", ssm.ErrInvalidConfiguration, n)
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("%w: measurement sequence must be non-empty", ssm.ErrInvalidConfiguration)
	}
	if u != nil && len(u) != len(y) {
		return nil, fmt.Errorf("%w: control sequence has length %d, want %d", ssm.ErrDimensionMismatch, len(u), len(y))
	}
	steps := len(y)
	nx := dx0.Dim()
	ny := y[0].Len()

	xHist := make([]*mat.Dense, steps)
	wHist := make([][]float64, steps)

	resampleCfg, err := resample.NewConfig()
	if err != nil {
		return nil, err
	}

	x := mat.NewDense(nx, n, nil)
	for c := 0; c < n; c++ {
		x.SetCol(c, mat.Col(nil, 0, dx0.Sample(rng)))
	}
	w, err := weight.New(n)
	if err != nil {
		return nil, err
	}

	for t := 0; t < steps; t++ {
		var ut mat.Vector
		if u != nil {
			ut = u[t]
		}
		next := mat.NewDense(nx, n, nil)
		for c := 0; c < n; c++ {
			xNext, err := dyn(x.ColView(c), ut, nil, t)
			if err != nil {
				return nil, fmt.Errorf("particle %d propagation failed at step %d: %w", c, t, err)
			}
			noisy := mat.NewVecDense(nx, nil)
			noisy.AddVec(xNext, df.Sample(rng))
			next.SetCol(c, mat.Col(nil, 0, noisy))
		}
		x = next

		delta := make([]float64, n)
		for c := 0; c < n; c++ {
			yPred, err := meas(x.ColView(c), ut, nil, t)
			if err != nil {
				return nil, fmt.Errorf("particle %d observation failed at step %d: %w", c, t, err)
			}
			innov := mat.NewVecDense(ny, nil)
			innov.SubVec(y[t], yPred)
			delta[c] = dg.LogPDF(innov)
		}
		if err := w.AddLogWeights(delta); err != nil {
			return nil, err
		}
		if _, err := w.Normalize(); err != nil {
			return nil, err
		}

		xHist[t] = x
		normalized := make([]float64, n)
		copy(normalized, w.ExpWeights())
		wHist[t] = normalized

		if resampleCfg.ShouldResample(w.ESS(), n) {
			u01 := rng.Float64() / float64(n)
			idx, err := resample.Systematic(w.ExpWeights(), u01)
			if err != nil {
				return nil, err
			}
			resampled := mat.NewDense(nx, n, nil)
			for c, parent := range idx {
				resampled.SetCol(c, mat.Col(nil, 0, x.ColView(parent)))
			}
			x = resampled
			w.Reset()
		}
	}

	return &Forward{dyn: dyn, df: df, xHist: xHist, wHist: wHist, u: u, nx: nx, ny: ny, steps: steps}, nil
}

// Backward draws a single trajectory from the retained forward history:
// the terminal state is drawn from its filtered weights, then each
// preceding state is drawn by reweighting every particle at that step
// by the transition density into the already-fixed future draw.
func (f *Forward) Backward(rng *prng.Source) (*Trajectory, error) {
	n := len(f.wHist[0])
	states := make([]mat.Vector, f.steps)

	terminal := dist.NewCategorical(f.wHist[f.steps-1])
	chosen := terminal.DrawIndex(rng)
	states[f.steps-1] = colCopy(f.xHist[f.steps-1], chosen)

	for t := f.steps - 2; t >= 0; t-- {
		var ut mat.Vector
		if f.u != nil {
			ut = f.u[t+1]
		}
		backward := make([]float64, n)
		for c := 0; c < n; c++ {
			mean, err := f.dyn(f.xHist[t].ColView(c), ut, nil, t+1)
			if err != nil {
				return nil, fmt.Errorf("backward transition from particle %d at step %d failed: %w", c, t, err)
			}
			diff := mat.NewVecDense(f.nx, nil)
			diff.SubVec(states[t+1], mean)
			backward[c] = f.wHist[t][c] * math.Exp(f.df.LogPDF(diff))
		}
		cat := dist.NewCategorical(backward)
		chosen := cat.DrawIndex(rng)
		states[t] = colCopy(f.xHist[t], chosen)
	}

	return &Trajectory{States: states}, nil
}

// Run performs forward filtering once and draws m independent backward
// trajectories from the resulting history. logger, if non-nil, emits a
// Debug diagnostic when the total N*M*T work exceeds debugThreshold.
func Run(n, m int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, df, dg, dx0 dist.Distribution, u, y []mat.Vector, rng *prng.Source, logger *zap.Logger) ([]*Trajectory, error) {
	if m <= 0 {
		return nil, fmt.Errorf("%w: trajectory count must be positive, got %d", ssm.ErrInvalidConfiguration, m)
	}
	steps := len(y)
	if logger != nil {
		if work := n * m * steps; work > debugThreshold {
			logger.Debug("ffbs.Run: large smoothing workload",
				zap.Int("particles", n), zap.Int("trajectories", m), zap.Int("steps", steps), zap.Int("work", work))
		}
	}

	fwd, err := RunForward(n, dyn, meas, df, dg, dx0, u, y, rng)
	if err != nil {
		return nil, err
	}

	trajs := make([]*Trajectory, m)
	for i := 0; i < m; i++ {
		t, err := fwd.Backward(rng)
		if err != nil {
			return nil, err
		}
		trajs[i] = t
	}
	return trajs, nil
}

func colCopy(m *mat.Dense, c int) mat.Vector {
	rows, _ := m.Dims()
	out := mat.NewVecDense(rows, nil)
	out.CopyVec(m.ColView(c))
	return out
}
