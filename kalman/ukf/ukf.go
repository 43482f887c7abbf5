// Package ukf implements the Unscented Kalman filter: instead of
// linearizing dynamics and measurement functions like kalman/ekf does,
// it propagates a small deterministic set of sigma points through the
// true nonlinear functions and reconstructs mean and covariance from
// their weighted spread. Grounded on the teacher's kalman/ukf package's
// sigma-point weight formulas and two-stage Predict/Update structure,
// generalized to additive Gaussian process/measurement noise (dropping
// the teacher's augmented state+noise sigma-point block, which this
// port's noise model has no use for) and to a Cholesky-first sigma
// point square root with an epsilon-jitter SVD retry.
package ukf

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"gonum.org/v1/gonum/mat"
)

// Config holds the unitless UKF tuning parameters.
type Config struct {
	// Alpha controls sigma point spread around the mean, (0, 1].
	Alpha float64
	// Beta incorporates prior knowledge of the state distribution; 2
	// is optimal for Gaussian states.
	Beta float64
	// Kappa is a secondary scaling parameter, usually 0.
	Kappa float64
}

// DefaultConfig returns (alpha=1e-3, beta=2, kappa=0), the standard
// choice for near-Gaussian state distributions.
func DefaultConfig() Config {
	return Config{Alpha: 1e-3, Beta: 2, Kappa: 0}
}

// UKF is an Unscented Kalman filter over nonlinear dynamics and
// measurement functions.
type UKF struct {
	dyn  ssm.DynamicsFunc
	meas ssm.MeasurementFunc

	dx0 dist.Distribution
	q   dist.Distribution // process noise, must implement ssm.MeanCov
	r   dist.Distribution // measurement noise, must implement ssm.MeanCov

	cfg          Config
	gamma        float64
	wm0, wc0, wi float64

	x *mat.VecDense
	p *mat.SymDense

	// sigma points propagated through dyn during Predict, reused by
	// Correct's measurement update so both stages of a step draw from
	// the same sample.
	xSigma *mat.Dense
	xMean  *mat.VecDense

	nx, nu, ny int
	t          int
	lastU      mat.Vector
	loglik     float64
}

// New returns an Unscented Kalman filter over dyn and meas, with
// initial-state distribution dx0 and process/measurement noise
// distributions q and r, all of which must implement ssm.MeanCov.
func New(nx, nu, ny int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, dx0, q, r dist.Distribution, cfg Config) (*UKF, error) {
	if dyn == nil || meas == nil || dx0 == nil || q == nil || r == nil {
		return nil, fmt.Errorf("%w: dynamics, measurement and all three distributions are required", ssm.ErrInvalidConfiguration)
	}
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions [%d x %d]", ssm.ErrInvalidConfiguration, nx, ny)
	}
	if cfg.Alpha <= 0 || cfg.Alpha > 1 || cfg.Beta < 0 || cfg.Kappa < 0 {
		return nil, fmt.Errorf("%w: invalid UKF config %+v", ssm.ErrInvalidConfiguration, cfg)
	}
	dx0MC, ok := dx0.(ssm.MeanCov)
	if !ok {
		return nil, fmt.Errorf("%w: initial-state distribution must expose Mean/Cov", ssm.ErrInvalidConfiguration)
	}
	if _, ok := q.(ssm.MeanCov); !ok {
		return nil, fmt.Errorf("%w: process noise distribution must expose Mean/Cov", ssm.ErrInvalidConfiguration)
	}
	if _, ok := r.(ssm.MeanCov); !ok {
		return nil, fmt.Errorf("%w: measurement noise distribution must expose Mean/Cov", ssm.ErrInvalidConfiguration)
	}

	lambda := cfg.Alpha*cfg.Alpha*(float64(nx)+cfg.Kappa) - float64(nx)
	gamma := math.Sqrt(float64(nx) + lambda)
	wm0 := lambda / (float64(nx) + lambda)
	wc0 := wm0 + (1 - cfg.Alpha*cfg.Alpha + cfg.Beta)
	wi := 1 / (2 * (float64(nx) + lambda))

	x := mat.NewVecDense(nx, nil)
	x.CopyVec(dx0MC.Mean())
	p := mat.NewSymDense(nx, nil)
	p.CopySym(dx0MC.Cov())

	return &UKF{
		dyn: dyn, meas: meas, dx0: dx0, q: q, r: r,
		cfg: cfg, gamma: gamma, wm0: wm0, wc0: wc0, wi: wi,
		x: x, p: p, nx: nx, nu: nu, ny: ny,
	}, nil
}

// sigmaPoints returns 2*nx+1 sigma points around mean under covariance
// cov, columns 0 the mean, 1..nx the positive spread, nx+1..2nx the
// negative spread.
func (k *UKF) sigmaPoints(mean *mat.VecDense, cov *mat.SymDense) *mat.Dense {
	n := k.nx
	sp := mat.NewDense(n, 2*n+1, nil)
	for c := 0; c < 2*n+1; c++ {
		sp.SetCol(c, mat.Col(nil, 0, mean))
	}

	sqrtCov := sigmaSqrt(cov)
	sqrtCov.Scale(k.gamma, sqrtCov)

	pos := sp.Slice(0, n, 1, 1+n).(*mat.Dense)
	pos.Add(pos, sqrtCov)
	neg := sp.Slice(0, n, 1+n, 1+2*n).(*mat.Dense)
	neg.Sub(neg, sqrtCov)
	return sp
}

// sigmaSqrt computes a square root of cov via Cholesky, retrying once
// with an SVD-based root over a jittered cov + epsilon*I if Cholesky
// fails on a near-singular matrix (REDESIGN vs. the teacher's UKF,
// which always took the more expensive SVD path).
func sigmaSqrt(cov *mat.SymDense) *mat.Dense {
	var chol mat.Cholesky
	if chol.Factorize(cov) {
		var l mat.TriDense
		chol.LTo(&l)
		out := new(mat.Dense)
		out.CloneFrom(&l)
		return out
	}

	const eps = 1e-9
	n := cov.SymmetricDim()
	jittered := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if i == j {
				v += eps
			}
			jittered.SetSym(i, j, v)
		}
	}
	var svd mat.SVD
	svd.Factorize(jittered, mat.SVDFull)
	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(math.Max(vals[i], 0))
	}
	diag := mat.NewDiagDense(len(vals), vals)
	u.Mul(u, diag)
	return u
}

// weightedMean computes the sigma-point weighted mean of the columns
// of m.
func weightedMean(m *mat.Dense, wm0, wi float64) *mat.VecDense {
	rows, cols := m.Dims()
	mean := mat.NewVecDense(rows, nil)
	for c := 0; c < cols; c++ {
		w := wi
		if c == 0 {
			w = wm0
		}
		mean.AddScaledVec(mean, w, m.ColView(c))
	}
	return mean
}

// Predict propagates the current sigma points through dyn, computes
// their weighted mean and covariance plus process noise, and advances
// the time index.
func (k *UKF) Predict(u mat.Vector) error {
	sp := k.sigmaPoints(k.x, k.p)
	cols := 2*k.nx + 1

	xSigma := mat.NewDense(k.nx, cols, nil)
	for c := 0; c < cols; c++ {
		next, err := k.dyn(sp.ColView(c), u, nil, k.t)
		if err != nil {
			return fmt.Errorf("sigma point %d propagation failed: %w", c, err)
		}
		xSigma.SetCol(c, mat.Col(nil, 0, next))
	}
	xMean := weightedMean(xSigma, k.wm0, k.wi)

	pPred := mat.NewSymDense(k.nx, nil)
	diff := mat.NewVecDense(k.nx, nil)
	outer := mat.NewDense(k.nx, k.nx, nil)
	for c := 0; c < cols; c++ {
		diff.SubVec(xSigma.ColView(c), xMean)
		outer.Mul(diff, diff.T())
		w := k.wi
		if c == 0 {
			w = k.wc0
		}
		for i := 0; i < k.nx; i++ {
			for j := i; j < k.nx; j++ {
				pPred.SetSym(i, j, pPred.At(i, j)+w*outer.At(i, j))
			}
		}
	}
	q := k.q.(ssm.MeanCov).Cov()
	for i := 0; i < k.nx; i++ {
		for j := i; j < k.nx; j++ {
			pPred.SetSym(i, j, pPred.At(i, j)+q.At(i, j))
		}
	}

	k.xSigma = xSigma
	k.xMean = xMean
	k.x = xMean
	k.p = pPred
	k.lastU = u
	k.t++
	return nil
}

// Correct observes the sigma points propagated by the preceding
// Predict through meas, forms the cross- and output-covariances, and
// runs the same Cholesky-then-LU-fallback gain solve as kalman/kf.
func (k *UKF) Correct(y mat.Vector) (float64, error) {
	if y.Len() != k.ny {
		return 0, fmt.Errorf("%w: measurement has length %d, want %d", ssm.ErrDimensionMismatch, y.Len(), k.ny)
	}
	cols := 2*k.nx + 1
	ySigma := mat.NewDense(k.ny, cols, nil)
	for c := 0; c < cols; c++ {
		yc, err := k.meas(k.xSigma.ColView(c), k.lastU, nil, k.t)
		if err != nil {
			return 0, fmt.Errorf("sigma point %d observation failed: %w", c, err)
		}
		ySigma.SetCol(c, mat.Col(nil, 0, yc))
	}
	yMean := weightedMean(ySigma, k.wm0, k.wi)

	pxy := mat.NewDense(k.nx, k.ny, nil)
	pyy := mat.NewSymDense(k.ny, nil)
	dx := mat.NewVecDense(k.nx, nil)
	dy := mat.NewVecDense(k.ny, nil)
	outerXY := mat.NewDense(k.nx, k.ny, nil)
	outerYY := mat.NewDense(k.ny, k.ny, nil)
	for c := 0; c < cols; c++ {
		dx.SubVec(k.xSigma.ColView(c), k.xMean)
		dy.SubVec(ySigma.ColView(c), yMean)
		outerXY.Mul(dx, dy.T())
		outerYY.Mul(dy, dy.T())
		w := k.wi
		if c == 0 {
			w = k.wc0
		}
		for i := 0; i < k.nx; i++ {
			for j := 0; j < k.ny; j++ {
				pxy.Set(i, j, pxy.At(i, j)+w*outerXY.At(i, j))
			}
		}
		for i := 0; i < k.ny; i++ {
			for j := i; j < k.ny; j++ {
				pyy.SetSym(i, j, pyy.At(i, j)+w*outerYY.At(i, j))
			}
		}
	}
	r := k.r.(ssm.MeanCov).Cov()
	for i := 0; i < k.ny; i++ {
		for j := i; j < k.ny; j++ {
			pyy.SetSym(i, j, pyy.At(i, j)+r.At(i, j))
		}
	}

	innov := mat.NewVecDense(k.ny, nil)
	innov.SubVec(y, yMean)

	gain, logDetS, err := solveGain(pxy, pyy)
	if err != nil {
		return 0, err
	}

	corr := new(mat.Dense)
	corr.Mul(gain, innov)
	xNext := mat.NewVecDense(k.nx, nil)
	xNext.AddVec(k.x, corr.ColView(0))

	gpyy := new(mat.Dense)
	gpyy.Mul(gain, pyy)
	gpyygt := new(mat.Dense)
	gpyygt.Mul(gpyy, gain.T())
	pNext := mat.NewSymDense(k.nx, nil)
	for i := 0; i < k.nx; i++ {
		for j := i; j < k.nx; j++ {
			pNext.SetSym(i, j, k.p.At(i, j)-gpyygt.At(i, j))
		}
	}

	var quad float64
	var sInvInnov mat.Dense
	if err := sInvInnov.Solve(pyy, innov); err == nil {
		quad = mat.Dot(innov, sInvInnov.ColView(0))
	} else {
		quad = math.NaN()
	}
	delta := -0.5 * (float64(k.ny)*math.Log(2*math.Pi) + logDetS + quad)
	k.loglik += delta

	k.x = xNext
	k.p = pNext
	return delta, nil
}

// solveGain mirrors kalman/kf's solveGain: Cholesky first, LU fallback
// with a positive-definiteness check, ssm.ErrSingularInnovation if
// both fail.
func solveGain(pxy *mat.Dense, s *mat.SymDense) (*mat.Dense, float64, error) {
	var chol mat.Cholesky
	if chol.Factorize(s) {
		var gainT mat.Dense
		if err := chol.SolveTo(&gainT, pxy.T()); err == nil {
			gain := new(mat.Dense)
			gain.CloneFrom(gainT.T())
			return gain, chol.LogDet(), nil
		}
	}

	var lu mat.LU
	lu.Factorize(s)
	var gainT mat.Dense
	if err := lu.SolveTo(&gainT, true, pxy); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ssm.ErrSingularInnovation, err)
	}
	logDet, sign := lu.LogDet()
	if sign <= 0 {
		return nil, 0, fmt.Errorf("%w: innovation covariance is not positive definite", ssm.ErrSingularInnovation)
	}
	gain := new(mat.Dense)
	gain.CloneFrom(gainT.T())
	return gain, logDet, nil
}

// State returns the current state estimate.
func (k *UKF) State() mat.Vector {
	v := mat.NewVecDense(k.nx, nil)
	v.CopyVec(k.x)
	return v
}

// Cov returns the current state covariance.
func (k *UKF) Cov() mat.Symmetric {
	c := mat.NewSymDense(k.nx, nil)
	c.CopySym(k.p)
	return c
}

// LogLik returns the cumulative log-likelihood absorbed since the last
// Reset.
func (k *UKF) LogLik() float64 { return k.loglik }

// Reset reinitializes the state and covariance from the initial-state
// distribution and zeroes the time index and cumulative
// log-likelihood.
func (k *UKF) Reset() error {
	dx0 := k.dx0.(ssm.MeanCov)
	k.x.CopyVec(dx0.Mean())
	k.p.CopySym(dx0.Cov())
	k.xSigma = nil
	k.xMean = nil
	k.t = 0
	k.lastU = nil
	k.loglik = 0
	return nil
}

// Dims returns the filter's state, control and measurement dimensions.
func (k *UKF) Dims() (nx, nu, ny int) { return k.nx, k.nu, k.ny }
