// Package ekf implements the Extended Kalman filter: the same
// predict/correct recursion as kalman/kf, but linearizing nonlinear
// dynamics and measurement functions at the current state estimate via
// a finite-difference Jacobian instead of requiring constant
// propagation matrices. Grounded on the teacher's kalman/ekf package,
// adapted to the ssm model traits and error taxonomy; the teacher's
// iterated variant (IEKF) is dropped, see DESIGN.md.
package ekf

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// EKF is an Extended Kalman filter over nonlinear dynamics and
// measurement functions.
type EKF struct {
	dyn  ssm.DynamicsFunc
	meas ssm.MeasurementFunc

	dx0 dist.Distribution
	q   dist.Distribution // process noise, must implement ssm.MeanCov
	r   dist.Distribution // measurement noise, must implement ssm.MeanCov

	x *mat.VecDense
	p *mat.SymDense

	nx, nu, ny int
	t          int
	lastU      mat.Vector
	loglik     float64
}

// New returns an Extended Kalman filter over dyn and meas, with
// initial-state distribution dx0 and process/measurement noise
// distributions q and r, all of which must implement ssm.MeanCov.
func New(nx, nu, ny int, dyn ssm.DynamicsFunc, meas ssm.MeasurementFunc, dx0, q, r dist.Distribution) (*EKF, error) {
	if dyn == nil || meas == nil || dx0 == nil || q == nil || r == nil {
		return nil, fmt.Errorf("%w: dynamics, measurement and all three distributions are required", ssm.ErrInvalidConfiguration)
	}
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions [%d x %d]", ssm.ErrInvalidConfiguration, nx, ny)
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

	x := mat.NewVecDense(nx, nil)
	x.CopyVec(dx0MC.Mean())
	p := mat.NewSymDense(nx, nil)
	p.CopySym(dx0MC.Cov())

	return &EKF{dyn: dyn, meas: meas, dx0: dx0, q: q, r: r, x: x, p: p, nx: nx, nu: nu, ny: ny}, nil
}

// Predict advances the state estimate through dyn and propagates
// covariance through dyn's Jacobian at the current estimate:
// P = F*P*F' + Q, F = d(dyn)/dx |x.
func (k *EKF) Predict(u mat.Vector) error {
	xNext, err := k.dyn(k.x, u, nil, k.t)
	if err != nil {
		return fmt.Errorf("state propagation failed: %w", err)
	}

	f := mat.NewDense(k.nx, k.nx, nil)
	jacFn := func(out, xNow []float64) {
		xv := mat.NewVecDense(len(xNow), xNow)
		next, err := k.dyn(xv, u, nil, k.t)
		if err != nil {
			panic(err)
		}
		copy(out, mat.Col(nil, 0, next))
	}
	fd.Jacobian(f, jacFn, mat.Col(nil, 0, k.x), &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})

	fp := new(mat.Dense)
	fp.Mul(f, k.p)
	fpft := new(mat.Dense)
	fpft.Mul(fp, f.T())

	q := k.q.(ssm.MeanCov).Cov()
	pNext := mat.NewSymDense(k.nx, nil)
	for i := 0; i < k.nx; i++ {
		for j := i; j < k.nx; j++ {
			pNext.SetSym(i, j, fpft.At(i, j)+q.At(i, j))
		}
	}

	k.x = mat.NewVecDense(k.nx, mat.Col(nil, 0, xNext))
	k.p = pNext
	k.lastU = u
	k.t++
	return nil
}

// Correct absorbs measurement y, linearizing meas at the current state
// estimate via a finite-difference Jacobian, then runs the same
// Joseph-form correction as kalman/kf.
func (k *EKF) Correct(y mat.Vector) (float64, error) {
	if y.Len() != k.ny {
		return 0, fmt.Errorf("%w: measurement has length %d, want %d", ssm.ErrDimensionMismatch, y.Len(), k.ny)
	}

	yPred, err := k.meas(k.x, k.lastU, nil, k.t)
	if err != nil {
		return 0, fmt.Errorf("observation failed: %w", err)
	}

	h := mat.NewDense(k.ny, k.nx, nil)
	jacFn := func(out, xNow []float64) {
		xv := mat.NewVecDense(len(xNow), xNow)
		obs, err := k.meas(xv, k.lastU, nil, k.t)
		if err != nil {
			panic(err)
		}
		copy(out, mat.Col(nil, 0, obs))
	}
	fd.Jacobian(h, jacFn, mat.Col(nil, 0, k.x), &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})

	innov := mat.NewVecDense(k.ny, nil)
	innov.SubVec(y, yPred)

	pxy := new(mat.Dense)
	pxy.Mul(k.p, h.T())

	r := k.r.(ssm.MeanCov).Cov()
	pyy := new(mat.Dense)
	pyy.Mul(h, pxy)
	s := mat.NewSymDense(k.ny, nil)
	for i := 0; i < k.ny; i++ {
		for j := i; j < k.ny; j++ {
			s.SetSym(i, j, pyy.At(i, j)+r.At(i, j))
		}
	}

	gain, logDetS, err := solveGain(pxy, s)
	if err != nil {
		return 0, err
	}

	corr := new(mat.Dense)
	corr.Mul(gain, innov)
	xNext := mat.NewVecDense(k.nx, nil)
	xNext.AddVec(k.x, corr.ColView(0))

	eye := mat.NewDiagDense(k.nx, nil)
	for i := 0; i < k.nx; i++ {
		eye.SetDiag(i, 1.0)
	}
	kh := new(mat.Dense)
	kh.Mul(gain, h)
	a := new(mat.Dense)
	a.Sub(eye, kh)

	ap := new(mat.Dense)
	ap.Mul(a, k.p)
	apat := new(mat.Dense)
	apat.Mul(ap, a.T())

	kr := new(mat.Dense)
	kr.Mul(gain, r)
	krkt := new(mat.Dense)
	krkt.Mul(kr, gain.T())

	pNext := mat.NewSymDense(k.nx, nil)
	for i := 0; i < k.nx; i++ {
		for j := i; j < k.nx; j++ {
			pNext.SetSym(i, j, apat.At(i, j)+krkt.At(i, j))
		}
	}

	var quad float64
	var sInvInnov mat.Dense
	if err := sInvInnov.Solve(s, innov); err == nil {
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

// solveGain is shared in spirit with kalman/kf's solveGain: Cholesky
// first, LU-with-sign-check fallback, ssm.ErrSingularInnovation if
// both fail. Kept as its own copy rather than exported from kf to
// avoid a cross-package dependency between the two sibling filters
// over a five-line numerical helper.
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
func (k *EKF) State() mat.Vector {
	v := mat.NewVecDense(k.nx, nil)
	v.CopyVec(k.x)
	return v
}

// Cov returns the current state covariance.
func (k *EKF) Cov() mat.Symmetric {
	c := mat.NewSymDense(k.nx, nil)
	c.CopySym(k.p)
	return c
}

// LogLik returns the cumulative log-likelihood absorbed since the last
// Reset.
func (k *EKF) LogLik() float64 { return k.loglik }

// Reset reinitializes the state and covariance from the initial-state
// distribution and zeroes the time index and cumulative
// log-likelihood.
func (k *EKF) Reset() error {
	dx0 := k.dx0.(ssm.MeanCov)
	k.x.CopyVec(dx0.Mean())
	k.p.CopySym(dx0.Cov())
	k.t = 0
	k.lastU = nil
	k.loglik = 0
	return nil
}

// Dims returns the filter's state, control and measurement dimensions.
func (k *EKF) Dims() (nx, nu, ny int) { return k.nx, k.nu, k.ny }
