// Package kf implements the standard (linear-Gaussian) Kalman filter.
// Grounded on the teacher's kalman/kf package: the same
// predict/correct/Joseph-form-covariance-update shape, generalized to
// time-varying system matrices and to compute a log-likelihood
// increment the teacher's KF never surfaced at all.
package kf

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"gonum.org/v1/gonum/mat"
)

// KF is a standard Kalman filter over a linear-Gaussian system model.
type KF struct {
	model ssm.LinearSystem
	tv    ssm.TimeVaryingSystem // non-nil if model also implements it

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

// New returns a Kalman filter over model, with initial-state
// distribution dx0 and process/measurement noise distributions q and
// r. dx0, q and r must implement ssm.MeanCov (dist.Gaussian does). If
// model also implements ssm.TimeVaryingSystem, the filter uses its
// time-indexed matrices instead of the static ones, checked and
// cached once here.
func New(model ssm.LinearSystem, dx0, q, r dist.Distribution) (*KF, error) {
	if model == nil || dx0 == nil || q == nil || r == nil {
		return nil, fmt.Errorf("%w: model, initial state and noise distributions are required", ssm.ErrInvalidConfiguration)
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

	nx, nu, ny := model.Dims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions [%d x %d]", ssm.ErrInvalidConfiguration, nx, ny)
	}

	x := mat.NewVecDense(nx, nil)
	x.CopyVec(dx0MC.Mean())
	p := mat.NewSymDense(nx, nil)
	p.CopySym(dx0MC.Cov())

	kf := &KF{model: model, dx0: dx0, q: q, r: r, x: x, p: p, nx: nx, nu: nu, ny: ny}
	if tv, ok := model.(ssm.TimeVaryingSystem); ok {
		kf.tv = tv
	}
	return kf, nil
}

func (k *KF) systemMatrix() mat.Matrix {
	if k.tv != nil {
		return k.tv.SystemMatrixAt(k.t)
	}
	return k.model.SystemMatrix()
}

func (k *KF) controlMatrix() mat.Matrix {
	if k.tv != nil {
		return k.tv.ControlMatrixAt(k.t)
	}
	return k.model.ControlMatrix()
}

func (k *KF) outputMatrix() mat.Matrix {
	if k.tv != nil {
		return k.tv.OutputMatrixAt(k.t)
	}
	return k.model.OutputMatrix()
}

func (k *KF) feedForwardMatrix() mat.Matrix {
	if k.tv != nil {
		return k.tv.FeedForwardMatrixAt(k.t)
	}
	return k.model.FeedForwardMatrix()
}

// Predict advances the state estimate and covariance by one step under
// control input u: x = A*x + B*u, P = A*P*A' + Q.
func (k *KF) Predict(u mat.Vector) error {
	A := k.systemMatrix()
	xNext := mat.NewVecDense(k.nx, nil)
	xNext.MulVec(A, k.x)
	if B := k.controlMatrix(); B != nil && k.nu > 0 && u != nil {
		if u.Len() != k.nu {
			return fmt.Errorf("%w: control has length %d, want %d", ssm.ErrDimensionMismatch, u.Len(), k.nu)
		}
		bu := mat.NewVecDense(k.nx, nil)
		bu.MulVec(B, u)
		xNext.AddVec(xNext, bu)
	}

	ap := new(mat.Dense)
	ap.Mul(A, k.p)
	apat := new(mat.Dense)
	apat.Mul(ap, A.T())

	q := k.q.(ssm.MeanCov).Cov()
	pNext := mat.NewSymDense(k.nx, nil)
	for i := 0; i < k.nx; i++ {
		for j := i; j < k.nx; j++ {
			pNext.SetSym(i, j, apat.At(i, j)+q.At(i, j))
		}
	}

	k.x = xNext
	k.p = pNext
	k.lastU = u
	k.t++
	return nil
}

// Correct absorbs measurement y: computes the Kalman gain, updates the
// state and covariance in Joseph form, and returns the step's
// incremental log-likelihood under the innovation's Gaussian
// distribution.
func (k *KF) Correct(y mat.Vector) (float64, error) {
	if y.Len() != k.ny {
		return 0, fmt.Errorf("%w: measurement has length %d, want %d", ssm.ErrDimensionMismatch, y.Len(), k.ny)
	}
	C := k.outputMatrix()

	yPred := mat.NewVecDense(k.ny, nil)
	yPred.MulVec(C, k.x)
	if D := k.feedForwardMatrix(); D != nil && k.nu > 0 && k.lastU != nil {
		du := mat.NewVecDense(k.ny, nil)
		du.MulVec(D, k.lastU)
		yPred.AddVec(yPred, du)
	}

	innov := mat.NewVecDense(k.ny, nil)
	innov.SubVec(y, yPred)

	pxy := new(mat.Dense)
	pxy.Mul(k.p, C.T())

	r := k.r.(ssm.MeanCov).Cov()
	pyy := new(mat.Dense)
	pyy.Mul(C, pxy)
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
	kh.Mul(gain, C)
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

// solveGain computes gain = pxy * s^-1 via a Cholesky factorization of
// s, falling back to a general LU-based solve on near-singular s
// (REDESIGN vs. the teacher's kf.Update, which calls
// mat.Dense.Inverse unconditionally and surfaces its raw error). It
// also returns log|s|, computed from whichever factorization
// succeeded so Correct doesn't refactorize s a second time.
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
func (k *KF) State() mat.Vector {
	v := mat.NewVecDense(k.nx, nil)
	v.CopyVec(k.x)
	return v
}

// Cov returns the current state covariance.
func (k *KF) Cov() mat.Symmetric {
	c := mat.NewSymDense(k.nx, nil)
	c.CopySym(k.p)
	return c
}

// LogLik returns the cumulative log-likelihood absorbed since the last
// Reset.
func (k *KF) LogLik() float64 { return k.loglik }

// Reset reinitializes the state and covariance from the initial-state
// distribution and zeroes the time index and cumulative
// log-likelihood.
func (k *KF) Reset() error {
	dx0 := k.dx0.(ssm.MeanCov)
	k.x.CopyVec(dx0.Mean())
	k.p.CopySym(dx0.Cov())
	k.t = 0
	k.lastU = nil
	k.loglik = 0
	return nil
}

// Dims returns the filter's state, control and measurement dimensions.
func (k *KF) Dims() (nx, nu, ny int) { return k.nx, k.nu, k.ny }
