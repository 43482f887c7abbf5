// Package rts implements the Rauch-Tung-Striebel smoother for
// linear-Gaussian systems. Grounded on the teacher's smooth/rts
// package: the same backward recursion recomputing a predicted
// mean/covariance from each filtered estimate via the system matrices
// and process noise, generalized to time-varying matrices and to run
// its own inline forward Kalman pass instead of requiring the caller
// to have already computed forward estimates.
//
// The teacher's backward recursion seeded its first iteration from the
// model's initial condition rather than the last filtered estimate,
// which is not the standard RTS boundary condition; SmoothEstimates
// here seeds from the last filtered estimate instead (see DESIGN.md).
package rts

import (
	"fmt"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"gonum.org/v1/gonum/mat"
)

// RTS is a Rauch-Tung-Striebel smoother over a linear-Gaussian system
// model.
type RTS struct {
	model ssm.LinearSystem
	tv    ssm.TimeVaryingSystem

	dx0 dist.Distribution
	q   dist.Distribution
	r   dist.Distribution

	nx, nu, ny int
}

// New returns an RTS smoother over model, with initial-state
// distribution dx0 and process/measurement noise distributions q and
// r, all of which must implement ssm.MeanCov.
func New(model ssm.LinearSystem, dx0, q, r dist.Distribution) (*RTS, error) {
	if model == nil || dx0 == nil || q == nil || r == nil {
		return nil, fmt.Errorf("%w: model, initial state and noise distributions are required", ssm.ErrInvalidConfiguration)
	}
	if _, ok := dx0.(ssm.MeanCov); !ok {
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
	s := &RTS{model: model, dx0: dx0, q: q, r: r, nx: nx, nu: nu, ny: ny}
	if tv, ok := model.(ssm.TimeVaryingSystem); ok {
		s.tv = tv
	}
	return s, nil
}

func (s *RTS) systemMatrix(t int) mat.Matrix {
	if s.tv != nil {
		return s.tv.SystemMatrixAt(t)
	}
	return s.model.SystemMatrix()
}

func (s *RTS) controlMatrix(t int) mat.Matrix {
	if s.tv != nil {
		return s.tv.ControlMatrixAt(t)
	}
	return s.model.ControlMatrix()
}

func (s *RTS) outputMatrix(t int) mat.Matrix {
	if s.tv != nil {
		return s.tv.OutputMatrixAt(t)
	}
	return s.model.OutputMatrix()
}

func (s *RTS) feedForwardMatrix(t int) mat.Matrix {
	if s.tv != nil {
		return s.tv.FeedForwardMatrixAt(t)
	}
	return s.model.FeedForwardMatrix()
}

// Smooth runs a forward Kalman pass over u and y, then the backward
// RTS recursion, implementing ssm.Smoother.
func (s *RTS) Smooth(u, y []mat.Vector) ([]mat.Vector, []mat.Symmetric, float64, error) {
	if len(y) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: measurement sequence must be non-empty", ssm.ErrInvalidConfiguration)
	}
	if u != nil && len(u) != len(y) {
		return nil, nil, 0, fmt.Errorf("%w: control sequence has length %d, want %d", ssm.ErrDimensionMismatch, len(u), len(y))
	}
	n := len(y)

	xFilt := make([]mat.Vector, n)
	pFilt := make([]mat.Symmetric, n)

	dx0MC := s.dx0.(ssm.MeanCov)
	x := mat.NewVecDense(s.nx, nil)
	x.CopyVec(dx0MC.Mean())
	p := mat.NewSymDense(s.nx, nil)
	p.CopySym(dx0MC.Cov())

	qCov := s.q.(ssm.MeanCov).Cov()
	rCov := s.r.(ssm.MeanCov).Cov()

	var loglik float64
	for t := 0; t < n; t++ {
		var ui mat.Vector
		if u != nil {
			ui = u[t]
		}

		A := s.systemMatrix(t)
		xPred := mat.NewVecDense(s.nx, nil)
		xPred.MulVec(A, x)
		if B := s.controlMatrix(t); B != nil && ui != nil && s.nu > 0 {
			bu := mat.NewVecDense(s.nx, nil)
			bu.MulVec(B, ui)
			xPred.AddVec(xPred, bu)
		}
		ap := new(mat.Dense)
		ap.Mul(A, p)
		apat := new(mat.Dense)
		apat.Mul(ap, A.T())
		pPred := mat.NewSymDense(s.nx, nil)
		for i := 0; i < s.nx; i++ {
			for j := i; j < s.nx; j++ {
				pPred.SetSym(i, j, apat.At(i, j)+qCov.At(i, j))
			}
		}

		C := s.outputMatrix(t)
		yPred := mat.NewVecDense(s.ny, nil)
		yPred.MulVec(C, xPred)
		if D := s.feedForwardMatrix(t); D != nil && ui != nil && s.nu > 0 {
			du := mat.NewVecDense(s.ny, nil)
			du.MulVec(D, ui)
			yPred.AddVec(yPred, du)
		}
		innov := mat.NewVecDense(s.ny, nil)
		innov.SubVec(y[t], yPred)

		pxy := new(mat.Dense)
		pxy.Mul(pPred, C.T())
		cp := new(mat.Dense)
		cp.Mul(C, pxy)
		pyy := mat.NewSymDense(s.ny, nil)
		for i := 0; i < s.ny; i++ {
			for j := i; j < s.ny; j++ {
				pyy.SetSym(i, j, cp.At(i, j)+rCov.At(i, j))
			}
		}

		gain, logDetS, err := solveGain(pxy, pyy)
		if err != nil {
			return nil, nil, 0, err
		}

		corr := new(mat.Dense)
		corr.Mul(gain, innov)
		xFiltT := mat.NewVecDense(s.nx, nil)
		xFiltT.AddVec(xPred, corr.ColView(0))

		eye := mat.NewDiagDense(s.nx, nil)
		for i := 0; i < s.nx; i++ {
			eye.SetDiag(i, 1.0)
		}
		kh := new(mat.Dense)
		kh.Mul(gain, C)
		a := new(mat.Dense)
		a.Sub(eye, kh)
		aPred := new(mat.Dense)
		aPred.Mul(a, pPred)
		apat2 := new(mat.Dense)
		apat2.Mul(aPred, a.T())
		kr := new(mat.Dense)
		kr.Mul(gain, rCov)
		krkt := new(mat.Dense)
		krkt.Mul(kr, gain.T())
		pFiltT := mat.NewSymDense(s.nx, nil)
		for i := 0; i < s.nx; i++ {
			for j := i; j < s.nx; j++ {
				pFiltT.SetSym(i, j, apat2.At(i, j)+krkt.At(i, j))
			}
		}

		var quad float64
		var sInvInnov mat.Dense
		if err := sInvInnov.Solve(pyy, innov); err == nil {
			quad = mat.Dot(innov, sInvInnov.ColView(0))
		}
		loglik += -0.5 * (float64(s.ny)*ln2pi + logDetS + quad)

		xFilt[t] = xFiltT
		pFilt[t] = pFiltT
		x = xFiltT
		p = pFiltT
	}

	xSmooth, pSmooth, err := s.SmoothEstimates(xFilt, pFilt, u)
	if err != nil {
		return nil, nil, 0, err
	}
	return xSmooth, pSmooth, loglik, nil
}

// SmoothEstimates runs the RTS backward recursion directly over an
// already-computed forward-filtered mean/covariance sequence, without
// running its own forward pass. This is the teacher's original entry
// point, kept for callers driving their own kalman/kf.KF loop by hand.
func (s *RTS) SmoothEstimates(xFilt []mat.Vector, pFilt []mat.Symmetric, u []mat.Vector) ([]mat.Vector, []mat.Symmetric, error) {
	n := len(xFilt)
	if n == 0 || len(pFilt) != n {
		return nil, nil, fmt.Errorf("%w: filtered means and covariances must be non-empty and equal length", ssm.ErrInvalidConfiguration)
	}
	if u != nil && len(u) != n {
		return nil, nil, fmt.Errorf("%w: control sequence has length %d, want %d", ssm.ErrDimensionMismatch, len(u), n)
	}

	xSmooth := make([]mat.Vector, n)
	pSmooth := make([]mat.Symmetric, n)
	xSmooth[n-1] = xFilt[n-1]
	pSmooth[n-1] = pFilt[n-1]

	qCov := s.q.(ssm.MeanCov).Cov()

	for t := n - 2; t >= 0; t-- {
		var ui mat.Vector
		if u != nil {
			ui = u[t+1]
		}
		A := s.systemMatrix(t + 1)

		xPred := mat.NewVecDense(s.nx, nil)
		xPred.MulVec(A, xFilt[t])
		if B := s.controlMatrix(t + 1); B != nil && ui != nil && s.nu > 0 {
			bu := mat.NewVecDense(s.nx, nil)
			bu.MulVec(B, ui)
			xPred.AddVec(xPred, bu)
		}
		ap := new(mat.Dense)
		ap.Mul(A, pFilt[t])
		apat := new(mat.Dense)
		apat.Mul(ap, A.T())
		pPred := mat.NewSymDense(s.nx, nil)
		for i := 0; i < s.nx; i++ {
			for j := i; j < s.nx; j++ {
				pPred.SetSym(i, j, apat.At(i, j)+qCov.At(i, j))
			}
		}

		pfat := new(mat.Dense)
		pfat.Mul(pFilt[t], A.T())
		gain, err := smootherGain(pfat, pPred)
		if err != nil {
			return nil, nil, err
		}

		diffX := mat.NewVecDense(s.nx, nil)
		diffX.SubVec(xSmooth[t+1], xPred)
		corr := new(mat.Dense)
		corr.Mul(gain, diffX)
		xSm := mat.NewVecDense(s.nx, nil)
		xSm.AddVec(xFilt[t], corr.ColView(0))

		diffP := mat.NewSymDense(s.nx, nil)
		for i := 0; i < s.nx; i++ {
			for j := i; j < s.nx; j++ {
				diffP.SetSym(i, j, pSmooth[t+1].At(i, j)-pPred.At(i, j))
			}
		}
		gd := new(mat.Dense)
		gd.Mul(gain, diffP)
		gdgt := new(mat.Dense)
		gdgt.Mul(gd, gain.T())
		pSm := mat.NewSymDense(s.nx, nil)
		for i := 0; i < s.nx; i++ {
			for j := i; j < s.nx; j++ {
				pSm.SetSym(i, j, pFilt[t].At(i, j)+gdgt.At(i, j))
			}
		}

		xSmooth[t] = xSm
		pSmooth[t] = pSm
	}

	return xSmooth, pSmooth, nil
}

const ln2pi = 1.8378770664093453

// solveGain mirrors kalman/kf's solveGain: Cholesky first, LU fallback,
// ssm.ErrSingularInnovation if both fail.
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

// smootherGain computes gain = pfat * pPred^-1 (pfat already holds
// Pfilt*A'), Cholesky first, LU fallback.
func smootherGain(pfat *mat.Dense, pPred *mat.SymDense) (*mat.Dense, error) {
	var chol mat.Cholesky
	if chol.Factorize(pPred) {
		var gainT mat.Dense
		if err := chol.SolveTo(&gainT, pfat.T()); err == nil {
			gain := new(mat.Dense)
			gain.CloneFrom(gainT.T())
			return gain, nil
		}
	}
	var lu mat.LU
	lu.Factorize(pPred)
	var gainT mat.Dense
	if err := lu.SolveTo(&gainT, true, pfat); err != nil {
		return nil, fmt.Errorf("%w: %v", ssm.ErrSingularInnovation, err)
	}
	gain := new(mat.Dense)
	gain.CloneFrom(gainT.T())
	return gain, nil
}
