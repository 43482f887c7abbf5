// Package model provides concrete dynamical-system models for the
// estimator engine: a fixed-matrix linear-Gaussian system grounded on
// the teacher's model.Base, and a time-varying counterpart whose
// matrices are supplied by callables instead of fixed values.
package model

import (
	"fmt"

	"github.com/go-ssm/ssm"
	"gonum.org/v1/gonum/mat"
)

// Discrete is a linear time-invariant system: x' = A*x + B*u,
// y = C*x + D*u. It implements ssm.LinearSystem and exposes
// DynamicsFunc/MeasurementFunc adapters so the same model drives both
// the Kalman family (which consumes the matrices directly) and the
// particle filter family (which consumes callables).
//
// The teacher's InitCond type is dropped: this port uses dist.Gaussian
// uniformly as the initial-state distribution for every filter
// variant, Kalman and particle alike, instead of a Kalman-only
// mean/covariance pair.
type Discrete struct {
	A, B, C, D *mat.Dense
}

// NewDiscrete returns a Discrete system with the given matrices. D may
// be nil for systems with no feedforward term, in which case it is
// treated as a zero matrix of the appropriate shape; when B is also nil
// there is no control input and D stays nil.
func NewDiscrete(A, B, C, D *mat.Dense) (*Discrete, error) {
	if A == nil || C == nil {
		return nil, fmt.Errorf("%w: A and C matrices are required", ssm.ErrInvalidConfiguration)
	}
	nx, nxCheck := A.Dims()
	if nx != nxCheck {
		return nil, fmt.Errorf("%w: A must be square, got %dx%d", ssm.ErrDimensionMismatch, nx, nxCheck)
	}
	ny, cCols := C.Dims()
	if cCols != nx {
		return nil, fmt.Errorf("%w: C has %d columns, want %d", ssm.ErrDimensionMismatch, cCols, nx)
	}
	if D == nil && B != nil {
		_, nu := B.Dims()
		D = mat.NewDense(ny, nu, nil)
	}
	return &Discrete{A: A, B: B, C: C, D: D}, nil
}

// Dims returns state, control and measurement dimensions.
func (d *Discrete) Dims() (nx, nu, ny int) {
	nx, _ = d.A.Dims()
	ny, _ = d.C.Dims()
	if d.B != nil {
		_, nu = d.B.Dims()
	}
	return nx, nu, ny
}

// SystemMatrix returns A.
func (d *Discrete) SystemMatrix() mat.Matrix { return d.A }

// ControlMatrix returns B.
func (d *Discrete) ControlMatrix() mat.Matrix { return d.B }

// OutputMatrix returns C.
func (d *Discrete) OutputMatrix() mat.Matrix { return d.C }

// FeedForwardMatrix returns D.
func (d *Discrete) FeedForwardMatrix() mat.Matrix { return d.D }

// Dynamics returns a DynamicsFunc closing over this model's matrices,
// ignoring t and p; it computes A*x + B*u with no noise term, matching
// the teacher's Base.Propagate with q always nil.
func (d *Discrete) Dynamics() ssm.DynamicsFunc {
	return func(x, u mat.Vector, _ ssm.Params, _ int) (mat.Vector, error) {
		nx, nu, _ := d.Dims()
		if x.Len() != nx {
			return nil, fmt.Errorf("%w: state has length %d, want %d", ssm.ErrDimensionMismatch, x.Len(), nx)
		}
		out := mat.NewVecDense(nx, nil)
		out.MulVec(d.A, x)
		if d.B != nil && nu > 0 && u != nil {
			if u.Len() != nu {
				return nil, fmt.Errorf("%w: control has length %d, want %d", ssm.ErrDimensionMismatch, u.Len(), nu)
			}
			bu := mat.NewVecDense(nx, nil)
			bu.MulVec(d.B, u)
			out.AddVec(out, bu)
		}
		return out, nil
	}
}

// Measurement returns a MeasurementFunc closing over this model's
// matrices: C*x + D*u.
func (d *Discrete) Measurement() ssm.MeasurementFunc {
	return func(x, u mat.Vector, _ ssm.Params, _ int) (mat.Vector, error) {
		nx, nu, ny := d.Dims()
		if x.Len() != nx {
			return nil, fmt.Errorf("%w: state has length %d, want %d", ssm.ErrDimensionMismatch, x.Len(), nx)
		}
		out := mat.NewVecDense(ny, nil)
		out.MulVec(d.C, x)
		if d.D != nil && nu > 0 && u != nil {
			if u.Len() != nu {
				return nil, fmt.Errorf("%w: control has length %d, want %d", ssm.ErrDimensionMismatch, u.Len(), nu)
			}
			du := mat.NewVecDense(ny, nil)
			du.MulVec(d.D, u)
			out.AddVec(out, du)
		}
		return out, nil
	}
}

// TimeVarying is a linear system whose matrices are recomputed at
// every time step by user-supplied callables, satisfying
// ssm.TimeVaryingSystem in addition to ssm.LinearSystem. kalman/kf
// probes for this interface once at construction; particle filters
// use the Dynamics/Measurement adapters exactly as with Discrete.
type TimeVarying struct {
	nx, nu, ny int
	AAt        func(t int) mat.Matrix
	BAt        func(t int) mat.Matrix
	CAt        func(t int) mat.Matrix
	DAt        func(t int) mat.Matrix
}

// NewTimeVarying returns a TimeVarying system of the given dimensions
// driven by the four matrix callables. BAt and DAt may be nil for
// systems with no control input.
func NewTimeVarying(nx, nu, ny int, AAt, BAt, CAt, DAt func(t int) mat.Matrix) (*TimeVarying, error) {
	if AAt == nil || CAt == nil {
		return nil, fmt.Errorf("%w: A(t) and C(t) callables are required", ssm.ErrInvalidConfiguration)
	}
	return &TimeVarying{nx: nx, nu: nu, ny: ny, AAt: AAt, BAt: BAt, CAt: CAt, DAt: DAt}, nil
}

func (tv *TimeVarying) Dims() (nx, nu, ny int) { return tv.nx, tv.nu, tv.ny }

// SystemMatrix returns A(0), the time-invariant view for callers that
// only check ssm.LinearSystem.
func (tv *TimeVarying) SystemMatrix() mat.Matrix { return tv.AAt(0) }
func (tv *TimeVarying) ControlMatrix() mat.Matrix {
	if tv.BAt == nil {
		return mat.NewDense(tv.nx, tv.nu, nil)
	}
	return tv.BAt(0)
}
func (tv *TimeVarying) OutputMatrix() mat.Matrix { return tv.CAt(0) }
func (tv *TimeVarying) FeedForwardMatrix() mat.Matrix {
	if tv.DAt == nil {
		return mat.NewDense(tv.ny, tv.nu, nil)
	}
	return tv.DAt(0)
}

func (tv *TimeVarying) SystemMatrixAt(t int) mat.Matrix { return tv.AAt(t) }
func (tv *TimeVarying) ControlMatrixAt(t int) mat.Matrix {
	if tv.BAt == nil {
		return mat.NewDense(tv.nx, tv.nu, nil)
	}
	return tv.BAt(t)
}
func (tv *TimeVarying) OutputMatrixAt(t int) mat.Matrix { return tv.CAt(t) }
func (tv *TimeVarying) FeedForwardMatrixAt(t int) mat.Matrix {
	if tv.DAt == nil {
		return mat.NewDense(tv.ny, tv.nu, nil)
	}
	return tv.DAt(t)
}

// Dynamics returns a DynamicsFunc using A(t) and B(t).
func (tv *TimeVarying) Dynamics() ssm.DynamicsFunc {
	return func(x, u mat.Vector, _ ssm.Params, t int) (mat.Vector, error) {
		if x.Len() != tv.nx {
			return nil, fmt.Errorf("%w: state has length %d, want %d", ssm.ErrDimensionMismatch, x.Len(), tv.nx)
		}
		out := mat.NewVecDense(tv.nx, nil)
		out.MulVec(tv.AAt(t), x)
		if tv.BAt != nil && tv.nu > 0 && u != nil {
			bu := mat.NewVecDense(tv.nx, nil)
			bu.MulVec(tv.BAt(t), u)
			out.AddVec(out, bu)
		}
		return out, nil
	}
}

// Measurement returns a MeasurementFunc using C(t) and D(t).
func (tv *TimeVarying) Measurement() ssm.MeasurementFunc {
	return func(x, u mat.Vector, _ ssm.Params, t int) (mat.Vector, error) {
		if x.Len() != tv.nx {
			return nil, fmt.Errorf("%w: state has length %d, want %d", ssm.ErrDimensionMismatch, x.Len(), tv.nx)
		}
		out := mat.NewVecDense(tv.ny, nil)
		out.MulVec(tv.CAt(t), x)
		if tv.DAt != nil && tv.nu > 0 && u != nil {
			du := mat.NewVecDense(tv.ny, nil)
			du.MulVec(tv.DAt(t), u)
			out.AddVec(out, du)
		}
		return out, nil
	}
}
