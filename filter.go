// Package ssm defines the model and filter contracts shared by every
// estimator in this module: the particle filter family, the Kalman
// filter, and the unscented Kalman filter. Concrete estimators live in
// their own subpackages; trajectory drivers, smoothers and the
// inference layer depend only on the interfaces declared here so they
// stay agnostic to which concrete estimator is driving them.
package ssm

import "gonum.org/v1/gonum/mat"

// Params carries user-defined model parameters threaded through
// dynamics, measurement and likelihood callables. It is opaque to the
// estimator engine; a parameter-inference driver typically closes over
// a []float64 or a small struct.
type Params interface{}

// DynamicsFunc propagates state x under control input u to the next
// step. It must be deterministic: filters add process noise
// separately, drawn from the filter's own noise distribution and
// random source.
type DynamicsFunc func(x, u mat.Vector, p Params, t int) (mat.Vector, error)

// AdvancedDynamicsFunc is DynamicsFunc extended with an explicit noise
// flag. AdvancedParticleFilter calls it with noise=true during
// Predict so models with state-dependent or non-additive noise can
// inject it themselves.
type AdvancedDynamicsFunc func(x, u mat.Vector, p Params, t int, noise bool) (mat.Vector, error)

// MeasurementFunc predicts the noise-free measurement produced by
// state x.
type MeasurementFunc func(x, u mat.Vector, p Params, t int) (mat.Vector, error)

// MeasurementLikelihoodFunc returns the log-density of observing y
// given state x directly. AdvancedParticleFilter uses it in place of
// the additive measurement-plus-LogPDF composition, so it can express
// non-additive or state-dependent measurement noise. A finite
// log-density is expected for possible observations; -Inf is
// reserved for genuinely impossible ones.
type MeasurementLikelihoodFunc func(x, u, y mat.Vector, p Params, t int) (float64, error)

// LinearSystem is a model driven by constant propagation and
// observation matrices: x' = A*x + B*u, y = C*x + D*u.
type LinearSystem interface {
	// Dims returns state, control and measurement dimensions.
	Dims() (nx, nu, ny int)
	SystemMatrix() mat.Matrix
	ControlMatrix() mat.Matrix
	OutputMatrix() mat.Matrix
	FeedForwardMatrix() mat.Matrix
}

// TimeVaryingSystem is implemented by models whose propagation and
// observation matrices vary with the time index. KalmanFilter probes
// for this interface once at construction and caches the result;
// models that only implement LinearSystem are treated as
// time-invariant for the lifetime of the filter.
type TimeVaryingSystem interface {
	SystemMatrixAt(t int) mat.Matrix
	ControlMatrixAt(t int) mat.Matrix
	OutputMatrixAt(t int) mat.Matrix
	FeedForwardMatrixAt(t int) mat.Matrix
}

// MeanCov is implemented by distributions that expose a closed-form
// mean and covariance, e.g. dist.Gaussian. Gaussian estimators require
// their initial-state distribution to implement it.
type MeanCov interface {
	Mean() mat.Vector
	Cov() mat.Symmetric
}

// Filter is the capability set shared by every estimator variant.
// Trajectory drivers and smoothers take this interface rather than a
// concrete filter type, so ParticleFilter, AuxiliaryParticleFilter,
// AdvancedParticleFilter, KalmanFilter and UnscentedKalmanFilter are
// all interchangeable callers.
type Filter interface {
	// Predict advances the filter's belief by one step under control
	// input u and advances the time index.
	Predict(u mat.Vector) error
	// Correct absorbs measurement y into the current belief and
	// returns the step's incremental log-likelihood contribution.
	Correct(y mat.Vector) (float64, error)
	// State returns the current point estimate of the hidden state.
	State() mat.Vector
	// Cov returns the current uncertainty about the hidden state: the
	// filter covariance for Gaussian estimators, the weighted
	// particle covariance for Monte Carlo estimators.
	Cov() mat.Symmetric
	// LogLik returns the cumulative log-likelihood absorbed since the
	// last Reset.
	LogLik() float64
	// Reset reinitializes the belief from the filter's initial-state
	// distribution and zeroes the time index and cumulative
	// log-likelihood.
	Reset() error
	// Dims returns the filter's fixed state, control and measurement
	// dimensions.
	Dims() (nx, nu, ny int)
}

// Smoother refines a forward-filtered belief sequence using
// information from the whole trajectory, not just observations up to
// the current step.
type Smoother interface {
	// Smooth runs the smoothing recursion over the control sequence u
	// and measurement sequence y and returns smoothed means and
	// covariances indexed by time step, plus the total forward
	// log-likelihood.
	Smooth(u, y []mat.Vector) (means []mat.Vector, covs []mat.Symmetric, loglik float64, err error)
}
