package ssm

import "errors"

// Sentinel errors returned by filters, smoothers and the inference
// layer. Callers discriminate failure modes with errors.Is against
// these values; call sites wrap them with additional context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrDimensionMismatch is returned when an input vector's size
	// disagrees with the dimensions a filter was constructed with.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDegenerateWeights is returned when every particle in a
	// particle filter has -Inf log-weight after a correction step.
	ErrDegenerateWeights = errors.New("degenerate particle weights")

	// ErrSingularInnovation is returned when a Kalman filter's
	// innovation covariance is not positive definite even after the
	// LU fallback.
	ErrSingularInnovation = errors.New("singular innovation covariance")

	// ErrNonFinite is returned when a dynamics or measurement
	// callable produces a NaN or infinite value.
	ErrNonFinite = errors.New("non-finite value")

	// ErrInvalidConfiguration is returned at construction time for
	// malformed parameters (particle count, threshold, matrix
	// dimensions).
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
