// Package dist implements the distribution abstraction used
// throughout the estimator engine: sampling and log-density evaluation
// for the small set of continuous and discrete distributions filters
// and smoothers need, plus a heterogeneous product distribution for
// composing independent priors.
package dist

import (
	"fmt"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/prng"
	"gonum.org/v1/gonum/mat"
)

// errSVDFailed is returned when a covariance matrix is not even
// positive semi-definite enough for an SVD-based square root.
var errSVDFailed = fmt.Errorf("%w: covariance matrix square root failed", ssm.ErrInvalidConfiguration)

// Distribution is anything that can be sampled from a random source
// and whose log-density can be evaluated at a point. All
// implementations in this package are immutable value types: they
// carry no mutable state of their own beyond the *prng.Source the
// caller supplies at each call, which is what makes it safe to share
// a Distribution read-only across filters and goroutines, per the
// concurrency contract in the top-level package.
type Distribution interface {
	// Sample draws a value using rng.
	Sample(rng *prng.Source) mat.Vector
	// LogPDF returns the log-density of x, or negative infinity for a
	// value outside the distribution's support.
	LogPDF(x mat.Vector) float64
	// Dim returns the dimension of values this distribution produces.
	Dim() int
}
