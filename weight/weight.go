// Package weight implements the numerically stable log-weight storage
// shared by every particle filter variant. Weights live in log-space
// throughout: multiplying probabilities the way a textbook bootstrap
// filter does underflows silently once a few dozen steps of peaked
// likelihoods have gone by, so every operation here works on
// log-weights and every log-sum-exp subtracts the running maximum
// before exponentiating.
package weight

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"gonum.org/v1/gonum/floats"
)

// Vector is a log-space weight vector of fixed length N, one entry per
// particle. The zero value is not usable; construct with New.
type Vector struct {
	logw []float64
	// exp is scratch space for ExpWeights, reused across calls so
	// repeated accessor calls in a hot loop don't allocate.
	exp []float64
}

// New returns a Vector of n particles with uniform log-weight -log(n).
func New(n int) (*Vector, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: particle count must be positive, got %d", ssm.ErrInvalidConfiguration, n)
	}
	logw := make([]float64, n)
	u := -math.Log(float64(n))
	for i := range logw {
		logw[i] = u
	}
	return &Vector{logw: logw, exp: make([]float64, n)}, nil
}

// Len returns the number of particles.
func (v *Vector) Len() int { return len(v.logw) }

// Log returns the underlying log-weight slice. The returned slice
// aliases the Vector's storage: callers that need a stable snapshot
// across further mutation must copy it themselves.
func (v *Vector) Log() []float64 { return v.logw }

// Set overwrites the log-weight of particle i.
func (v *Vector) Set(i int, logw float64) { v.logw[i] = logw }

// Reset sets every particle back to uniform log-weight -log(N).
func (v *Vector) Reset() {
	u := -math.Log(float64(len(v.logw)))
	for i := range v.logw {
		v.logw[i] = u
	}
}

// AddLogWeights adds delta[i] to the log-weight of particle i
// in place. delta must have the same length as the vector.
func (v *Vector) AddLogWeights(delta []float64) error {
	if len(delta) != len(v.logw) {
		return fmt.Errorf("%w: got %d log-weight deltas, want %d", ssm.ErrDimensionMismatch, len(delta), len(v.logw))
	}
	floats.Add(v.logw, delta)
	return nil
}

// Normalize subtracts logsumexp(W) from every entry so that
// logsumexp(W) = 0 after the call, and returns the pre-normalization
// logsumexp — the step's incremental log marginal likelihood. It
// returns ErrDegenerateWeights if every particle's weight underflowed
// to -Inf, and ErrNonFinite if any weight is NaN.
func (v *Vector) Normalize() (float64, error) {
	lse, err := logSumExp(v.logw)
	if err != nil {
		return 0, err
	}
	for i := range v.logw {
		v.logw[i] -= lse
	}
	return lse, nil
}

// ESS returns the effective sample size of the normalized weights:
// 1/sum(exp(w_i)^2). Callers must normalize before calling ESS; on
// un-normalized weights the result has no probabilistic meaning.
func (v *Vector) ESS() float64 {
	var sumSq float64
	for _, w := range v.logw {
		sumSq += math.Exp(2 * w)
	}
	return 1 / sumSq
}

// ExpWeights materializes exp(w_i) into a scratch buffer owned by the
// Vector and returns it. The returned slice is overwritten by the
// next call to ExpWeights; callers needing a stable copy must clone
// it.
func (v *Vector) ExpWeights() []float64 {
	for i, w := range v.logw {
		v.exp[i] = math.Exp(w)
	}
	return v.exp
}

// logSumExp computes log(sum(exp(x))) subtracting the running maximum
// to avoid overflow/underflow. It returns ErrDegenerateWeights if
// every entry is -Inf and ErrNonFinite if any entry is NaN or +Inf.
func logSumExp(x []float64) (float64, error) {
	max := math.Inf(-1)
	for _, xi := range x {
		if math.IsNaN(xi) || math.IsInf(xi, 1) {
			return 0, fmt.Errorf("%w: log-weight %v", ssm.ErrNonFinite, xi)
		}
		if xi > max {
			max = xi
		}
	}
	if math.IsInf(max, -1) {
		return 0, ssm.ErrDegenerateWeights
	}
	var sum float64
	for _, xi := range x {
		sum += math.Exp(xi - max)
	}
	return max + math.Log(sum), nil
}
