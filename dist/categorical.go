package dist

import (
	"github.com/go-ssm/ssm/prng"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Categorical is a discrete distribution over {0, ..., len(weights)-1}.
// It is included as one of the built-in families so Product can mix
// continuous and discrete state components, e.g. a regime-switching
// model's discrete mode alongside its continuous state.
type Categorical struct {
	weights []float64
}

// NewCategorical returns a Categorical over the given (not necessarily
// normalized) weights.
func NewCategorical(weights []float64) *Categorical {
	w := make([]float64, len(weights))
	copy(w, weights)
	return &Categorical{weights: w}
}

// Sample draws a category index, returned as a length-1 vector, using
// rng. Distribution requires vector-valued samples; DrawIndex is the
// unboxed equivalent for callers that only need the int, such as the
// backward-simulation step of a particle smoother.
func (c *Categorical) Sample(rng *prng.Source) mat.Vector {
	return mat.NewVecDense(1, []float64{float64(c.DrawIndex(rng))})
}

// DrawIndex draws a single category index using rng.
func (c *Categorical) DrawIndex(rng *prng.Source) int {
	d := distuv.NewCategorical(c.weights, rng.Rand)
	return int(d.Rand())
}

// LogPDF returns the log-probability of category x[0]; a non-integer
// or out-of-range x[0] has log-probability -Inf.
func (c *Categorical) LogPDF(x mat.Vector) float64 {
	d := distuv.NewCategorical(c.weights, nil)
	return d.LogProb(x.AtVec(0))
}

// Dim always returns 1.
func (c *Categorical) Dim() int { return 1 }

// NumCategories returns the number of categories.
func (c *Categorical) NumCategories() int { return len(c.weights) }
