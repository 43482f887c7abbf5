package dist

import (
	"fmt"
	"math"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/prng"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is a multivariate normal distribution over full or
// diagonal covariance. It is grounded on the teacher package's
// noise.Gaussian, generalized in two ways: sampling takes an explicit
// *prng.Source instead of reseeding from time.Now() on every Reset,
// and the square-root factor used for sampling is precomputed once at
// construction instead of never (the teacher never draws more than
// one sample per noise object) so repeated Sample calls in a particle
// propagation loop don't repeat the factorization.
type Gaussian struct {
	mean *mat.VecDense
	cov  *mat.SymDense
	// sqrtCov satisfies sqrtCov * sqrtCov' = cov; used for sampling.
	sqrtCov *mat.Dense
	// normal is used only for LogPDF; its own internal random source
	// is never exercised.
	normal *distmv.Normal
}

// NewGaussian returns a Gaussian with the given mean and covariance.
// It fails if cov is not positive definite.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	n := cov.SymmetricDim()
	m := mat.NewVecDense(n, mean)
	c := mat.NewSymDense(n, nil)
	c.CopySym(cov)

	sqrtCov, err := sqrtOfCov(c)
	if err != nil {
		return nil, err
	}

	// distmv.Normal needs a source to construct, but we only ever
	// call LogProb on it, never Rand, so any seeded source works.
	seed, err := prng.NewFromEntropy()
	if err != nil {
		return nil, err
	}
	normal, ok := distmv.NewNormal(mean, c, seed.Rand)
	if !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", ssm.ErrInvalidConfiguration)
	}

	return &Gaussian{mean: m, cov: c, sqrtCov: sqrtCov, normal: normal}, nil
}

// Sample draws x = mean + sqrtCov * z, z standard normal, using rng.
func (g *Gaussian) Sample(rng *prng.Source) mat.Vector {
	n := g.mean.Len()
	z := make([]float64, n)
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	zVec := mat.NewVecDense(n, z)

	out := mat.NewVecDense(n, nil)
	out.MulVec(g.sqrtCov, zVec)
	out.AddVec(out, g.mean)
	return out
}

// LogPDF returns the Gaussian log-density of x.
func (g *Gaussian) LogPDF(x mat.Vector) float64 {
	return g.normal.LogProb(mat.Col(nil, 0, x))
}

// Dim returns the dimension of the distribution.
func (g *Gaussian) Dim() int { return g.mean.Len() }

// Mean returns a copy of the distribution's mean.
func (g *Gaussian) Mean() mat.Vector {
	m := mat.NewVecDense(g.mean.Len(), nil)
	m.CopyVec(g.mean)
	return m
}

// Cov returns a copy of the distribution's covariance matrix.
func (g *Gaussian) Cov() mat.Symmetric {
	c := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	c.CopySym(g.cov)
	return c
}

// sqrtOfCov computes a matrix square root of a symmetric positive
// semi-definite covariance via Cholesky, falling back to an
// SVD-based root (grounded on the teacher's rand.WithCovN) when the
// covariance is singular or near-singular and Cholesky fails.
func sqrtOfCov(cov *mat.SymDense) (*mat.Dense, error) {
	var chol mat.Cholesky
	if chol.Factorize(cov) {
		var l mat.TriDense
		chol.LTo(&l)
		out := &mat.Dense{}
		out.CloneFrom(&l)
		return out, nil
	}

	var svd mat.SVD
	if !svd.Factorize(cov, mat.SVDFull) {
		return nil, errSVDFailed
	}
	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(math.Max(vals[i], 0))
	}
	diag := mat.NewDiagDense(len(vals), vals)
	u.Mul(u, diag)
	return u, nil
}
