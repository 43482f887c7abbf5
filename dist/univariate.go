package dist

import (
	"github.com/go-ssm/ssm/prng"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// UnivariateGaussian is a scalar normal distribution. Unlike
// distmv.Normal, distuv.Normal is a plain value type with no
// internal factorization to cache, so unlike Gaussian it wraps the
// gonum type directly rather than reimplementing sampling by hand.
type UnivariateGaussian struct {
	mu, sigma float64
}

// NewUnivariateGaussian returns a scalar normal with the given mean
// and standard deviation.
func NewUnivariateGaussian(mu, sigma float64) *UnivariateGaussian {
	return &UnivariateGaussian{mu: mu, sigma: sigma}
}

// Sample draws a single value using rng.
func (u *UnivariateGaussian) Sample(rng *prng.Source) mat.Vector {
	d := distuv.Normal{Mu: u.mu, Sigma: u.sigma, Src: rng.Rand}
	return mat.NewVecDense(1, []float64{d.Rand()})
}

// LogPDF returns the log-density of x, which must have length 1.
func (u *UnivariateGaussian) LogPDF(x mat.Vector) float64 {
	d := distuv.Normal{Mu: u.mu, Sigma: u.sigma}
	return d.LogProb(x.AtVec(0))
}

// Dim always returns 1.
func (u *UnivariateGaussian) Dim() int { return 1 }

// Mean returns the distribution's mean.
func (u *UnivariateGaussian) Mean() float64 { return u.mu }

// StdDev returns the distribution's standard deviation.
func (u *UnivariateGaussian) StdDev() float64 { return u.sigma }
