package dist

import (
	"fmt"

	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/prng"
	"gonum.org/v1/gonum/mat"
)

// Product2 is the independent joint of two distributions of possibly
// different concrete types, laid out as [component A | component B].
// Fixed-arity generics resolve the heterogeneous-tuple problem without
// boxing every component behind the Distribution interface on the hot
// sampling path the way a []Distribution slice would: A and B are
// resolved at compile time, so Sample and LogPDF on the common cases
// (arity 2-4) never allocate an interface-dispatch table per call.
// ProductN below is the boxed escape hatch for dynamic or higher
// arity.
type Product2[A, B Distribution] struct {
	First  A
	Second B
}

// NewProduct2 returns the independent joint of a and b.
func NewProduct2[A, B Distribution](a A, b B) *Product2[A, B] {
	return &Product2[A, B]{First: a, Second: b}
}

// Sample draws First and Second independently using rng and
// concatenates the results.
func (p *Product2[A, B]) Sample(rng *prng.Source) mat.Vector {
	return concat(p.First.Sample(rng), p.Second.Sample(rng))
}

// LogPDF returns the sum of each component's log-density over its
// slice of x.
func (p *Product2[A, B]) LogPDF(x mat.Vector) float64 {
	a, b := split2(x, p.First.Dim(), p.Second.Dim())
	return p.First.LogPDF(a) + p.Second.LogPDF(b)
}

// Dim returns the sum of the component dimensions.
func (p *Product2[A, B]) Dim() int { return p.First.Dim() + p.Second.Dim() }

// Product3 is the independent joint of three distributions.
type Product3[A, B, C Distribution] struct {
	First  A
	Second B
	Third  C
}

// NewProduct3 returns the independent joint of a, b and c.
func NewProduct3[A, B, C Distribution](a A, b B, c C) *Product3[A, B, C] {
	return &Product3[A, B, C]{First: a, Second: b, Third: c}
}

func (p *Product3[A, B, C]) Sample(rng *prng.Source) mat.Vector {
	return concat(p.First.Sample(rng), p.Second.Sample(rng), p.Third.Sample(rng))
}

func (p *Product3[A, B, C]) LogPDF(x mat.Vector) float64 {
	parts := split(x, p.First.Dim(), p.Second.Dim(), p.Third.Dim())
	return p.First.LogPDF(parts[0]) + p.Second.LogPDF(parts[1]) + p.Third.LogPDF(parts[2])
}

func (p *Product3[A, B, C]) Dim() int {
	return p.First.Dim() + p.Second.Dim() + p.Third.Dim()
}

// Product4 is the independent joint of four distributions.
type Product4[A, B, C, D Distribution] struct {
	First  A
	Second B
	Third  C
	Fourth D
}

// NewProduct4 returns the independent joint of a, b, c and d.
func NewProduct4[A, B, C, D Distribution](a A, b B, c C, d D) *Product4[A, B, C, D] {
	return &Product4[A, B, C, D]{First: a, Second: b, Third: c, Fourth: d}
}

func (p *Product4[A, B, C, D]) Sample(rng *prng.Source) mat.Vector {
	return concat(p.First.Sample(rng), p.Second.Sample(rng), p.Third.Sample(rng), p.Fourth.Sample(rng))
}

func (p *Product4[A, B, C, D]) LogPDF(x mat.Vector) float64 {
	parts := split(x, p.First.Dim(), p.Second.Dim(), p.Third.Dim(), p.Fourth.Dim())
	return p.First.LogPDF(parts[0]) + p.Second.LogPDF(parts[1]) +
		p.Third.LogPDF(parts[2]) + p.Fourth.LogPDF(parts[3])
}

func (p *Product4[A, B, C, D]) Dim() int {
	return p.First.Dim() + p.Second.Dim() + p.Third.Dim() + p.Fourth.Dim()
}

// ProductN is the independent joint of an arbitrary, runtime-determined
// number of distributions. Components are boxed behind the
// Distribution interface, which costs an interface call per component
// per Sample/LogPDF; use it for dynamic arity or arity above 4, and
// prefer Product2/Product3/Product4 on hot paths with a fixed,
// known-at-compile-time state layout.
type ProductN struct {
	components []Distribution
}

// NewProductN returns the independent joint of the given components.
func NewProductN(components ...Distribution) (*ProductN, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: ProductN needs at least one component", ssm.ErrInvalidConfiguration)
	}
	c := make([]Distribution, len(components))
	copy(c, components)
	return &ProductN{components: c}, nil
}

func (p *ProductN) Sample(rng *prng.Source) mat.Vector {
	parts := make([]mat.Vector, len(p.components))
	for i, c := range p.components {
		parts[i] = c.Sample(rng)
	}
	return concat(parts...)
}

func (p *ProductN) LogPDF(x mat.Vector) float64 {
	dims := make([]int, len(p.components))
	for i, c := range p.components {
		dims[i] = c.Dim()
	}
	parts := split(x, dims...)
	var lp float64
	for i, c := range p.components {
		lp += c.LogPDF(parts[i])
	}
	return lp
}

func (p *ProductN) Dim() int {
	var d int
	for _, c := range p.components {
		d += c.Dim()
	}
	return d
}

// concat lays out a sequence of vectors end to end into one.
func concat(vs ...mat.Vector) mat.Vector {
	var n int
	for _, v := range vs {
		n += v.Len()
	}
	out := make([]float64, 0, n)
	for _, v := range vs {
		for i := 0; i < v.Len(); i++ {
			out = append(out, v.AtVec(i))
		}
	}
	return mat.NewVecDense(n, out)
}

// split slices x into len(dims) contiguous sub-vectors of the given
// dimensions, in order.
func split(x mat.Vector, dims ...int) []mat.Vector {
	parts := make([]mat.Vector, len(dims))
	offset := 0
	for i, d := range dims {
		v := mat.NewVecDense(d, nil)
		for j := 0; j < d; j++ {
			v.SetVec(j, x.AtVec(offset+j))
		}
		parts[i] = v
		offset += d
	}
	return parts
}

// split2 is the two-component convenience form of split, returning
// the two parts as separate values.
func split2(x mat.Vector, da, db int) (mat.Vector, mat.Vector) {
	parts := split(x, da, db)
	return parts[0], parts[1]
}
