package dist

import (
	"testing"

	"github.com/go-ssm/ssm/prng"
	"github.com/stretchr/testify/assert"
)

func TestCategoricalNumCategories(t *testing.T) {
	c := NewCategorical([]float64{0.1, 0.2, 0.7})
	assert.Equal(t, 3, c.NumCategories())
	assert.Equal(t, 1, c.Dim())
}

func TestCategoricalDrawIndexRange(t *testing.T) {
	c := NewCategorical([]float64{1, 1, 1})
	rng := prng.New(1)
	for i := 0; i < 50; i++ {
		idx := c.DrawIndex(rng)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 3)
	}
}

func TestCategoricalDrawIndexDegenerate(t *testing.T) {
	c := NewCategorical([]float64{0, 1, 0})
	rng := prng.New(1)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 1, c.DrawIndex(rng))
	}
}
