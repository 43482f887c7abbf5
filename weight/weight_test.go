package weight

import (
	"math"
	"testing"

	"github.com/go-ssm/ssm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	v, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Len())
	for _, w := range v.Log() {
		assert.InDelta(t, -math.Log(4), w, 1e-12)
	}
}

func TestNewInvalid(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ssm.ErrInvalidConfiguration)
}

func TestSetAndReset(t *testing.T) {
	v, err := New(3)
	require.NoError(t, err)
	v.Set(0, -1.0)
	assert.Equal(t, -1.0, v.Log()[0])
	v.Reset()
	for _, w := range v.Log() {
		assert.InDelta(t, -math.Log(3), w, 1e-12)
	}
}

func TestAddLogWeights(t *testing.T) {
	v, err := New(2)
	require.NoError(t, err)
	require.NoError(t, v.AddLogWeights([]float64{1.0, 2.0}))
	assert.InDelta(t, -math.Log(2)+1.0, v.Log()[0], 1e-12)
	assert.InDelta(t, -math.Log(2)+2.0, v.Log()[1], 1e-12)

	err = v.AddLogWeights([]float64{1.0})
	assert.ErrorIs(t, err, ssm.ErrDimensionMismatch)
}

func TestNormalize(t *testing.T) {
	v, err := New(2)
	require.NoError(t, err)
	v.Set(0, 1.0)
	v.Set(1, 1.0)
	lse, err := v.Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 1.0+math.Log(2), lse, 1e-9)
	assert.InDelta(t, -math.Log(2), v.Log()[0], 1e-9)
	assert.InDelta(t, -math.Log(2), v.Log()[1], 1e-9)
}

func TestNormalizeDegenerate(t *testing.T) {
	v, err := New(2)
	require.NoError(t, err)
	v.Set(0, math.Inf(-1))
	v.Set(1, math.Inf(-1))
	_, err = v.Normalize()
	assert.ErrorIs(t, err, ssm.ErrDegenerateWeights)
}

func TestNormalizeNonFinite(t *testing.T) {
	v, err := New(2)
	require.NoError(t, err)
	v.Set(0, math.NaN())
	_, err = v.Normalize()
	assert.ErrorIs(t, err, ssm.ErrNonFinite)
}

func TestESS(t *testing.T) {
	v, err := New(4)
	require.NoError(t, err)
	_, err = v.Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v.ESS(), 1e-9)
}

func TestExpWeights(t *testing.T) {
	v, err := New(2)
	require.NoError(t, err)
	_, err = v.Normalize()
	require.NoError(t, err)
	exp := v.ExpWeights()
	assert.InDelta(t, 0.5, exp[0], 1e-9)
	assert.InDelta(t, 0.5, exp[1], 1e-9)
}
