package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(decimal.RequireFromString("150.50")))
	require.NoError(t, Validate(decimal.Zero))
	assert.ErrorIs(t, Validate(decimal.RequireFromString("-1.00")), ErrNegative)
	assert.ErrorIs(t, Validate(decimal.RequireFromString("1.005")), ErrPrecision)

	require.NoError(t, Validate(Max))
	assert.ErrorIs(t, Validate(decimal.RequireFromString("10000000000000")), ErrTooLarge)
	assert.ErrorIs(t, Validate(Max.Add(decimal.RequireFromString("0.01"))), ErrTooLarge)
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(Zero))
	assert.True(t, InRange(Max))
	assert.False(t, InRange(Max.Mul(decimal.NewFromInt(2))))
	assert.False(t, InRange(decimal.RequireFromString("-0.01")))
}

func TestTimes_IsExact(t *testing.T) {
	// 0.10 x 1000 drifts in float64; decimal stays exact.
	assert.True(t, Times(decimal.RequireFromString("0.10"), 1000).Equal(decimal.RequireFromString("100.00")))
}

func TestTimes(t *testing.T) {
	assert.Equal(t, "30.75", Times(decimal.RequireFromString("10.25"), 3).StringFixed(Scale))
	assert.Equal(t, "0.00", Times(decimal.Zero, 5).StringFixed(Scale))
}

func TestRound(t *testing.T) {
	assert.Equal(t, "1.01", Round(decimal.RequireFromString("1.005")).StringFixed(Scale))
	assert.Equal(t, "2.35", Round(decimal.RequireFromString("2.345")).StringFixed(Scale))
}
