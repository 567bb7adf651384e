package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentRoundsHalfUp(t *testing.T) {
	base := FromInt(1000)

	assert.True(t, Percent(base, FromInt(20)).Equal(FromInt(200)))

	// 12.345% of 100 = 12.345 -> 12.35 half up
	pct, err := decimal.NewFromString("12.345")
	require.NoError(t, err)
	got := Percent(FromInt(100), pct)
	want, _ := decimal.NewFromString("12.35")
	assert.True(t, got.Equal(want), "got %s", got)
}

func TestPercentDeterministic(t *testing.T) {
	base, _ := decimal.NewFromString("333.33")
	pct, _ := decimal.NewFromString("7.5")

	first := Percent(base, pct)
	for i := 0; i < 10; i++ {
		assert.True(t, first.Equal(Percent(base, pct)))
	}
}

func TestClamp(t *testing.T) {
	lo, hi := Zero(), FromInt(100)

	assert.True(t, Clamp(FromInt(-5), lo, hi).Equal(lo))
	assert.True(t, Clamp(FromInt(500), lo, hi).Equal(hi))
	assert.True(t, Clamp(FromInt(42), lo, hi).Equal(FromInt(42)))
}

func TestMin(t *testing.T) {
	assert.True(t, Min(FromInt(3), FromInt(9)).Equal(FromInt(3)))
	assert.True(t, Min(FromInt(9), FromInt(3)).Equal(FromInt(3)))
}

func TestFromStringNormalizes(t *testing.T) {
	got, err := FromString("10.999")
	require.NoError(t, err)
	want, _ := decimal.NewFromString("11.00")
	assert.True(t, got.Equal(want))

	_, err = FromString("not-a-number")
	assert.Error(t, err)
}
