package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRescale(t *testing.T) {
	t.Run("widen", func(t *testing.T) {
		got := Rescale(big.NewInt(123), 2, 4)
		assert.Equal(t, big.NewInt(12300), got)
	})
	t.Run("narrow truncates", func(t *testing.T) {
		got := Rescale(big.NewInt(12399), 4, 2)
		assert.Equal(t, big.NewInt(123), got)
	})
	t.Run("no-op", func(t *testing.T) {
		got := Rescale(big.NewInt(5), 6, 6)
		assert.Equal(t, big.NewInt(5), got)
	})
}

func TestMedian(t *testing.T) {
	t.Run("odd", func(t *testing.T) {
		vals := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
		assert.Equal(t, big.NewInt(2), Median(vals))
	})
	t.Run("even truncates", func(t *testing.T) {
		vals := []*big.Int{big.NewInt(1), big.NewInt(2)}
		assert.Equal(t, big.NewInt(1), Median(vals)) // (1+2)/2 = 1 (truncated)
	})
}

func TestSortAscending(t *testing.T) {
	vals := []*big.Int{big.NewInt(5), big.NewInt(1), big.NewInt(3)}
	SortAscending(vals)
	assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(3), big.NewInt(5)}, vals)
}

func TestDeviationBps(t *testing.T) {
	dev := DeviationBps(big.NewInt(110), big.NewInt(100))
	assert.Equal(t, big.NewInt(1000), dev) // 10% = 1000 bps
}

func TestConfidenceWithinEpsilon(t *testing.T) {
	// epsilon = 1/100 = 1%
	assert.True(t, ConfidenceWithinEpsilon(big.NewInt(1), big.NewInt(100), 1, 100))
	assert.False(t, ConfidenceWithinEpsilon(big.NewInt(2), big.NewInt(100), 1, 100))
	assert.False(t, ConfidenceWithinEpsilon(big.NewInt(1), big.NewInt(0), 1, 100))
}

func TestThresholdWithHysteresis(t *testing.T) {
	fireUp := ThresholdWithHysteresis(big.NewInt(2000), 100, true) // +1%
	assert.Equal(t, big.NewInt(2020), fireUp)
	fireDown := ThresholdWithHysteresis(big.NewInt(2000), 100, false)
	assert.Equal(t, big.NewInt(1980), fireDown)
}

func TestPriceAtLeastAndAtMost(t *testing.T) {
	price, _ := new(big.Int).SetString("2000000000000000000000", 10) // $2000 at 18 decimals
	assert.True(t, PriceAtLeast(price, 18, big.NewInt(2000)))
	assert.False(t, PriceAtLeast(price, 18, big.NewInt(2001)))
	assert.True(t, PriceAtMost(price, 18, big.NewInt(2000)))
	assert.False(t, PriceAtMost(price, 18, big.NewInt(1999)))
}

func TestPercentOf(t *testing.T) {
	got := PercentOf(big.NewInt(10_000), 2_500) // 25%
	assert.Equal(t, big.NewInt(2_500), got)
}
