// Package fixedpoint implements integer-only price math: rescaling
// between decimal scales, the integer median, basis-point divergence
// and hysteresis calculations, and the confidence-ratio gate. Nothing
// here touches float64 or big.Float, every comparison is an integer
// comparison.
package fixedpoint

import "math/big"

var ten = big.NewInt(10)

// pow10 returns 10^n as a fresh *big.Int.
func pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Rescale converts price (expressed at fromDecimals) to toDecimals
// using exact integer arithmetic. Widening (fromDecimals <= toDecimals)
// multiplies and is always exact; narrowing divides and truncates
// toward zero.
func Rescale(price *big.Int, fromDecimals, toDecimals int) *big.Int {
	out := new(big.Int).Set(price)
	if fromDecimals == toDecimals {
		return out
	}
	if fromDecimals < toDecimals {
		return out.Mul(out, pow10(toDecimals-fromDecimals))
	}
	return out.Quo(out, pow10(fromDecimals-toDecimals))
}

// Median returns the integer median of sorted: for odd n, the middle
// element; for even n, the truncating integer average of the two
// middle elements. sorted must already be ascending and non-empty.
func Median(sorted []*big.Int) *big.Int {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	if n%2 == 1 {
		return new(big.Int).Set(sorted[n/2])
	}
	sum := new(big.Int).Add(sorted[n/2-1], sorted[n/2])
	return sum.Quo(sum, big.NewInt(2))
}

// SortAscending sorts vals in place using big.Int comparison.
func SortAscending(vals []*big.Int) {
	// Insertion sort: the validated-quote sets the aggregator sorts are
	// always small (one entry per configured source).
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1].Cmp(vals[j]) > 0; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
}

// DeviationBps computes |v - m| * 10000 / m using integer math.
// Returns 0 if m is zero.
func DeviationBps(v, m *big.Int) *big.Int {
	if m.Sign() == 0 {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(v, m)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))
	return diff.Quo(diff, m)
}

// ConfidenceWithinEpsilon reports whether confidence/price <= epsilonNum/epsilonDen,
// computed without floating point via
// confidence * epsilonDen * 10^k <= price * epsilonNum * 10^k,
// i.e. confidence * epsilonDen <= price * epsilonNum (the 10^k scale
// cancels algebraically; kept as a cross multiplication so no division
// or truncation ever happens).
func ConfidenceWithinEpsilon(confidence, price *big.Int, epsilonNum, epsilonDen int64) bool {
	if price.Sign() <= 0 {
		return false
	}
	if epsilonDen <= 0 {
		return false
	}
	lhs := new(big.Int).Mul(confidence, big.NewInt(epsilonDen))
	rhs := new(big.Int).Mul(price, big.NewInt(epsilonNum))
	return lhs.Cmp(rhs) <= 0
}

// ThresholdWithHysteresis returns threshold ± (threshold * hysteresisBps / 10000),
// using integer division (truncation toward zero). plus=true adds the
// hysteresis band (HotToCold fire level), plus=false subtracts it
// (ColdToHot fire level).
func ThresholdWithHysteresis(thresholdUsd *big.Int, hysteresisBps int64, plus bool) *big.Int {
	h := new(big.Int).Mul(thresholdUsd, big.NewInt(hysteresisBps))
	h.Quo(h, big.NewInt(10_000))
	out := new(big.Int).Set(thresholdUsd)
	if plus {
		return out.Add(out, h)
	}
	return out.Sub(out, h)
}

// PriceAtLeast reports whether price (scaled at priceDecimals) is >=
// thresholdUsd (a plain USD integer, i.e. scaled at decimals=0),
// computed via cross-multiplication against 10^priceDecimals so no
// division ever occurs: price >= thresholdUsd * 10^priceDecimals.
func PriceAtLeast(price *big.Int, priceDecimals int, thresholdUsd *big.Int) bool {
	scaledThreshold := new(big.Int).Mul(thresholdUsd, pow10(priceDecimals))
	return price.Cmp(scaledThreshold) >= 0
}

// PriceAtMost is the mirror of PriceAtLeast for the ColdToHot direction.
func PriceAtMost(price *big.Int, priceDecimals int, thresholdUsd *big.Int) bool {
	scaledThreshold := new(big.Int).Mul(thresholdUsd, pow10(priceDecimals))
	return price.Cmp(scaledThreshold) <= 0
}

// PercentOf computes balanceUnits * bps / 10000 using integer
// division (truncation toward zero).
func PercentOf(balanceUnits *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(balanceUnits, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10_000))
}
