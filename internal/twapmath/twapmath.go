// Package twapmath converts a Uniswap-V3-style pool tick into a
// sqrt-price and then into a USD price, entirely with integer
// arithmetic. It deliberately avoids a floating-point exp/log
// tick-to-price conversion and any hard-coded fallback price on
// overflow: out-of-range ticks are a reported error instead.
//
// The method is the one Uniswap V3's TickMath.getSqrtRatioAtTick uses:
// sqrt(1.0001)^-|tick| is computed as a Q128.128 fixed-point product
// of precomputed per-bit constants (1/sqrt(1.0001^(2^i)) for each bit
// i set in |tick|), then the result is inverted for positive ticks and
// shifted down to Q64.96 (sqrtPriceX96).
package twapmath

import "math/big"

const (
	minTick = -887272
	maxTick = 887272
)

// bitConstants[i] = 2^128 / sqrt(1.0001^(2^i)), i.e. the Q128.128
// fixed-point representation of bit i's contribution to the inverse
// sqrt-price product, as used by TickMath.getSqrtRatioAtTick.
var bitConstants = [...]string{
	"0xfffcb933bd6fad37aa2d162d1a594001", // bit 0
	"0xfff97272373d413259a46990580e213a", // bit 1
	"0xfff2e50f5f656932ef12357cf3c7fdcc", // bit 2
	"0xffe5caca7e10e4e61c3624eaa0941cd0", // bit 3
	"0xffcb9843d60f6159c9db58835c926644", // bit 4
	"0xff973b41fa98c081472e6896dfb254c0", // bit 5
	"0xff2ea16466c96a3843ec78b326b52861", // bit 6
	"0xfe5dee046a99a2a811c461f1969c3053", // bit 7
	"0xfcbe86c7900a88aedcffc83b479aa3a4", // bit 8
	"0xf987a7253ac413176f2b074cf7815e54", // bit 9
	"0xf3392b0822b70005940c7a398e4b70f3", // bit 10
	"0xe7159475a2c29b7443b29c7fa6e889d9", // bit 11
	"0xd097f3bdfd2022b8845ad8f792aa5825", // bit 12
	"0xa9f746462d870fdf8a65dc1f90e061e5", // bit 13
	"0x70d869a156d2a1b890bb3df62baf32f7", // bit 14
	"0x31be135f97d08fd981231505542fcfa6", // bit 15
	"0x9aa508b5b7a84e1c677de54f3e99bc9",  // bit 16
	"0x5d6af8dedb81196699c329225ee604",   // bit 17
	"0x2216e584f5fa1ea926041bedfe98",     // bit 18
	"0x48a170391f7dc42444e8fa2",          // bit 19
}

func bitConst(i int) *big.Int {
	v, ok := new(big.Int).SetString(bitConstants[i][2:], 16)
	if !ok {
		panic("twapmath: bad constant")
	}
	return v
}

// SqrtPriceX96AtTick computes the Q64.96 sqrt-price for tick, i.e.
// sqrt(1.0001^tick) * 2^96, rounded up in the final shift the same way
// TickMath.getSqrtRatioAtTick rounds it. It returns an error for ticks
// outside Uniswap V3's supported range instead of silently clamping.
func SqrtPriceX96AtTick(tick int) (*big.Int, error) {
	if tick < minTick || tick > maxTick {
		return nil, ErrTickOutOfRange
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128) // Q128.128 one
	if absTick != 0 {
		for i := 0; i < len(bitConstants); i++ {
			if absTick&(1<<uint(i)) != 0 {
				ratio.Mul(ratio, bitConst(i))
				ratio.Rsh(ratio, 128)
			}
		}
	}

	if tick > 0 {
		maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		ratio.Quo(maxU256, ratio)
	}

	// Q128.128 -> Q64.96: shift right 32, rounding up on a nonzero remainder.
	shifted, rem := new(big.Int).QuoRem(ratio, new(big.Int).Lsh(big.NewInt(1), 32), new(big.Int))
	if rem.Sign() != 0 {
		shifted.Add(shifted, big.NewInt(1))
	}
	return shifted, nil
}

// ErrTickOutOfRange is returned when a tick falls outside
// [-887272, 887272], the range Uniswap V3 pools can represent.
var ErrTickOutOfRange = sqrtRangeErr{}

type sqrtRangeErr struct{}

func (sqrtRangeErr) Error() string { return "twapmath: tick out of range" }

// Q96 is 2^96, the fixed-point base sqrtPriceX96 values are expressed in.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// PriceFromSqrtX96 converts a Q64.96 sqrt-price into a price scaled at
// decimals, using only integer multiplication and division:
//
//	price = (sqrtPriceX96^2 * 10^decimals) / 2^192
//
// truncating toward zero, matching the aggregator's own rescale
// contract.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimals int) *big.Int {
	numerator := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	numerator.Mul(numerator, pow10(decimals))
	denominator := new(big.Int).Mul(Q96, Q96)
	return numerator.Quo(numerator, denominator)
}

func pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// PriceAtTick is the convenience composition TWAP adapters use: tick
// straight to a decimals-scaled price, with no floating point and no
// overflow fallback anywhere in the path.
func PriceAtTick(tick int, decimals int) (*big.Int, error) {
	sqrtPriceX96, err := SqrtPriceX96AtTick(tick)
	if err != nil {
		return nil, err
	}
	return PriceFromSqrtX96(sqrtPriceX96, decimals), nil
}
