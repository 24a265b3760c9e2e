package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/twapmath"
)

// PoolObservation is one pool's time-weighted average tick and
// harmonic-mean liquidity over a window, as reported by the chain.
type PoolObservation struct {
	Tick            int
	LiquidityMetric *big.Int
	ActualWindowSec int64
	At              int64
}

// PoolReader is the read-only surface a Uniswap-V3-style pool needs
// for TWAP observation. It is the adapter's responsibility to convert
// ticks to price and expose liquidity; the aggregator gates on
// minLiquidity/allowedPools, not this reader.
type PoolReader interface {
	// Observe returns the TWAP tick and liquidity over windowSec
	// ending now, or an error if the pool cannot serve that window.
	Observe(ctx context.Context, poolID string, windowSec int64) (PoolObservation, error)
}

// TWAPAdapter converts Uniswap-V3-style pool observations into
// Quotes. It iterates cfg.AllowedPools in declared order and takes
// the first pool that yields an observation.
type TWAPAdapter struct {
	Reader PoolReader
}

func NewTWAPAdapter(reader PoolReader) *TWAPAdapter {
	return &TWAPAdapter{Reader: reader}
}

func (a *TWAPAdapter) Source() domain.SourceTag { return domain.SourceTWAP }

func (a *TWAPAdapter) Fetch(ctx context.Context, tok domain.TokenCfg) (domain.Quote, error) {
	if len(tok.AllowedPools) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: no allowed pools configured", ErrNoData)
	}

	var lastErr error
	for _, poolID := range tok.AllowedPools {
		obs, err := a.Reader.Observe(ctx, poolID, tok.TWAPWindow)
		if err != nil {
			lastErr = err
			continue
		}

		price, err := twapmath.PriceAtTick(obs.Tick, domain.CanonicalDecimals)
		if err != nil {
			lastErr = err
			continue
		}

		at := obs.At
		if at == 0 {
			at = nowFunc()
		}
		return domain.Quote{
			Source:   domain.SourceTWAP,
			Price:    price,
			Decimals: domain.CanonicalDecimals,
			At:       at,
			TWAP: &domain.TWAPMeta{
				PoolID:          poolID,
				WindowSec:       obs.ActualWindowSec,
				LiquidityMetric: obs.LiquidityMetric,
			},
		}, nil
	}

	if lastErr != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrNoData, lastErr)
	}
	return domain.Quote{}, ErrNoData
}

// nowFunc is overridable by tests.
var nowFunc = func() int64 {
	return time.Now().Unix()
}
