package validator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treasuryd/treasuryd/internal/domain"
)

func baseCfg() domain.TokenCfg {
	return domain.TokenCfg{
		TokenID: "ETH",
		TTLBySource: map[domain.SourceTag]int64{
			domain.SourceChainlink: 120,
			domain.SourcePyth:      30,
			domain.SourceTWAP:      300,
		},
		EpsilonNum:   1,
		EpsilonDen:   100,
		TWAPWindow:   600,
		MinLiquidity: big.NewInt(1000),
		AllowedPools: []string{"pool-a"},
	}
}

func TestIsValid_Freshness(t *testing.T) {
	cfg := baseCfg()
	q := domain.Quote{Source: domain.SourceChainlink, Price: big.NewInt(1), At: 100}
	assert.True(t, IsValid(q, cfg, 100+120))
	assert.False(t, IsValid(q, cfg, 100+121))
}

func TestIsValid_FutureTimestampNeverStale(t *testing.T) {
	cfg := baseCfg()
	q := domain.Quote{Source: domain.SourceChainlink, Price: big.NewInt(1), At: 1000}
	assert.True(t, IsValid(q, cfg, 500))
}

func TestIsValid_UnconfiguredSourceAlwaysFails(t *testing.T) {
	cfg := baseCfg()
	delete(cfg.TTLBySource, domain.SourceChainlink)
	q := domain.Quote{Source: domain.SourceChainlink, Price: big.NewInt(1), At: 100}
	assert.False(t, IsValid(q, cfg, 100))
}

func TestIsValid_PythConfidenceGate(t *testing.T) {
	cfg := baseCfg()
	q := domain.Quote{
		Source: domain.SourcePyth, Price: big.NewInt(100), At: 0,
		Pyth: &domain.PythMeta{Confidence: big.NewInt(1)},
	}
	assert.True(t, IsValid(q, cfg, 0))

	q.Pyth.Confidence = big.NewInt(5)
	assert.False(t, IsValid(q, cfg, 0))
}

func TestIsValid_PythMissingMetaFails(t *testing.T) {
	cfg := baseCfg()
	q := domain.Quote{Source: domain.SourcePyth, Price: big.NewInt(100), At: 0}
	assert.False(t, IsValid(q, cfg, 0))
}

func TestIsValid_TWAPGates(t *testing.T) {
	cfg := baseCfg()
	good := domain.Quote{
		Source: domain.SourceTWAP, Price: big.NewInt(1), At: 0,
		TWAP: &domain.TWAPMeta{PoolID: "pool-a", WindowSec: 600, LiquidityMetric: big.NewInt(2000)},
	}
	assert.True(t, IsValid(good, cfg, 0))

	wrongPool := good
	wrongPool.TWAP = &domain.TWAPMeta{PoolID: "pool-b", WindowSec: 600, LiquidityMetric: big.NewInt(2000)}
	assert.False(t, IsValid(wrongPool, cfg, 0))

	shortWindow := good
	shortWindow.TWAP = &domain.TWAPMeta{PoolID: "pool-a", WindowSec: 100, LiquidityMetric: big.NewInt(2000)}
	assert.False(t, IsValid(shortWindow, cfg, 0))

	lowLiquidity := good
	lowLiquidity.TWAP = &domain.TWAPMeta{PoolID: "pool-a", WindowSec: 600, LiquidityMetric: big.NewInt(1)}
	assert.False(t, IsValid(lowLiquidity, cfg, 0))
}
