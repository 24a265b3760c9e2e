package evaluator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treasuryd/treasuryd/internal/domain"
)

func baseRule() domain.Rule {
	return domain.Rule{
		RuleID:        "r1",
		TokenID:       "ETH",
		ThresholdUsd:  big.NewInt(2000),
		Direction:     domain.DirectionHotToCold,
		Amount:        domain.Amount{Kind: domain.AmountPercent, Bps: 5000},
		HotAddr:       "0xhot",
		ColdAddr:      "0xcold",
		ExecutionMode: domain.ExecDirectKey,
		HysteresisBps: 0,
		CooldownSec:   60,
		Enabled:       true,
	}
}

func priceAt(usd int64) domain.ConsolidatedPrice {
	scaled := new(big.Int).Mul(big.NewInt(usd), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return domain.ConsolidatedPrice{TokenID: "ETH", Price: scaled, Decimals: 18, At: 1000, Mode: domain.ModeNormal}
}

func TestEvaluate_FiresHotToCold(t *testing.T) {
	rule := baseRule()
	sig, err := Evaluate(rule, priceAt(2500), big.NewInt(100), 2000, nil)
	assert.NoError(t, err)
	assert.NotNil(t, sig)
	assert.Equal(t, big.NewInt(50), sig.AmountUnits)
	assert.Equal(t, "0xhot", sig.From)
	assert.Equal(t, "0xcold", sig.To)
}

func TestEvaluate_DoesNotFireBelowThreshold(t *testing.T) {
	rule := baseRule()
	sig, err := Evaluate(rule, priceAt(1500), big.NewInt(100), 2000, nil)
	assert.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluate_Disabled(t *testing.T) {
	rule := baseRule()
	rule.Enabled = false
	sig, err := Evaluate(rule, priceAt(2500), big.NewInt(100), 2000, nil)
	assert.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluate_Cooldown(t *testing.T) {
	rule := baseRule()
	lastFire := int64(1970)
	sig, err := Evaluate(rule, priceAt(2500), big.NewInt(100), 2000, &lastFire) // 30s since last fire, cooldown 60s
	assert.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluate_InsufficientBalanceSuppresses(t *testing.T) {
	rule := baseRule()
	rule.Amount = domain.Amount{Kind: domain.AmountAbsolute, Units: big.NewInt(1000)}
	sig, err := Evaluate(rule, priceAt(2500), big.NewInt(10), 2000, nil)
	assert.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluate_ColdToHotDirection(t *testing.T) {
	rule := baseRule()
	rule.Direction = domain.DirectionColdToHot
	rule.ThresholdUsd = big.NewInt(2000)

	sig, err := Evaluate(rule, priceAt(1500), big.NewInt(100), 2000, nil)
	assert.NoError(t, err)
	assert.NotNil(t, sig)
	assert.Equal(t, "0xcold", sig.From)
	assert.Equal(t, "0xhot", sig.To)
}

func TestEvaluate_HysteresisDelaysRefire(t *testing.T) {
	rule := baseRule()
	rule.HysteresisBps = 500 // 5%, fire level becomes 2100 for HotToCold

	sig, err := Evaluate(rule, priceAt(2050), big.NewInt(100), 2000, nil)
	assert.NoError(t, err)
	assert.Nil(t, sig, "price above threshold but below hysteresis band should not fire")

	sig, err = Evaluate(rule, priceAt(2100), big.NewInt(100), 2000, nil)
	assert.NoError(t, err)
	assert.NotNil(t, sig)
}
