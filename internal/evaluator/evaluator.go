// Package evaluator implements a pure trigger evaluator:
// evaluate(rule, consolidatedPrice, balance, lastFireAt) decides,
// deterministically, whether a rule fires this round. Its only side
// effect is incrementing the InsufficientBalance metric.
package evaluator

import (
	"math/big"

	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/fixedpoint"
	"github.com/treasuryd/treasuryd/internal/metrics"
)

// Evaluate runs the rule's gates in order. It returns (nil, nil)
// whenever the rule does not fire — that is not an error, it is the
// expected steady-state outcome for most evaluations.
func Evaluate(rule domain.Rule, cp domain.ConsolidatedPrice, balanceUnits *big.Int, now int64, lastFireAt *int64) (*domain.TransferSignal, error) {
	if !rule.Enabled {
		return nil, nil
	}

	if lastFireAt != nil && now-*lastFireAt < rule.CooldownSec {
		return nil, nil
	}

	if !fires(rule, cp) {
		return nil, nil
	}

	amount := computeAmount(rule, balanceUnits)

	if amount.Cmp(balanceUnits) > 0 {
		metrics.InsufficientBalance.WithLabelValues(rule.RuleID).Inc()
		return nil, nil
	}

	from, to := addressesFor(rule)

	return &domain.TransferSignal{
		RuleID:         rule.RuleID,
		TokenID:        rule.TokenID,
		PriceAtFire:    new(big.Int).Set(cp.Price),
		DecimalsAtFire: cp.Decimals,
		FiredAt:        cp.At,
		AmountUnits:    amount,
		Direction:      rule.Direction,
		From:           from,
		To:             to,
	}, nil
}

// fires implements the threshold-with-hysteresis gate. HotToCold
// fires when price has risen to or past threshold+hysteresis;
// ColdToHot fires when it has fallen to or past threshold-hysteresis.
func fires(rule domain.Rule, cp domain.ConsolidatedPrice) bool {
	switch rule.Direction {
	case domain.DirectionHotToCold:
		fireLevel := fixedpoint.ThresholdWithHysteresis(rule.ThresholdUsd, rule.HysteresisBps, true)
		return fixedpoint.PriceAtLeast(cp.Price, cp.Decimals, fireLevel)
	case domain.DirectionColdToHot:
		fireLevel := fixedpoint.ThresholdWithHysteresis(rule.ThresholdUsd, rule.HysteresisBps, false)
		return fixedpoint.PriceAtMost(cp.Price, cp.Decimals, fireLevel)
	default:
		return false
	}
}

// computeAmount resolves the configured Amount against the
// source-side balance.
func computeAmount(rule domain.Rule, balanceUnits *big.Int) *big.Int {
	if rule.Amount.Kind == domain.AmountPercent {
		return fixedpoint.PercentOf(balanceUnits, rule.Amount.Bps)
	}
	return new(big.Int).Set(rule.Amount.Units)
}

func addressesFor(rule domain.Rule) (from, to string) {
	if rule.Direction == domain.DirectionHotToCold {
		return rule.HotAddr, rule.ColdAddr
	}
	return rule.ColdAddr, rule.HotAddr
}
