// Package validator implements the per-source freshness and quality
// gate. IsValid is a pure function of (Quote, TokenCfg, now) — it
// never mutates its inputs and never performs I/O.
package validator

import (
	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/fixedpoint"
)

// IsValid reports whether q passes every gate applicable to its
// source kind. A Quote is valid only if all applicable gates pass.
func IsValid(q domain.Quote, cfg domain.TokenCfg, now int64) bool {
	if !freshnessOK(q, cfg, now) {
		return false
	}
	if q.Source == domain.SourcePyth && !confidenceOK(q, cfg) {
		return false
	}
	if q.Source == domain.SourceTWAP && !twapGatesOK(q, cfg) {
		return false
	}
	return true
}

// freshnessOK implements gate 1: now - q.At <= cfg.ttlBySource[q.source].
func freshnessOK(q domain.Quote, cfg domain.TokenCfg, now int64) bool {
	ttl := cfg.TTLFor(q.Source)
	if ttl <= 0 {
		return false
	}
	age := now - q.At
	if age < 0 {
		age = 0 // a source reporting a future timestamp is never treated as stale
	}
	return age <= ttl
}

// confidenceOK implements gate 2, publisher-aggregated sources only:
// q.meta.confidence / q.price <= cfg.epsilon, computed as an integer
// cross-multiplication so there is never any floating-point drift.
func confidenceOK(q domain.Quote, cfg domain.TokenCfg) bool {
	if q.Pyth == nil || q.Pyth.Confidence == nil || q.Price == nil {
		return false
	}
	return fixedpoint.ConfidenceWithinEpsilon(q.Pyth.Confidence, q.Price, cfg.EpsilonNum, cfg.EpsilonDen)
}

// twapGatesOK implements gate 3, DEX TWAP sources only: the pool must
// be allow-listed, the observed window must meet the configured
// minimum, and liquidity must clear the configured floor.
func twapGatesOK(q domain.Quote, cfg domain.TokenCfg) bool {
	if q.TWAP == nil {
		return false
	}
	if !poolAllowed(q.TWAP.PoolID, cfg.AllowedPools) {
		return false
	}
	if q.TWAP.WindowSec < cfg.TWAPWindow {
		return false
	}
	if cfg.MinLiquidity != nil && (q.TWAP.LiquidityMetric == nil || q.TWAP.LiquidityMetric.Cmp(cfg.MinLiquidity) < 0) {
		return false
	}
	return true
}

func poolAllowed(poolID string, allowed []string) bool {
	for _, p := range allowed {
		if p == poolID {
			return true
		}
	}
	return false
}
