// Package domain holds the value types shared by every stage of the
// treasury pipeline: quotes from price sources, the consolidated price
// they collapse into, the config registry entries that gate them, and
// the durable transfer-intent record the execution engine drives.
package domain

import (
	"fmt"
	"math/big"
)

// SourceTag identifies the kind of price source a Quote came from.
type SourceTag string

const (
	SourceChainlink SourceTag = "chainlink"
	SourcePyth      SourceTag = "pyth"
	SourceTWAP      SourceTag = "uniswap_v3_twap"
)

// Mode is the degradation level a ConsolidatedPrice was produced under.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeDegraded Mode = "degraded"
	ModeFrozen   Mode = "frozen"
)

// CanonicalDecimals is the fixed-point scale every persisted
// ConsolidatedPrice is rescaled to.
const CanonicalDecimals = 18

// PythMeta carries the publisher-aggregated confidence interval, in
// the same decimals as the owning Quote's Price.
type PythMeta struct {
	Confidence *big.Int
}

// TWAPMeta carries the DEX-TWAP-specific gating fields.
type TWAPMeta struct {
	PoolID          string
	WindowSec       int64
	LiquidityMetric *big.Int // harmonic-mean liquidity over the window
}

// Quote is one observation from one price source. It is ephemeral: it
// lives for the duration of a single aggregation run.
type Quote struct {
	Source   SourceTag
	Price    *big.Int // Price * 10^-Decimals is the USD value
	Decimals int
	At       int64 // epoch seconds the source reports the observation at

	Pyth *PythMeta // non-nil only for SourcePyth
	TWAP *TWAPMeta // non-nil only for SourceTWAP
}

func (q Quote) String() string {
	return fmt.Sprintf("%s@%d(price=%s,decimals=%d)", q.Source, q.At, q.Price, q.Decimals)
}

// ConsolidatedPrice is the output of one aggregation run for one token.
// Decimals is always CanonicalDecimals once persisted.
type ConsolidatedPrice struct {
	TokenID     string
	Price       *big.Int
	Decimals    int
	At          int64 // consolidation wall-clock time, not max(source.At)
	Mode        Mode
	SourcesUsed []Quote
}

// TokenCfg is the read-mostly registry entry describing how to
// validate and gate quotes for one token.
type TokenCfg struct {
	TokenID      string
	ChainID      int64
	TTLBySource  map[SourceTag]int64 // seconds, per-source freshness budget
	EpsilonNum   int64               // epsilon expressed as EpsilonNum/EpsilonDen, epsilon in [0,1]
	EpsilonDen   int64
	DeltaBps     int64
	TWAPWindow   int64
	MinLiquidity *big.Int
	AllowedPools []string
}

// TTLFor returns the freshness budget configured for source, or 0 (no
// quote will ever be fresh) if the source isn't configured for this token.
func (c TokenCfg) TTLFor(source SourceTag) int64 {
	return c.TTLBySource[source]
}

// Direction of a rule-triggered transfer.
type Direction string

const (
	DirectionHotToCold Direction = "hot_to_cold"
	DirectionColdToHot Direction = "cold_to_hot"
)

// AmountKind selects how Rule.Amount is interpreted.
type AmountKind string

const (
	AmountAbsolute AmountKind = "absolute"
	AmountPercent  AmountKind = "percent"
)

// Amount is a tagged union: either a fixed unit amount or a percentage
// (in bps) of the source-side balance.
type Amount struct {
	Kind  AmountKind
	Units *big.Int // valid when Kind == AmountAbsolute
	Bps   int64    // valid when Kind == AmountPercent
}

// ExecutionMode selects how a fired signal is turned into a chain
// transfer.
type ExecutionMode string

const (
	ExecDirectKey       ExecutionMode = "direct_key"
	ExecMultisigPropose ExecutionMode = "multisig_propose"
	ExecMultisigExecute ExecutionMode = "multisig_execute"
)

// Rule is one balancer trigger.
type Rule struct {
	RuleID        string
	TokenID       string
	ChainID       int64
	ThresholdUsd  *big.Int // plain USD integer price level, e.g. 2000 for $2000
	Direction     Direction
	Amount        Amount
	HotAddr       string
	ColdAddr      string
	ExecutionMode ExecutionMode
	HysteresisBps int64
	CooldownSec   int64
	Enabled       bool
}

// TransferSignal is the pure output of the trigger evaluator: a
// decision to move funds, not yet durable.
type TransferSignal struct {
	RuleID         string
	TokenID        string
	PriceAtFire    *big.Int
	DecimalsAtFire int
	FiredAt        int64
	AmountUnits    *big.Int
	Direction      Direction
	From           string
	To             string
}

// Status is the TransferIntent state-machine discriminator. This
// package does not enforce which transitions are legal
// (internal/execution does) but callers should never construct a
// Status outside this set.
type Status string

const (
	StatusPlanned      Status = "planned"
	StatusProposed     Status = "proposed"
	StatusSubmitted    Status = "submitted"
	StatusMinedSuccess Status = "mined_success"
	StatusMinedFailed  Status = "mined_failed"
)

// Terminal reports whether status is one execution engines never
// retry or advance out of.
func (s Status) Terminal() bool {
	return s == StatusMinedSuccess || s == StatusMinedFailed
}

// TransferIntent is the durable record of one at-most-once transfer
// attempt. It is created once in StatusPlanned and never deleted.
type TransferIntent struct {
	IdemKey        string
	RuleID         string
	TokenID        string
	PriceAtFire    *big.Int
	DecimalsAtFire int
	FiredAt        int64
	AmountUnits    *big.Int
	From           string
	To             string
	Mode           ExecutionMode
	Status         Status
	TxHash         string
	ProposalHash   string
	Note           string // terminal cause, set on MinedFailed
}
