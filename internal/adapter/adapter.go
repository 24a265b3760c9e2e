// Package adapter implements the price source adapter contract: one
// adapter per source kind, each normalizing its native protocol into a
// domain.Quote or a structured miss. No adapter ever panics or
// returns an error the aggregator has to distinguish from "no data" —
// every failure mode collapses to ErrNoData at this boundary.
package adapter

import (
	"context"
	"errors"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// ErrNoData covers network failure, unknown symbol, malformed
// payload, and non-positive price — the adapter never panics across
// this boundary, it returns this sentinel instead.
var ErrNoData = errors.New("adapter: no data")

// Adapter is the contract every price source implements.
type Adapter interface {
	Source() domain.SourceTag
	// Fetch returns a normalized Quote, or ErrNoData (wrapped or bare)
	// if this source has nothing usable for tok right now.
	Fetch(ctx context.Context, tok domain.TokenCfg) (domain.Quote, error)
}
