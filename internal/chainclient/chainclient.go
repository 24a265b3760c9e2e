// Package chainclient defines the minimal outbound chain client
// contract: read a balance, broadcast a transfer, and wait for its
// receipt. The interface is deliberately narrow — the execution engine
// only ever needs these operations.
package chainclient

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// ErrNotYet indicates a receipt hasn't landed within the caller's
// timeout; the caller (the Execution Engine) leaves the intent in
// StatusSubmitted and relies on a later reconciliation pass.
var ErrNotYet = errors.New("chainclient: receipt not yet available")

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	Success     bool
	BlockNumber uint64
}

// TransientError wraps a retryable broadcast failure (networking,
// nonce race).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "chainclient: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// TerminalError wraps a non-retryable broadcast failure (insufficient
// funds, invalid nonce floor).
type TerminalError struct{ Err error }

func (e *TerminalError) Error() string { return "chainclient: terminal: " + e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// Transfer describes one planned on-chain transfer. TokenID is an
// address or symbol understood by the underlying chain client
// implementation (native asset vs. ERC20 is an implementation detail
// below this contract).
type Transfer struct {
	TokenID     string
	From        string
	To          string
	AmountUnits *big.Int
	// Nonce, when non-nil, pins the sender nonce instead of taking the
	// node's pending nonce. The execution engine leaves it nil.
	Nonce *uint64
}

// ChainClient is the contract the execution engine depends on.
// Implementations must be safe for concurrent use from different
// rule workers; nonce ordering for a single signing identity is the
// implementation's responsibility.
type ChainClient interface {
	GetBalance(ctx context.Context, addr, tokenID string) (*big.Int, error)

	// Broadcast submits tx and returns its hash, or a *TransientError /
	// *TerminalError distinguishing retryable from fatal failures.
	Broadcast(ctx context.Context, tx Transfer) (txHash string, err error)

	// AwaitReceipt polls until a receipt is available or timeout
	// elapses, returning ErrNotYet in the latter case (not an error
	// the caller should treat as failure).
	AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error)

	// FindTransaction looks for a transaction already broadcast from
	// `from` to `to` under the given nonce (0 matches any nonce) — the
	// crash-recovery lookup.
	FindTransaction(ctx context.Context, from, to string, nonce uint64) (txHash string, found bool, err error)
}
