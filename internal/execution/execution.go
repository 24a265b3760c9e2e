// Package execution implements an at-most-once execution engine: turn
// a fired domain.TransferSignal into a durable domain.TransferIntent,
// derive its idempotency key, and drive it through its status state
// machine, one attempt per key, ever.
package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/treasuryd/treasuryd/internal/chainclient"
	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/keyedqueue"
	"github.com/treasuryd/treasuryd/internal/metrics"
)

// ErrIllegalTransition is returned when a caller attempts to move an
// intent to a status not reachable from its current one.
var ErrIllegalTransition = errors.New("execution: illegal status transition")

// FireWindowSec buckets FiredAt into a coarse window before hashing,
// so that two evaluator runs which fire the same rule moments apart
// for the same consolidated price collapse onto the same idempotency
// key rather than double-spending on a timing accident.
const FireWindowSec = 60

// IdemKey derives a deterministic idempotency key: sha256 over
// (ruleId, firedAtWindow, amountUnits, direction). Two signals for the
// same rule, the same fire window, the same amount, and the same
// direction always produce the same key, and therefore the same
// TransferIntent row.
func IdemKey(sig domain.TransferSignal) string {
	window := sig.FiredAt / FireWindowSec
	h := sha256.New()
	h.Write([]byte(sig.RuleID))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(window, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(sig.AmountUnits.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(sig.Direction))
	return hex.EncodeToString(h.Sum(nil))
}

// legalFrom enumerates the states reachable from each status. Terminal
// statuses reach nothing.
var legalFrom = map[domain.Status]map[domain.Status]bool{
	domain.StatusPlanned: {
		domain.StatusProposed:     true,
		domain.StatusSubmitted:    true,
		domain.StatusMinedFailed:  true, // rejected before ever broadcasting
	},
	domain.StatusProposed: {
		domain.StatusSubmitted:   true,
		domain.StatusMinedFailed: true, // proposal rejected or expired
	},
	domain.StatusSubmitted: {
		domain.StatusMinedSuccess: true,
		domain.StatusMinedFailed:  true,
	},
}

// CheckTransition reports whether moving an intent from `from` to `to`
// is legal. Terminal states and no-op transitions are never legal.
func CheckTransition(from, to domain.Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrIllegalTransition, from)
	}
	if legalFrom[from][to] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// Store is the durable collaborator the Engine drives. Implementations
// must enforce the unique index on IdemKey (internal/store/intent).
type Store interface {
	// FindByIdemKey returns (intent, true, nil) if a row already
	// exists for key.
	FindByIdemKey(ctx context.Context, key string) (domain.TransferIntent, bool, error)
	// InsertPlanned durably creates a new row in StatusPlanned. It must
	// be safe to call twice with the same IdemKey: a second insert
	// should report the existing row rather than erroring, so a racing
	// caller always converges.
	InsertPlanned(ctx context.Context, intent domain.TransferIntent) (domain.TransferIntent, error)
	// UpdateStatus moves an existing row to a new status, recording
	// TxHash/ProposalHash/Note as supplied. Callers must have already
	// validated the transition with CheckTransition.
	UpdateStatus(ctx context.Context, idemKey string, to domain.Status, txHash, proposalHash, note string) error
}

// Engine drives one rule's fired signal to completion. Every call to
// Execute for the same rule is serialized through Queue, so no rule
// ever has two in-flight attempts racing each other.
type Engine struct {
	Store       Store
	Chain       chainclient.ChainClient
	Queue       *keyedqueue.Queue
	ReceiptWait time.Duration // per-poll timeout passed to AwaitReceipt
}

// New constructs an Engine. receiptWait <= 0 defaults to 5s.
func New(store Store, chain chainclient.ChainClient, queue *keyedqueue.Queue, receiptWait time.Duration) *Engine {
	if receiptWait <= 0 {
		receiptWait = 5 * time.Second
	}
	return &Engine{Store: store, Chain: chain, Queue: queue, ReceiptWait: receiptWait}
}

// Execute is the inbound execute(signal) entry point. It is idempotent:
// calling it twice for signals that hash to the same IdemKey results
// in exactly one on-chain transfer attempt.
func (e *Engine) Execute(ctx context.Context, sig domain.TransferSignal, mode domain.ExecutionMode) error {
	return e.Queue.Run(ctx, sig.RuleID, func() error {
		return e.execute(ctx, sig, mode)
	})
}

func (e *Engine) execute(ctx context.Context, sig domain.TransferSignal, mode domain.ExecutionMode) error {
	key := IdemKey(sig)

	intent, found, err := e.Store.FindByIdemKey(ctx, key)
	if err != nil {
		return fmt.Errorf("execution: lookup: %w", err)
	}
	if !found {
		intent, err = e.Store.InsertPlanned(ctx, domain.TransferIntent{
			IdemKey:        key,
			RuleID:         sig.RuleID,
			TokenID:        sig.TokenID,
			PriceAtFire:    sig.PriceAtFire,
			DecimalsAtFire: sig.DecimalsAtFire,
			FiredAt:        sig.FiredAt,
			AmountUnits:    sig.AmountUnits,
			From:           sig.From,
			To:             sig.To,
			Mode:           mode,
			Status:         domain.StatusPlanned,
		})
		if err != nil {
			return fmt.Errorf("execution: insert planned: %w", err)
		}
	}

	if intent.Status.Terminal() {
		return nil // already resolved, nothing left to do
	}

	switch intent.Status {
	case domain.StatusPlanned:
		return e.advanceFromPlanned(ctx, intent)
	case domain.StatusProposed:
		return e.advanceFromProposed(ctx, intent)
	case domain.StatusSubmitted:
		return e.awaitOutcome(ctx, intent)
	default:
		return fmt.Errorf("execution: unknown status %s for %s", intent.Status, key)
	}
}

func (e *Engine) advanceFromPlanned(ctx context.Context, intent domain.TransferIntent) error {
	if intent.Mode == domain.ExecMultisigPropose {
		return e.transitionTo(ctx, intent, domain.StatusProposed, "", "proposal not yet wired", "")
	}
	return e.broadcast(ctx, intent)
}

func (e *Engine) advanceFromProposed(ctx context.Context, intent domain.TransferIntent) error {
	// A proposed multisig transaction becomes broadcastable once it has
	// collected enough signatures — that collection happens out of
	// band (the multisig's own UI/signers). Here we only check whether
	// a matching transaction already landed on chain under this
	// intent's sender/recipient pair, which is the signal that it was
	// executed elsewhere.
	txHash, found, err := e.Chain.FindTransaction(ctx, intent.From, intent.To, 0)
	if err != nil {
		return fmt.Errorf("execution: find proposed tx: %w", err)
	}
	if !found {
		return nil // still waiting on signers, try again next round
	}
	return e.transitionTo(ctx, intent, domain.StatusSubmitted, txHash, intent.ProposalHash, "")
}

func (e *Engine) broadcast(ctx context.Context, intent domain.TransferIntent) error {
	txHash, err := e.Chain.Broadcast(ctx, chainclient.Transfer{
		TokenID:     intent.TokenID,
		From:        intent.From,
		To:          intent.To,
		AmountUnits: intent.AmountUnits,
	})
	if err != nil {
		var terminal *chainclient.TerminalError
		if errors.As(err, &terminal) {
			return e.transitionTo(ctx, intent, domain.StatusMinedFailed, "", "", "broadcast rejected: "+terminal.Error())
		}
		// transient: leave the intent Planned, caller retries next round
		return fmt.Errorf("execution: broadcast: %w", err)
	}
	return e.transitionTo(ctx, intent, domain.StatusSubmitted, txHash, "", "")
}

func (e *Engine) awaitOutcome(ctx context.Context, intent domain.TransferIntent) error {
	receipt, err := e.Chain.AwaitReceipt(ctx, intent.TxHash, e.ReceiptWait)
	if err != nil {
		if errors.Is(err, chainclient.ErrNotYet) {
			return nil // not yet mined, caller retries next round
		}
		return fmt.Errorf("execution: await receipt: %w", err)
	}
	if receipt.Success {
		return e.transitionTo(ctx, intent, domain.StatusMinedSuccess, intent.TxHash, intent.ProposalHash, "")
	}
	return e.transitionTo(ctx, intent, domain.StatusMinedFailed, intent.TxHash, intent.ProposalHash, "transaction reverted")
}

func (e *Engine) transitionTo(ctx context.Context, intent domain.TransferIntent, to domain.Status, txHash, proposalHash, note string) error {
	if err := CheckTransition(intent.Status, to); err != nil {
		return err
	}
	if err := e.Store.UpdateStatus(ctx, intent.IdemKey, to, txHash, proposalHash, note); err != nil {
		return fmt.Errorf("execution: update status: %w", err)
	}
	metrics.IntentTransitions.WithLabelValues(intent.RuleID, string(to)).Inc()
	return nil
}

// Reconcile is the crash-recovery pass: for an intent stuck in
// StatusPlanned or StatusSubmitted after a process restart, ask the
// chain whether a matching transaction already exists before deciding
// whether to re-broadcast.
// cmd/treasuryd does not run this pass at startup; there, an existing
// Planned row is re-driven by Execute, which broadcasts without this
// chain lookup.
func (e *Engine) Reconcile(ctx context.Context, intent domain.TransferIntent) error {
	return e.Queue.Run(ctx, intent.RuleID, func() error {
		switch intent.Status {
		case domain.StatusSubmitted:
			return e.awaitOutcome(ctx, intent)
		case domain.StatusPlanned, domain.StatusProposed:
			txHash, found, err := e.Chain.FindTransaction(ctx, intent.From, intent.To, 0)
			if err != nil {
				return fmt.Errorf("execution: reconcile lookup: %w", err)
			}
			if found {
				return e.transitionTo(ctx, intent, domain.StatusSubmitted, txHash, intent.ProposalHash, "")
			}
			if intent.Status == domain.StatusPlanned {
				return e.broadcast(ctx, intent)
			}
			return nil
		default:
			return nil
		}
	})
}
