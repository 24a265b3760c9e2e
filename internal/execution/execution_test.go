package execution

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/treasuryd/treasuryd/internal/chainclient"
	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/keyedqueue"
)

func sampleSignal() domain.TransferSignal {
	return domain.TransferSignal{
		RuleID:         "r1",
		TokenID:        "ETH",
		PriceAtFire:    big.NewInt(2000),
		DecimalsAtFire: 0,
		FiredAt:        1_000_000,
		AmountUnits:    big.NewInt(50),
		Direction:      domain.DirectionHotToCold,
		From:           "0xhot",
		To:             "0xcold",
	}
}

func TestIdemKey_DeterministicAndWindowed(t *testing.T) {
	a := sampleSignal()
	b := sampleSignal()
	b.FiredAt += 10 // same 60s window

	assert.Equal(t, IdemKey(a), IdemKey(b))

	c := sampleSignal()
	c.FiredAt += FireWindowSec + 1
	assert.NotEqual(t, IdemKey(a), IdemKey(c))

	d := sampleSignal()
	d.AmountUnits = big.NewInt(51)
	assert.NotEqual(t, IdemKey(a), IdemKey(d))
}

func TestCheckTransition(t *testing.T) {
	assert.NoError(t, CheckTransition(domain.StatusPlanned, domain.StatusSubmitted))
	assert.NoError(t, CheckTransition(domain.StatusPlanned, domain.StatusProposed))
	assert.NoError(t, CheckTransition(domain.StatusSubmitted, domain.StatusMinedSuccess))
	assert.ErrorIs(t, CheckTransition(domain.StatusMinedSuccess, domain.StatusSubmitted), ErrIllegalTransition)
	assert.ErrorIs(t, CheckTransition(domain.StatusPlanned, domain.StatusMinedSuccess), ErrIllegalTransition)
	assert.ErrorIs(t, CheckTransition(domain.StatusProposed, domain.StatusPlanned), ErrIllegalTransition)
}

// fakeStore is an in-memory execution.Store for engine tests.
type fakeStore struct {
	rows map[string]domain.TransferIntent
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]domain.TransferIntent)} }

func (s *fakeStore) FindByIdemKey(_ context.Context, key string) (domain.TransferIntent, bool, error) {
	row, ok := s.rows[key]
	return row, ok, nil
}

func (s *fakeStore) InsertPlanned(_ context.Context, intent domain.TransferIntent) (domain.TransferIntent, error) {
	if existing, ok := s.rows[intent.IdemKey]; ok {
		return existing, nil
	}
	s.rows[intent.IdemKey] = intent
	return intent, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, idemKey string, to domain.Status, txHash, proposalHash, note string) error {
	row := s.rows[idemKey]
	row.Status = to
	if txHash != "" {
		row.TxHash = txHash
	}
	if proposalHash != "" {
		row.ProposalHash = proposalHash
	}
	if note != "" {
		row.Note = note
	}
	s.rows[idemKey] = row
	return nil
}

// fakeChain is a minimal chainclient.ChainClient for engine tests.
type fakeChain struct {
	broadcastHash string
	broadcastErr  error
	receipt       *chainclient.Receipt
	receiptErr    error
}

func (c *fakeChain) GetBalance(context.Context, string, string) (*big.Int, error) { return big.NewInt(0), nil }

func (c *fakeChain) Broadcast(context.Context, chainclient.Transfer) (string, error) {
	return c.broadcastHash, c.broadcastErr
}

func (c *fakeChain) AwaitReceipt(context.Context, string, time.Duration) (*chainclient.Receipt, error) {
	return c.receipt, c.receiptErr
}

func (c *fakeChain) FindTransaction(context.Context, string, string, uint64) (string, bool, error) {
	return "", false, nil
}

func TestEngine_ExecuteDirectKey_SuccessPath(t *testing.T) {
	store := newFakeStore()
	chain := &fakeChain{broadcastHash: "0xabc", receipt: &chainclient.Receipt{Success: true, BlockNumber: 1}}
	engine := New(store, chain, keyedqueue.New(), time.Second)

	sig := sampleSignal()
	ctx := context.Background()

	assert.NoError(t, engine.Execute(ctx, sig, domain.ExecDirectKey))
	key := IdemKey(sig)
	row, found, err := store.FindByIdemKey(ctx, key)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.StatusSubmitted, row.Status)

	// Second call advances Submitted -> MinedSuccess.
	assert.NoError(t, engine.Execute(ctx, sig, domain.ExecDirectKey))
	row, _, _ = store.FindByIdemKey(ctx, key)
	assert.Equal(t, domain.StatusMinedSuccess, row.Status)
}

func TestEngine_ExecuteTwice_SameKeyNeverDoubleBroadcasts(t *testing.T) {
	store := newFakeStore()
	calls := 0
	chain := &fakeChain{broadcastHash: "0xabc", receiptErr: chainclient.ErrNotYet}
	wrapped := &countingChain{fakeChain: chain, calls: &calls}
	engine := New(store, wrapped, keyedqueue.New(), time.Second)

	sig := sampleSignal()
	ctx := context.Background()

	assert.NoError(t, engine.Execute(ctx, sig, domain.ExecDirectKey))
	assert.NoError(t, engine.Execute(ctx, sig, domain.ExecDirectKey))
	assert.Equal(t, 1, calls, "a Submitted intent must not be re-broadcast")
}

type countingChain struct {
	*fakeChain
	calls *int
}

func (c *countingChain) Broadcast(ctx context.Context, tx chainclient.Transfer) (string, error) {
	*c.calls++
	return c.fakeChain.Broadcast(ctx, tx)
}

func TestEngine_TerminalBroadcastFailure(t *testing.T) {
	store := newFakeStore()
	chain := &fakeChain{broadcastErr: &chainclient.TerminalError{Err: assertErr{"insufficient funds"}}}
	engine := New(store, chain, keyedqueue.New(), time.Second)

	sig := sampleSignal()
	ctx := context.Background()
	assert.NoError(t, engine.Execute(ctx, sig, domain.ExecDirectKey))

	row, _, _ := store.FindByIdemKey(ctx, IdemKey(sig))
	assert.True(t, row.Status.Terminal())
	assert.Equal(t, domain.StatusMinedFailed, row.Status)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
