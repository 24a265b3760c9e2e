package chainclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI covers the two calls EthChainClient needs: balanceOf and
// transfer. Kept inline rather than loaded from a file, unlike the
// contract clients this package replaces, because this is the only
// contract shape the Outbound Chain Client ever touches.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// NativeTokenID is the sentinel TokenID meaning "the chain's native
// asset", routed to a plain value transfer instead of an ERC20 call.
const NativeTokenID = "native"

// EthChainClient implements ChainClient over go-ethereum's ethclient,
// signing transactions locally with a single ECDSA key — the
// direct-key execution mode. Multisig-propose mode only ever calls
// FindTransaction/AwaitReceipt on this client; signing and submission
// happen out of band in the multisig's own tooling.
type EthChainClient struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	erc20      abi.ABI

	pollInterval time.Duration
}

// NewEthChainClient dials rpcURL and derives the signing address from
// privateKey.
func NewEthChainClient(ctx context.Context, rpcURL string, privateKey *ecdsa.PrivateKey) (*EthChainClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainclient: chain id: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chainclient: parse erc20 abi: %w", err)
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("chainclient: invalid public key")
	}
	return &EthChainClient{
		client:       client,
		privateKey:   privateKey,
		from:         crypto.PubkeyToAddress(*pub),
		chainID:      chainID,
		erc20:        parsed,
		pollInterval: 3 * time.Second,
	}, nil
}

func (c *EthChainClient) GetBalance(ctx context.Context, addr, tokenID string) (*big.Int, error) {
	account := common.HexToAddress(addr)
	if tokenID == "" || tokenID == NativeTokenID {
		bal, err := c.client.BalanceAt(ctx, account, nil)
		if err != nil {
			return nil, fmt.Errorf("chainclient: native balance: %w", err)
		}
		return bal, nil
	}

	data, err := c.erc20.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("chainclient: pack balanceOf: %w", err)
	}
	tokenAddr := common.HexToAddress(tokenID)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: call balanceOf: %w", err)
	}
	results, err := c.erc20.Unpack("balanceOf", out)
	if err != nil || len(results) != 1 {
		return nil, fmt.Errorf("chainclient: unpack balanceOf: %w", err)
	}
	bal, ok := results[0].(*big.Int)
	if !ok {
		return nil, errors.New("chainclient: balanceOf returned non-integer")
	}
	return bal, nil
}

// Broadcast signs and submits tx.AmountUnits from the client's own
// signing address to tx.To. tx.From is expected to equal that address
// for ExecDirectKey rules — a mismatch is a terminal configuration
// error, not a transient one.
func (c *EthChainClient) Broadcast(ctx context.Context, tx Transfer) (string, error) {
	if !strings.EqualFold(tx.From, c.from.Hex()) {
		return "", &TerminalError{Err: fmt.Errorf("from address %s does not match signer %s", tx.From, c.from.Hex())}
	}

	var nonce uint64
	if tx.Nonce != nil {
		nonce = *tx.Nonce
	} else {
		pending, err := c.client.PendingNonceAt(ctx, c.from)
		if err != nil {
			return "", &TransientError{Err: fmt.Errorf("nonce: %w", err)}
		}
		nonce = pending
	}
	gasTip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("gas tip: %w", err)}
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("head header: %w", err)}
	}
	gasFeeCap := new(big.Int).Add(gasTip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	var to common.Address
	var value *big.Int
	var data []byte
	if tx.TokenID == "" || tx.TokenID == NativeTokenID {
		to = common.HexToAddress(tx.To)
		value = tx.AmountUnits
	} else {
		to = common.HexToAddress(tx.TokenID)
		value = big.NewInt(0)
		data, err = c.erc20.Pack("transfer", common.HexToAddress(tx.To), tx.AmountUnits)
		if err != nil {
			return "", &TerminalError{Err: fmt.Errorf("pack transfer: %w", err)}
		}
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Value: value, Data: data})
	if err != nil {
		return "", &TerminalError{Err: fmt.Errorf("estimate gas: %w", err)}
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTip,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", &TerminalError{Err: fmt.Errorf("sign: %w", err)}
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", &TransientError{Err: fmt.Errorf("send: %w", err)}
	}
	return signed.Hash().Hex(), nil
}

// AwaitReceipt polls for a transaction receipt on a fixed interval,
// bounded by timeout.
func (c *EthChainClient) AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &Receipt{Success: receipt.Status == types.ReceiptStatusSuccessful, BlockNumber: receipt.BlockNumber.Uint64()}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("chainclient: receipt poll: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, ErrNotYet
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FindTransaction scans the sender's recent transactions for one to
// `to`, used by the crash-recovery and multisig-proposed paths to tell
// whether a transfer already landed on chain before this process
// re-derives the intent to act on. It reads only the latest block and
// the 200 blocks before it, newest first, and returns the first match;
// a nonce of 0 matches a transaction with any nonce.
func (c *EthChainClient) FindTransaction(ctx context.Context, from, to string, nonce uint64) (string, bool, error) {
	latest, err := c.client.BlockNumber(ctx)
	if err != nil {
		return "", false, fmt.Errorf("chainclient: block number: %w", err)
	}
	const lookback = 200
	start := int64(latest) - lookback
	if start < 0 {
		start = 0
	}
	fromAddr := common.HexToAddress(from)
	toAddr := common.HexToAddress(to)

	for n := int64(latest); n >= start; n-- {
		block, err := c.client.BlockByNumber(ctx, big.NewInt(n))
		if err != nil {
			continue
		}
		for _, btx := range block.Transactions() {
			signer := types.LatestSignerForChainID(c.chainID)
			sender, err := types.Sender(signer, btx)
			if err != nil || sender != fromAddr {
				continue
			}
			if btx.To() == nil || *btx.To() != toAddr {
				continue
			}
			if nonce != 0 && btx.Nonce() != nonce {
				continue
			}
			return btx.Hash().Hex(), true, nil
		}
	}
	return "", false, nil
}
