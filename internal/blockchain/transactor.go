package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/kelsos/safe-swap/internal/logger"
)

// GasBufferPercent is added on top of the node's gas estimate
const GasBufferPercent = 20

// ErrSendFailed wraps node errors from eth_sendRawTransaction. The transaction may or may not have been accepted.
var ErrSendFailed = errors.New("failed to send transaction")

// ReadWriter is a node connection that can both query and submit
type ReadWriter interface {
	Reader
	Writer
}

// Transactor signs and submits transactions from a single externally owned account
type Transactor struct {
	backend ReadWriter
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// NewTransactor creates a transactor for key on chainID
func NewTransactor(backend ReadWriter, key *ecdsa.PrivateKey, chainID *big.Int) *Transactor {
	return &Transactor{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}
}

// From returns the sending account
func (t *Transactor) From() common.Address {
	return t.from
}

// Send builds, signs and submits a transaction. It does not wait for inclusion.
// EIP-1559 pricing is used when the latest header carries a base fee.
func (t *Transactor) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.from, To: &to, Value: value, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * GasBufferPercent / 100

	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest header: %w", err)
	}

	var txData types.TxData
	if head.BaseFee != nil {
		tip, err := t.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		txData = &types.DynamicFeeTx{
			ChainID:   t.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		}
	} else {
		gasPrice, err := t.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		}
	}

	signed, err := types.SignNewTx(t.key, types.LatestSignerForChainID(t.chainID), txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	logger.Info("Sent transaction %s (nonce %d, gas %d)", signed.Hash().Hex(), nonce, gas)
	return signed.Hash(), nil
}

// IsTransient reports whether a node error is worth retrying for an idempotent read.
// JSON-RPC errors returned by the node (reverts, bad params) are final.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr rpc.Error
	return !errors.As(err, &rpcErr)
}
