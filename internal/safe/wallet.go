package safe

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/blockchain"
	"github.com/kelsos/safe-swap/internal/logger"
)

var (
	// ErrNotDeployed is returned when there is no contract at the Safe address
	ErrNotDeployed = errors.New("safe is not deployed")
	// ErrSignerNotOwner is returned when the signer is not an owner of the Safe
	ErrSignerNotOwner = errors.New("signer is not a safe owner")
	// ErrThresholdTooHigh is returned when the Safe needs more signatures than the single signer can give
	ErrThresholdTooHigh = errors.New("safe threshold requires more than one signature")
)

// Wallet is one Safe controlled by a single owner key
type Wallet struct {
	address    common.Address
	key        *ecdsa.PrivateKey
	signer     common.Address
	chainID    *big.Int
	backend    blockchain.ReadWriter
	transactor *blockchain.Transactor
	contracts  MultiSendContracts
	retry      async.RetryPolicy
}

// NewWallet binds the Safe at address to backend. Reads are retried according to retry.
func NewWallet(address common.Address, key *ecdsa.PrivateKey, chainID *big.Int, backend blockchain.ReadWriter, retry async.RetryPolicy) *Wallet {
	return &Wallet{
		address:    address,
		key:        key,
		signer:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
		backend:    backend,
		transactor: blockchain.NewTransactor(backend, key, chainID),
		contracts: MultiSendContracts{
			MultiSend:         blockchain.MultiSendAddress,
			MultiSendCallOnly: blockchain.MultiSendCallOnlyAddress,
		},
		retry: retry,
	}
}

// Address returns the Safe address
func (w *Wallet) Address() common.Address {
	return w.address
}

// Signer returns the owner account that signs and pays for transactions
func (w *Wallet) Signer() common.Address {
	return w.signer
}

// IsDeployed reports whether the Safe has code on chain
func (w *Wallet) IsDeployed(ctx context.Context) (bool, error) {
	code, err := async.Retry(ctx, w.retry, "safe code lookup", func(ctx context.Context) ([]byte, error) {
		return w.backend.CodeAt(ctx, w.address, nil)
	})
	if err != nil {
		return false, fmt.Errorf("failed to read safe code: %w", err)
	}
	return len(code) > 0, nil
}

// CreateBatch builds one Safe transaction out of requests, keeping their order
func (w *Wallet) CreateBatch(requests []MetaTransaction, callsOnly bool) (*Batch, error) {
	return NewBatch(requests, callsOnly, w.contracts)
}

// Nonce returns the Safe's current transaction nonce
func (w *Wallet) Nonce(ctx context.Context) (*big.Int, error) {
	var nonce *big.Int
	if err := w.call(ctx, &nonce, "nonce"); err != nil {
		return nil, err
	}
	return nonce, nil
}

// Threshold returns the number of owner signatures the Safe needs
func (w *Wallet) Threshold(ctx context.Context) (*big.Int, error) {
	var threshold *big.Int
	if err := w.call(ctx, &threshold, "getThreshold"); err != nil {
		return nil, err
	}
	return threshold, nil
}

// IsOwner reports whether account is an owner of the Safe
func (w *Wallet) IsOwner(ctx context.Context, account common.Address) (bool, error) {
	var owner bool
	if err := w.call(ctx, &owner, "isOwner", account); err != nil {
		return false, err
	}
	return owner, nil
}

// Execute submits batch as a single execTransaction signed by the owner key and returns its hash.
// All calls in the batch apply together or the transaction reverts.
func (w *Wallet) Execute(ctx context.Context, batch *Batch) (common.Hash, error) {
	if batch == nil || len(batch.Transactions) == 0 {
		return common.Hash{}, ErrEmptyBatch
	}

	threshold, err := w.Threshold(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if threshold.Cmp(big.NewInt(1)) > 0 {
		return common.Hash{}, fmt.Errorf("%w: threshold is %s", ErrThresholdTooHigh, threshold)
	}

	owner, err := w.IsOwner(ctx, w.signer)
	if err != nil {
		return common.Hash{}, err
	}
	if !owner {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrSignerNotOwner, w.signer.Hex())
	}

	nonce, err := w.Nonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	safeTx := SafeTx{
		To:        batch.To,
		Value:     batch.Value,
		Data:      batch.Data,
		Operation: batch.Operation,
		Nonce:     nonce,
	}
	safeTxHash := safeTx.Hash(w.chainID, w.address)
	logger.Debug("Safe tx %s: %d call(s) via %s (%s), nonce %s", safeTxHash.Hex(), len(batch.Transactions), batch.To.Hex(), batch.Operation, nonce)

	signature, err := SignHash(safeTxHash, w.key)
	if err != nil {
		return common.Hash{}, err
	}

	value := batch.Value
	if value == nil {
		value = new(big.Int)
	}
	calldata, err := safeABI.Pack("execTransaction",
		batch.To,
		value,
		batch.Data,
		uint8(batch.Operation),
		new(big.Int),
		new(big.Int),
		new(big.Int),
		common.Address{},
		common.Address{},
		signature,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack execTransaction: %w", err)
	}

	hash, err := w.transactor.Send(ctx, w.address, nil, calldata)
	if err != nil {
		return common.Hash{}, err
	}
	logger.Info("Submitted Safe transaction %s with %d call(s)", hash.Hex(), len(batch.Transactions))
	return hash, nil
}

// SignMessage returns an owner signature for message that the Safe validates through EIP-1271.
// It only produces a complete signature for threshold-one Safes.
func (w *Wallet) SignMessage(message []byte) ([]byte, error) {
	return SignHash(MessageHash(w.chainID, w.address, message), w.key)
}

func (w *Wallet) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	input, err := safeABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := async.Retry(ctx, w.retry, "safe "+method, func(ctx context.Context) ([]byte, error) {
		return w.backend.CallContract(ctx, ethereum.CallMsg{To: &w.address, Data: input}, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to call safe %s: %w", method, err)
	}

	if err := safeABI.UnpackIntoInterface(out, method, output); err != nil {
		return fmt.Errorf("failed to unpack safe %s: %w", method, err)
	}
	return nil
}
