package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/logger"
)

var (
	// ErrReceiptTimeout is returned when no receipt shows up before the timeout
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")
	// ErrTxReverted is returned when the transaction was mined but failed
	ErrTxReverted = errors.New("transaction reverted")
)

// ReceiptReader is the subset of Reader needed to wait for a transaction
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt blocks until hash is included in a block, the timeout passes or ctx ends.
// A reverted transaction returns its receipt together with ErrTxReverted.
func WaitForReceipt(ctx context.Context, reader ReceiptReader, hash common.Hash, interval, timeout time.Duration) (*types.Receipt, error) {
	logger.Info("Waiting for transaction %s", hash.Hex())

	var lastErr error
	receipt, err := async.Poll(ctx, "receipt "+hash.Hex(), interval, timeout, func(ctx context.Context) (*types.Receipt, bool, error) {
		r, err := reader.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return r, true, nil
		case errors.Is(err, ethereum.NotFound):
			return nil, false, nil
		case ctx.Err() != nil:
			// the poll loop reports the deadline
			return nil, false, nil
		default:
			logger.Warn("Receipt lookup for %s failed, will retry: %v", hash.Hex(), err)
			lastErr = err
			return nil, false, nil
		}
	})
	if err != nil {
		if errors.Is(err, async.ErrDeadline) {
			if lastErr != nil {
				return nil, fmt.Errorf("%w after %v (tx %s, last error: %v)", ErrReceiptTimeout, timeout, hash.Hex(), lastErr)
			}
			return nil, fmt.Errorf("%w after %v (tx %s)", ErrReceiptTimeout, timeout, hash.Hex())
		}
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %s", ErrTxReverted, hash.Hex(), receipt.BlockNumber)
	}

	logger.Info("Transaction %s mined in block %s (gas used %d)", hash.Hex(), receipt.BlockNumber, receipt.GasUsed)
	return receipt, nil
}
