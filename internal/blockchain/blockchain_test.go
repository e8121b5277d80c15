package blockchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/safe-swap/internal/testutil"
)

func sepolia(t *testing.T) Chain {
	t.Helper()
	chain, err := LookupChain("sepolia")
	require.NoError(t, err)
	return chain
}

func dialMock(chain *testutil.MockChain) DialFunc {
	return func(ctx context.Context, rawURL string) (Backend, error) {
		return chain, nil
	}
}

func TestConnect(t *testing.T) {
	mock := testutil.NewMockChain()

	client, err := Connect(context.Background(), dialMock(mock), "http://node", sepolia(t))
	require.NoError(t, err)
	assert.Equal(t, testutil.ChainID, client.ID())

	client.Close()
	assert.Equal(t, 1, mock.CallCount("close"))
}

func TestConnectChainMismatch(t *testing.T) {
	mock := testutil.NewMockChain()
	mock.SetChainID(big.NewInt(100))

	_, err := Connect(context.Background(), dialMock(mock), "http://node", sepolia(t))
	require.ErrorIs(t, err, ErrChainMismatch)
	assert.Equal(t, 1, mock.CallCount("close"), "mismatched connection is closed")
}

func TestConnectDialError(t *testing.T) {
	dialErr := errors.New("connection refused")
	_, err := Connect(context.Background(), func(ctx context.Context, rawURL string) (Backend, error) {
		return nil, dialErr
	}, "http://node", sepolia(t))
	assert.ErrorIs(t, err, dialErr)
}

func TestLookupChain(t *testing.T) {
	chain := sepolia(t)
	assert.Equal(t, uint64(11155111), chain.ID)
	assert.Equal(t, testutil.WETH, chain.WrappedNative)
	assert.Equal(t, testutil.BuyToken, chain.DefaultBuyToken)

	_, err := LookupChain("nowhere")
	assert.Error(t, err)
	assert.Contains(t, ChainNames(), "sepolia")
}

func TestTransactorUsesDynamicFeesAfterLondon(t *testing.T) {
	mock := testutil.NewMockChain()
	tr := NewTransactor(mock, testutil.SignerKey, testutil.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	hash, err := tr.Send(context.Background(), to, big.NewInt(1), nil)
	require.NoError(t, err)

	sent := mock.SentTransactions()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(150000+150000*GasBufferPercent/100), tx.Gas())
	assert.Equal(t, testutil.OneGwei, tx.GasTipCap())
	assert.Equal(t, new(big.Int).Mul(testutil.OneGwei, big.NewInt(3)), tx.GasFeeCap())
	assert.Equal(t, testutil.ChainID, tx.ChainId())
}

func TestTransactorFallsBackToLegacy(t *testing.T) {
	mock := testutil.NewMockChain()
	mock.BaseFee = nil
	tr := NewTransactor(mock, testutil.SignerKey, testutil.ChainID)

	_, err := tr.Send(context.Background(), testutil.SafeAddress, nil, nil)
	require.NoError(t, err)

	tx := mock.SentTransactions()[0]
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, new(big.Int).Mul(testutil.OneGwei, big.NewInt(20)), tx.GasPrice())
	assert.Zero(t, mock.CallCount("eth_maxPriorityFeePerGas"))
}

func TestTransactorSendFailure(t *testing.T) {
	mock := testutil.NewMockChain()
	mock.SendErr = errors.New("already known")
	tr := NewTransactor(mock, testutil.SignerKey, testutil.ChainID)

	_, err := tr.Send(context.Background(), testutil.SafeAddress, nil, nil)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, mock.SendErr)
	assert.Equal(t, testutil.SignerAddress, tr.From())
}

func TestWaitForReceiptAfterDelay(t *testing.T) {
	mock := testutil.NewMockChain()
	mock.ReceiptDelay = 2
	mock.FailReceiptLookups = 1
	tr := NewTransactor(mock, testutil.SignerKey, testutil.ChainID)

	hash, err := tr.Send(context.Background(), testutil.SafeAddress, nil, nil)
	require.NoError(t, err)

	receipt, err := WaitForReceipt(context.Background(), mock, hash, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
	assert.Equal(t, 4, mock.CallCount("eth_getTransactionReceipt"))
}

func TestWaitForReceiptTimeout(t *testing.T) {
	mock := testutil.NewMockChain()
	mock.FailReceiptLookups = 1000

	_, err := WaitForReceipt(context.Background(), mock, common.HexToHash("0x01"), time.Millisecond, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrReceiptTimeout)
	assert.Contains(t, err.Error(), "connection reset by peer")
}

type stubReceipts struct {
	receipt *types.Receipt
}

func (s stubReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if s.receipt == nil {
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func TestWaitForReceiptReverted(t *testing.T) {
	reverted := &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)}

	receipt, err := WaitForReceipt(context.Background(), stubReceipts{reverted}, common.HexToHash("0x02"), time.Millisecond, time.Second)
	require.ErrorIs(t, err, ErrTxReverted)
	assert.Same(t, reverted, receipt)
}

func TestWaitForReceiptCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForReceipt(ctx, stubReceipts{}, common.HexToHash("0x03"), time.Millisecond, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrReceiptTimeout)
}

type rpcError struct{}

func (rpcError) Error() string  { return "execution reverted" }
func (rpcError) ErrorCode() int { return 3 }

var _ rpc.Error = rpcError{}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(rpcError{}))
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
}
