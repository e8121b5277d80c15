package safe

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/testutil"
	"github.com/kelsos/safe-swap/internal/token"
)

func newTestWallet(chain *testutil.MockChain) *Wallet {
	return NewWallet(testutil.SafeAddress, testutil.SignerKey, testutil.ChainID, chain, async.RetryPolicy{})
}

func TestSafeTxHashMatchesReference(t *testing.T) {
	data := []byte{0xd0, 0xe3, 0x0d, 0xb0}
	tx := SafeTx{
		To:        testutil.WETH,
		Value:     testutil.WrapAmount,
		Data:      data,
		Operation: Call,
		Nonce:     big.NewInt(7),
	}

	want := testutil.SafeTxHash(testutil.ChainID, testutil.SafeAddress, testutil.WETH, testutil.WrapAmount, data, 0, 7)
	assert.Equal(t, want, tx.Hash(testutil.ChainID, testutil.SafeAddress))

	other := tx.Hash(big.NewInt(1), testutil.SafeAddress)
	assert.NotEqual(t, want, other, "hash is bound to the chain")
}

func TestMessageHashMatchesReference(t *testing.T) {
	message := crypto.Keccak256([]byte("order digest"))
	assert.Equal(t,
		testutil.SafeMessageHash(testutil.ChainID, testutil.SafeAddress, message),
		MessageHash(testutil.ChainID, testutil.SafeAddress, message))
}

func TestSignHashLayout(t *testing.T) {
	hash := crypto.Keccak256Hash([]byte("payload"))

	sig, err := SignHash(hash, testutil.SignerKey)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	raw := append([]byte{}, sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	require.NoError(t, err)
	assert.Equal(t, testutil.SignerAddress, crypto.PubkeyToAddress(*pub))
}

func TestWalletIsDeployed(t *testing.T) {
	chain := testutil.NewMockChain()
	w := newTestWallet(chain)

	deployed, err := w.IsDeployed(context.Background())
	require.NoError(t, err)
	assert.True(t, deployed)

	chain.SetDeployed(false)
	deployed, err = w.IsDeployed(context.Background())
	require.NoError(t, err)
	assert.False(t, deployed)
}

func TestWalletExecuteBatch(t *testing.T) {
	chain := testutil.NewMockChain()
	w := newTestWallet(chain)
	ctx := context.Background()

	batch, err := w.CreateBatch([]MetaTransaction{
		{To: testutil.WETH, Value: testutil.WrapAmount, Data: []byte{0xd0, 0xe3, 0x0d, 0xb0}},
		{To: testutil.WETH, Data: mustApprove(t, testutil.VaultRelayer, testutil.WrapAmount)},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, testutil.MultiSendCallOnly, batch.To)

	hash, err := w.Execute(ctx, batch)
	require.NoError(t, err)

	executions := chain.Executions()
	require.Len(t, executions, 1)
	assert.Equal(t, hash, executions[0].TxHash)
	assert.True(t, executions[0].Success)
	assert.Len(t, executions[0].Calls, 2)
	assert.Equal(t, uint64(1), chain.SafeNonce())
	assert.Equal(t, testutil.WrapAmount, chain.TokenBalance(testutil.WETH, testutil.SafeAddress))
	assert.Equal(t, testutil.WrapAmount, chain.Allowance(testutil.WETH, testutil.SafeAddress, testutil.VaultRelayer))

	nonce, err := w.Nonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nonce.Int64())
}

func TestWalletExecutePreconditions(t *testing.T) {
	batch, err := NewBatch([]MetaTransaction{{To: testutil.WETH, Data: []byte{0xd0, 0xe3, 0x0d, 0xb0}}}, true, testContracts)
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(*testutil.MockChain)
		want  error
	}{
		{"threshold", func(c *testutil.MockChain) { c.SetThreshold(2) }, ErrThresholdTooHigh},
		{"owner", func(c *testutil.MockChain) { c.SetOwner(testutil.SignerAddress, false) }, ErrSignerNotOwner},
		{"threshold before owner", func(c *testutil.MockChain) {
			c.SetThreshold(3)
			c.SetOwner(testutil.SignerAddress, false)
		}, ErrThresholdTooHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := testutil.NewMockChain()
			tt.setup(chain)

			_, err := newTestWallet(chain).Execute(context.Background(), batch)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, chain.SentTransactions())
			assert.Zero(t, chain.CallCount("eth_getTransactionCount"))
		})
	}

	_, err = newTestWallet(testutil.NewMockChain()).Execute(context.Background(), &Batch{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestWalletSignMessage(t *testing.T) {
	chain := testutil.NewMockChain()
	digest := crypto.Keccak256([]byte("gpv2 order"))

	sig, err := newTestWallet(chain).SignMessage(digest)
	require.NoError(t, err)
	assert.True(t, chain.IsValidSignature(digest, sig))

	stranger := NewWallet(testutil.SafeAddress, testutil.StrangerKey, testutil.ChainID, chain, async.RetryPolicy{})
	sig, err = stranger.SignMessage(digest)
	require.NoError(t, err)
	assert.False(t, chain.IsValidSignature(digest, sig))
}

func mustApprove(t *testing.T, spender common.Address, amount *big.Int) []byte {
	t.Helper()
	data, err := token.EncodeApprove(spender, amount)
	require.NoError(t, err)
	return data
}
