package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/blockchain"
	"github.com/kelsos/safe-swap/internal/logger"
	"github.com/kelsos/safe-swap/internal/safe"
	"github.com/kelsos/safe-swap/internal/token"
	"github.com/kelsos/safe-swap/internal/utils"
)

// wrapAndApprove returns the two calls that fund an order: wrap first, then approve the
// vault relayer for exactly the wrapped amount
func wrapAndApprove(wrapped common.Address, amount *big.Int) ([]safe.MetaTransaction, error) {
	approveData, err := token.EncodeApprove(blockchain.VaultRelayerAddress, amount)
	if err != nil {
		return nil, err
	}
	return []safe.MetaTransaction{
		{To: wrapped, Value: new(big.Int).Set(amount), Data: token.EncodeWrap(), Operation: safe.Call},
		{To: wrapped, Value: new(big.Int), Data: approveData, Operation: safe.Call},
	}, nil
}

func (s *SwapService) deposit(ctx context.Context, sess *session, result *Result) error {
	var err error
	s.stage(StageBalances, "Reading Safe balances")
	if result.BalancesBefore, err = s.balances(ctx, sess); err != nil {
		return s.fail(StageBalances, err)
	}
	if result.BalancesBefore.Native.Cmp(sess.amount) < 0 {
		return s.fail(StageBalances, fmt.Errorf("%w: Safe holds %s, wrapping %s", ErrInsufficientFunds,
			utils.FormatUnits(result.BalancesBefore.Native, utils.EtherDecimals, sess.chain.NativeSymbol),
			utils.FormatUnits(sess.amount, utils.EtherDecimals, sess.chain.NativeSymbol)))
	}

	requests, err := wrapAndApprove(sess.chain.WrappedNative, sess.amount)
	if err != nil {
		return s.fail(StageBatch, err)
	}
	batch, err := sess.wallet.CreateBatch(requests, true)
	if err != nil {
		return s.fail(StageBatch, err)
	}
	result.BatchCalls = len(batch.Transactions)

	s.stage(StageBatch, "Wrapping %s and approving the vault relayer",
		utils.FormatUnits(sess.amount, utils.EtherDecimals, sess.chain.NativeSymbol))
	hash, err := sess.wallet.Execute(ctx, batch)
	if err != nil {
		return s.fail(StageBatch, sess.submitError(err))
	}
	result.BatchTx = hash

	s.stage(StageConfirm, "Waiting for %s", sess.chain.TxExplorerURL(hash))
	receipt, err := s.waitForReceipt(ctx, sess, hash)
	result.BatchReceipt = receipt
	if err != nil {
		return s.fail(StageConfirm, err)
	}

	allowance, err := async.Retry(ctx, s.readRetry(), "allowance", func(ctx context.Context) (*big.Int, error) {
		return token.Allowance(ctx, sess.client, sess.chain.WrappedNative, sess.creds.SafeAddress, blockchain.VaultRelayerAddress)
	})
	if err != nil {
		logger.Warn("Could not read back the vault relayer allowance: %v", err)
	} else {
		logger.Info("Vault relayer allowance is now %s", utils.FormatUnits(allowance, utils.EtherDecimals, "W"+sess.chain.NativeSymbol))
	}
	return nil
}

func (s *SwapService) waitForReceipt(ctx context.Context, sess *session, hash common.Hash) (*types.Receipt, error) {
	return blockchain.WaitForReceipt(ctx, sess.client, hash, s.config.PollInterval, s.config.ConfirmTimeout)
}

// balances reads the native, wrapped native and buy token balances of the Safe
func (s *SwapService) balances(ctx context.Context, sess *session) (*Balances, error) {
	retry := s.readRetry()
	owner := sess.creds.SafeAddress

	native, err := async.Retry(ctx, retry, "native balance", func(ctx context.Context) (*big.Int, error) {
		return sess.client.BalanceAt(ctx, owner, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}

	wrapped, err := async.Retry(ctx, retry, "wrapped balance", func(ctx context.Context) (*big.Int, error) {
		return token.BalanceOf(ctx, sess.client, sess.chain.WrappedNative, owner)
	})
	if err != nil {
		return nil, err
	}

	bought, err := async.Retry(ctx, retry, "buy token balance", func(ctx context.Context) (*big.Int, error) {
		return token.BalanceOf(ctx, sess.client, sess.buyToken, owner)
	})
	if err != nil {
		return nil, err
	}

	s.describeBuyToken(ctx, sess)
	return &Balances{Native: native, WrappedNative: wrapped, BuyToken: bought}, nil
}

// describeBuyToken reads the buy token's symbol and decimals once for reports
func (s *SwapService) describeBuyToken(ctx context.Context, sess *session) {
	if sess.buySymbol != "" {
		return
	}
	sess.buySymbol, sess.buyDecimals = sess.buyToken.Hex()[:10], utils.EtherDecimals
	if sess.buyToken == sess.chain.DefaultBuyToken {
		sess.buySymbol = sess.chain.DefaultBuyTokenSymbol
	}

	if decimals, err := token.Decimals(ctx, sess.client, sess.buyToken); err == nil {
		sess.buyDecimals = int32(decimals)
	} else {
		logger.Debug("Could not read decimals of %s, assuming %d: %v", sess.buyToken.Hex(), utils.EtherDecimals, err)
	}
	if symbol, err := token.Symbol(ctx, sess.client, sess.buyToken); err == nil && symbol != "" {
		sess.buySymbol = symbol
	}
}

// report logs the balance changes of the run
func (s *SwapService) report(sess *session, result *Result) {
	before, after := result.BalancesBefore, result.BalancesAfter
	if before == nil || after == nil {
		return
	}

	wrappedSymbol := "W" + sess.chain.NativeSymbol
	lines := []struct {
		symbol        string
		decimals      int32
		before, after *big.Int
	}{
		{sess.chain.NativeSymbol, utils.EtherDecimals, before.Native, after.Native},
		{wrappedSymbol, utils.EtherDecimals, before.WrappedNative, after.WrappedNative},
		{sess.buySymbol, sess.buyDecimals, before.BuyToken, after.BuyToken},
	}
	for _, l := range lines {
		delta := new(big.Int).Sub(l.after, l.before)
		logger.Info("%-6s %s -> %s (%s)", l.symbol,
			utils.FromBaseUnits(l.before, l.decimals).String(),
			utils.FromBaseUnits(l.after, l.decimals).String(),
			signed(utils.FromBaseUnits(delta, l.decimals).String()))
	}
}

func signed(v string) string {
	if len(v) > 0 && v[0] != '-' {
		return "+" + v
	}
	return v
}

// submitError marks writes that failed in transit
func (sess *session) submitError(err error) error {
	if errors.Is(err, safe.ErrSignerNotOwner) {
		logger.Warn("Signer %s is not an owner of Safe %s", sess.wallet.Signer().Hex(), sess.wallet.Address().Hex())
	}
	if errors.Is(err, blockchain.ErrSendFailed) {
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	return err
}
