package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/blockchain"
	"github.com/kelsos/safe-swap/internal/config"
	"github.com/kelsos/safe-swap/internal/cow"
	"github.com/kelsos/safe-swap/internal/logger"
	"github.com/kelsos/safe-swap/internal/models"
	"github.com/kelsos/safe-swap/internal/safe"
	"github.com/kelsos/safe-swap/internal/utils"
)

func signingScheme(scheme string) models.SigningScheme {
	if scheme == config.SchemeEIP1271 {
		return models.SigningSchemeEIP1271
	}
	return models.SigningSchemePresign
}

// quoteRequest prices selling the wrapped amount for the buy token, received by the Safe
func (s *SwapService) quoteRequest(sess *session) (*models.QuoteRequest, error) {
	appData, appDataHash, err := cow.NewAppData(s.config.AppCode)
	if err != nil {
		return nil, err
	}
	receiver := sess.creds.SafeAddress
	return &models.QuoteRequest{
		SellToken:           sess.chain.WrappedNative,
		BuyToken:            sess.buyToken,
		Receiver:            &receiver,
		AppData:             appData,
		AppDataHash:         &appDataHash,
		SellTokenBalance:    models.TokenBalanceERC20,
		BuyTokenBalance:     models.TokenBalanceERC20,
		From:                sess.creds.SafeAddress,
		PriceQuality:        models.PriceQualityVerified,
		SigningScheme:       signingScheme(s.config.Scheme),
		OnchainOrder:        false,
		Kind:                models.OrderKindSell,
		SellAmountBeforeFee: sess.amount.String(),
	}, nil
}

// placeOrder quotes, signs and posts the order. An expired quote is replaced by a fresh one
// up to QuoteRefreshes times.
func (s *SwapService) placeOrder(ctx context.Context, sess *session, result *Result) error {
	req, err := s.quoteRequest(sess)
	if err != nil {
		return s.fail(StageQuote, err)
	}

	for attempt := 0; ; attempt++ {
		s.stage(StageQuote, "Requesting quote to sell %s", utils.FormatUnits(sess.amount, utils.EtherDecimals, "W"+sess.chain.NativeSymbol))
		quote, err := sess.orderBook.GetQuote(ctx, req)
		if err != nil {
			return s.fail(StageQuote, err)
		}
		result.Quote = quote

		uid, err := s.postOrder(ctx, sess, req, quote, result)
		if err == nil {
			if req.SigningScheme != models.SigningSchemePresign {
				return nil
			}
			return s.presign(ctx, sess, uid, result)
		}
		if !errors.Is(err, cow.ErrQuoteExpired) || attempt >= s.config.QuoteRefreshes {
			return s.fail(StageOrder, err)
		}
		logger.Warn("Quote %s expired, fetching a new one (%d/%d): %v", quoteID(quote), attempt+1, s.config.QuoteRefreshes, err)
	}
}

// postOrder signs and submits the order built from quote and returns its raw uid
func (s *SwapService) postOrder(ctx context.Context, sess *session, req *models.QuoteRequest, quote *models.QuoteResponse, result *Result) ([]byte, error) {
	if quote.Expired(s.now()) {
		return nil, fmt.Errorf("%w: valid until %d", cow.ErrQuoteExpired, quote.Quote.ValidTo)
	}

	order, err := cow.OrderFromQuote(req, quote, *req.AppDataHash, uint32(s.config.SlippageBps))
	if err != nil {
		return nil, err
	}

	digest := order.Digest(sess.client.ID(), blockchain.SettlementAddress)
	expectedUID := cow.PackUID(digest, sess.creds.SafeAddress, order.ValidTo)

	var signature []byte
	switch req.SigningScheme {
	case models.SigningSchemeEIP1271:
		if signature, err = sess.wallet.SignMessage(digest.Bytes()); err != nil {
			return nil, err
		}
	default:
		signature = cow.PresignSignature(sess.creds.SafeAddress)
	}

	s.stage(StageOrder, "Posting %s order: sell %s for at least %s (%s)", req.SigningScheme,
		order.SellAmount, order.BuyAmount, hexutil.Encode(expectedUID))
	uid, err := sess.orderBook.PostOrder(ctx, order.Creation(req.AppData, sess.creds.SafeAddress, req.SigningScheme, signature, quote.ID))
	if err != nil {
		if errors.Is(err, cow.ErrTransport) {
			return nil, fmt.Errorf("%w: %w", ErrSubmit, err)
		}
		return nil, err
	}
	if err := cow.CheckUID(uid, expectedUID); err != nil {
		return nil, err
	}
	result.OrderUID = uid
	logger.Info("Order %s: %s", uid, sess.chain.OrderExplorerURL(uid))
	return expectedUID, nil
}

// presign authorizes the order on chain with setPreSignature, executed by the Safe
func (s *SwapService) presign(ctx context.Context, sess *session, uid []byte, result *Result) error {
	data, err := cow.EncodeSetPreSignature(uid, true)
	if err != nil {
		return s.fail(StagePresign, err)
	}
	batch, err := sess.wallet.CreateBatch([]safe.MetaTransaction{
		{To: blockchain.SettlementAddress, Data: data, Operation: safe.Call},
	}, true)
	if err != nil {
		return s.fail(StagePresign, err)
	}

	s.stage(StagePresign, "Presigning order %s", hexutil.Encode(uid))
	hash, err := sess.wallet.Execute(ctx, batch)
	if err != nil {
		return s.fail(StagePresign, sess.submitError(err))
	}
	result.PresignTx = hash

	if _, err := s.waitForReceipt(ctx, sess, hash); err != nil {
		return s.fail(StagePresign, err)
	}
	return nil
}

// followOrder waits until the order book has taken the order live, then reads its trades
func (s *SwapService) followOrder(ctx context.Context, sess *session, result *Result) error {
	s.stage(StageStatus, "Waiting for order %s to open", result.OrderUID)
	order, err := async.Poll(ctx, "order "+result.OrderUID, s.config.PollInterval, s.config.ConfirmTimeout,
		func(ctx context.Context) (*models.Order, bool, error) {
			order, err := sess.orderBook.GetOrder(ctx, result.OrderUID)
			var apiErr *cow.APIError
			if errors.As(err, &apiErr) && apiErr.NotFound() {
				logger.Debug("Order %s is not indexed yet", result.OrderUID)
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			logger.Debug("Order %s is %s", result.OrderUID, order.Status)
			return order, order.Status == models.OrderStatusOpen || order.Status.Final(), nil
		})
	if err != nil {
		return s.fail(StageStatus, err)
	}
	result.Order = order
	if order.Status.Final() && order.Status != models.OrderStatusFulfilled {
		return s.fail(StageStatus, fmt.Errorf("%w: order %s is %s", ErrOrderClosed, result.OrderUID, order.Status))
	}

	if result.Trades, err = sess.orderBook.GetTrades(ctx, result.OrderUID); err != nil {
		return s.fail(StageStatus, err)
	}
	s.stage(StageStatus, "Order %s is %s with %d trade(s)", result.OrderUID, order.Status, len(result.Trades))
	return nil
}
