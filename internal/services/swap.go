package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/blockchain"
	"github.com/kelsos/safe-swap/internal/config"
	"github.com/kelsos/safe-swap/internal/cow"
	"github.com/kelsos/safe-swap/internal/logger"
	"github.com/kelsos/safe-swap/internal/models"
	"github.com/kelsos/safe-swap/internal/safe"
	"github.com/kelsos/safe-swap/internal/storage"
	"github.com/kelsos/safe-swap/internal/utils"
)

// ErrSubmit marks a write (transaction or order) whose submission failed in transit.
// It may or may not have reached the node or order book, so it is never retried.
var ErrSubmit = errors.New("submission failed")

// ErrInsufficientFunds is returned when the Safe cannot cover the wrap amount
var ErrInsufficientFunds = errors.New("insufficient native balance")

// ErrOrderClosed is returned when an order was cancelled or expired before it could trade
var ErrOrderClosed = errors.New("order closed without trading")

// Stage is a step of the workflow
type Stage string

const (
	StageConfig     Stage = "config"
	StageConnect    Stage = "connect"
	StageDeployment Stage = "deployment"
	StageBalances   Stage = "balances"
	StageBatch      Stage = "batch"
	StageConfirm    Stage = "confirm"
	StageQuote      Stage = "quote"
	StageOrder      Stage = "order"
	StagePresign    Stage = "presign"
	StageStatus     Stage = "status"
	StageReport     Stage = "report"
	StageComplete   Stage = "complete"
)

// StepError records which stage of the workflow failed
type StepError struct {
	Stage Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Observer is told about workflow progress
type Observer interface {
	OnStage(stage Stage, message string)
	OnError(stage Stage, err error)
}

// Balances is a snapshot of the Safe's holdings
type Balances struct {
	Native        *big.Int
	WrappedNative *big.Int
	BuyToken      *big.Int
}

// Result is everything a run produced. Fields stay zero for steps that did not run.
type Result struct {
	Chain blockchain.Chain
	Safe  common.Address

	BatchTx      common.Hash
	BatchReceipt *types.Receipt
	BatchCalls   int

	Quote *models.QuoteResponse

	OrderUID  string
	Scheme    string
	PresignTx common.Hash
	Order     *models.Order
	Trades    []models.Trade

	BalancesBefore *Balances
	BalancesAfter  *Balances
}

// Option configures a SwapService
type Option func(*SwapService)

// WithDialer replaces the node dialer
func WithDialer(dial blockchain.DialFunc) Option {
	return func(s *SwapService) { s.dial = dial }
}

// WithHTTPClient sets the HTTP client used for the order book
func WithHTTPClient(c *http.Client) Option {
	return func(s *SwapService) { s.httpClient = c }
}

// WithObserver reports stage progress to o
func WithObserver(o Observer) Option {
	return func(s *SwapService) { s.observer = o }
}

// WithJournal records runs so that Status can find the last order
func WithJournal(j *storage.Journal) Option {
	return func(s *SwapService) { s.journal = j }
}

// WithClock replaces time.Now for quote expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *SwapService) { s.now = now }
}

// SwapService runs the fund, quote, order and follow-up workflow for one Safe
type SwapService struct {
	config     *config.Config
	dial       blockchain.DialFunc
	httpClient *http.Client
	observer   Observer
	journal    *storage.Journal
	now        func() time.Time
}

// NewSwapService creates the service. Nothing is validated or dialed until a workflow runs.
func NewSwapService(cfg *config.Config, opts ...Option) *SwapService {
	s := &SwapService{
		config: cfg,
		dial:   blockchain.DialEthclient,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// session holds everything a run needs once config is validated
type session struct {
	creds     *config.Credentials
	chain     blockchain.Chain
	amount    *big.Int
	buyToken  common.Address
	orderBook *cow.Client

	buySymbol   string
	buyDecimals int32

	client *blockchain.Client
	wallet *safe.Wallet
}

func (s *session) close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *SwapService) stage(stage Stage, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	logger.Info("[%s] %s", stage, message)
	if s.observer != nil {
		s.observer.OnStage(stage, message)
	}
}

func (s *SwapService) fail(stage Stage, err error) error {
	stepErr := &StepError{Stage: stage, Err: err}
	if s.observer != nil {
		s.observer.OnError(stage, err)
	}
	return stepErr
}

func (s *SwapService) readRetry() async.RetryPolicy {
	return async.RetryPolicy{
		MaxRetries: s.config.MaxRetries,
		Delay:      s.config.RetryDelay,
		Retryable:  blockchain.IsTransient,
	}
}

// prepare validates config and resolves everything that needs no I/O
func (s *SwapService) prepare() (*session, error) {
	if err := s.config.Validate(); err != nil {
		return nil, s.fail(StageConfig, err)
	}

	creds, err := s.config.Credentials()
	if err != nil {
		return nil, s.fail(StageConfig, err)
	}

	chain, err := blockchain.LookupChain(s.config.Chain)
	if err != nil {
		return nil, s.fail(StageConfig, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err))
	}

	amount, err := utils.ToBaseUnits(s.config.Amount, utils.EtherDecimals)
	if err != nil {
		return nil, s.fail(StageConfig, fmt.Errorf("%w: amount: %v", config.ErrInvalidConfig, err))
	}

	buyToken := chain.DefaultBuyToken
	if s.config.BuyToken != "" {
		buyToken = common.HexToAddress(s.config.BuyToken)
	}
	if buyToken == chain.WrappedNative {
		return nil, s.fail(StageConfig, fmt.Errorf("%w: buy token is the wrapped native token", config.ErrInvalidConfig))
	}

	return &session{
		creds:     creds,
		chain:     chain,
		amount:    amount,
		buyToken:  buyToken,
		orderBook: s.orderBookFor(chain),
	}, nil
}

// prepareReadOnly is prepare for commands that only read from the order book.
// Credentials are neither required nor parsed.
func (s *SwapService) prepareReadOnly() (*session, error) {
	if err := s.config.ValidateSettings(); err != nil {
		return nil, s.fail(StageConfig, err)
	}

	chain, err := blockchain.LookupChain(s.config.Chain)
	if err != nil {
		return nil, s.fail(StageConfig, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err))
	}

	return &session{chain: chain, orderBook: s.orderBookFor(chain)}, nil
}

func (s *SwapService) orderBookFor(chain blockchain.Chain) *cow.Client {
	orderBookURL := s.config.OrderBookURL
	if orderBookURL == "" {
		orderBookURL = chain.OrderBookURL()
	}
	return cow.NewClient(orderBookURL, s.httpClient, s.config.MaxRetries, s.config.RetryDelay)
}

// connect dials the node and checks that the Safe exists
func (s *SwapService) connect(ctx context.Context, sess *session) error {
	s.stage(StageConnect, "Connecting to %s (chain id %d) as %s", sess.chain.Name, sess.chain.ID, sess.creds.Signer().Hex())
	client, err := blockchain.Connect(ctx, s.dial, sess.creds.RPCURL, sess.chain)
	if err != nil {
		return s.fail(StageConnect, err)
	}
	sess.client = client
	sess.wallet = safe.NewWallet(sess.creds.SafeAddress, sess.creds.SignerKey, client.ID(), client, s.readRetry())

	s.stage(StageDeployment, "Checking Safe %s", sess.wallet.Address().Hex())
	deployed, err := sess.wallet.IsDeployed(ctx)
	if err != nil {
		return s.fail(StageDeployment, err)
	}
	if !deployed {
		return s.fail(StageDeployment, fmt.Errorf("%w: no code at %s", safe.ErrNotDeployed, sess.wallet.Address().Hex()))
	}
	return nil
}

// Deposit wraps the configured amount inside the Safe and approves the vault relayer for it,
// as one atomic Safe transaction
func (s *SwapService) Deposit(ctx context.Context) (*Result, error) {
	sess, err := s.prepare()
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if err := s.connect(ctx, sess); err != nil {
		return nil, err
	}

	result := &Result{Chain: sess.chain, Safe: sess.creds.SafeAddress}
	if err := s.deposit(ctx, sess, result); err != nil {
		return result, err
	}

	if result.BalancesAfter, err = s.balances(ctx, sess); err != nil {
		return result, s.fail(StageReport, err)
	}
	s.report(sess, result)
	s.record(sess, result)
	s.stage(StageComplete, "Deposit complete")
	return result, nil
}

// Quote asks the order book for a price without touching the chain
func (s *SwapService) Quote(ctx context.Context) (*Result, error) {
	sess, err := s.prepare()
	if err != nil {
		return nil, err
	}
	defer sess.close()

	result := &Result{Chain: sess.chain, Safe: sess.creds.SafeAddress}

	req, err := s.quoteRequest(sess)
	if err != nil {
		return result, s.fail(StageQuote, err)
	}
	s.stage(StageQuote, "Requesting quote to sell %s", utils.FormatUnits(sess.amount, utils.EtherDecimals, "W"+sess.chain.NativeSymbol))
	if result.Quote, err = sess.orderBook.GetQuote(ctx, req); err != nil {
		return result, s.fail(StageQuote, err)
	}
	s.stage(StageComplete, "Quote %s: buy %s of %s", quoteID(result.Quote), result.Quote.Quote.BuyAmount, sess.buyToken.Hex())
	return result, nil
}

// Run executes the whole workflow: deposit, quote, order, authorization and follow-up
func (s *SwapService) Run(ctx context.Context) (*Result, error) {
	sess, err := s.prepare()
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if err := s.connect(ctx, sess); err != nil {
		return nil, err
	}

	result := &Result{Chain: sess.chain, Safe: sess.creds.SafeAddress, Scheme: s.config.Scheme}
	if err := s.deposit(ctx, sess, result); err != nil {
		return result, err
	}

	if err := s.placeOrder(ctx, sess, result); err != nil {
		s.record(sess, result)
		return result, err
	}

	if err := s.followOrder(ctx, sess, result); err != nil {
		s.record(sess, result)
		return result, err
	}

	if result.BalancesAfter, err = s.balances(ctx, sess); err != nil {
		s.record(sess, result)
		return result, s.fail(StageReport, err)
	}
	s.report(sess, result)
	s.record(sess, result)
	s.stage(StageComplete, "Order %s is %s", result.OrderUID, result.Order.Status)
	return result, nil
}

// Status looks up an order, or the last journaled one when uid is empty.
// It only talks to the order book, so the signing key and RPC URL are not needed.
func (s *SwapService) Status(ctx context.Context, uid string) (*Result, error) {
	sess, err := s.prepareReadOnly()
	if err != nil {
		return nil, err
	}
	defer sess.close()

	result := &Result{Chain: sess.chain, OrderUID: uid}
	if common.IsHexAddress(s.config.SafeAddress) {
		result.Safe = common.HexToAddress(s.config.SafeAddress)
	}
	if uid == "" {
		if s.journal == nil {
			return result, s.fail(StageStatus, errors.New("no order uid given and no journal configured"))
		}
		rec, err := s.journal.Last(sess.chain.Name)
		if err != nil {
			return result, s.fail(StageStatus, err)
		}
		if rec.OrderUID == "" {
			return result, s.fail(StageStatus, fmt.Errorf("%w: last run on %s placed no order", storage.ErrNoRecord, sess.chain.Name))
		}
		result.OrderUID = rec.OrderUID
		result.Scheme = rec.Scheme
	}

	if _, _, _, _, err := cow.ParseUID(result.OrderUID); err != nil {
		return result, s.fail(StageStatus, err)
	}

	s.stage(StageStatus, "Fetching order %s", result.OrderUID)
	if result.Order, err = sess.orderBook.GetOrder(ctx, result.OrderUID); err != nil {
		return result, s.fail(StageStatus, err)
	}
	if result.Trades, err = sess.orderBook.GetTrades(ctx, result.OrderUID); err != nil {
		return result, s.fail(StageStatus, err)
	}

	s.stage(StageComplete, "Order %s is %s with %d trade(s): %s", result.OrderUID, result.Order.Status,
		len(result.Trades), sess.chain.OrderExplorerURL(result.OrderUID))
	s.record(sess, result)
	return result, nil
}

func (s *SwapService) record(sess *session, result *Result) {
	if s.journal == nil {
		return
	}
	rec := storage.RunRecord{
		Chain:    sess.chain.Name,
		OrderUID: result.OrderUID,
		Scheme:   result.Scheme,
	}
	if result.Safe != (common.Address{}) {
		rec.SafeAddress = result.Safe.Hex()
	}
	if result.BatchTx != (common.Hash{}) {
		rec.BatchTx = result.BatchTx.Hex()
	}
	if result.PresignTx != (common.Hash{}) {
		rec.PresignTx = result.PresignTx.Hex()
	}
	if result.Order != nil {
		rec.Status = string(result.Order.Status)
	}
	if rec.OrderUID == "" && rec.BatchTx == "" {
		return
	}
	// keep what earlier runs learned about the same order. A deposit without an order
	// starts a fresh record.
	if prev, err := s.journal.Last(sess.chain.Name); err == nil && rec.OrderUID != "" && rec.OrderUID == prev.OrderUID {
		rec.SafeAddress = firstNonEmpty(rec.SafeAddress, prev.SafeAddress)
		rec.BatchTx = firstNonEmpty(rec.BatchTx, prev.BatchTx)
		rec.PresignTx = firstNonEmpty(rec.PresignTx, prev.PresignTx)
		rec.Scheme = firstNonEmpty(rec.Scheme, prev.Scheme)
		rec.Status = firstNonEmpty(rec.Status, prev.Status)
	}
	if err := s.journal.Save(rec); err != nil {
		logger.Warn("Failed to journal run: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func quoteID(q *models.QuoteResponse) string {
	if q == nil || q.ID == nil {
		return "(no id)"
	}
	return fmt.Sprintf("#%d", *q.ID)
}
