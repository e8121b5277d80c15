package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kelsos/safe-swap/internal/blockchain"
	"github.com/kelsos/safe-swap/internal/config"
	"github.com/kelsos/safe-swap/internal/logger"
	"github.com/kelsos/safe-swap/internal/services"
	"github.com/kelsos/safe-swap/internal/storage"
	"github.com/kelsos/safe-swap/internal/tui"
	"github.com/kelsos/safe-swap/internal/utils"
)

type options struct {
	envFile      string
	chain        string
	amount       string
	buyToken     string
	slippageBps  int
	scheme       string
	orderBookURL string
	dataDir      string
	useTUI       bool
	debug        bool
}

// loadConfig reads .env files and the environment, then applies the flags the user set
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, []string, error) {
	loaded, err := utils.LoadEnvironment(opts.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := config.NewConfig()
	if err := cfg.LoadFromEnvironment(); err != nil {
		return nil, loaded, err
	}

	flags := cmd.Flags()
	if flags.Changed("chain") {
		cfg.Chain = opts.chain
	}
	if flags.Changed("amount") {
		amount, err := decimal.NewFromString(opts.amount)
		if err != nil {
			return nil, loaded, fmt.Errorf("%w: amount %q: %v", config.ErrInvalidConfig, opts.amount, err)
		}
		cfg.Amount = amount
	}
	if flags.Changed("buy-token") {
		cfg.BuyToken = opts.buyToken
	}
	if flags.Changed("slippage-bps") {
		cfg.SlippageBps = opts.slippageBps
	}
	if flags.Changed("scheme") {
		cfg.Scheme = strings.ToLower(opts.scheme)
	}
	if flags.Changed("orderbook-url") {
		cfg.OrderBookURL = opts.orderBookURL
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.dataDir
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	return cfg, loaded, nil
}

func openJournal(cfg *config.Config) (*storage.Journal, error) {
	dir := cfg.DataDir
	if dir == "" {
		var err error
		if dir, err = storage.GetAppDataDir(); err != nil {
			return nil, err
		}
	}
	return storage.NewJournal(dir)
}

type workflow func(ctx context.Context, svc *services.SwapService) (*services.Result, error)

func run(cmd *cobra.Command, opts *options, title string, stages []services.Stage, work workflow) {
	cfg, loaded, err := loadConfig(cmd, opts)
	if err != nil {
		logger.Init(opts.debug)
		logger.Fatal("Failed to load configuration: %v", err)
	}

	if opts.useTUI {
		logPath, err := logger.InitFileOnly("logs", cfg.Debug)
		if err != nil {
			logger.Init(cfg.Debug)
			logger.Fatal("Failed to initialize file logger: %v", err)
		}
		defer logger.Close()
		fmt.Printf("Logging to %s\n", logPath)
	} else {
		logger.Init(cfg.Debug)
	}
	for _, path := range loaded {
		logger.Debug("Loaded environment from %s", path)
	}

	journal, err := openJournal(cfg)
	if err != nil {
		logger.Warn("Run journal disabled: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcOpts := []services.Option{}
	if journal != nil {
		svcOpts = append(svcOpts, services.WithJournal(journal))
	}

	var result *services.Result
	if opts.useTUI {
		monitor := tui.NewSwapMonitor(title, stages)
		svc := services.NewSwapService(cfg, append(svcOpts, services.WithObserver(monitor))...)
		err = monitor.Run(ctx, func(ctx context.Context) error {
			var err error
			result, err = work(ctx, svc)
			return err
		})
		for _, line := range summarize(result) {
			fmt.Println(line)
		}
	} else {
		svc := services.NewSwapService(cfg, svcOpts...)
		result, err = work(ctx, svc)
		for _, line := range summarize(result) {
			logger.Info("%s", line)
		}
	}

	if err != nil {
		if opts.useTUI {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			logger.Close()
			os.Exit(1)
		}
		logger.Fatal("%s failed: %v", title, err)
	}
}

// summarize lists what a run produced, skipping steps that did not happen
func summarize(result *services.Result) []string {
	if result == nil {
		return nil
	}
	var lines []string
	if result.BatchTx != (common.Hash{}) {
		lines = append(lines, "Batch transaction: "+result.Chain.TxExplorerURL(result.BatchTx))
	}
	if result.Quote != nil {
		lines = append(lines, fmt.Sprintf("Quote: sell %s (fee %s) for %s, valid until %d",
			result.Quote.Quote.SellAmount, result.Quote.Quote.FeeAmount, result.Quote.Quote.BuyAmount, result.Quote.Quote.ValidTo))
	}
	if result.OrderUID != "" {
		lines = append(lines, "Order: "+result.Chain.OrderExplorerURL(result.OrderUID))
	}
	if result.PresignTx != (common.Hash{}) {
		lines = append(lines, "Presign transaction: "+result.Chain.TxExplorerURL(result.PresignTx))
	}
	if result.Order != nil {
		lines = append(lines, fmt.Sprintf("Status: %s (%d trade(s))", result.Order.Status, len(result.Trades)))
	}
	return lines
}

func main() {
	opts := &options{}

	swap := func(ctx context.Context, svc *services.SwapService) (*services.Result, error) {
		return svc.Run(ctx)
	}

	rootCmd := &cobra.Command{
		Use:   "safe-swap",
		Short: "Wrap native tokens in a Safe and sell them on CoW Protocol",
		Long: `safe-swap wraps native tokens held by a Safe, approves the CoW Protocol vault relayer
and places a sell order owned by the Safe, authorized by presignature or EIP-1271.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run(cmd, opts, "Safe swap", tui.RunStages, swap)
		},
	}

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Deposit, quote, place and follow an order (default)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run(cmd, opts, "Safe swap", tui.RunStages, swap)
		},
	}

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Wrap the amount and approve the vault relayer in one Safe transaction",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run(cmd, opts, "Safe deposit", tui.DepositStages, func(ctx context.Context, svc *services.SwapService) (*services.Result, error) {
				return svc.Deposit(ctx)
			})
		},
	}

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Ask the order book for a price without touching the chain",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run(cmd, opts, "Quote", []services.Stage{services.StageQuote, services.StageComplete},
				func(ctx context.Context, svc *services.SwapService) (*services.Result, error) {
					return svc.Quote(ctx)
				})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [order-uid]",
		Short: "Show an order and its trades, the last placed one by default",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			uid := ""
			if len(args) == 1 {
				uid = args[0]
			}
			run(cmd, opts, "Order status", []services.Stage{services.StageStatus, services.StageComplete},
				func(ctx context.Context, svc *services.SwapService) (*services.Result, error) {
					return svc.Status(ctx, uid)
				})
		},
	}

	// Add flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.envFile, "env-file", "e", "", "Path to a .env file (default: ./.env)")
	flags.StringVarP(&opts.chain, "chain", "c", "mainnet", "Chain to use: "+strings.Join(blockchain.ChainNames(), ", "))
	flags.StringVarP(&opts.amount, "amount", "a", "0.02", "Amount of native token to wrap and sell")
	flags.StringVarP(&opts.buyToken, "buy-token", "b", "", "Token to buy (default: the chain's default buy token)")
	flags.IntVarP(&opts.slippageBps, "slippage-bps", "s", 50, "Slippage tolerance in basis points")
	flags.StringVarP(&opts.scheme, "scheme", "", config.SchemePresign, "Order signing scheme: presign or eip1271")
	flags.StringVarP(&opts.orderBookURL, "orderbook-url", "", "", "Order book API base URL (default: api.cow.fi for the chain)")
	flags.StringVarP(&opts.dataDir, "data-dir", "", "", "Directory for the run journal (default: ~/.safe-swap)")
	flags.BoolVarP(&opts.useTUI, "tui", "", false, "Show progress in a terminal UI")
	flags.BoolVarP(&opts.debug, "debug", "", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(swapCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(statusCmd)

	// Execute the root command
	if err := rootCmd.Execute(); err != nil {
		logger.Init(false)
		logger.Fatal("Failed to execute command: %v", err)
	}
}
