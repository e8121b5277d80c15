package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Environment variable names
const (
	EnvSafeAddress    = "SAFE_ADDRESS"
	EnvSignerKey      = "SIGNER_PRIVATE_KEY"
	EnvRPCURL         = "RPC_URL"
	EnvChain          = "SAFE_SWAP_CHAIN"
	EnvOrderBookURL   = "SAFE_SWAP_ORDERBOOK_URL"
	EnvAmount         = "SAFE_SWAP_AMOUNT"
	EnvBuyToken       = "SAFE_SWAP_BUY_TOKEN"
	EnvSlippageBps    = "SAFE_SWAP_SLIPPAGE_BPS"
	EnvAppCode        = "SAFE_SWAP_APP_CODE"
	EnvScheme         = "SAFE_SWAP_SCHEME"
	EnvConfirmTimeout = "SAFE_SWAP_CONFIRM_TIMEOUT"
	EnvPollInterval   = "SAFE_SWAP_POLL_INTERVAL"
	EnvMaxRetries     = "SAFE_SWAP_MAX_RETRIES"
	EnvRetryDelay     = "SAFE_SWAP_RETRY_DELAY"
	EnvQuoteRefreshes = "SAFE_SWAP_QUOTE_REFRESHES"
	EnvDataDir        = "SAFE_SWAP_DATA_DIR"
	EnvDebug          = "DEBUG"
)

// Signing schemes supported for the Safe-owned order
const (
	SchemePresign = "presign"
	SchemeEIP1271 = "eip1271"
)

var (
	// ErrMissingCredentials is returned when a required credential is absent
	ErrMissingCredentials = errors.New("missing required configuration")
	// ErrInvalidConfig is returned when a value is present but malformed
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds all application configuration
type Config struct {
	// Credentials
	SafeAddress string
	SignerKey   string
	RPCURL      string

	// Network settings
	Chain        string
	OrderBookURL string

	// Swap settings
	Amount      decimal.Decimal
	BuyToken    string
	SlippageBps int
	AppCode     string
	Scheme      string

	// Confirmation settings
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	// Retry settings
	MaxRetries     int
	RetryDelay     time.Duration
	QuoteRefreshes int

	DataDir string
	Debug   bool
}

// Credentials are the parsed, well-formed form of the three required values
type Credentials struct {
	SafeAddress common.Address
	SignerKey   *ecdsa.PrivateKey
	RPCURL      string
}

// Signer returns the address of the signing key
func (c *Credentials) Signer() common.Address {
	return crypto.PubkeyToAddress(c.SignerKey.PublicKey)
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Chain:          "mainnet",
		Amount:         decimal.RequireFromString("0.02"),
		SlippageBps:    50,
		AppCode:        "swap-n-bridge",
		Scheme:         SchemePresign,
		ConfirmTimeout: 300 * time.Second,
		PollInterval:   2 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		QuoteRefreshes: 2,
	}
}

// LoadFromEnvironment loads configuration from environment variables.
// Malformed numeric values are reported as ErrInvalidConfig.
func (c *Config) LoadFromEnvironment() error {
	c.SafeAddress = strings.TrimSpace(os.Getenv(EnvSafeAddress))
	c.SignerKey = strings.TrimSpace(os.Getenv(EnvSignerKey))
	c.RPCURL = strings.TrimSpace(os.Getenv(EnvRPCURL))

	if chain := os.Getenv(EnvChain); chain != "" {
		c.Chain = chain
	}

	if orderBook := os.Getenv(EnvOrderBookURL); orderBook != "" {
		c.OrderBookURL = orderBook
	}

	if amount := os.Getenv(EnvAmount); amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvAmount, amount, err)
		}
		c.Amount = d
	}

	if buyToken := os.Getenv(EnvBuyToken); buyToken != "" {
		c.BuyToken = buyToken
	}

	if appCode := os.Getenv(EnvAppCode); appCode != "" {
		c.AppCode = appCode
	}

	if scheme := os.Getenv(EnvScheme); scheme != "" {
		c.Scheme = strings.ToLower(scheme)
	}

	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		c.DataDir = dataDir
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvSlippageBps, &c.SlippageBps},
		{EnvMaxRetries, &c.MaxRetries},
		{EnvQuoteRefreshes, &c.QuoteRefreshes},
	}
	for _, v := range ints {
		if raw := os.Getenv(v.name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, v.name, raw)
			}
			*v.dst = n
		}
	}

	durations := []struct {
		name string
		unit time.Duration
		dst  *time.Duration
	}{
		{EnvConfirmTimeout, time.Second, &c.ConfirmTimeout},
		{EnvPollInterval, time.Millisecond, &c.PollInterval},
		{EnvRetryDelay, time.Millisecond, &c.RetryDelay},
	}
	for _, v := range durations {
		if raw := os.Getenv(v.name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, v.name, raw)
			}
			*v.dst = time.Duration(n) * v.unit
		}
	}

	if debug := os.Getenv(EnvDebug); debug != "" {
		c.Debug, _ = strconv.ParseBool(debug)
	}

	return nil
}

// Validate checks if the configuration is valid. It performs no I/O.
func (c *Config) Validate() error {
	var missing []string
	if c.SafeAddress == "" {
		missing = append(missing, EnvSafeAddress)
	}
	if c.SignerKey == "" {
		missing = append(missing, EnvSignerKey)
	}
	if c.RPCURL == "" {
		missing = append(missing, EnvRPCURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if _, err := c.Credentials(); err != nil {
		return err
	}

	return c.ValidateSettings()
}

// ValidateSettings checks everything but the credentials, for commands that only
// read from the order book
func (c *Config) ValidateSettings() error {
	if c.Chain == "" {
		return fmt.Errorf("%w: chain cannot be empty", ErrInvalidConfig)
	}

	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got: %s", ErrInvalidConfig, c.Amount)
	}

	if c.BuyToken != "" && !common.IsHexAddress(c.BuyToken) {
		return fmt.Errorf("%w: buy token %q is not an address", ErrInvalidConfig, c.BuyToken)
	}

	if c.OrderBookURL != "" {
		if err := checkURL(c.OrderBookURL, "http", "https"); err != nil {
			return fmt.Errorf("%w: order book url: %v", ErrInvalidConfig, err)
		}
	}

	if c.SlippageBps < 0 || c.SlippageBps >= 10000 {
		return fmt.Errorf("%w: slippage must be between 0 and 9999 bps, got: %d", ErrInvalidConfig, c.SlippageBps)
	}

	if c.Scheme != SchemePresign && c.Scheme != SchemeEIP1271 {
		return fmt.Errorf("%w: signing scheme must be %q or %q, got: %q", ErrInvalidConfig, SchemePresign, SchemeEIP1271, c.Scheme)
	}

	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("%w: confirmation timeout must be positive, got: %s", ErrInvalidConfig, c.ConfirmTimeout)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got: %s", ErrInvalidConfig, c.PollInterval)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be non-negative, got: %d", ErrInvalidConfig, c.MaxRetries)
	}

	if c.QuoteRefreshes < 0 {
		return fmt.Errorf("%w: quote refreshes must be non-negative, got: %d", ErrInvalidConfig, c.QuoteRefreshes)
	}

	return nil
}

// Credentials parses the three required values
func (c *Config) Credentials() (*Credentials, error) {
	if !common.IsHexAddress(c.SafeAddress) {
		return nil, fmt.Errorf("%w: %s %q is not an address", ErrInvalidConfig, EnvSafeAddress, c.SafeAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.SignerKey, "0x"))
	if err != nil {
		// never echo the key
		return nil, fmt.Errorf("%w: %s is not a valid secp256k1 key", ErrInvalidConfig, EnvSignerKey)
	}

	if err := checkURL(c.RPCURL, "http", "https", "ws", "wss"); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvRPCURL, err)
	}

	return &Credentials{
		SafeAddress: common.HexToAddress(c.SafeAddress),
		SignerKey:   key,
		RPCURL:      c.RPCURL,
	}, nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not one of %s", u.Scheme, strings.Join(schemes, ", "))
}
