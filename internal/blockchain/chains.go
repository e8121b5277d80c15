package blockchain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CoW Protocol and Safe contracts share their addresses across every supported chain.
var (
	SettlementAddress         = common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	VaultRelayerAddress       = common.HexToAddress("0xC92E8bdf79f0507f65a392b0ab4667716BFE0110")
	MultiSendCallOnlyAddress  = common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")
	MultiSendAddress          = common.HexToAddress("0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761")
	defaultOrderBookAPIPrefix = "https://api.cow.fi"
)

// Chain is a network the workflow knows how to trade on
type Chain struct {
	ID           uint64
	Name         string
	NativeSymbol string
	// WrappedNative is the token the native currency is wrapped into (WETH, WXDAI)
	WrappedNative common.Address
	// DefaultBuyToken is what the swap buys when nothing else is configured
	DefaultBuyToken       common.Address
	DefaultBuyTokenSymbol string
	// OrderBookPath is the network segment of the CoW API URL
	OrderBookPath string
	ExplorerURL   string
}

// OrderBookURL returns the order book API base for this chain
func (c Chain) OrderBookURL() string {
	return fmt.Sprintf("%s/%s", defaultOrderBookAPIPrefix, c.OrderBookPath)
}

// OrderExplorerURL returns a link to the order on the CoW explorer
func (c Chain) OrderExplorerURL(uid string) string {
	if c.OrderBookPath == "mainnet" {
		return fmt.Sprintf("https://explorer.cow.fi/orders/%s?tab=overview", uid)
	}
	return fmt.Sprintf("https://explorer.cow.fi/%s/orders/%s?tab=overview", c.OrderBookPath, uid)
}

// TxExplorerURL returns a link to the transaction on the chain explorer
func (c Chain) TxExplorerURL(hash common.Hash) string {
	return fmt.Sprintf("%s/tx/%s", c.ExplorerURL, hash.Hex())
}

var (
	Mainnet = Chain{
		ID:                    1,
		Name:                  "mainnet",
		NativeSymbol:          "ETH",
		WrappedNative:         common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		DefaultBuyToken:       common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		DefaultBuyTokenSymbol: "USDC",
		OrderBookPath:         "mainnet",
		ExplorerURL:           "https://etherscan.io",
	}
	Gnosis = Chain{
		ID:                    100,
		Name:                  "gnosis",
		NativeSymbol:          "XDAI",
		WrappedNative:         common.HexToAddress("0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d"),
		DefaultBuyToken:       common.HexToAddress("0xDDAfbb505ad214D7b80b1f830fcCc89B60fb7A83"),
		DefaultBuyTokenSymbol: "USDC",
		OrderBookPath:         "xdai",
		ExplorerURL:           "https://gnosisscan.io",
	}
	Arbitrum = Chain{
		ID:                    42161,
		Name:                  "arbitrum",
		NativeSymbol:          "ETH",
		WrappedNative:         common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		DefaultBuyToken:       common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
		DefaultBuyTokenSymbol: "USDC",
		OrderBookPath:         "arbitrum_one",
		ExplorerURL:           "https://arbiscan.io",
	}
	Base = Chain{
		ID:                    8453,
		Name:                  "base",
		NativeSymbol:          "ETH",
		WrappedNative:         common.HexToAddress("0x4200000000000000000000000000000000000006"),
		DefaultBuyToken:       common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		DefaultBuyTokenSymbol: "USDC",
		OrderBookPath:         "base",
		ExplorerURL:           "https://basescan.org",
	}
	Sepolia = Chain{
		ID:                    11155111,
		Name:                  "sepolia",
		NativeSymbol:          "ETH",
		WrappedNative:         common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
		DefaultBuyToken:       common.HexToAddress("0x0625aFB445C3B6B7B929342a04A22599fd5dBB59"),
		DefaultBuyTokenSymbol: "COW",
		OrderBookPath:         "sepolia",
		ExplorerURL:           "https://sepolia.etherscan.io",
	}
)

// Chains holds every supported chain keyed by name
var Chains = map[string]Chain{
	Mainnet.Name:  Mainnet,
	Gnosis.Name:   Gnosis,
	Arbitrum.Name: Arbitrum,
	Base.Name:     Base,
	Sepolia.Name:  Sepolia,
}

// chainAliases maps alternative names to canonical ones
var chainAliases = map[string]string{
	"ethereum":     "mainnet",
	"xdai":         "gnosis",
	"arbitrum_one": "arbitrum",
}

// LookupChain resolves a chain by name, alias or decimal chain id
func LookupChain(name string) (Chain, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := chainAliases[key]; ok {
		key = alias
	}
	if chain, ok := Chains[key]; ok {
		return chain, nil
	}
	for _, chain := range Chains {
		if fmt.Sprintf("%d", chain.ID) == key {
			return chain, nil
		}
	}
	return Chain{}, fmt.Errorf("unsupported chain %q (supported: %s)", name, strings.Join(ChainNames(), ", "))
}

// ChainNames returns the supported chain names in a stable order
func ChainNames() []string {
	names := make([]string, 0, len(Chains))
	for name := range Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
