// Package testutil provides an in-memory chain and order book for tests.
// It only depends on go-ethereum so any package can use it from its tests
// without an import cycle; contract hashing is implemented here independently
// of the production code it checks.
package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ============================================================
// Accounts
// ============================================================

var (
	// SafeAddress is the Safe under test
	SafeAddress = common.HexToAddress("0x5AfE000000000000000000000000000000005afe")

	// SignerKeyHex is the owner key in hex format
	SignerKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	// SignerKey is the parsed owner key
	SignerKey, _ = crypto.HexToECDSA(SignerKeyHex)
	// SignerAddress is the address derived from SignerKey
	SignerAddress = crypto.PubkeyToAddress(SignerKey.PublicKey)

	// StrangerKeyHex is a key that owns nothing
	StrangerKeyHex = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
	StrangerKey, _ = crypto.HexToECDSA(StrangerKeyHex)
)

// ============================================================
// Sepolia contracts
// ============================================================

var (
	ChainID = big.NewInt(11155111)

	WETH     = common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14")
	BuyToken = common.HexToAddress("0x0625aFB445C3B6B7B929342a04A22599fd5dBB59")

	Settlement        = common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	VaultRelayer      = common.HexToAddress("0xC92E8bdf79f0507f65a392b0ab4667716BFE0110")
	MultiSend         = common.HexToAddress("0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761")
	MultiSendCallOnly = common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")
)

// ============================================================
// Common values
// ============================================================

var (
	// OneEther represents 1 ETH in wei
	OneEther = big.NewInt(1000000000000000000)
	// WrapAmount is 0.02 ETH in wei
	WrapAmount = big.NewInt(20000000000000000)
	// OneGwei represents 1 gwei
	OneGwei = big.NewInt(1000000000)
)
