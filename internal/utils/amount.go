package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the decimal count of native currencies and their wrapped tokens
const EtherDecimals = 18

// ToBaseUnits converts a human amount into the token's smallest unit.
// Amounts with more precision than the token supports are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits converts an amount in smallest units into a human amount
func FromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FormatUnits renders an amount in smallest units with a symbol, e.g. "0.02 WETH"
func FormatUnits(amount *big.Int, decimals int32, symbol string) string {
	return fmt.Sprintf("%s %s", FromBaseUnits(amount, decimals).String(), symbol)
}

// ParseBaseUnits parses a decimal integer string as used by the order book API
func ParseBaseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
