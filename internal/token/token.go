// Package token encodes calls to wrapped native tokens and ERC-20 contracts.
// Encoders never touch the network; the read helpers take a contract caller explicitly.
package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const wethABIJSON = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var tokenABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(wethABIJSON))
	if err != nil {
		panic(err)
	}
	tokenABI = parsed
}

// EncodeWrap returns deposit() calldata. Send it with a value equal to the amount to wrap.
func EncodeWrap() []byte {
	data, _ := tokenABI.Pack("deposit")
	return data
}

// EncodeApprove returns approve(spender, amount) calldata.
//
// The allowance is set to amount, replacing whatever was there before; it is not added to it.
// Moving a non-zero allowance to another non-zero value lets the spender use the old allowance
// if it acts between the two approvals. Callers that care must reset to zero first or check
// the current allowance.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid approve amount %v", amount)
	}
	return tokenABI.Pack("approve", spender, amount)
}

// BalanceOf reads the token balance of owner
func BalanceOf(ctx context.Context, caller ethereum.ContractCaller, token, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := call(ctx, caller, token, &balance, "balanceOf", owner); err != nil {
		return nil, err
	}
	return balance, nil
}

// Allowance reads how much spender may move on behalf of owner
func Allowance(ctx context.Context, caller ethereum.ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	var allowance *big.Int
	if err := call(ctx, caller, token, &allowance, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return allowance, nil
}

// Decimals reads the token's decimal count
func Decimals(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (uint8, error) {
	var decimals uint8
	if err := call(ctx, caller, token, &decimals, "decimals"); err != nil {
		return 0, err
	}
	return decimals, nil
}

// Symbol reads the token's ticker
func Symbol(ctx context.Context, caller ethereum.ContractCaller, token common.Address) (string, error) {
	var symbol string
	if err := call(ctx, caller, token, &symbol, "symbol"); err != nil {
		return "", err
	}
	return symbol, nil
}

func call(ctx context.Context, caller ethereum.ContractCaller, token common.Address, out interface{}, method string, args ...interface{}) error {
	input, err := tokenABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, token.Hex(), err)
	}

	if err := tokenABI.UnpackIntoInterface(out, method, output); err != nil {
		return fmt.Errorf("failed to unpack %s from %s: %w", method, token.Hex(), err)
	}
	return nil
}
