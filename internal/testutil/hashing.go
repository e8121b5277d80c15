package testutil

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	tBytes32 = mustType("bytes32")
	tUint256 = mustType("uint256")
	tUint32  = mustType("uint32")
	tUint8   = mustType("uint8")
	tAddress = mustType("address")
	tBool    = mustType("bool")
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

func encode(types []abi.Type, values ...interface{}) []byte {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	out, err := args.Pack(values...)
	if err != nil {
		panic(err)
	}
	return out
}

func keccak(data ...[]byte) [32]byte {
	return crypto.Keccak256Hash(data...)
}

func typedHash(domain, structHash [32]byte) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain[:], structHash[:])
}

func safeDomain(chainID *big.Int, safe common.Address) [32]byte {
	return keccak(encode(
		[]abi.Type{tBytes32, tUint256, tAddress},
		keccak([]byte("EIP712Domain(uint256 chainId,address verifyingContract)")),
		chainID,
		safe,
	))
}

// SafeTxHash hashes a Safe transaction with zero gas refund fields
func SafeTxHash(chainID *big.Int, safe, to common.Address, value *big.Int, data []byte, operation uint8, nonce uint64) common.Hash {
	return safeTxHash(chainID, safe, to, value, data, operation, new(big.Int), new(big.Int), new(big.Int), common.Address{}, common.Address{}, new(big.Int).SetUint64(nonce))
}

func safeTxHash(chainID *big.Int, safe, to common.Address, value *big.Int, data []byte, operation uint8,
	safeTxGas, baseGas, gasPrice *big.Int, gasToken, refundReceiver common.Address, nonce *big.Int) common.Hash {
	structHash := keccak(encode(
		[]abi.Type{tBytes32, tAddress, tUint256, tBytes32, tUint8, tUint256, tUint256, tUint256, tAddress, tAddress, tUint256},
		keccak([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)")),
		to,
		value,
		keccak(data),
		operation,
		safeTxGas,
		baseGas,
		gasPrice,
		gasToken,
		refundReceiver,
		nonce,
	))
	return typedHash(safeDomain(chainID, safe), structHash)
}

// SafeMessageHash is what an owner signs for the Safe to accept message through EIP-1271
func SafeMessageHash(chainID *big.Int, safe common.Address, message []byte) common.Hash {
	structHash := keccak(encode(
		[]abi.Type{tBytes32, tBytes32},
		keccak([]byte("SafeMessage(bytes message)")),
		keccak(message),
	))
	return typedHash(safeDomain(chainID, safe), structHash)
}

// GPv2Order mirrors the settlement contract's order struct
type GPv2Order struct {
	SellToken         common.Address
	BuyToken          common.Address
	Receiver          common.Address
	SellAmount        *big.Int
	BuyAmount         *big.Int
	ValidTo           uint32
	AppData           common.Hash
	FeeAmount         *big.Int
	Kind              string
	PartiallyFillable bool
	SellTokenBalance  string
	BuyTokenBalance   string
}

// OrderDigest returns the EIP-712 digest of order for the settlement contract on chainID
func OrderDigest(chainID *big.Int, settlement common.Address, order GPv2Order) common.Hash {
	domain := keccak(encode(
		[]abi.Type{tBytes32, tBytes32, tBytes32, tUint256, tAddress},
		keccak([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")),
		keccak([]byte("Gnosis Protocol")),
		keccak([]byte("v2")),
		chainID,
		settlement,
	))
	structHash := keccak(encode(
		[]abi.Type{tBytes32, tAddress, tAddress, tAddress, tUint256, tUint256, tUint32, tBytes32, tUint256, tBytes32, tBool, tBytes32, tBytes32},
		keccak([]byte("Order(address sellToken,address buyToken,address receiver,uint256 sellAmount,uint256 buyAmount,uint32 validTo,bytes32 appData,uint256 feeAmount,string kind,bool partiallyFillable,string sellTokenBalance,string buyTokenBalance)")),
		order.SellToken,
		order.BuyToken,
		order.Receiver,
		order.SellAmount,
		order.BuyAmount,
		order.ValidTo,
		[32]byte(order.AppData),
		order.FeeAmount,
		keccak([]byte(order.Kind)),
		order.PartiallyFillable,
		keccak([]byte(order.SellTokenBalance)),
		keccak([]byte(order.BuyTokenBalance)),
	))
	return typedHash(domain, structHash)
}

// OrderUID packs digest | owner | validTo
func OrderUID(digest common.Hash, owner common.Address, validTo uint32) []byte {
	uid := make([]byte, 0, 56)
	uid = append(uid, digest.Bytes()...)
	uid = append(uid, owner.Bytes()...)
	return binary.BigEndian.AppendUint32(uid, validTo)
}
