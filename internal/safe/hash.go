package safe

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// keccak256("EIP712Domain(uint256 chainId,address verifyingContract)")
	domainSeparatorTypehash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	// keccak256("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)")
	safeTxTypehash = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
	// keccak256("SafeMessage(bytes message)")
	safeMessageTypehash = crypto.Keccak256Hash([]byte("SafeMessage(bytes message)"))
)

// SafeTx is the EIP-712 message a Safe owner signs to authorize execTransaction.
// Gas refund fields are left at zero: the signer pays for the outer transaction.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// DomainSeparator returns the Safe's EIP-712 domain separator (Safe >= 1.3.0)
func DomainSeparator(chainID *big.Int, safe common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainSeparatorTypehash.Bytes(),
		uint256(chainID),
		common.LeftPadBytes(safe.Bytes(), 32),
	)
}

// Hash returns the EIP-712 digest of the transaction for a Safe on chainID
func (tx SafeTx) Hash(chainID *big.Int, safe common.Address) common.Hash {
	structHash := crypto.Keccak256Hash(
		safeTxTypehash.Bytes(),
		common.LeftPadBytes(tx.To.Bytes(), 32),
		uint256(tx.Value),
		crypto.Keccak256(tx.Data),
		uint256(big.NewInt(int64(tx.Operation))),
		uint256(tx.SafeTxGas),
		uint256(tx.BaseGas),
		uint256(tx.GasPrice),
		common.LeftPadBytes(tx.GasToken.Bytes(), 32),
		common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
		uint256(tx.Nonce),
	)
	return typedDataHash(DomainSeparator(chainID, safe), structHash)
}

// MessageHash returns the hash a Safe owner signs so that the Safe's fallback handler
// accepts message through isValidSignature
func MessageHash(chainID *big.Int, safe common.Address, message []byte) common.Hash {
	structHash := crypto.Keccak256Hash(
		safeMessageTypehash.Bytes(),
		crypto.Keccak256(message),
	)
	return typedDataHash(DomainSeparator(chainID, safe), structHash)
}

// SignHash signs a digest with key in the r | s | v layout the Safe expects (v is 27 or 28)
func SignHash(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func typedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

func uint256(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}
