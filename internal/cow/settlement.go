package cow

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const settlementABIJSON = `[
	{"type":"function","name":"setPreSignature","stateMutability":"nonpayable","inputs":[{"name":"orderUid","type":"bytes"},{"name":"signed","type":"bool"}],"outputs":[]}
]`

var settlementABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(settlementABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// EncodeSetPreSignature returns setPreSignature(uid, signed) calldata for the settlement contract.
// Only the order owner can presign, so the call has to come from the Safe.
func EncodeSetPreSignature(uid []byte, signed bool) ([]byte, error) {
	if len(uid) != UIDLength {
		return nil, fmt.Errorf("invalid order uid length %d", len(uid))
	}
	return settlementABI.Pack("setPreSignature", uid, signed)
}

// PresignSignature is the signature field of a presign order: the owner address
func PresignSignature(owner common.Address) []byte {
	return owner.Bytes()
}
