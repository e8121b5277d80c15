package safe

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	// ErrEmptyBatch is returned when a batch has no transactions
	ErrEmptyBatch = errors.New("batch has no transactions")
	// ErrDelegateCallInCallsOnly is returned when a calls-only batch contains a delegate call
	ErrDelegateCallInCallsOnly = errors.New("calls-only batch cannot contain delegate calls")
)

// Operation is the Safe call type
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

func (o Operation) String() string {
	switch o {
	case Call:
		return "call"
	case DelegateCall:
		return "delegatecall"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// MetaTransaction is one call the Safe performs
type MetaTransaction struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
}

func (tx MetaTransaction) copy() MetaTransaction {
	value := new(big.Int)
	if tx.Value != nil {
		value.Set(tx.Value)
	}
	return MetaTransaction{
		To:        tx.To,
		Value:     value,
		Data:      bytes.Clone(tx.Data),
		Operation: tx.Operation,
	}
}

// Batch is an ordered list of calls and the single Safe transaction that carries them
type Batch struct {
	Transactions []MetaTransaction

	// Safe transaction fields
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
}

// MultiSendContracts are the batching libraries the Safe delegates to
type MultiSendContracts struct {
	MultiSend         common.Address
	MultiSendCallOnly common.Address
}

// NewBatch builds the Safe transaction for requests, preserving their order.
// A single request is executed directly. Several requests go through MultiSendCallOnly
// when callsOnly is set, otherwise through MultiSend.
func NewBatch(requests []MetaTransaction, callsOnly bool, contracts MultiSendContracts) (*Batch, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}

	txs := make([]MetaTransaction, len(requests))
	for i, req := range requests {
		if callsOnly && req.Operation != Call {
			return nil, fmt.Errorf("%w: transaction %d is a %s", ErrDelegateCallInCallsOnly, i, req.Operation)
		}
		if req.Operation != Call && req.Operation != DelegateCall {
			return nil, fmt.Errorf("transaction %d has unknown %s", i, req.Operation)
		}
		txs[i] = req.copy()
	}

	if len(txs) == 1 {
		return &Batch{
			Transactions: txs,
			To:           txs[0].To,
			Value:        new(big.Int).Set(txs[0].Value),
			Data:         bytes.Clone(txs[0].Data),
			Operation:    txs[0].Operation,
		}, nil
	}

	data, err := EncodeMultiSend(txs)
	if err != nil {
		return nil, err
	}

	target := contracts.MultiSend
	if callsOnly {
		target = contracts.MultiSendCallOnly
	}

	return &Batch{
		Transactions: txs,
		To:           target,
		Value:        new(big.Int),
		Data:         data,
		Operation:    DelegateCall,
	}, nil
}

// PackMultiSend packs transactions as operation(1) | to(20) | value(32) | dataLength(32) | data
func PackMultiSend(txs []MetaTransaction) []byte {
	var buf bytes.Buffer
	for _, tx := range txs {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		buf.WriteByte(byte(tx.Operation))
		buf.Write(tx.To.Bytes())
		buf.Write(math.U256Bytes(new(big.Int).Set(value)))
		buf.Write(math.U256Bytes(big.NewInt(int64(len(tx.Data)))))
		buf.Write(tx.Data)
	}
	return buf.Bytes()
}

// EncodeMultiSend returns multiSend(bytes) calldata for txs
func EncodeMultiSend(txs []MetaTransaction) ([]byte, error) {
	data, err := multiSendABI.Pack("multiSend", PackMultiSend(txs))
	if err != nil {
		return nil, fmt.Errorf("failed to pack multiSend: %w", err)
	}
	return data, nil
}

// DecodeMultiSend reverses EncodeMultiSend
func DecodeMultiSend(calldata []byte) ([]MetaTransaction, error) {
	method, ok := multiSendABI.Methods["multiSend"]
	if !ok || len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, errors.New("not multiSend calldata")
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multiSend: %w", err)
	}
	packed, ok := args[0].([]byte)
	if !ok {
		return nil, errors.New("unexpected multiSend argument type")
	}

	return UnpackMultiSend(packed)
}

// UnpackMultiSend splits a packed transaction list
func UnpackMultiSend(packed []byte) ([]MetaTransaction, error) {
	const header = 1 + 20 + 32 + 32

	var txs []MetaTransaction
	for offset := 0; offset < len(packed); {
		if len(packed)-offset < header {
			return nil, fmt.Errorf("truncated transaction header at offset %d", offset)
		}
		op := Operation(packed[offset])
		to := common.BytesToAddress(packed[offset+1 : offset+21])
		value := new(big.Int).SetBytes(packed[offset+21 : offset+53])
		length := new(big.Int).SetBytes(packed[offset+53 : offset+85])
		offset += header

		if !length.IsUint64() || length.Uint64() > uint64(len(packed)-offset) {
			return nil, fmt.Errorf("data length %s overruns payload at offset %d", length, offset)
		}
		n := int(length.Uint64())

		txs = append(txs, MetaTransaction{
			To:        to,
			Value:     value,
			Data:      bytes.Clone(packed[offset : offset+n]),
			Operation: op,
		})
		offset += n
	}
	return txs, nil
}
