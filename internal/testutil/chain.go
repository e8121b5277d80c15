package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrExecutionReverted is what the mock node returns for failing calls
var ErrExecutionReverted = errors.New("execution reverted")

const mockABIJSON = `[
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
		{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}
	],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"multiSend","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"setPreSignature","stateMutability":"nonpayable","inputs":[{"name":"orderUid","type":"bytes"},{"name":"signed","type":"bool"}],"outputs":[]}
]`

var mockABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(mockABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Selector returns the 4-byte selector of a method the mock chain understands
func Selector(method string) [4]byte {
	var sel [4]byte
	copy(sel[:], mockABI.Methods[method].ID)
	return sel
}

// SubCall is one call performed by the Safe
type SubCall struct {
	Operation uint8
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// SafeExecution records an execTransaction sent to the Safe
type SafeExecution struct {
	TxHash    common.Hash
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation uint8
	Calls     []SubCall
	Success   bool
}

type tokenInfo struct {
	symbol   string
	decimals uint8
}

type revertKey struct {
	to       common.Address
	selector [4]byte
}

type chainState struct {
	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
	presigned  map[string]bool
	safeNonce  uint64
}

func newChainState() *chainState {
	return &chainState{
		native:     make(map[common.Address]*big.Int),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		presigned:  make(map[string]bool),
	}
}

func (s *chainState) clone() *chainState {
	c := newChainState()
	for k, v := range s.native {
		c.native[k] = new(big.Int).Set(v)
	}
	for token, holders := range s.balances {
		c.balances[token] = make(map[common.Address]*big.Int, len(holders))
		for k, v := range holders {
			c.balances[token][k] = new(big.Int).Set(v)
		}
	}
	for token, owners := range s.allowances {
		c.allowances[token] = make(map[common.Address]map[common.Address]*big.Int, len(owners))
		for owner, spenders := range owners {
			c.allowances[token][owner] = make(map[common.Address]*big.Int, len(spenders))
			for k, v := range spenders {
				c.allowances[token][owner][k] = new(big.Int).Set(v)
			}
		}
	}
	for k, v := range s.presigned {
		c.presigned[k] = v
	}
	c.safeNonce = s.safeNonce
	return c
}

func (s *chainState) nativeOf(addr common.Address) *big.Int {
	if v, ok := s.native[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (s *chainState) tokenOf(token, owner common.Address) *big.Int {
	if v, ok := s.balances[token][owner]; ok {
		return v
	}
	return new(big.Int)
}

func (s *chainState) setToken(token, owner common.Address, amount *big.Int) {
	if s.balances[token] == nil {
		s.balances[token] = make(map[common.Address]*big.Int)
	}
	s.balances[token][owner] = new(big.Int).Set(amount)
}

func (s *chainState) allowanceOf(token, owner, spender common.Address) *big.Int {
	if v, ok := s.allowances[token][owner][spender]; ok {
		return v
	}
	return new(big.Int)
}

func (s *chainState) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	if s.allowances[token] == nil {
		s.allowances[token] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if s.allowances[token][owner] == nil {
		s.allowances[token][owner] = make(map[common.Address]*big.Int)
	}
	s.allowances[token][owner][spender] = new(big.Int).Set(amount)
}

// MockChain is an in-memory node that runs the Safe, MultiSend, WETH and settlement
// calls the workflow makes. A transaction either applies all of its effects or none.
type MockChain struct {
	mu sync.Mutex

	chainID *big.Int
	// BaseFee of the latest header; nil makes the chain pre-London
	BaseFee *big.Int
	// ReceiptDelay is how many receipt lookups report not found before a receipt shows up
	ReceiptDelay int
	// DropReceipts keeps every receipt hidden
	DropReceipts bool
	// FailReceiptLookups makes that many receipt lookups fail with a transport error
	FailReceiptLookups int
	// SendErr is returned by SendTransaction when set
	SendErr error

	safe      common.Address
	deployed  bool
	owners    map[common.Address]bool
	threshold int64
	tokens    map[common.Address]tokenInfo

	state        *chainState
	nonces       map[common.Address]uint64
	block        uint64
	receipts     map[common.Hash]*types.Receipt
	receiptPolls map[common.Hash]int
	reverts      map[revertKey]bool
	calls        map[string]int
	executions   []SafeExecution
	sent         []*types.Transaction
}

// NewMockChain returns a Sepolia-like chain with a deployed threshold-one Safe owned by
// SignerAddress and holding one ether
func NewMockChain() *MockChain {
	m := &MockChain{
		chainID:      new(big.Int).Set(ChainID),
		BaseFee:      new(big.Int).Set(OneGwei),
		safe:         SafeAddress,
		deployed:     true,
		owners:       map[common.Address]bool{SignerAddress: true},
		threshold:    1,
		tokens:       map[common.Address]tokenInfo{WETH: {"WETH", 18}, BuyToken: {"COW", 18}},
		state:        newChainState(),
		nonces:       make(map[common.Address]uint64),
		block:        100,
		receipts:     make(map[common.Hash]*types.Receipt),
		receiptPolls: make(map[common.Hash]int),
		reverts:      make(map[revertKey]bool),
		calls:        make(map[string]int),
	}
	m.state.native[SafeAddress] = new(big.Int).Set(OneEther)
	m.state.native[SignerAddress] = new(big.Int).Set(OneEther)
	return m
}

// ============================================================
// Setup
// ============================================================

// SetChainID changes the chain id the node reports
func (m *MockChain) SetChainID(id *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainID = new(big.Int).Set(id)
}

// SetDeployed controls whether the Safe has code
func (m *MockChain) SetDeployed(deployed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployed = deployed
}

// SetThreshold changes the Safe threshold
func (m *MockChain) SetThreshold(threshold int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// SetOwner adds or removes a Safe owner
func (m *MockChain) SetOwner(owner common.Address, isOwner bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[owner] = isOwner
}

// SetNativeBalance sets the native balance of addr
func (m *MockChain) SetNativeBalance(addr common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.native[addr] = new(big.Int).Set(amount)
}

// SetTokenBalance sets a token balance
func (m *MockChain) SetTokenBalance(token, owner common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.setToken(token, owner, amount)
}

// SetAllowance sets a token allowance
func (m *MockChain) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.setAllowance(token, owner, spender, amount)
}

// RevertOn makes every call of method on contract revert
func (m *MockChain) RevertOn(contract common.Address, method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reverts[revertKey{contract, Selector(method)}] = true
}

// ============================================================
// Inspection
// ============================================================

// NativeBalance returns the native balance of addr
func (m *MockChain) NativeBalance(addr common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.state.nativeOf(addr))
}

// TokenBalance returns the token balance of owner
func (m *MockChain) TokenBalance(token, owner common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.state.tokenOf(token, owner))
}

// Allowance returns the allowance owner gave spender
func (m *MockChain) Allowance(token, owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.state.allowanceOf(token, owner, spender))
}

// IsPresigned reports whether the settlement contract holds a pre-signature for uid
func (m *MockChain) IsPresigned(uid []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.presigned[hexutil.Encode(uid)]
}

// SafeNonce returns the Safe nonce
func (m *MockChain) SafeNonce() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.safeNonce
}

// Executions returns every execTransaction sent to the Safe, in order
func (m *MockChain) Executions() []SafeExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SafeExecution(nil), m.executions...)
}

// SentTransactions returns the raw transactions received
func (m *MockChain) SentTransactions() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Transaction(nil), m.sent...)
}

// Calls returns the total number of RPC calls served
func (m *MockChain) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// CallCount returns how many times an RPC method was called
func (m *MockChain) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// IsValidSignature checks an EIP-1271 signature the way the Safe fallback handler does
func (m *MockChain) IsValidSignature(message, signature []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkSignatures(SafeMessageHash(m.chainID, m.safe, message), signature) == nil
}

// ============================================================
// Node interface
// ============================================================

func (m *MockChain) record(ctx context.Context, method string) error {
	m.calls[method]++
	return ctx.Err()
}

func (m *MockChain) ChainID(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_chainId"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.chainID), nil
}

func (m *MockChain) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_getBalance"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.state.nativeOf(account)), nil
}

func (m *MockChain) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_getCode"); err != nil {
		return nil, err
	}
	if m.hasCode(account) {
		return []byte{0x60, 0x80, 0x60, 0x40}, nil
	}
	return nil, nil
}

func (m *MockChain) hasCode(account common.Address) bool {
	if account == m.safe {
		return m.deployed
	}
	_, isToken := m.tokens[account]
	return isToken || account == Settlement || account == MultiSend || account == MultiSendCallOnly
}

func (m *MockChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_call"); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	to := *msg.To
	if !m.hasCode(to) || len(msg.Data) < 4 {
		return nil, nil
	}

	method, err := mockABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, ErrExecutionReverted
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, ErrExecutionReverted
	}

	if to == m.safe {
		switch method.Name {
		case "nonce":
			return method.Outputs.Pack(new(big.Int).SetUint64(m.state.safeNonce))
		case "getThreshold":
			return method.Outputs.Pack(big.NewInt(m.threshold))
		case "isOwner":
			return method.Outputs.Pack(m.owners[args[0].(common.Address)])
		}
	}

	if info, ok := m.tokens[to]; ok {
		switch method.Name {
		case "balanceOf":
			return method.Outputs.Pack(new(big.Int).Set(m.state.tokenOf(to, args[0].(common.Address))))
		case "allowance":
			return method.Outputs.Pack(new(big.Int).Set(m.state.allowanceOf(to, args[0].(common.Address), args[1].(common.Address))))
		case "decimals":
			return method.Outputs.Pack(info.decimals)
		case "symbol":
			return method.Outputs.Pack(info.symbol)
		}
	}

	return nil, ErrExecutionReverted
}

func (m *MockChain) HeaderByNumber(ctx context.Context, _ *big.Int) (*types.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	header := &types.Header{Number: new(big.Int).SetUint64(m.block)}
	if m.BaseFee != nil {
		header.BaseFee = new(big.Int).Set(m.BaseFee)
	}
	return header, nil
}

func (m *MockChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	if m.FailReceiptLookups > 0 {
		m.FailReceiptLookups--
		return nil, errors.New("connection reset by peer")
	}
	receipt, ok := m.receipts[txHash]
	if !ok || m.DropReceipts {
		return nil, ethereum.NotFound
	}
	if m.receiptPolls[txHash] > 0 {
		m.receiptPolls[txHash]--
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (m *MockChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_getTransactionCount"); err != nil {
		return 0, err
	}
	return m.nonces[account], nil
}

func (m *MockChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return new(big.Int).Mul(OneGwei, big.NewInt(20)), nil
}

func (m *MockChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(OneGwei), nil
}

func (m *MockChain) EstimateGas(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_estimateGas"); err != nil {
		return 0, err
	}
	return 150000, nil
}

func (m *MockChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "eth_sendRawTransaction"); err != nil {
		return err
	}
	if m.SendErr != nil {
		return m.SendErr
	}

	sender, err := types.Sender(types.LatestSignerForChainID(m.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != m.nonces[sender] {
		return fmt.Errorf("invalid nonce: have %d, want %d", tx.Nonce(), m.nonces[sender])
	}
	m.nonces[sender]++
	m.sent = append(m.sent, tx)

	status := types.ReceiptStatusFailed
	if tx.To() != nil {
		next := m.state.clone()
		if err := m.execute(next, sender, *tx.To(), tx.Value(), tx.Data()); err == nil {
			m.state = next
			status = types.ReceiptStatusSuccessful
		}
	}
	m.recordExecution(tx, status == types.ReceiptStatusSuccessful)

	m.block++
	m.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(m.block),
		GasUsed:           tx.Gas() * 2 / 3,
		CumulativeGasUsed: tx.Gas() * 2 / 3,
	}
	m.receiptPolls[tx.Hash()] = m.ReceiptDelay
	return nil
}

func (m *MockChain) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["close"]++
}

// ============================================================
// Execution
// ============================================================

func revert(reason string) error {
	return fmt.Errorf("%w: %s", ErrExecutionReverted, reason)
}

func (m *MockChain) execute(st *chainState, from, to common.Address, value *big.Int, data []byte) error {
	if value != nil && value.Sign() > 0 {
		balance := st.nativeOf(from)
		if balance.Cmp(value) < 0 {
			return revert("insufficient native balance")
		}
		st.native[from] = new(big.Int).Sub(balance, value)
		st.native[to] = new(big.Int).Add(st.nativeOf(to), value)
	}

	if len(data) < 4 {
		return nil
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	if m.reverts[revertKey{to, sel}] {
		return revert("forced")
	}

	method, err := mockABI.MethodById(data[:4])
	if err != nil {
		return revert("unknown selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return revert("bad calldata")
	}

	_, isToken := m.tokens[to]
	switch {
	case to == m.safe && m.deployed && method.Name == "execTransaction":
		return m.execTransaction(st, args)

	case to == WETH && method.Name == "deposit":
		st.setToken(WETH, from, new(big.Int).Add(st.tokenOf(WETH, from), value))
		return nil

	case to == WETH && method.Name == "withdraw":
		amount := args[0].(*big.Int)
		balance := st.tokenOf(WETH, from)
		if balance.Cmp(amount) < 0 {
			return revert("insufficient WETH")
		}
		st.setToken(WETH, from, new(big.Int).Sub(balance, amount))
		st.native[from] = new(big.Int).Add(st.nativeOf(from), amount)
		st.native[WETH] = new(big.Int).Sub(st.nativeOf(WETH), amount)
		return nil

	case isToken && method.Name == "approve":
		st.setAllowance(to, from, args[0].(common.Address), args[1].(*big.Int))
		return nil

	case to == Settlement && method.Name == "setPreSignature":
		uid := args[0].([]byte)
		if len(uid) != 56 {
			return revert("GPv2: invalid uid")
		}
		if common.BytesToAddress(uid[32:52]) != from {
			return revert("GPv2: cannot presign order")
		}
		st.presigned[hexutil.Encode(uid)] = args[1].(bool)
		return nil
	}

	return revert(fmt.Sprintf("%s not supported on %s", method.Name, to.Hex()))
}

func (m *MockChain) execTransaction(st *chainState, args []interface{}) error {
	to := args[0].(common.Address)
	value := args[1].(*big.Int)
	data := args[2].([]byte)
	operation := args[3].(uint8)

	hash := safeTxHash(m.chainID, m.safe, to, value, data, operation,
		args[4].(*big.Int), args[5].(*big.Int), args[6].(*big.Int),
		args[7].(common.Address), args[8].(common.Address),
		new(big.Int).SetUint64(st.safeNonce))
	if err := m.checkSignatures(hash, args[9].([]byte)); err != nil {
		return err
	}
	st.safeNonce++

	var err error
	switch operation {
	case 0:
		err = m.execute(st, m.safe, to, value, data)
	case 1:
		err = m.delegateCall(st, to, data)
	default:
		err = revert("GS: invalid operation")
	}
	if err != nil {
		return revert("GS013")
	}
	return nil
}

func (m *MockChain) delegateCall(st *chainState, target common.Address, data []byte) error {
	if target != MultiSend && target != MultiSendCallOnly {
		return revert("delegatecall target not supported")
	}
	calls, err := decodeMultiSend(data)
	if err != nil {
		return revert(err.Error())
	}
	for _, call := range calls {
		if call.Operation != 0 {
			return revert("MultiSend: delegatecall not supported")
		}
		if err := m.execute(st, m.safe, call.To, call.Value, call.Data); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockChain) checkSignatures(hash common.Hash, signatures []byte) error {
	if m.threshold < 1 || len(signatures) < int(m.threshold)*65 {
		return revert("GS020")
	}
	for i := 0; i < int(m.threshold); i++ {
		sig := bytes.Clone(signatures[i*65 : (i+1)*65])
		if sig[64] < 27 {
			return revert("GS026: only ECDSA signatures supported")
		}
		sig[64] -= 27
		pub, err := crypto.SigToPub(hash.Bytes(), sig)
		if err != nil {
			return revert("GS026")
		}
		if !m.owners[crypto.PubkeyToAddress(*pub)] {
			return revert("GS026")
		}
	}
	return nil
}

func (m *MockChain) recordExecution(tx *types.Transaction, success bool) {
	if tx.To() == nil || *tx.To() != m.safe || len(tx.Data()) < 4 {
		return
	}
	method, err := mockABI.MethodById(tx.Data()[:4])
	if err != nil || method.Name != "execTransaction" {
		return
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return
	}

	exec := SafeExecution{
		TxHash:    tx.Hash(),
		To:        args[0].(common.Address),
		Value:     args[1].(*big.Int),
		Data:      args[2].([]byte),
		Operation: args[3].(uint8),
		Success:   success,
	}
	if exec.Operation == 1 {
		exec.Calls, _ = decodeMultiSend(exec.Data)
	} else {
		exec.Calls = []SubCall{{Operation: 0, To: exec.To, Value: exec.Value, Data: exec.Data}}
	}
	m.executions = append(m.executions, exec)
}

func decodeMultiSend(data []byte) ([]SubCall, error) {
	method := mockABI.Methods["multiSend"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, errors.New("not a multiSend call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	packed := args[0].([]byte)

	var calls []SubCall
	for i := 0; i < len(packed); {
		if len(packed)-i < 85 {
			return nil, errors.New("truncated multiSend payload")
		}
		length := new(big.Int).SetBytes(packed[i+53 : i+85]).Uint64()
		if uint64(len(packed)-i-85) < length {
			return nil, errors.New("multiSend data overruns payload")
		}
		calls = append(calls, SubCall{
			Operation: packed[i],
			To:        common.BytesToAddress(packed[i+1 : i+21]),
			Value:     new(big.Int).SetBytes(packed[i+21 : i+53]),
			Data:      bytes.Clone(packed[i+85 : i+85+int(length)]),
		})
		i += 85 + int(length)
	}
	return calls, nil
}
