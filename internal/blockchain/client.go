package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kelsos/safe-swap/internal/logger"
)

// ErrChainMismatch is returned when the node serves a different chain than the one requested
var ErrChainMismatch = errors.New("node chain id does not match configured chain")

// Reader is the query side of a node connection
type Reader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Writer is the transaction submission side of a node connection
type Writer interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Backend is a full node connection, satisfied by *ethclient.Client
type Backend interface {
	Reader
	Writer
	Close()
}

// DialFunc opens a node connection
type DialFunc func(ctx context.Context, rawURL string) (Backend, error)

// DialEthclient dials a JSON-RPC node with go-ethereum's client
func DialEthclient(ctx context.Context, rawURL string) (Backend, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Client is a node connection bound to a chain definition
type Client struct {
	Reader
	Writer
	Chain Chain

	chainID *big.Int
	backend Backend
}

// Connect dials rpcURL and checks that the node serves the requested chain.
// Connection errors are returned as they come.
func Connect(ctx context.Context, dial DialFunc, rpcURL string, chain Chain) (*Client, error) {
	if dial == nil {
		dial = DialEthclient
	}

	logger.Debug("Connecting to %s node", chain.Name)
	backend, err := dial(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s node: %w", chain.Name, err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	if chainID.Uint64() != chain.ID {
		backend.Close()
		return nil, fmt.Errorf("%w: node reports %s, %s is %d", ErrChainMismatch, chainID, chain.Name, chain.ID)
	}

	logger.Info("Connected to %s (chain id %d)", chain.Name, chain.ID)
	return &Client{
		Reader:  backend,
		Writer:  backend,
		Chain:   chain,
		chainID: chainID,
		backend: backend,
	}, nil
}

// ID returns the chain id the node reported at connect time
func (c *Client) ID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close closes the underlying connection
func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}
