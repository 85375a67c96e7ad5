// Package ethereum implements the chain ports against an Ethereum JSON-RPC
// node using go-ethereum's ethclient. Every node request passes a shared
// rate limiter.
package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var (
	_ outbound.BlockReader     = (*Client)(nil)
	_ outbound.EventSource     = (*Client)(nil)
	_ outbound.ClusterViews    = (*Client)(nil)
	_ outbound.EarningResolver = (*Client)(nil)
)

// Backend is the subset of the node API the client uses.
// Satisfied by *ethclient.Client.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ClientConfig holds configuration for the chain client.
type ClientConfig struct {
	// RateLimitPerSec caps node requests per second. Zero disables limiting.
	RateLimitPerSec float64
	// RateBurst is the number of requests allowed at once.
	RateBurst int
	Logger    *slog.Logger
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		RateLimitPerSec: 20,
		RateBurst:       10,
		Logger:          slog.Default(),
	}
}

// Client reads contract state and events of one deployment.
type Client struct {
	backend  Backend
	contract *Contract
	limiter  *rate.Limiter
	logger   *slog.Logger
	events   *EventDecoder
}

// NewClient creates a chain client.
func NewClient(backend Backend, contract *Contract, config ClientConfig) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if contract == nil {
		return nil, fmt.Errorf("contract cannot be nil")
	}
	defaults := ClientConfigDefaults()
	if config.RateBurst <= 0 {
		config.RateBurst = defaults.RateBurst
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	events, err := NewEventDecoder(contract.ABI)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.RateLimitPerSec > 0 {
		limit = rate.Limit(config.RateLimitPerSec)
	}

	return &Client{
		backend:  backend,
		contract: contract,
		limiter:  rate.NewLimiter(limit, config.RateBurst),
		logger:   config.Logger.With("component", "chain-client"),
		events:   events,
	}, nil
}

// Contract returns the deployment the client talks to.
func (c *Client) Contract() *Contract {
	return c.contract
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return int64(n), nil
}

func (c *Client) GenesisBlock() int64 {
	return c.contract.GenesisBlock
}

func (c *Client) filterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.backend.FilterLogs(ctx, q)
}

func (c *Client) call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.backend.CallContract(ctx, msg, nil)
}
