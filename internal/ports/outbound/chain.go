// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

// BlockReader reads the current chain height.
type BlockReader interface {
	// BlockNumber returns the latest block number known to the node.
	BlockNumber(ctx context.Context) (int64, error)
}

// EventSource fetches decoded contract events.
type EventSource interface {
	// GenesisBlock is the block the contract was deployed at. Sync starts here
	// when no cursor has been persisted yet.
	GenesisBlock() int64

	// FetchEvents returns every supported event emitted in [from, to], inclusive,
	// in emission order. Unknown events are dropped.
	FetchEvents(ctx context.Context, from, to int64) ([]entity.Event, error)
}

// ClusterViews wraps the read-only contract methods. Errors may carry revert
// data that decodes to a protocol error.
type ClusterViews interface {
	BurnRate(ctx context.Context, c *entity.Cluster) (*big.Int, error)
	Balance(ctx context.Context, c *entity.Cluster) (*big.Int, error)
	IsLiquidated(ctx context.Context, c *entity.Cluster) (bool, error)
	IsLiquidatable(ctx context.Context, c *entity.Cluster) (bool, error)
	MinimumLiquidationCollateral(ctx context.Context) (*big.Int, error)
	LiquidationThresholdPeriod(ctx context.Context) (uint64, error)
}

// EarningResolver reads the outcome of a liquidation transaction.
type EarningResolver interface {
	// Resolve returns gas accounting and the reward transferred to the agent.
	// Earned is nil when no reward transfer was found.
	Resolve(ctx context.Context, txHash common.Hash) (*entity.Earning, error)
}

// Submitter signs and sends liquidation transactions with the agent's key.
type Submitter interface {
	// Address is the agent's own address.
	Address() common.Address

	// Liquidate builds, signs and sends the liquidation transaction and returns
	// its hash once the node accepted it.
	Liquidate(ctx context.Context, c *entity.Cluster) (common.Hash, error)

	// WaitMined blocks until the receipt is available. A reverted receipt is
	// returned together with an error carrying the revert data when the node
	// provides it.
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Balance returns the agent's ETH balance in wei.
	Balance(ctx context.Context) (*big.Int, error)
}
