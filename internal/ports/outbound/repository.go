package outbound

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

// ClusterRepository persists the cluster projection.
// Every mutation is keyed by (owner, sorted operator ids).
type ClusterRepository interface {
	// Create inserts a stale cluster. An existing row with the same key gets the
	// new snapshot and is marked stale.
	Create(ctx context.Context, c *entity.Cluster) error

	// Get returns the cluster or nil when it does not exist.
	Get(ctx context.Context, owner common.Address, operatorIDs []uint64) (*entity.Cluster, error)

	// MarkStale replaces the snapshot and clears derived state, reactivating the
	// cluster. Returns the number of rows touched.
	MarkStale(ctx context.Context, owner common.Address, operatorIDs []uint64, snapshot json.RawMessage) (int64, error)

	// MarkStaleByOperator clears derived state of every non-liquidated cluster
	// whose operator list contains operatorID.
	MarkStaleByOperator(ctx context.Context, operatorID uint64) (int64, error)

	// MarkAllStale clears derived state of every non-liquidated cluster.
	MarkAllStale(ctx context.Context) (int64, error)

	// MarkLiquidated freezes the cluster.
	MarkLiquidated(ctx context.Context, owner common.Address, operatorIDs []uint64) error

	// UpdateMetrics writes burn rate, balance and liquidation block. A missing
	// row is not an error. When c.UpdatedAt is set the write only applies if the
	// row was not modified since c was read, so a refresh never overwrites a
	// newer stale mark.
	UpdateMetrics(ctx context.Context, c *entity.Cluster) error

	// FindStale returns up to limit clusters with no burn rate that are not liquidated.
	FindStale(ctx context.Context, limit int) ([]*entity.Cluster, error)

	// FindLiquidatable returns non-liquidated clusters whose liquidation block
	// is at or below currentBlock.
	FindLiquidatable(ctx context.Context, currentBlock int64) ([]*entity.Cluster, error)

	// CountActive counts non-liquidated clusters with a known burn rate.
	CountActive(ctx context.Context) (int64, error)

	// CountLiquidatable counts non-liquidated clusters whose liquidation block is
	// at or below currentBlock+window.
	CountLiquidatable(ctx context.Context, currentBlock, window int64) (int64, error)

	// List returns clusters ordered by liquidation block, unknown blocks last.
	List(ctx context.Context, limit int) ([]*entity.Cluster, error)
}

// EarningRepository persists liquidation earnings. Rows are append-only by hash.
type EarningRepository interface {
	Save(ctx context.Context, e *entity.Earning) error
	List(ctx context.Context, limit int) ([]*entity.Earning, error)
}

// SystemRepository is a small key/value store for cached protocol values and
// the sync cursor.
type SystemRepository interface {
	// Get returns the stored JSON value. found is false when the key is absent.
	Get(ctx context.Context, key entity.SystemType) (value json.RawMessage, found bool, err error)
	Save(ctx context.Context, key entity.SystemType, value json.RawMessage) error
}
