package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidSnapshot is returned when a cluster snapshot is not valid JSON.
var ErrInvalidSnapshot = errors.New("invalid cluster snapshot")

// Cluster is the local projection of an on-chain staking account.
//
// A cluster is identified by its owner and the sorted list of operator ids.
// Snapshot is the protocol's own representation of the account as returned in
// events; it is stored verbatim and handed back to view calls.
type Cluster struct {
	ID          int64
	Owner       common.Address
	OperatorIDs []uint64
	Snapshot    json.RawMessage

	// BurnRate is nil while the derived state is stale.
	BurnRate               *big.Int
	Balance                *big.Int
	IsLiquidated           bool
	LiquidationBlockNumber *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCluster creates a stale cluster from a validator-added event.
func NewCluster(owner common.Address, operatorIDs []uint64, snapshot json.RawMessage) (*Cluster, error) {
	c := &Cluster{
		Owner:       owner,
		OperatorIDs: SortOperatorIDs(operatorIDs),
		Snapshot:    snapshot,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks identity fields and the stale-state invariant.
func (c *Cluster) Validate() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("owner must not be the zero address")
	}
	if len(c.OperatorIDs) == 0 {
		return fmt.Errorf("operatorIDs must not be empty")
	}
	if !slices.IsSorted(c.OperatorIDs) {
		return fmt.Errorf("operatorIDs must be sorted ascending, got %v", c.OperatorIDs)
	}
	if !json.Valid(c.Snapshot) {
		return fmt.Errorf("cluster %s: %w", c.Key(), ErrInvalidSnapshot)
	}
	if c.BurnRate == nil && c.LiquidationBlockNumber != nil {
		return fmt.Errorf("cluster %s: liquidation block set without burn rate", c.Key())
	}
	if c.BurnRate != nil && c.BurnRate.Sign() < 0 {
		return fmt.Errorf("cluster %s: burn rate must be non-negative", c.Key())
	}
	return nil
}

// IsStale reports whether the derived state needs a refresh.
func (c *Cluster) IsStale() bool {
	return c.BurnRate == nil && !c.IsLiquidated
}

// MarkStale replaces the snapshot and clears every derived field.
func (c *Cluster) MarkStale(snapshot json.RawMessage) {
	if len(snapshot) > 0 {
		c.Snapshot = snapshot
	}
	c.BurnRate = nil
	c.Balance = nil
	c.LiquidationBlockNumber = nil
	c.IsLiquidated = false
}

// MarkLiquidated freezes the cluster once the chain confirmed liquidation.
func (c *Cluster) MarkLiquidated() {
	c.BurnRate = nil
	c.Balance = nil
	c.LiquidationBlockNumber = nil
	c.IsLiquidated = true
}

// ApplyMetrics stores freshly computed values. A nil liquidation block is
// accepted for clusters that never run out (zero burn rate).
func (c *Cluster) ApplyMetrics(burnRate, balance *big.Int, liquidationBlock *int64) error {
	if burnRate == nil {
		return fmt.Errorf("cluster %s: burn rate must not be nil", c.Key())
	}
	c.BurnRate = new(big.Int).Set(burnRate)
	if balance != nil {
		c.Balance = new(big.Int).Set(balance)
	} else {
		c.Balance = nil
	}
	c.LiquidationBlockNumber = liquidationBlock
	c.IsLiquidated = false
	return nil
}

// HasOperator reports whether the operator participates in the cluster.
func (c *Cluster) HasOperator(id uint64) bool {
	_, found := slices.BinarySearch(c.OperatorIDs, id)
	return found
}

// Key returns the composite identity "owner:id1,id2".
func (c *Cluster) Key() string {
	return ClusterKey(c.Owner, c.OperatorIDs)
}

// OperatorIDsString joins the operator ids with commas.
func (c *Cluster) OperatorIDsString() string {
	return JoinOperatorIDs(c.OperatorIDs)
}

// ClusterKey builds the composite identity used by every repository.
func ClusterKey(owner common.Address, operatorIDs []uint64) string {
	return strings.ToLower(owner.Hex()) + ":" + JoinOperatorIDs(SortOperatorIDs(operatorIDs))
}

// SortOperatorIDs returns a sorted copy.
func SortOperatorIDs(ids []uint64) []uint64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return sorted
}

// JoinOperatorIDs formats ids as "1,2,3".
func JoinOperatorIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
