// Package memory provides in-process implementations of the repository ports.
// They back the status command in dry runs and the service tests.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var _ outbound.ClusterRepository = (*ClusterRepository)(nil)

// ClusterRepository keeps clusters in a map keyed by entity.ClusterKey.
type ClusterRepository struct {
	mu       sync.RWMutex
	nextID   int64
	clusters map[string]*entity.Cluster
}

// NewClusterRepository creates an empty repository.
func NewClusterRepository() *ClusterRepository {
	return &ClusterRepository{clusters: make(map[string]*entity.Cluster)}
}

func (r *ClusterRepository) Create(_ context.Context, c *entity.Cluster) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := c.Key()
	if existing, ok := r.clusters[key]; ok {
		existing.MarkStale(c.Snapshot)
		existing.UpdatedAt = time.Now()
		return nil
	}
	r.nextID++
	stored := clone(c)
	stored.ID = r.nextID
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.clusters[key] = stored
	return nil
}

func (r *ClusterRepository) Get(_ context.Context, owner common.Address, operatorIDs []uint64) (*entity.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clusters[entity.ClusterKey(owner, operatorIDs)]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (r *ClusterRepository) MarkStale(_ context.Context, owner common.Address, operatorIDs []uint64, snapshot json.RawMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[entity.ClusterKey(owner, operatorIDs)]
	if !ok {
		return 0, nil
	}
	c.MarkStale(snapshot)
	c.UpdatedAt = time.Now()
	return 1, nil
}

func (r *ClusterRepository) MarkStaleByOperator(_ context.Context, operatorID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, c := range r.clusters {
		if c.IsLiquidated || !c.HasOperator(operatorID) {
			continue
		}
		c.MarkStale(nil)
		c.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (r *ClusterRepository) MarkAllStale(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, c := range r.clusters {
		if c.IsLiquidated {
			continue
		}
		c.MarkStale(nil)
		c.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (r *ClusterRepository) MarkLiquidated(_ context.Context, owner common.Address, operatorIDs []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clusters[entity.ClusterKey(owner, operatorIDs)]; ok {
		c.MarkLiquidated()
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (r *ClusterRepository) UpdateMetrics(_ context.Context, c *entity.Cluster) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.clusters[c.Key()]
	if !ok {
		return nil
	}
	if !c.UpdatedAt.IsZero() && !stored.UpdatedAt.Equal(c.UpdatedAt) {
		return nil
	}
	stored.BurnRate = copyBig(c.BurnRate)
	stored.Balance = copyBig(c.Balance)
	stored.LiquidationBlockNumber = copyInt(c.LiquidationBlockNumber)
	stored.IsLiquidated = c.IsLiquidated
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *ClusterRepository) FindStale(_ context.Context, limit int) ([]*entity.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Cluster
	for _, c := range r.sortedLocked() {
		if len(out) >= limit {
			break
		}
		if c.IsStale() {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (r *ClusterRepository) FindLiquidatable(_ context.Context, currentBlock int64) ([]*entity.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Cluster
	for _, c := range r.sortedLocked() {
		if !c.IsLiquidated && c.LiquidationBlockNumber != nil && *c.LiquidationBlockNumber <= currentBlock {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (r *ClusterRepository) CountActive(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, c := range r.clusters {
		if !c.IsLiquidated && c.BurnRate != nil {
			n++
		}
	}
	return n, nil
}

func (r *ClusterRepository) CountLiquidatable(_ context.Context, currentBlock, window int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, c := range r.clusters {
		if !c.IsLiquidated && c.LiquidationBlockNumber != nil && *c.LiquidationBlockNumber <= currentBlock+window {
			n++
		}
	}
	return n, nil
}

func (r *ClusterRepository) List(_ context.Context, limit int) ([]*entity.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sortedLocked()
	slices.SortStableFunc(all, func(a, b *entity.Cluster) int {
		switch {
		case a.LiquidationBlockNumber == nil && b.LiquidationBlockNumber == nil:
			return 0
		case a.LiquidationBlockNumber == nil:
			return 1
		case b.LiquidationBlockNumber == nil:
			return -1
		}
		return cmp.Compare(*a.LiquidationBlockNumber, *b.LiquidationBlockNumber)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*entity.Cluster, len(all))
	for i, c := range all {
		out[i] = clone(c)
	}
	return out, nil
}

// sortedLocked returns stored clusters in insertion order.
func (r *ClusterRepository) sortedLocked() []*entity.Cluster {
	all := make([]*entity.Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		all = append(all, c)
	}
	slices.SortFunc(all, func(a, b *entity.Cluster) int { return cmp.Compare(a.ID, b.ID) })
	return all
}

func clone(c *entity.Cluster) *entity.Cluster {
	cp := *c
	cp.OperatorIDs = slices.Clone(c.OperatorIDs)
	cp.Snapshot = slices.Clone(c.Snapshot)
	cp.BurnRate = copyBig(c.BurnRate)
	cp.Balance = copyBig(c.Balance)
	cp.LiquidationBlockNumber = copyInt(c.LiquidationBlockNumber)
	return &cp
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
