package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var _ outbound.EarningRepository = (*EarningRepository)(nil)

// EarningRepository keeps earnings in insertion order.
type EarningRepository struct {
	mu     sync.RWMutex
	order  []common.Hash
	byHash map[common.Hash]entity.Earning
}

func NewEarningRepository() *EarningRepository {
	return &EarningRepository{byHash: make(map[common.Hash]entity.Earning)}
}

// Save ignores hashes that were already stored.
func (r *EarningRepository) Save(_ context.Context, e *entity.Earning) error {
	if err := e.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[e.Hash]; ok {
		return nil
	}
	stored := *e
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.byHash[e.Hash] = stored
	r.order = append(r.order, e.Hash)
	return nil
}

// List returns the most recent earnings first.
func (r *EarningRepository) List(_ context.Context, limit int) ([]*entity.Earning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Earning
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := r.byHash[r.order[i]]
		out = append(out, &e)
	}
	return out, nil
}
