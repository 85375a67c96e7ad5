package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var _ outbound.SystemRepository = (*SystemRepository)(nil)

type SystemRepository struct {
	mu     sync.RWMutex
	values map[entity.SystemType]json.RawMessage
}

func NewSystemRepository() *SystemRepository {
	return &SystemRepository{values: make(map[entity.SystemType]json.RawMessage)}
}

func (r *SystemRepository) Get(_ context.Context, key entity.SystemType) (json.RawMessage, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	return slices.Clone(v), ok, nil
}

func (r *SystemRepository) Save(_ context.Context, key entity.SystemType, value json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = slices.Clone(value)
	return nil
}
