package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

// SystemValues reads and writes typed values in the System store.
// Numbers are stored as JSON strings so that uint256 values survive.
type SystemValues struct {
	repo outbound.SystemRepository
}

// NewSystemValues wraps a SystemRepository.
func NewSystemValues(repo outbound.SystemRepository) *SystemValues {
	return &SystemValues{repo: repo}
}

// GetInt64 returns the stored value, or found=false when absent.
func (s *SystemValues) GetInt64(ctx context.Context, key entity.SystemType) (int64, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, true, nil
}

// SetInt64 stores an integer value.
func (s *SystemValues) SetInt64(ctx context.Context, key entity.SystemType, v int64) error {
	return s.set(ctx, key, strconv.FormatInt(v, 10))
}

// GetBigInt returns the stored value, or found=false when absent.
func (s *SystemValues) GetBigInt(ctx context.Context, key entity.SystemType) (*big.Int, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false, fmt.Errorf("parsing %s: invalid integer %q", key, raw)
	}
	return v, true, nil
}

// SetBigInt stores a big integer value.
func (s *SystemValues) SetBigInt(ctx context.Context, key entity.SystemType, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("saving %s: nil value", key)
	}
	return s.set(ctx, key, v.String())
}

// AdvanceCursor stores block as the last synced block unless the stored value
// is already higher. It reports whether the cursor moved.
func (s *SystemValues) AdvanceCursor(ctx context.Context, block int64) (bool, error) {
	current, found, err := s.GetInt64(ctx, entity.SystemLastSyncedBlock)
	if err != nil {
		return false, err
	}
	if found && block <= current {
		return false, nil
	}
	if err := s.SetInt64(ctx, entity.SystemLastSyncedBlock, block); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SystemValues) get(ctx context.Context, key entity.SystemType) (string, bool, error) {
	value, found, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("loading %s: %w", key, err)
	}
	if !found {
		return "", false, nil
	}

	// Accept both "123" and 123.
	var str string
	if err := json.Unmarshal(value, &str); err == nil {
		return str, true, nil
	}
	var num json.Number
	dec := json.NewDecoder(strings.NewReader(string(value)))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return "", false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return num.String(), true, nil
}

func (s *SystemValues) set(ctx context.Context, key entity.SystemType, v string) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.repo.Save(ctx, key, value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
