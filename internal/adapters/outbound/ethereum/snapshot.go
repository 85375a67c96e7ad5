package ethereum

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

// ClusterTuple mirrors the ISSVNetworkCore.Cluster struct passed to every
// cluster call. Field names follow the ABI component names.
type ClusterTuple struct {
	ValidatorCount  uint32
	NetworkFeeIndex uint64
	Index           uint64
	Active          bool
	Balance         *big.Int
}

// snapshotJSON is the stored form of a ClusterTuple. Wide integers are kept
// as decimal strings; plain JSON numbers are accepted when reading.
type snapshotJSON struct {
	ValidatorCount  json.Number `json:"validatorCount"`
	NetworkFeeIndex json.Number `json:"networkFeeIndex"`
	Index           json.Number `json:"index"`
	Active          bool        `json:"active"`
	Balance         json.Number `json:"balance"`
}

// EncodeSnapshot renders the tuple emitted by an event as a stored snapshot.
func EncodeSnapshot(t ClusterTuple) (json.RawMessage, error) {
	balance := "0"
	if t.Balance != nil {
		balance = t.Balance.String()
	}
	return json.Marshal(map[string]any{
		"validatorCount":  t.ValidatorCount,
		"networkFeeIndex": strconv.FormatUint(t.NetworkFeeIndex, 10),
		"index":           strconv.FormatUint(t.Index, 10),
		"active":          t.Active,
		"balance":         balance,
	})
}

// DecodeSnapshot turns a stored snapshot back into the call argument.
func DecodeSnapshot(raw json.RawMessage) (ClusterTuple, error) {
	var s snapshotJSON
	if err := json.Unmarshal(raw, &s); err != nil {
		return ClusterTuple{}, fmt.Errorf("%w: %v", entity.ErrInvalidSnapshot, err)
	}

	validatorCount, err := parseUint(s.ValidatorCount, 32)
	if err != nil {
		return ClusterTuple{}, fmt.Errorf("%w: validatorCount: %v", entity.ErrInvalidSnapshot, err)
	}
	networkFeeIndex, err := parseUint(s.NetworkFeeIndex, 64)
	if err != nil {
		return ClusterTuple{}, fmt.Errorf("%w: networkFeeIndex: %v", entity.ErrInvalidSnapshot, err)
	}
	index, err := parseUint(s.Index, 64)
	if err != nil {
		return ClusterTuple{}, fmt.Errorf("%w: index: %v", entity.ErrInvalidSnapshot, err)
	}
	balance := new(big.Int)
	if s.Balance != "" {
		if _, ok := balance.SetString(s.Balance.String(), 10); !ok || balance.Sign() < 0 {
			return ClusterTuple{}, fmt.Errorf("%w: balance %q", entity.ErrInvalidSnapshot, s.Balance)
		}
	}

	return ClusterTuple{
		ValidatorCount:  uint32(validatorCount),
		NetworkFeeIndex: networkFeeIndex,
		Index:           index,
		Active:          s.Active,
		Balance:         balance,
	}, nil
}

func parseUint(n json.Number, bits int) (uint64, error) {
	if n == "" {
		return 0, nil
	}
	return strconv.ParseUint(n.String(), 10, bits)
}
