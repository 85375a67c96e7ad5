package ethereum

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

// EventDecoder turns contract logs into domain events.
type EventDecoder struct {
	events map[common.Hash]*abi.Event
	topics []common.Hash
}

// NewEventDecoder registers every supported event of the contract ABI.
func NewEventDecoder(contractABI *abi.ABI) (*EventDecoder, error) {
	d := &EventDecoder{events: make(map[common.Hash]*abi.Event)}
	for _, kind := range entity.SupportedEventKinds {
		event, ok := contractABI.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("%s event not found in ABI", kind)
		}
		d.events[event.ID] = &event
		d.topics = append(d.topics, event.ID)
	}
	return d, nil
}

// Topics returns the topic0 of every supported event.
func (d *EventDecoder) Topics() []common.Hash {
	return d.topics
}

// Decode parses a log. It returns nil for logs of events that are not tracked.
func (d *EventDecoder) Decode(log types.Log) (entity.Event, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}
	event, ok := d.events[log.Topics[0]]
	if !ok {
		return nil, nil
	}

	values := make(map[string]any)
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse %s topics: %w", event.Name, err)
		}
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s data: %w", event.Name, err)
	}

	meta := entity.EventMeta{BlockNumber: log.BlockNumber, TxHash: log.TxHash, LogIndex: log.Index}

	switch entity.EventKind(event.Name) {
	case entity.EventValidatorAdded:
		ref, err := clusterRef(values)
		if err != nil {
			return nil, err
		}
		return entity.ValidatorAdded{EventMeta: meta, ClusterRef: ref, PublicKey: bytesValue(values["publicKey"])}, nil
	case entity.EventValidatorRemoved:
		ref, err := clusterRef(values)
		if err != nil {
			return nil, err
		}
		return entity.ValidatorRemoved{EventMeta: meta, ClusterRef: ref, PublicKey: bytesValue(values["publicKey"])}, nil
	case entity.EventClusterDeposited:
		ref, err := clusterRef(values)
		if err != nil {
			return nil, err
		}
		return entity.ClusterDeposited{EventMeta: meta, ClusterRef: ref, Value: bigValue(values["value"])}, nil
	case entity.EventClusterWithdrawn:
		ref, err := clusterRef(values)
		if err != nil {
			return nil, err
		}
		return entity.ClusterWithdrawn{EventMeta: meta, ClusterRef: ref, Value: bigValue(values["value"])}, nil
	case entity.EventClusterReactivated:
		ref, err := clusterRef(values)
		if err != nil {
			return nil, err
		}
		return entity.ClusterReactivated{EventMeta: meta, ClusterRef: ref}, nil
	case entity.EventClusterLiquidated:
		ref, err := clusterRef(values)
		if err != nil {
			return nil, err
		}
		return entity.ClusterLiquidated{EventMeta: meta, ClusterRef: ref}, nil
	case entity.EventOperatorFeeExecuted:
		owner, _ := values["owner"].(common.Address)
		operatorID, ok := values["operatorId"].(uint64)
		if !ok {
			return nil, fmt.Errorf("OperatorFeeExecuted: missing operatorId")
		}
		return entity.OperatorFeeExecuted{EventMeta: meta, Owner: owner, OperatorID: operatorID, Fee: bigValue(values["fee"])}, nil
	case entity.EventLiquidationThresholdPeriodUpdated:
		value, ok := values["value"].(uint64)
		if !ok {
			return nil, fmt.Errorf("LiquidationThresholdPeriodUpdated: missing value")
		}
		return entity.LiquidationThresholdPeriodUpdated{EventMeta: meta, Value: value}, nil
	case entity.EventMinimumLiquidationCollateralUpdated:
		value := bigValue(values["value"])
		if value == nil {
			return nil, fmt.Errorf("MinimumLiquidationCollateralUpdated: missing value")
		}
		return entity.MinimumLiquidationCollateralUpdated{EventMeta: meta, Value: value}, nil
	}
	return nil, nil
}

// FetchEvents returns the supported events emitted by the contract in
// [from, to], ordered by block and log index.
func (c *Client) FetchEvents(ctx context.Context, from, to int64) ([]entity.Event, error) {
	decoder := c.events
	logs, err := c.filterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   big.NewInt(to),
		Addresses: []common.Address{c.contract.Address},
		Topics:    [][]common.Hash{decoder.Topics()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs [%d, %d]: %w", from, to, err)
	}

	slices.SortFunc(logs, func(a, b types.Log) int {
		return cmp.Or(cmp.Compare(a.BlockNumber, b.BlockNumber), cmp.Compare(a.Index, b.Index))
	})

	events := make([]entity.Event, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := decoder.Decode(log)
		if err != nil {
			return nil, fmt.Errorf("block %d tx %s: %w", log.BlockNumber, log.TxHash.Hex(), err)
		}
		if event != nil {
			events = append(events, event)
		}
	}

	c.logger.Debug("fetched events", "from", from, "to", to, "logs", len(logs), "events", len(events))
	return events, nil
}

func clusterRef(values map[string]any) (entity.ClusterRef, error) {
	owner, ok := values["owner"].(common.Address)
	if !ok {
		return entity.ClusterRef{}, fmt.Errorf("missing owner")
	}
	ids, ok := values["operatorIds"].([]uint64)
	if !ok {
		return entity.ClusterRef{}, fmt.Errorf("missing operatorIds")
	}
	raw, ok := values["cluster"]
	if !ok {
		return entity.ClusterRef{}, fmt.Errorf("missing cluster")
	}
	tuple := abi.ConvertType(raw, new(ClusterTuple)).(*ClusterTuple)
	snapshot, err := EncodeSnapshot(*tuple)
	if err != nil {
		return entity.ClusterRef{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return entity.ClusterRef{Owner: owner, OperatorIDs: ids, Snapshot: snapshot}, nil
}

func bigValue(v any) *big.Int {
	n, _ := v.(*big.Int)
	return n
}

func bytesValue(v any) []byte {
	b, _ := v.([]byte)
	return b
}
