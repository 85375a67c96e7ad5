package entity

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind is the name of a contract event the agent consumes.
type EventKind string

const (
	EventValidatorAdded                      EventKind = "ValidatorAdded"
	EventValidatorRemoved                    EventKind = "ValidatorRemoved"
	EventClusterDeposited                    EventKind = "ClusterDeposited"
	EventClusterWithdrawn                    EventKind = "ClusterWithdrawn"
	EventClusterReactivated                  EventKind = "ClusterReactivated"
	EventClusterLiquidated                   EventKind = "ClusterLiquidated"
	EventOperatorFeeExecuted                 EventKind = "OperatorFeeExecuted"
	EventLiquidationThresholdPeriodUpdated   EventKind = "LiquidationThresholdPeriodUpdated"
	EventMinimumLiquidationCollateralUpdated EventKind = "MinimumLiquidationCollateralUpdated"
)

// SupportedEventKinds lists every event the decoder keeps.
var SupportedEventKinds = []EventKind{
	EventValidatorAdded,
	EventValidatorRemoved,
	EventClusterDeposited,
	EventClusterWithdrawn,
	EventClusterReactivated,
	EventClusterLiquidated,
	EventOperatorFeeExecuted,
	EventLiquidationThresholdPeriodUpdated,
	EventMinimumLiquidationCollateralUpdated,
}

// EventMeta locates an event on chain.
type EventMeta struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Event is a decoded contract event.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
}

// ClusterEvent is implemented by events that carry a cluster identity and snapshot.
type ClusterEvent interface {
	Event
	ClusterOwner() common.Address
	ClusterOperatorIDs() []uint64
	ClusterSnapshot() json.RawMessage
}

// ClusterRef is the identity and snapshot shared by cluster events.
type ClusterRef struct {
	Owner       common.Address
	OperatorIDs []uint64
	Snapshot    json.RawMessage
}

func (r ClusterRef) ClusterOwner() common.Address     { return r.Owner }
func (r ClusterRef) ClusterOperatorIDs() []uint64     { return r.OperatorIDs }
func (r ClusterRef) ClusterSnapshot() json.RawMessage { return r.Snapshot }

type ValidatorAdded struct {
	EventMeta
	ClusterRef
	PublicKey []byte
}

func (e ValidatorAdded) Kind() EventKind { return EventValidatorAdded }
func (e ValidatorAdded) Meta() EventMeta { return e.EventMeta }

type ValidatorRemoved struct {
	EventMeta
	ClusterRef
	PublicKey []byte
}

func (e ValidatorRemoved) Kind() EventKind { return EventValidatorRemoved }
func (e ValidatorRemoved) Meta() EventMeta { return e.EventMeta }

type ClusterDeposited struct {
	EventMeta
	ClusterRef
	Value *big.Int
}

func (e ClusterDeposited) Kind() EventKind { return EventClusterDeposited }
func (e ClusterDeposited) Meta() EventMeta { return e.EventMeta }

type ClusterWithdrawn struct {
	EventMeta
	ClusterRef
	Value *big.Int
}

func (e ClusterWithdrawn) Kind() EventKind { return EventClusterWithdrawn }
func (e ClusterWithdrawn) Meta() EventMeta { return e.EventMeta }

type ClusterReactivated struct {
	EventMeta
	ClusterRef
}

func (e ClusterReactivated) Kind() EventKind { return EventClusterReactivated }
func (e ClusterReactivated) Meta() EventMeta { return e.EventMeta }

type ClusterLiquidated struct {
	EventMeta
	ClusterRef
}

func (e ClusterLiquidated) Kind() EventKind { return EventClusterLiquidated }
func (e ClusterLiquidated) Meta() EventMeta { return e.EventMeta }

// OperatorFeeExecuted is emitted when a new fee takes effect for one operator.
type OperatorFeeExecuted struct {
	EventMeta
	Owner      common.Address
	OperatorID uint64
	Fee        *big.Int
}

func (e OperatorFeeExecuted) Kind() EventKind { return EventOperatorFeeExecuted }
func (e OperatorFeeExecuted) Meta() EventMeta { return e.EventMeta }

type LiquidationThresholdPeriodUpdated struct {
	EventMeta
	Value uint64
}

func (e LiquidationThresholdPeriodUpdated) Kind() EventKind {
	return EventLiquidationThresholdPeriodUpdated
}
func (e LiquidationThresholdPeriodUpdated) Meta() EventMeta { return e.EventMeta }

type MinimumLiquidationCollateralUpdated struct {
	EventMeta
	Value *big.Int
}

func (e MinimumLiquidationCollateralUpdated) Kind() EventKind {
	return EventMinimumLiquidationCollateralUpdated
}
func (e MinimumLiquidationCollateralUpdated) Meta() EventMeta { return e.EventMeta }
