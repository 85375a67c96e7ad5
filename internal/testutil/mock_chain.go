package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var (
	_ outbound.BlockReader     = (*MockChain)(nil)
	_ outbound.EventSource     = (*MockChain)(nil)
	_ outbound.ClusterViews    = (*MockChain)(nil)
	_ outbound.EarningResolver = (*MockChain)(nil)
	_ outbound.Submitter       = (*MockSubmitter)(nil)
)

// MockChain implements the read-side chain ports for testing. Unset functions
// return an error, except BlockNumber which returns Head.
type MockChain struct {
	mu sync.Mutex

	Head    int64
	Genesis int64

	FetchEventsFn                  func(ctx context.Context, from, to int64) ([]entity.Event, error)
	BurnRateFn                     func(ctx context.Context, c *entity.Cluster) (*big.Int, error)
	BalanceFn                      func(ctx context.Context, c *entity.Cluster) (*big.Int, error)
	IsLiquidatedFn                 func(ctx context.Context, c *entity.Cluster) (bool, error)
	IsLiquidatableFn               func(ctx context.Context, c *entity.Cluster) (bool, error)
	MinimumLiquidationCollateralFn func(ctx context.Context) (*big.Int, error)
	LiquidationThresholdPeriodFn   func(ctx context.Context) (uint64, error)
	ResolveFn                      func(ctx context.Context, txHash common.Hash) (*entity.Earning, error)

	// Ranges records every FetchEvents call.
	Ranges [][2]int64
	Calls  map[string]int
}

func NewMockChain(head int64) *MockChain {
	return &MockChain{Head: head, Calls: make(map[string]int)}
}

func (m *MockChain) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[name]++
}

// CallCount returns how often a method was called.
func (m *MockChain) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *MockChain) BlockNumber(context.Context) (int64, error) {
	m.record("BlockNumber")
	return m.Head, nil
}

func (m *MockChain) GenesisBlock() int64 {
	return m.Genesis
}

func (m *MockChain) FetchEvents(ctx context.Context, from, to int64) ([]entity.Event, error) {
	m.record("FetchEvents")
	m.mu.Lock()
	m.Ranges = append(m.Ranges, [2]int64{from, to})
	m.mu.Unlock()
	if m.FetchEventsFn != nil {
		return m.FetchEventsFn(ctx, from, to)
	}
	return nil, nil
}

func (m *MockChain) BurnRate(ctx context.Context, c *entity.Cluster) (*big.Int, error) {
	m.record("BurnRate")
	if m.BurnRateFn != nil {
		return m.BurnRateFn(ctx, c)
	}
	return nil, errors.New("BurnRate not mocked")
}

func (m *MockChain) Balance(ctx context.Context, c *entity.Cluster) (*big.Int, error) {
	m.record("Balance")
	if m.BalanceFn != nil {
		return m.BalanceFn(ctx, c)
	}
	return nil, errors.New("Balance not mocked")
}

func (m *MockChain) IsLiquidated(ctx context.Context, c *entity.Cluster) (bool, error) {
	m.record("IsLiquidated")
	if m.IsLiquidatedFn != nil {
		return m.IsLiquidatedFn(ctx, c)
	}
	return false, errors.New("IsLiquidated not mocked")
}

func (m *MockChain) IsLiquidatable(ctx context.Context, c *entity.Cluster) (bool, error) {
	m.record("IsLiquidatable")
	if m.IsLiquidatableFn != nil {
		return m.IsLiquidatableFn(ctx, c)
	}
	return false, errors.New("IsLiquidatable not mocked")
}

func (m *MockChain) MinimumLiquidationCollateral(ctx context.Context) (*big.Int, error) {
	m.record("MinimumLiquidationCollateral")
	if m.MinimumLiquidationCollateralFn != nil {
		return m.MinimumLiquidationCollateralFn(ctx)
	}
	return nil, errors.New("MinimumLiquidationCollateral not mocked")
}

func (m *MockChain) LiquidationThresholdPeriod(ctx context.Context) (uint64, error) {
	m.record("LiquidationThresholdPeriod")
	if m.LiquidationThresholdPeriodFn != nil {
		return m.LiquidationThresholdPeriodFn(ctx)
	}
	return 0, errors.New("LiquidationThresholdPeriod not mocked")
}

func (m *MockChain) Resolve(ctx context.Context, txHash common.Hash) (*entity.Earning, error) {
	m.record("Resolve")
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, txHash)
	}
	return nil, errors.New("Resolve not mocked")
}

// MockSubmitter implements outbound.Submitter for testing.
type MockSubmitter struct {
	mu sync.Mutex

	Agent common.Address

	LiquidateFn func(ctx context.Context, c *entity.Cluster) (common.Hash, error)
	WaitMinedFn func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceFn   func(ctx context.Context) (*big.Int, error)

	// Submitted lists the keys of clusters passed to Liquidate, in call order.
	Submitted []string
}

func (m *MockSubmitter) Address() common.Address {
	return m.Agent
}

func (m *MockSubmitter) Liquidate(ctx context.Context, c *entity.Cluster) (common.Hash, error) {
	m.mu.Lock()
	m.Submitted = append(m.Submitted, c.Key())
	m.mu.Unlock()
	if m.LiquidateFn != nil {
		return m.LiquidateFn(ctx, c)
	}
	return common.Hash{}, errors.New("Liquidate not mocked")
}

func (m *MockSubmitter) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if m.WaitMinedFn != nil {
		return m.WaitMinedFn(ctx, txHash)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func (m *MockSubmitter) Balance(ctx context.Context) (*big.Int, error) {
	if m.BalanceFn != nil {
		return m.BalanceFn(ctx)
	}
	return big.NewInt(0), nil
}

// SubmittedKeys returns a copy of Submitted.
func (m *MockSubmitter) SubmittedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Submitted...)
}

// RevertError mimics a node error carrying revert data.
type RevertError struct {
	Data string
}

func (e RevertError) Error() string          { return "execution reverted" }
func (e RevertError) ErrorData() interface{} { return e.Data }
