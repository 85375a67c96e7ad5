package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/cluster-liquidator/internal/testutil"
)

// testKey is a throwaway key used only by these tests.
const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// fakeBackend implements Backend for testing. Unset functions return an error.
type fakeBackend struct {
	mu sync.Mutex

	BlockNumberFn        func(ctx context.Context) (uint64, error)
	CallContractFn       func(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	FilterLogsFn         func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHashFn  func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceiptFn func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	EstimateGasFn        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	ChainIDValue  *big.Int
	Nonce         uint64
	GasPrice      *big.Int
	AccountWei    *big.Int
	Sent          []*types.Transaction
	FilterQueries []ethereum.FilterQuery
}

var _ Backend = (*fakeBackend)(nil)

var errNotMocked = errors.New("not mocked")

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if f.BlockNumberFn != nil {
		return f.BlockNumberFn(ctx)
	}
	return 0, errNotMocked
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	if f.ChainIDValue == nil {
		return big.NewInt(1), nil
	}
	return f.ChainIDValue, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if f.CallContractFn != nil {
		return f.CallContractFn(ctx, msg, block)
	}
	return nil, errNotMocked
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.FilterQueries = append(f.FilterQueries, q)
	f.mu.Unlock()
	if f.FilterLogsFn != nil {
		return f.FilterLogsFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.TransactionByHashFn != nil {
		return f.TransactionByHashFn(ctx, hash)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.Sent {
		if tx.Hash() == hash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.TransactionReceiptFn != nil {
		return f.TransactionReceiptFn(ctx, hash)
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.EstimateGasFn != nil {
		return f.EstimateGasFn(ctx, msg)
	}
	return 0, errNotMocked
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.GasPrice == nil {
		return nil, errNotMocked
	}
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.Nonce, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, tx)
	return nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.AccountWei == nil {
		return nil, errNotMocked
	}
	return f.AccountWei, nil
}

func loadMainnet(t *testing.T) *Contract {
	t.Helper()
	contract, err := LoadContract("prod", "v4.mainnet")
	if err != nil {
		t.Fatalf("load contract: %v", err)
	}
	return contract
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	client, err := NewClient(backend, loadMainnet(t), ClientConfig{Logger: testutil.DiscardLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
