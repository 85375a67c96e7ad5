package memory

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

var (
	ownerX   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	ownerY   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	snapshot = json.RawMessage(`{"validatorCount":1}`)
)

func seed(t *testing.T, repo *ClusterRepository, owner common.Address, ids []uint64, burnRate int64, block int64) {
	t.Helper()
	ctx := context.Background()
	c, err := entity.NewCluster(owner, ids, snapshot)
	if err != nil {
		t.Fatalf("new cluster: %v", err)
	}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if burnRate >= 0 {
		_ = c.ApplyMetrics(big.NewInt(burnRate), big.NewInt(1000), &block)
		if err := repo.UpdateMetrics(ctx, c); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
}

func TestClusterRepository_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewClusterRepository()
	seed(t, repo, ownerX, []uint64{1, 2}, 10, 500)

	again, _ := entity.NewCluster(ownerX, []uint64{2, 1}, json.RawMessage(`{"validatorCount":2}`))
	if err := repo.Create(ctx, again); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, _ := repo.List(ctx, 0)
	if len(all) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(all))
	}
	if all[0].BurnRate != nil {
		t.Error("re-added cluster must be stale")
	}
	if string(all[0].Snapshot) != `{"validatorCount":2}` {
		t.Errorf("expected new snapshot, got %s", all[0].Snapshot)
	}
}

func TestClusterRepository_MarkStaleByOperator(t *testing.T) {
	ctx := context.Background()
	repo := NewClusterRepository()
	seed(t, repo, ownerX, []uint64{1, 2, 3}, 10, 500)
	seed(t, repo, ownerY, []uint64{3, 4}, 10, 500)
	seed(t, repo, ownerY, []uint64{13, 31}, 10, 500)

	n, err := repo.MarkStaleByOperator(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 clusters touched, got %d", n)
	}
	untouched, _ := repo.Get(ctx, ownerY, []uint64{13, 31})
	if untouched.BurnRate == nil {
		t.Error("operator 3 must not match 13 or 31")
	}
}

func TestClusterRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewClusterRepository()
	seed(t, repo, ownerX, []uint64{1}, 10, 100)
	seed(t, repo, ownerX, []uint64{2}, 10, 300)
	seed(t, repo, ownerY, []uint64{1}, -1, 0)
	if err := repo.MarkLiquidated(ctx, ownerX, []uint64{2}); err != nil {
		t.Fatalf("mark liquidated: %v", err)
	}

	stale, _ := repo.FindStale(ctx, 10)
	if len(stale) != 1 || stale[0].Owner != ownerY {
		t.Errorf("expected only ownerY stale, got %d", len(stale))
	}

	due, _ := repo.FindLiquidatable(ctx, 200)
	if len(due) != 1 || due[0].OperatorIDsString() != "1" {
		t.Errorf("expected one liquidatable cluster, got %d", len(due))
	}

	active, _ := repo.CountActive(ctx)
	if active != 1 {
		t.Errorf("expected 1 active, got %d", active)
	}

	n, _ := repo.MarkAllStale(ctx)
	if n != 2 {
		t.Errorf("expected 2 non-liquidated clusters marked stale, got %d", n)
	}
	frozen, _ := repo.Get(ctx, ownerX, []uint64{2})
	if !frozen.IsLiquidated {
		t.Error("MarkAllStale must skip liquidated clusters")
	}
}

func TestClusterRepository_UpdateMetricsSkipsConcurrentStaleMark(t *testing.T) {
	ctx := context.Background()
	repo := NewClusterRepository()
	seed(t, repo, ownerX, []uint64{1, 2}, -1, 0)

	read, _ := repo.Get(ctx, ownerX, []uint64{1, 2})
	if _, err := repo.MarkStale(ctx, ownerX, []uint64{1, 2}, json.RawMessage(`{"validatorCount":3}`)); err != nil {
		t.Fatalf("mark stale: %v", err)
	}

	block := int64(900)
	_ = read.ApplyMetrics(big.NewInt(5), big.NewInt(100), &block)
	if err := repo.UpdateMetrics(ctx, read); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := repo.Get(ctx, ownerX, []uint64{1, 2})
	if !got.IsStale() {
		t.Error("metrics computed from an older read must not overwrite a newer stale mark")
	}
	if string(got.Snapshot) != `{"validatorCount":3}` {
		t.Errorf("expected new snapshot, got %s", got.Snapshot)
	}

	// A fresh read applies.
	_ = got.ApplyMetrics(big.NewInt(5), big.NewInt(100), &block)
	if err := repo.UpdateMetrics(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if again, _ := repo.Get(ctx, ownerX, []uint64{1, 2}); again.IsStale() {
		t.Error("expected metrics from a current read to apply")
	}
}
