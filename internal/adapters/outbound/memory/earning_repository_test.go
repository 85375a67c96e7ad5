package memory

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

func TestEarningRepository_SaveIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewEarningRepository()

	first := &entity.Earning{Hash: common.HexToHash("0x01"), From: ownerX, EarnedAtBlock: 10, Earned: big.NewInt(5)}
	second := &entity.Earning{Hash: common.HexToHash("0x02"), From: ownerX, EarnedAtBlock: 20}
	for _, e := range []*entity.Earning{first, second, first} {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	all, _ := repo.List(ctx, 0)
	if len(all) != 2 {
		t.Fatalf("expected 2 earnings, got %d", len(all))
	}
	if all[0].Hash != second.Hash {
		t.Errorf("expected newest first, got %s", all[0].Hash.Hex())
	}
	if all[1].CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	limited, _ := repo.List(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("expected 1 earning with limit, got %d", len(limited))
	}

	if err := repo.Save(ctx, &entity.Earning{Hash: common.HexToHash("0x03")}); err == nil {
		t.Error("expected validation error for missing sender")
	}
}

func TestSystemRepository_GetSave(t *testing.T) {
	ctx := context.Background()
	repo := NewSystemRepository()

	if _, found, _ := repo.Get(ctx, entity.SystemLiquidationThresholdPeriod); found {
		t.Fatal("expected missing key")
	}

	value := json.RawMessage(`"214800"`)
	if err := repo.Save(ctx, entity.SystemLiquidationThresholdPeriod, value); err != nil {
		t.Fatalf("save: %v", err)
	}
	value[1] = '9'

	got, found, err := repo.Get(ctx, entity.SystemLiquidationThresholdPeriod)
	if err != nil || !found {
		t.Fatalf("expected value, got found=%v err=%v", found, err)
	}
	if string(got) != `"214800"` {
		t.Errorf("stored value must not alias the caller's slice, got %s", got)
	}
}
