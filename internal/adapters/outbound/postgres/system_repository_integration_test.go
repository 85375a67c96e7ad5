//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/testutil"
)

func TestSystemRepository_Upsert(t *testing.T) {
	pool, cleanup := testutil.SetupPostgres(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	repo, err := NewSystemRepository(pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	if _, found, err := repo.Get(ctx, entity.SystemLastSyncedBlock); err != nil || found {
		t.Fatalf("expected missing key, got found=%v err=%v", found, err)
	}

	for _, v := range []string{`"100"`, `"250"`} {
		if err := repo.Save(ctx, entity.SystemLastSyncedBlock, json.RawMessage(v)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	raw, found, err := repo.Get(ctx, entity.SystemLastSyncedBlock)
	if err != nil || !found {
		t.Fatalf("expected value, got found=%v err=%v", found, err)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != "250" {
		t.Errorf("expected latest value 250, got %q", got)
	}

	if err := repo.Save(ctx, entity.SystemMinimumLiquidationCollateral, json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
