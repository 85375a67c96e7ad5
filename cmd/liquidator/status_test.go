package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/adapters/outbound/memory"
	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	clusters := memory.NewClusterRepository()
	earnings := memory.NewEarningRepository()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	for _, ids := range [][]uint64{{1, 2}, {3}, {4}} {
		c, err := entity.NewCluster(owner, ids, json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("new cluster: %v", err)
		}
		if err := clusters.Create(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	due, _ := clusters.Get(ctx, owner, []uint64{3})
	block := int64(1400)
	_ = due.ApplyMetrics(big.NewInt(1), big.NewInt(500), &block)
	if err := clusters.UpdateMetrics(ctx, due); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := clusters.MarkLiquidated(ctx, owner, []uint64{4}); err != nil {
		t.Fatalf("mark liquidated: %v", err)
	}

	if err := earnings.Save(ctx, &entity.Earning{
		Hash:          common.HexToHash("0xbeef"),
		From:          owner,
		GasPrice:      big.NewInt(10),
		GasUsed:       100,
		Earned:        big.NewInt(700),
		EarnedAtBlock: 1401,
	}); err != nil {
		t.Fatalf("save earning: %v", err)
	}

	var out bytes.Buffer
	if err := printStatus(ctx, &out, clusters, earnings, 0); err != nil {
		t.Fatalf("print status: %v", err)
	}
	text := out.String()

	lines := strings.Split(text, "\n")
	if !strings.HasPrefix(lines[0], "OWNER") {
		t.Fatalf("expected header first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "active") || !strings.Contains(lines[1], "1400") {
		t.Errorf("expected the cluster with a liquidation block first, got %q", lines[1])
	}
	for _, want := range []string{"stale", "liquidated", "1401", "1000", "3 clusters, 1 liquidations, 700 earned"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q:\n%s", want, text)
		}
	}
}

func TestClusterState(t *testing.T) {
	c, _ := entity.NewCluster(common.HexToAddress("0x01"), []uint64{1}, json.RawMessage(`{}`))
	if got := clusterState(c); got != "stale" {
		t.Errorf("expected stale, got %s", got)
	}
	_ = c.ApplyMetrics(big.NewInt(0), big.NewInt(1), nil)
	if got := clusterState(c); got != "active" {
		t.Errorf("expected active, got %s", got)
	}
	c.MarkLiquidated()
	if got := clusterState(c); got != "liquidated" {
		t.Errorf("expected liquidated, got %s", got)
	}
}
