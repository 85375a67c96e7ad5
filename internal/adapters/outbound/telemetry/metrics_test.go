package telemetry

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_TaskStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "fetch", "liquidation")
	ctx := context.Background()

	m.SetTaskStatus(ctx, "fetch", true)
	m.SetTaskStatus(ctx, "liquidation", false)
	m.SetTaskStatus(ctx, "unknown", true)

	if got := testutil.ToFloat64(m.taskStatus["fetch"]); got != 1 {
		t.Errorf("expected fetch_status 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.taskStatus["liquidation"]); got != 0 {
		t.Errorf("expected liquidation_status 0, got %v", got)
	}

	expected := `
# HELP fetch_status 1 when the last fetch run succeeded
# TYPE fetch_status gauge
fetch_status 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fetch_status"); err != nil {
		t.Error(err)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	m.SetLastSyncedBlock(ctx, 17_600_000)
	m.SetActiveClusters(ctx, 12)
	m.SetLiquidatableClusters(ctx, 3)
	m.SetCriticalStatus(ctx, true)

	tests := []struct {
		name     string
		gauge    prometheus.Gauge
		expected float64
	}{
		{"last_synced_block", m.lastSyncedBlock, 17_600_000},
		{"active_clusters", m.activeClusters, 12},
		{"liquidatable_clusters", m.liquidatableClusters, 3},
		{"critical_status", m.criticalStatus, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.gauge); got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, got)
		}
	}
}

func TestMetrics_LiquidatorBalanceInEther(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	m.SetLiquidatorBalance(context.Background(), wei)
	if got := testutil.ToFloat64(m.liquidatorBalance); got != 1.5 {
		t.Errorf("expected 1.5 ETH, got %v", got)
	}

	m.SetLiquidatorBalance(context.Background(), nil)
	if got := testutil.ToFloat64(m.liquidatorBalance); got != 1.5 {
		t.Errorf("nil balance must not reset the gauge, got %v", got)
	}
}

func TestMetrics_LiquidationsAndDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()

	m.RecordLiquidation(ctx, "submitted")
	m.RecordLiquidation(ctx, "submitted")
	m.RecordLiquidation(ctx, "frozen")
	m.ObserveTaskDuration(ctx, "burn_rates", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.liquidations.WithLabelValues("submitted")); got != 2 {
		t.Errorf("expected 2 submitted, got %v", got)
	}
	if got := testutil.ToFloat64(m.liquidations.WithLabelValues("frozen")); got != 1 {
		t.Errorf("expected 1 frozen, got %v", got)
	}
	if n := testutil.CollectAndCount(m.taskDuration); n != 1 {
		t.Errorf("expected one duration series, got %d", n)
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetrics(reg)
}
