package telemetry

import (
	"context"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*Metrics)(nil)

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Metrics implements the MetricsRecorder interface on a Prometheus registry.
// Task status gauges are named "<task>_status" and hold 1 while the last run
// succeeded.
type Metrics struct {
	taskStatus   map[string]prometheus.Gauge
	taskDuration *prometheus.HistogramVec

	lastSyncedBlock      prometheus.Gauge
	activeClusters       prometheus.Gauge
	liquidatableClusters prometheus.Gauge
	criticalStatus       prometheus.Gauge
	liquidatorBalance    prometheus.Gauge
	liquidations         *prometheus.CounterVec
}

// NewMetrics registers every collector on reg. tasks lists the task names that
// get a status gauge; unknown names passed to SetTaskStatus are ignored.
func NewMetrics(reg prometheus.Registerer, tasks ...string) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		taskStatus: make(map[string]prometheus.Gauge, len(tasks)),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "task_duration_seconds",
				Help:    "Duration of one task run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		lastSyncedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Name: "last_synced_block",
			Help: "Last block whose events were applied to the cluster projection",
		}),
		activeClusters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_clusters",
			Help: "Non-liquidated clusters with a known burn rate",
		}),
		liquidatableClusters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liquidatable_clusters",
			Help: "Clusters whose liquidation block is within the visible window",
		}),
		criticalStatus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "critical_status",
			Help: "1 when a task has been failing for too many consecutive runs",
		}),
		liquidatorBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liquidator_eth_balance",
			Help: "ETH balance of the liquidator account",
		}),
		liquidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liquidations_total",
				Help: "Liquidation transactions by result",
			},
			[]string{"result"},
		),
	}

	for _, task := range tasks {
		m.taskStatus[task] = factory.NewGauge(prometheus.GaugeOpts{
			Name: task + "_status",
			Help: "1 when the last " + task + " run succeeded",
		})
	}
	return m
}

func (m *Metrics) SetTaskStatus(_ context.Context, task string, healthy bool) {
	if g, ok := m.taskStatus[task]; ok {
		g.Set(boolToFloat(healthy))
	}
}

func (m *Metrics) ObserveTaskDuration(_ context.Context, task string, d time.Duration) {
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *Metrics) SetLastSyncedBlock(_ context.Context, block int64) {
	m.lastSyncedBlock.Set(float64(block))
}

func (m *Metrics) SetActiveClusters(_ context.Context, n int64) {
	m.activeClusters.Set(float64(n))
}

func (m *Metrics) SetLiquidatableClusters(_ context.Context, n int64) {
	m.liquidatableClusters.Set(float64(n))
}

func (m *Metrics) SetCriticalStatus(_ context.Context, critical bool) {
	m.criticalStatus.Set(boolToFloat(critical))
}

// SetLiquidatorBalance records the balance in ETH. Precision below float64 is dropped.
func (m *Metrics) SetLiquidatorBalance(_ context.Context, wei *big.Int) {
	if wei == nil {
		return
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	m.liquidatorBalance.Set(eth)
}

func (m *Metrics) RecordLiquidation(_ context.Context, result string) {
	m.liquidations.WithLabelValues(result).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
