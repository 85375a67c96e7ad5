package shared

import (
	"context"
	"math/big"
	"time"

	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = NopMetrics{}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) SetTaskStatus(context.Context, string, bool)                 {}
func (NopMetrics) ObserveTaskDuration(context.Context, string, time.Duration) {}
func (NopMetrics) SetLastSyncedBlock(context.Context, int64)                   {}
func (NopMetrics) SetActiveClusters(context.Context, int64)                    {}
func (NopMetrics) SetLiquidatableClusters(context.Context, int64)              {}
func (NopMetrics) SetCriticalStatus(context.Context, bool)                     {}
func (NopMetrics) SetLiquidatorBalance(context.Context, *big.Int)              {}
func (NopMetrics) RecordLiquidation(context.Context, string)                   {}
