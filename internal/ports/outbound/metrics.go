package outbound

import (
	"context"
	"math/big"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// SetTaskStatus records the outcome of the last run of a task (fetch,
	// burn_rates, liquidation).
	SetTaskStatus(ctx context.Context, task string, healthy bool)

	// ObserveTaskDuration records how long one task run took.
	ObserveTaskDuration(ctx context.Context, task string, d time.Duration)

	SetLastSyncedBlock(ctx context.Context, block int64)
	SetActiveClusters(ctx context.Context, n int64)
	SetLiquidatableClusters(ctx context.Context, n int64)
	SetCriticalStatus(ctx context.Context, critical bool)
	SetLiquidatorBalance(ctx context.Context, wei *big.Int)

	// RecordLiquidation counts submitted liquidations by result
	// (submitted, confirmed, reverted, frozen, failed).
	RecordLiquidation(ctx context.Context, result string)
}
