package event_sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/pkg/retry"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
	"github.com/archon-research/cluster-liquidator/internal/services/shared"
)

// DispatcherConfig configures the Dispatcher.
type DispatcherConfig struct {
	// Agent is the liquidator's own address. Earnings are only recorded for
	// transactions it sent.
	Agent  common.Address
	Retry  retry.Config
	Logger *slog.Logger
}

// Dispatcher applies decoded events to the projection.
type Dispatcher struct {
	config   DispatcherConfig
	clusters outbound.ClusterRepository
	earnings outbound.EarningRepository
	system   *shared.SystemValues
	resolver outbound.EarningResolver
	views    outbound.ClusterViews
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	config DispatcherConfig,
	clusters outbound.ClusterRepository,
	earnings outbound.EarningRepository,
	system outbound.SystemRepository,
	resolver outbound.EarningResolver,
	views outbound.ClusterViews,
) (*Dispatcher, error) {
	if clusters == nil {
		return nil, fmt.Errorf("cluster repository cannot be nil")
	}
	if earnings == nil {
		return nil, fmt.Errorf("earning repository cannot be nil")
	}
	if system == nil {
		return nil, fmt.Errorf("system repository cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("earning resolver cannot be nil")
	}
	if views == nil {
		return nil, fmt.Errorf("cluster views cannot be nil")
	}
	if config.Agent == (common.Address{}) {
		return nil, fmt.Errorf("agent address is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Retry == (retry.Config{}) {
		config.Retry = retry.RPCConfig()
	}

	return &Dispatcher{
		config:   config,
		clusters: clusters,
		earnings: earnings,
		system:   shared.NewSystemValues(system),
		resolver: resolver,
		views:    views,
		logger:   config.Logger.With("component", "event-dispatcher"),
	}, nil
}

// Dispatch applies events in order. The first failure aborts the batch; every
// mutation is idempotent so the caller can replay the whole range.
func (d *Dispatcher) Dispatch(ctx context.Context, events []entity.Event) error {
	if len(events) == 0 {
		return nil
	}
	d.logger.Debug("processing events", "count", len(events))

	for _, ev := range events {
		if err := d.apply(ctx, ev); err != nil {
			meta := ev.Meta()
			return fmt.Errorf("%s at block %d (tx %s): %w", ev.Kind(), meta.BlockNumber, meta.TxHash.Hex(), err)
		}
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, ev entity.Event) error {
	switch e := ev.(type) {
	case entity.ValidatorAdded:
		return d.createCluster(ctx, e)

	case entity.ClusterLiquidated:
		if err := d.recordEarning(ctx, e.Meta().TxHash); err != nil {
			return err
		}
		return d.markStale(ctx, e)

	case entity.ClusterDeposited, entity.ClusterWithdrawn, entity.ValidatorRemoved, entity.ClusterReactivated:
		return d.markStale(ctx, e.(entity.ClusterEvent))

	case entity.OperatorFeeExecuted:
		n, err := d.clusters.MarkStaleByOperator(ctx, e.OperatorID)
		if err != nil {
			return fmt.Errorf("failed to mark clusters of operator %d stale: %w", e.OperatorID, err)
		}
		d.logger.Debug("operator fee changed", "operator", e.OperatorID, "clusters", n)
		return nil

	case entity.LiquidationThresholdPeriodUpdated:
		if err := d.system.SetInt64(ctx, entity.SystemLiquidationThresholdPeriod, int64(e.Value)); err != nil {
			return err
		}
		n, err := d.clusters.MarkAllStale(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark all clusters stale: %w", err)
		}
		d.logger.Info("liquidation threshold period updated", "period", e.Value, "clusters", n)
		return nil

	case entity.MinimumLiquidationCollateralUpdated:
		return d.refreshMinimumCollateral(ctx)

	default:
		return nil
	}
}

func (d *Dispatcher) createCluster(ctx context.Context, e entity.ValidatorAdded) error {
	c, err := entity.NewCluster(e.Owner, e.OperatorIDs, e.Snapshot)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidSnapshot) {
			d.logger.Warn("skipping validator with malformed cluster", "owner", e.Owner, "error", err)
			return nil
		}
		return err
	}
	if err := d.clusters.Create(ctx, c); err != nil {
		return fmt.Errorf("failed to create cluster %s: %w", c.Key(), err)
	}
	d.logger.Debug("cluster created", "cluster", c.Key())
	return nil
}

func (d *Dispatcher) markStale(ctx context.Context, e entity.ClusterEvent) error {
	n, err := d.clusters.MarkStale(ctx, e.ClusterOwner(), e.ClusterOperatorIDs(), e.ClusterSnapshot())
	if err != nil {
		return fmt.Errorf("failed to mark cluster %s stale: %w",
			entity.ClusterKey(e.ClusterOwner(), e.ClusterOperatorIDs()), err)
	}
	if n > 0 {
		d.logger.Debug("cluster marked stale", "event", e.Kind(),
			"cluster", entity.ClusterKey(e.ClusterOwner(), e.ClusterOperatorIDs()))
	}
	return nil
}

func (d *Dispatcher) recordEarning(ctx context.Context, txHash common.Hash) error {
	earning, err := d.resolver.Resolve(ctx, txHash)
	if err != nil {
		return fmt.Errorf("failed to resolve earning for %s: %w", txHash.Hex(), err)
	}
	if earning == nil || earning.From != d.config.Agent {
		return nil
	}
	if err := d.earnings.Save(ctx, earning); err != nil {
		return fmt.Errorf("failed to save earning %s: %w", txHash.Hex(), err)
	}
	d.logger.Info("liquidation earning recorded", "tx", txHash.Hex(), "earned", earning.Earned, "block", earning.EarnedAtBlock)
	return nil
}

func (d *Dispatcher) refreshMinimumCollateral(ctx context.Context) error {
	value, err := retry.Do(ctx, d.config.Retry, retry.Always, nil, func(ctx context.Context) (*big.Int, error) {
		return d.views.MinimumLiquidationCollateral(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch minimum liquidation collateral: %w", err)
	}
	if err := d.system.SetBigInt(ctx, entity.SystemMinimumLiquidationCollateral, value); err != nil {
		return err
	}
	d.logger.Info("minimum liquidation collateral updated", "value", value)
	return nil
}
