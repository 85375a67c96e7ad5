// Package burn_rate recomputes the liquidation block of stale clusters.
package burn_rate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/pkg/retry"
	"github.com/archon-research/cluster-liquidator/internal/pkg/solerr"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
	"github.com/archon-research/cluster-liquidator/internal/services/shared"
)

const tracerName = "github.com/archon-research/cluster-liquidator/internal/services/burn_rate"

type Config struct {
	// BatchSize is the initial number of stale clusters processed per run.
	BatchSize int
	// ShrinkRatio is the fraction removed from the batch size when a cluster
	// could not be refreshed. It decays by ShrinkDecay after every shrink.
	ShrinkRatio float64
	ShrinkDecay float64
	// Concurrency bounds the clusters fetched at the same time.
	Concurrency   int
	WindowTimeout time.Duration
	Retry         retry.Config
	Logger        *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		BatchSize:     100,
		ShrinkRatio:   0.1,
		ShrinkDecay:   0.9,
		Concurrency:   10,
		WindowTimeout: 30 * time.Second,
		Retry:         retry.RPCConfig(),
		Logger:        slog.Default(),
	}
}

// Engine refreshes burn rate, balance and liquidation block of stale clusters.
type Engine struct {
	config   Config
	clusters outbound.ClusterRepository
	system   *shared.SystemValues
	views    outbound.ClusterViews
	blocks   outbound.BlockReader
	decoder  retry.ErrorDecoder
	state    *shared.WorkerState
	logger   *slog.Logger

	batchSize   int
	shrinkRatio float64
}

// NewEngine creates a burn rate engine.
func NewEngine(
	config Config,
	clusters outbound.ClusterRepository,
	system outbound.SystemRepository,
	views outbound.ClusterViews,
	blocks outbound.BlockReader,
	decoder retry.ErrorDecoder,
	state *shared.WorkerState,
) (*Engine, error) {
	if clusters == nil {
		return nil, fmt.Errorf("cluster repository cannot be nil")
	}
	if system == nil {
		return nil, fmt.Errorf("system repository cannot be nil")
	}
	if views == nil {
		return nil, fmt.Errorf("cluster views cannot be nil")
	}
	if blocks == nil {
		return nil, fmt.Errorf("block reader cannot be nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("error decoder cannot be nil")
	}
	if state == nil {
		return nil, fmt.Errorf("worker state cannot be nil")
	}

	defaults := ConfigDefaults()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ShrinkRatio <= 0 || config.ShrinkRatio >= 1 {
		config.ShrinkRatio = defaults.ShrinkRatio
	}
	if config.ShrinkDecay <= 0 || config.ShrinkDecay > 1 {
		config.ShrinkDecay = defaults.ShrinkDecay
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.WindowTimeout <= 0 {
		config.WindowTimeout = defaults.WindowTimeout
	}
	if config.Retry == (retry.Config{}) {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Engine{
		config:      config,
		clusters:    clusters,
		system:      shared.NewSystemValues(system),
		views:       views,
		blocks:      blocks,
		decoder:     decoder,
		state:       state,
		logger:      config.Logger.With("component", "burn-rate"),
		batchSize:   config.BatchSize,
		shrinkRatio: config.ShrinkRatio,
	}, nil
}

// BatchSize returns the current batch size.
func (e *Engine) BatchSize() int {
	return e.batchSize
}

// protocolParams are fetched once per run.
type protocolParams struct {
	minCollateral   *big.Int
	thresholdPeriod *big.Int
}

// fetched holds the chain state of one cluster.
type fetched struct {
	burnRate   *big.Int
	balance    *big.Int
	liquidated bool
	block      int64
	// frozen is set when a call reverted with ClusterIsLiquidated.
	frozen bool
	// missing collects every field that could not be read.
	missing error
}

// Run processes one batch of stale clusters.
func (e *Engine) Run(ctx context.Context) error {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "burnRate.run")
	defer span.End()

	err := e.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "burn rate run failed")
		e.logger.Error("burn rate run failed", "error", err)
	}

	e.state.Metrics().ObserveTaskDuration(ctx, shared.TaskBurnRates, time.Since(start))
	e.state.Report(ctx, shared.TaskBurnRates, err)
	return err
}

func (e *Engine) run(ctx context.Context) error {
	clusters, err := e.clusters.FindStale(ctx, e.batchSize)
	if err != nil {
		return fmt.Errorf("failed to load stale clusters: %w", err)
	}
	if len(clusters) == 0 {
		return nil
	}

	params, err := e.protocolParams(ctx)
	if err != nil {
		return err
	}

	tasks := make([]retry.Task[fetched], len(clusters))
	for i, c := range clusters {
		tasks[i] = func(ctx context.Context) (fetched, error) {
			return e.fetch(ctx, c), nil
		}
	}

	results, err := retry.RunBatched(ctx, tasks, e.config.Concurrency, e.config.WindowTimeout)
	if err != nil {
		e.shrink()
		return fmt.Errorf("failed to fetch cluster state: %w", err)
	}

	var updated, frozen, skipped int
	var errs []error
	for i, c := range clusters {
		outcome, err := e.apply(ctx, c, results[i], params)
		if err != nil {
			errs = append(errs, fmt.Errorf("cluster %s: %w", c.Key(), err))
			continue
		}
		switch outcome {
		case outcomeUpdated:
			updated++
		case outcomeFrozen:
			frozen++
		case outcomeSkipped:
			skipped++
		}
	}

	e.logger.Info("burn rates refreshed",
		"clusters", len(clusters), "updated", updated, "frozen", frozen,
		"skipped", skipped, "batchSize", e.batchSize)
	return errors.Join(errs...)
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeFrozen
	outcomeSkipped
)

func (e *Engine) apply(ctx context.Context, c *entity.Cluster, f fetched, params protocolParams) (outcome, error) {
	if f.frozen || f.liquidated {
		if c.IsLiquidated {
			return outcomeFrozen, nil
		}
		if err := e.clusters.MarkLiquidated(ctx, c.Owner, c.OperatorIDs); err != nil {
			return outcomeFrozen, fmt.Errorf("failed to mark liquidated: %w", err)
		}
		return outcomeFrozen, nil
	}

	if f.missing != nil {
		e.logger.Warn("cluster state incomplete, keeping it stale", "cluster", c.Key(), "error", f.missing)
		e.shrink()
		return outcomeSkipped, nil
	}

	liquidationBlock := LiquidationBlock(f.block, f.balance, f.burnRate, params.minCollateral, params.thresholdPeriod)
	if err := c.ApplyMetrics(f.burnRate, f.balance, liquidationBlock); err != nil {
		return outcomeSkipped, err
	}
	if err := e.clusters.UpdateMetrics(ctx, c); err != nil {
		if errors.Is(err, entity.ErrInvalidSnapshot) {
			e.logger.Warn("skipping cluster with malformed snapshot", "cluster", c.Key(), "error", err)
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("failed to update metrics: %w", err)
	}
	return outcomeUpdated, nil
}

// shrink reduces the batch size so that a struggling node is asked for less work.
func (e *Engine) shrink() {
	next := int(float64(e.batchSize) * (1 - e.shrinkRatio))
	e.batchSize = max(next, 1)
	e.shrinkRatio *= e.config.ShrinkDecay
}

func (e *Engine) fetch(ctx context.Context, c *entity.Cluster) fetched {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "burnRate.fetch")
	span.SetAttributes(attribute.String("cluster", c.Key()))
	defer span.End()

	var f fetched
	var missing []error

	note := func(field string, sig string, err error) {
		if err != nil {
			missing = append(missing, fmt.Errorf("%s: %w", field, err))
			return
		}
		if solerr.IsError(sig, solerr.ClusterIsLiquidated) {
			f.frozen = true
			return
		}
		missing = append(missing, fmt.Errorf("%s: reverted with %s", field, sig))
	}

	burnRate, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, func(ctx context.Context) (*big.Int, error) {
		return e.views.BurnRate(ctx, c)
	})
	if v, ok := burnRate.Value(); ok && err == nil {
		f.burnRate = v
	} else {
		sig, _ := burnRate.ProtocolError()
		note("burnRate", sig, err)
	}

	balance, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, func(ctx context.Context) (*big.Int, error) {
		return e.views.Balance(ctx, c)
	})
	if v, ok := balance.Value(); ok && err == nil {
		f.balance = v
	} else {
		sig, _ := balance.ProtocolError()
		note("balance", sig, err)
	}

	liquidated, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, func(ctx context.Context) (bool, error) {
		return e.views.IsLiquidated(ctx, c)
	})
	if v, ok := liquidated.Value(); ok && err == nil {
		f.liquidated = v
	} else {
		sig, _ := liquidated.ProtocolError()
		note("isLiquidated", sig, err)
	}

	block, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, func(ctx context.Context) (int64, error) {
		return e.blocks.BlockNumber(ctx)
	})
	if v, ok := block.Value(); ok && err == nil {
		f.block = v
	} else {
		sig, _ := block.ProtocolError()
		note("blockNumber", sig, err)
	}

	if f.burnRate == nil || f.balance == nil {
		if len(missing) == 0 && !f.frozen {
			missing = append(missing, fmt.Errorf("empty burn rate or balance"))
		}
	}
	f.missing = errors.Join(missing...)
	return f
}

// protocolParams reads minimum collateral and threshold period from the chain,
// caching them in the System store. The cached values are used when the
// chain cannot be reached.
func (e *Engine) protocolParams(ctx context.Context) (protocolParams, error) {
	var p protocolParams

	minCollateral, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, e.views.MinimumLiquidationCollateral)
	if v, ok := minCollateral.Value(); ok && err == nil && v != nil {
		p.minCollateral = v
		if err := e.system.SetBigInt(ctx, entity.SystemMinimumLiquidationCollateral, v); err != nil {
			e.logger.Warn("failed to cache minimum collateral", "error", err)
		}
	} else {
		cached, found, cacheErr := e.system.GetBigInt(ctx, entity.SystemMinimumLiquidationCollateral)
		if cacheErr != nil || !found {
			return p, fmt.Errorf("minimum liquidation collateral unavailable: %w", errors.Join(err, cacheErr))
		}
		p.minCollateral = cached
	}

	period, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, e.views.LiquidationThresholdPeriod)
	if v, ok := period.Value(); ok && err == nil {
		p.thresholdPeriod = new(big.Int).SetUint64(v)
		if err := e.system.SetInt64(ctx, entity.SystemLiquidationThresholdPeriod, int64(v)); err != nil {
			e.logger.Warn("failed to cache threshold period", "error", err)
		}
	} else {
		cached, found, cacheErr := e.system.GetInt64(ctx, entity.SystemLiquidationThresholdPeriod)
		if cacheErr != nil || !found {
			return p, fmt.Errorf("liquidation threshold period unavailable: %w", errors.Join(err, cacheErr))
		}
		p.thresholdPeriod = big.NewInt(cached)
	}

	return p, nil
}

// LiquidationBlock returns the first block at which the cluster can be
// liquidated: the earlier of running below the threshold period of prepaid
// blocks and running below the minimum collateral. A zero burn rate never
// runs out and yields nil.
func LiquidationBlock(currentBlock int64, balance, burnRate, minCollateral, thresholdPeriod *big.Int) *int64 {
	if burnRate == nil || burnRate.Sign() <= 0 || balance == nil {
		return nil
	}
	block := big.NewInt(currentBlock)

	// currentBlock + balance/burnRate - thresholdPeriod
	byThreshold := new(big.Int).Quo(balance, burnRate)
	byThreshold.Add(byThreshold, block)
	if thresholdPeriod != nil {
		byThreshold.Sub(byThreshold, thresholdPeriod)
	}

	// currentBlock + (balance - minCollateral)/burnRate
	byCollateral := new(big.Int).Set(balance)
	if minCollateral != nil {
		byCollateral.Sub(byCollateral, minCollateral)
	}
	byCollateral.Quo(byCollateral, burnRate)
	byCollateral.Add(byCollateral, block)

	result := byThreshold
	if byCollateral.Cmp(byThreshold) < 0 {
		result = byCollateral
	}

	var n int64
	switch {
	case result.IsInt64():
		n = result.Int64()
	case result.Sign() > 0:
		n = math.MaxInt64
	default:
		n = math.MinInt64
	}
	return &n
}
