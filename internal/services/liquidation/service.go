// Package liquidation submits liquidation transactions for clusters whose
// liquidation block has passed.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/pkg/retry"
	"github.com/archon-research/cluster-liquidator/internal/pkg/solerr"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
	"github.com/archon-research/cluster-liquidator/internal/services/shared"
)

const tracerName = "github.com/archon-research/cluster-liquidator/internal/services/liquidation"

// Liquidation results reported to the metrics recorder.
const (
	ResultSubmitted = "submitted"
	ResultConfirmed = "confirmed"
	ResultReverted  = "reverted"
	ResultFrozen    = "frozen"
	ResultFailed    = "failed"
)

// terminalErrors are protocol errors telling that the cluster is no longer
// ours to liquidate: someone else liquidated it or it recovered.
var terminalErrors = []string{
	solerr.IncorrectClusterState,
	solerr.ClusterIsLiquidated,
	solerr.ClusterNotLiquidatable,
}

type Config struct {
	// MaxVisibleBlocks is the look-ahead used for the liquidatable_clusters gauge.
	MaxVisibleBlocks int64
	// ReceiptTimeout bounds the wait for a mined receipt.
	ReceiptTimeout time.Duration
	Retry          retry.Config
	Logger         *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		MaxVisibleBlocks: 50000,
		ReceiptTimeout:   3 * time.Minute,
		Retry:            retry.RPCConfig(),
		Logger:           slog.Default(),
	}
}

// Engine verifies due clusters on chain and liquidates them.
type Engine struct {
	config    Config
	clusters  outbound.ClusterRepository
	views     outbound.ClusterViews
	blocks    outbound.BlockReader
	submitter outbound.Submitter
	decoder   retry.ErrorDecoder
	state     *shared.WorkerState
	logger    *slog.Logger

	// pending tracks receipt confirmations still in flight.
	pending sync.WaitGroup
	// shuffle reorders the queue in place.
	shuffle func([]*entity.Cluster)
}

// NewEngine creates a liquidation engine.
func NewEngine(
	config Config,
	clusters outbound.ClusterRepository,
	views outbound.ClusterViews,
	blocks outbound.BlockReader,
	submitter outbound.Submitter,
	decoder retry.ErrorDecoder,
	state *shared.WorkerState,
) (*Engine, error) {
	if clusters == nil {
		return nil, fmt.Errorf("cluster repository cannot be nil")
	}
	if views == nil {
		return nil, fmt.Errorf("cluster views cannot be nil")
	}
	if blocks == nil {
		return nil, fmt.Errorf("block reader cannot be nil")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter cannot be nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("error decoder cannot be nil")
	}
	if state == nil {
		return nil, fmt.Errorf("worker state cannot be nil")
	}

	defaults := ConfigDefaults()
	if config.MaxVisibleBlocks <= 0 {
		config.MaxVisibleBlocks = defaults.MaxVisibleBlocks
	}
	if config.ReceiptTimeout <= 0 {
		config.ReceiptTimeout = defaults.ReceiptTimeout
	}
	if config.Retry == (retry.Config{}) {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Engine{
		config:    config,
		clusters:  clusters,
		views:     views,
		blocks:    blocks,
		submitter: submitter,
		decoder:   decoder,
		state:     state,
		logger:    config.Logger.With("component", "liquidation"),
		shuffle: func(queue []*entity.Cluster) {
			rand.Shuffle(len(queue), func(i, j int) { queue[i], queue[j] = queue[j], queue[i] })
		},
	}, nil
}

// Wait blocks until every pending receipt confirmation has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// Run performs one liquidation pass. Receipts are confirmed in the background;
// use Wait to drain them.
func (e *Engine) Run(ctx context.Context) error {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "liquidation.run")
	defer span.End()

	err := e.run(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "liquidation run failed")
		e.logger.Error("liquidation run failed", "error", err)
	}

	e.state.Metrics().ObserveTaskDuration(ctx, shared.TaskLiquidation, time.Since(start))
	e.state.Report(ctx, shared.TaskLiquidation, err)
	return err
}

func (e *Engine) run(ctx context.Context, span trace.Span) error {
	current, err := retry.Do(ctx, e.config.Retry, nil, nil, e.blocks.BlockNumber)
	if err != nil {
		return fmt.Errorf("failed to read block number: %w", err)
	}

	due, err := e.clusters.FindLiquidatable(ctx, current)
	if err != nil {
		return fmt.Errorf("failed to load due clusters: %w", err)
	}
	span.SetAttributes(attribute.Int64("block", current), attribute.Int("due", len(due)))

	queue := e.verify(ctx, due)
	e.shuffle(queue)

	var errs []error
	for _, c := range queue {
		if err := e.submit(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("cluster %s: %w", c.Key(), err))
		}
	}

	e.recordGauges(ctx, current)

	if len(due) > 0 {
		e.logger.Info("liquidation pass finished",
			"block", current, "due", len(due), "queued", len(queue), "failed", len(errs))
	}
	return errors.Join(errs...)
}

// verify keeps the clusters the contract reports as liquidatable and freezes
// the ones already liquidated. Clusters whose state cannot be read are skipped.
func (e *Engine) verify(ctx context.Context, due []*entity.Cluster) []*entity.Cluster {
	queue := make([]*entity.Cluster, 0, len(due))
	for _, c := range due {
		liquidatable, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, func(ctx context.Context) (bool, error) {
			return e.views.IsLiquidatable(ctx, c)
		})
		if err != nil {
			e.logger.Warn("failed to check liquidatable", "cluster", c.Key(), "error", err)
			continue
		}
		if ok, _ := liquidatable.Value(); ok {
			queue = append(queue, c)
			continue
		}
		if sig, reverted := liquidatable.ProtocolError(); reverted {
			if solerr.IsAny(sig, terminalErrors...) {
				e.freeze(ctx, c, sig)
			}
			continue
		}

		liquidated, err := retry.Call(ctx, e.config.Retry, e.decoder, nil, func(ctx context.Context) (bool, error) {
			return e.views.IsLiquidated(ctx, c)
		})
		if err != nil {
			e.logger.Warn("failed to check liquidated", "cluster", c.Key(), "error", err)
			continue
		}
		if ok, _ := liquidated.Value(); ok {
			e.freeze(ctx, c, "liquidated on chain")
		}
	}
	return queue
}

// submit sends one liquidation and hands the receipt to a background confirmation.
func (e *Engine) submit(ctx context.Context, c *entity.Cluster) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "liquidation.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cluster", c.Key())))
	defer span.End()

	hash, err := e.submitter.Liquidate(ctx, c)
	if err != nil {
		if e.handleFailure(ctx, c, err) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "liquidation submit failed")
		e.state.Metrics().RecordLiquidation(ctx, ResultFailed)
		return fmt.Errorf("failed to submit liquidation: %w", err)
	}

	span.SetAttributes(attribute.String("tx", hash.Hex()))
	e.state.Metrics().RecordLiquidation(ctx, ResultSubmitted)
	e.logger.Info("liquidation submitted", "cluster", c.Key(), "tx", hash.Hex())

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		e.confirm(context.WithoutCancel(ctx), c, hash)
	}()
	return nil
}

func (e *Engine) confirm(ctx context.Context, c *entity.Cluster, hash common.Hash) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ReceiptTimeout)
	defer cancel()

	receipt, err := e.submitter.WaitMined(ctx, hash)
	if err == nil && receipt != nil && receipt.Status == types.ReceiptStatusSuccessful {
		e.state.Metrics().RecordLiquidation(ctx, ResultConfirmed)
		e.logger.Info("liquidation confirmed",
			"cluster", c.Key(), "tx", hash.Hex(), "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
		return
	}

	if err == nil {
		err = fmt.Errorf("transaction %s reverted", hash.Hex())
	}
	if e.handleFailure(ctx, c, err) {
		return
	}
	e.state.Metrics().RecordLiquidation(ctx, ResultReverted)
	e.logger.Error("liquidation not confirmed", "cluster", c.Key(), "tx", hash.Hex(), "error", err)
	e.state.Report(ctx, shared.TaskLiquidation, err)
}

// handleFailure freezes the cluster when the failure decodes to a terminal
// protocol error. It reports whether the failure was handled.
func (e *Engine) handleFailure(ctx context.Context, c *entity.Cluster, err error) bool {
	sig, ok := e.decoder.ProtocolError(err)
	if !ok || !solerr.IsAny(sig, terminalErrors...) {
		return false
	}
	e.state.Metrics().RecordLiquidation(ctx, ResultFrozen)
	e.freeze(ctx, c, sig)
	return true
}

func (e *Engine) freeze(ctx context.Context, c *entity.Cluster, reason string) {
	if err := e.clusters.MarkLiquidated(ctx, c.Owner, c.OperatorIDs); err != nil {
		e.logger.Error("failed to mark cluster liquidated", "cluster", c.Key(), "error", err)
		return
	}
	e.logger.Info("cluster frozen", "cluster", c.Key(), "reason", reason)
}

func (e *Engine) recordGauges(ctx context.Context, current int64) {
	metrics := e.state.Metrics()
	if n, err := e.clusters.CountLiquidatable(ctx, current, e.config.MaxVisibleBlocks); err == nil {
		metrics.SetLiquidatableClusters(ctx, n)
	} else {
		e.logger.Warn("failed to count liquidatable clusters", "error", err)
	}
	if n, err := e.clusters.CountActive(ctx); err == nil {
		metrics.SetActiveClusters(ctx, n)
	} else {
		e.logger.Warn("failed to count active clusters", "error", err)
	}
	if balance, err := e.submitter.Balance(ctx); err == nil {
		metrics.SetLiquidatorBalance(ctx, balance)
	} else {
		e.logger.Warn("failed to read liquidator balance", "error", err)
	}
}
