// Package event_sync keeps the local cluster projection in step with the
// contract's event log.
package event_sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
	"github.com/archon-research/cluster-liquidator/internal/services/shared"
)

const tracerName = "github.com/archon-research/cluster-liquidator/internal/services/event_sync"

// Range sizes in blocks (12s slots): roughly a month, a week and a day.
const (
	StepMonth int64 = 216000
	StepWeek  int64 = 50400
	StepDay   int64 = 7200
)

var defaultSteps = []int64{StepMonth, StepWeek, StepDay}

type Config struct {
	// Steps are the range sizes tried in order; a failed range is retried with
	// the next smaller one.
	Steps  []int64
	Logger *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		Steps:  defaultSteps,
		Logger: slog.Default(),
	}
}

// Engine advances the persisted sync cursor through the chain in adaptive ranges.
type Engine struct {
	config     Config
	blocks     outbound.BlockReader
	events     outbound.EventSource
	system     *shared.SystemValues
	dispatcher *Dispatcher
	state      *shared.WorkerState
	logger     *slog.Logger

	// stepIndex points into config.Steps. It only moves towards smaller ranges
	// within one Sync and is reset at the start of the next.
	stepIndex int
}

// NewEngine creates a sync engine.
func NewEngine(
	config Config,
	blocks outbound.BlockReader,
	events outbound.EventSource,
	system outbound.SystemRepository,
	dispatcher *Dispatcher,
	state *shared.WorkerState,
) (*Engine, error) {
	if blocks == nil {
		return nil, fmt.Errorf("block reader cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event source cannot be nil")
	}
	if system == nil {
		return nil, fmt.Errorf("system repository cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if state == nil {
		return nil, fmt.Errorf("worker state cannot be nil")
	}

	defaults := ConfigDefaults()
	if len(config.Steps) == 0 {
		config.Steps = defaults.Steps
	}
	for _, s := range config.Steps {
		if s <= 0 {
			return nil, fmt.Errorf("step sizes must be positive, got %d", s)
		}
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Engine{
		config:     config,
		blocks:     blocks,
		events:     events,
		system:     shared.NewSystemValues(system),
		dispatcher: dispatcher,
		state:      state,
		logger:     config.Logger.With("component", "event-sync"),
	}, nil
}

// Step returns the current range size.
func (e *Engine) Step() int64 {
	return e.config.Steps[e.stepIndex]
}

// Sync processes every block between the cursor and the chain head. It returns
// immediately when another Sync is running.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.state.TryLockSync() {
		e.logger.Debug("sync already in progress, skipping")
		return nil
	}
	defer e.state.UnlockSync()

	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sync.run",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	err := e.sync(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		e.logger.Error("sync failed", "error", err)
	}

	metrics := e.state.Metrics()
	metrics.ObserveTaskDuration(ctx, shared.TaskFetch, time.Since(start))
	e.state.Report(ctx, shared.TaskFetch, err)
	return err
}

func (e *Engine) sync(ctx context.Context, span trace.Span) error {
	e.stepIndex = 0

	latest, err := e.blocks.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block: %w", err)
	}

	from, err := e.startBlock(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int64("sync.from_block", from),
		attribute.Int64("sync.latest_block", latest),
	)

	if from > latest {
		e.state.MarkReady()
		return nil
	}

	for from <= latest {
		to := min(from+e.Step(), latest)

		n, err := e.processRange(ctx, from, to)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errors.Join(err, ctxErr)
			}
			if e.stepIndex == len(e.config.Steps)-1 {
				return fmt.Errorf("range [%d, %d] failed at smallest step: %w", from, to, err)
			}
			e.stepIndex++
			e.logger.Warn("range failed, shrinking step",
				"from", from, "to", to, "step", e.Step(), "error", err)
			continue
		}

		if _, err := e.system.AdvanceCursor(ctx, to); err != nil {
			return fmt.Errorf("failed to persist cursor %d: %w", to, err)
		}
		e.state.Metrics().SetLastSyncedBlock(ctx, to)
		e.logger.Info("synced range", "from", from, "to", to, "events", n, "latest", latest)

		from = to + 1
	}

	e.state.MarkReady()
	return nil
}

// startBlock is the block after the cursor, or the contract genesis block when
// nothing has been synced yet.
func (e *Engine) startBlock(ctx context.Context) (int64, error) {
	cursor, found, err := e.system.GetInt64(ctx, entity.SystemLastSyncedBlock)
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	if !found {
		return e.events.GenesisBlock(), nil
	}
	return cursor + 1, nil
}

func (e *Engine) processRange(ctx context.Context, from, to int64) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sync.processRange",
		trace.WithAttributes(
			attribute.Int64("range.from", from),
			attribute.Int64("range.to", to),
		),
	)
	defer span.End()

	events, err := e.events.FetchEvents(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to fetch events: %w", err)
	}
	span.SetAttributes(attribute.Int("range.events", len(events)))

	if err := e.dispatcher.Dispatch(ctx, events); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to dispatch events: %w", err)
	}
	return len(events), nil
}
