// Package main runs the cluster liquidator: it mirrors SSV cluster accounts
// from contract events into PostgreSQL, keeps their runway up to date and
// liquidates clusters that ran out of collateral.
//
// Usage:
//
//	liquidator [flags] [run|status]
//
// Configuration is read from flags, the environment and .env files; see
// internal/config for the full list of keys.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/archon-research/cluster-liquidator/db"
	"github.com/archon-research/cluster-liquidator/db/migrator"
	httpadapter "github.com/archon-research/cluster-liquidator/internal/adapters/inbound/http"
	"github.com/archon-research/cluster-liquidator/internal/adapters/outbound/ethereum"
	"github.com/archon-research/cluster-liquidator/internal/adapters/outbound/postgres"
	"github.com/archon-research/cluster-liquidator/internal/adapters/outbound/telemetry"
	"github.com/archon-research/cluster-liquidator/internal/config"
	"github.com/archon-research/cluster-liquidator/internal/pkg/env"
	"github.com/archon-research/cluster-liquidator/internal/pkg/retry"
	"github.com/archon-research/cluster-liquidator/internal/pkg/solerr"
	"github.com/archon-research/cluster-liquidator/internal/services/burn_rate"
	"github.com/archon-research/cluster-liquidator/internal/services/event_sync"
	"github.com/archon-research/cluster-liquidator/internal/services/liquidation"
	"github.com/archon-research/cluster-liquidator/internal/services/shared"
)

const (
	shutdownTimeout    = 10 * time.Second
	pendingWaitTimeout = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args, ".env", ".env.local")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	clusters, err := postgres.NewClusterRepository(pool, logger)
	if err != nil {
		return fmt.Errorf("creating cluster repository: %w", err)
	}
	earnings, err := postgres.NewEarningRepository(pool, logger)
	if err != nil {
		return fmt.Errorf("creating earning repository: %w", err)
	}

	if cfg.Command == config.CommandStatus {
		return printStatus(ctx, os.Stdout, clusters, earnings, cfg.StatusLimit)
	}

	logger.Info("starting cluster liquidator", "env", cfg.Env, "sync", cfg.Group)

	if err := migrator.New(pool, db.Migrations, db.MigrationsDir, logger).ApplyAll(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	logger.Info("PostgreSQL connected")

	system, err := postgres.NewSystemRepository(pool, logger)
	if err != nil {
		return fmt.Errorf("creating system repository: %w", err)
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  "cluster-liquidator",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer tcancel()
		if err := shutdownTracer(tctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry, shared.TaskFetch, shared.TaskBurnRates, shared.TaskLiquidation)
	state := shared.NewWorkerState(metrics, shared.DefaultCriticalAfter)

	contract, err := ethereum.LoadContract(cfg.Env, cfg.Group)
	if err != nil {
		return fmt.Errorf("loading contract: %w", err)
	}

	node, err := ethclient.DialContext(ctx, cfg.NodeURL)
	if err != nil {
		return fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	defer node.Close()
	logger.Info("Ethereum node connected", "contract", contract.Address.Hex(), "views", contract.ViewsAddress.Hex())

	client, err := ethereum.NewClient(node, contract, ethereum.ClientConfig{
		RateLimitPerSec: cfg.RPCRateLimit,
		RateBurst:       cfg.CallConcurrency,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating contract client: %w", err)
	}

	submitter, err := ethereum.NewSubmitter(ctx, client, ethereum.SubmitterConfig{
		PrivateKey:       cfg.PrivateKey,
		GasTier:          cfg.GasTier,
		GasMultiplier:    cfg.GasMultiplier,
		GasUsageOverride: cfg.GasUsageOverride,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating submitter: %w", err)
	}
	logAccount(ctx, logger, submitter, metrics)

	decoder := solerr.NewDecoder(contract.ErrorsABI())
	rpcRetry := retry.RPCConfig()

	dispatcher, err := event_sync.NewDispatcher(event_sync.DispatcherConfig{
		Agent:  submitter.Address(),
		Retry:  rpcRetry,
		Logger: logger,
	}, clusters, earnings, system, client, client)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	syncEngine, err := event_sync.NewEngine(event_sync.Config{Logger: logger}, client, client, system, dispatcher, state)
	if err != nil {
		return fmt.Errorf("creating sync engine: %w", err)
	}

	burnRateEngine, err := burn_rate.NewEngine(burn_rate.Config{
		BatchSize:   cfg.BurnRateBatchSize,
		Concurrency: cfg.CallConcurrency,
		Retry:       rpcRetry,
		Logger:      logger,
	}, clusters, system, client, client, decoder, state)
	if err != nil {
		return fmt.Errorf("creating burn rate engine: %w", err)
	}

	liquidationEngine, err := liquidation.NewEngine(liquidation.Config{
		MaxVisibleBlocks: cfg.MaxVisibleBlocks,
		Retry:            rpcRetry,
		Logger:           logger,
	}, clusters, client, client, submitter, decoder, state)
	if err != nil {
		return fmt.Errorf("creating liquidation engine: %w", err)
	}

	var shuttingDown atomic.Bool
	healthServer := httpadapter.NewHealthServer(httpadapter.HealthServerConfig{
		Addr:     cfg.HTTPAddr,
		Logger:   logger,
		Gatherer: registry,
	}, state, &shuttingDown)
	healthServer.Start()

	scheduler, err := newScheduler(ctx, logger, config.ScheduleParser(), []task{
		{name: shared.TaskFetch, spec: cfg.FetchSchedule, run: syncEngine.Sync},
		{name: shared.TaskBurnRates, spec: cfg.BurnRateSchedule, exclusive: true, run: burnRateEngine.Run},
		{name: shared.TaskLiquidation, spec: cfg.LiquidationSchedule, exclusive: true, run: liquidationEngine.Run},
	})
	if err != nil {
		return err
	}
	scheduler.Start()

	<-ctx.Done()
	logger.Info("shutting down")
	shuttingDown.Store(true)

	<-scheduler.Stop().Done()
	waitPending(logger, liquidationEngine, pendingWaitTimeout)

	if err := healthServer.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("health server shutdown failed", "error", err)
	}
	logger.Info("stopped")
	return nil
}

// logAccount reports the liquidator account at start-up. A failing balance
// lookup is not fatal.
func logAccount(ctx context.Context, logger *slog.Logger, submitter *ethereum.Submitter, metrics *telemetry.Metrics) {
	balance, err := submitter.Balance(ctx)
	if err != nil {
		logger.Warn("failed to read liquidator balance", "address", submitter.Address().Hex(), "error", err)
		return
	}
	metrics.SetLiquidatorBalance(ctx, balance)
	logger.Info("liquidator account", "address", submitter.Address().Hex(), "balanceWei", balance.String())
}

// waitPending gives in-flight receipt confirmations a bounded amount of time.
func waitPending(logger *slog.Logger, engine *liquidation.Engine, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("pending liquidation receipts still unconfirmed at shutdown", "waited", timeout)
	}
}
