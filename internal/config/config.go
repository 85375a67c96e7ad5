// Package config loads the liquidator configuration from flags, environment
// variables and .env files. Flags win over the environment; .env files never
// override variables that are already set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/archon-research/cluster-liquidator/internal/pkg/env"
)

// Commands understood by the binary.
const (
	CommandRun    = "run"
	CommandStatus = "status"
)

// Default cron specs, with a leading seconds field.
const (
	DefaultFetchSchedule       = "* * * * * *"
	DefaultBurnRateSchedule    = "0 * * * * *"
	DefaultLiquidationSchedule = "0 * * * * *"
)

var (
	environments = []string{"prod", "stage"}
	gasTiers     = []string{"low", "medium", "high"}

	scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Config is the process configuration.
type Config struct {
	Command string

	NodeURL     string
	Env         string
	Group       string
	DatabaseURL string
	HTTPAddr    string

	PrivateKey       string
	GasTier          string
	GasMultiplier    float64
	GasUsageOverride bool

	BurnRateBatchSize int
	CallConcurrency   int
	RPCRateLimit      float64
	MaxVisibleBlocks  int64

	OTLPEndpoint string

	FetchSchedule       string
	BurnRateSchedule    string
	LiquidationSchedule string

	// StatusLimit caps the rows printed by the status command.
	StatusLimit int
}

// Load reads dotenvFiles (missing files are ignored), then the environment,
// then args. The first positional argument selects the command.
func Load(args []string, dotenvFiles ...string) (Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := Config{
		Command:             CommandRun,
		NodeURL:             env.Get("NODE_URL", ""),
		Env:                 env.Get("SSV_SYNC_ENV", "prod"),
		Group:               env.Get("SSV_SYNC", ""),
		DatabaseURL:         env.Get("DATABASE_URL", ""),
		HTTPAddr:            env.Get("HTTP_ADDR", ":8080"),
		PrivateKey:          env.Get("ACCOUNT_PRIVATE_KEY", ""),
		GasTier:             strings.ToLower(env.Get("GAS_PRICE", "low")),
		GasMultiplier:       env.GetFloat("GAS_MULTIPLIER", 1.2),
		GasUsageOverride:    parseBool(env.Get("GAS_USAGE_OVERRIDE", "")),
		BurnRateBatchSize:   env.GetInt("BURN_RATE_BATCH_SIZE", 100),
		CallConcurrency:     env.GetInt("CALL_CONCURRENCY", 10),
		RPCRateLimit:        env.GetFloat("RPC_RATE_LIMIT", 20),
		MaxVisibleBlocks:    int64(env.GetInt("MAX_VISIBLE_BLOCKS", 50000)),
		OTLPEndpoint:        env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		FetchSchedule:       env.Get("FETCH_SCHEDULE", DefaultFetchSchedule),
		BurnRateSchedule:    env.Get("BURN_RATE_SCHEDULE", DefaultBurnRateSchedule),
		LiquidationSchedule: env.Get("LIQUIDATION_SCHEDULE", DefaultLiquidationSchedule),
		StatusLimit:         50,
	}

	fs := flag.NewFlagSet("liquidator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.NodeURL, "node", cfg.NodeURL, "Ethereum JSON-RPC endpoint")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "contract environment (prod or stage)")
	fs.StringVar(&cfg.Group, "sync", cfg.Group, "contract version and network, e.g. v4.mainnet")
	fs.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "PostgreSQL connection URL")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "health and metrics listen address")
	fs.StringVar(&cfg.GasTier, "gas", cfg.GasTier, "gas price tier (low, medium, high)")
	fs.Float64Var(&cfg.GasMultiplier, "gas-multiplier", cfg.GasMultiplier, "multiplier applied to gas estimates")
	fs.BoolVar(&cfg.GasUsageOverride, "gas-override", cfg.GasUsageOverride, "use fixed gas limits per operator count")
	fs.IntVar(&cfg.BurnRateBatchSize, "batch", cfg.BurnRateBatchSize, "stale clusters refreshed per run")
	fs.IntVar(&cfg.CallConcurrency, "concurrency", cfg.CallConcurrency, "contract calls in flight")
	fs.IntVar(&cfg.StatusLimit, "limit", cfg.StatusLimit, "rows printed by the status command")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = rest[0]
	}
	cfg.GasTier = strings.ToLower(cfg.GasTier)

	return cfg, nil
}

// Validate reports every problem at once. The status command only needs the database.
func (c Config) Validate() error {
	var errs []error

	switch c.Command {
	case CommandRun, CommandStatus:
	default:
		errs = append(errs, fmt.Errorf("unknown command %q (expected %s or %s)", c.Command, CommandRun, CommandStatus))
	}

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("database URL not provided (use -db flag or DATABASE_URL env var)"))
	}
	if c.Command != CommandRun {
		return errors.Join(errs...)
	}

	if c.NodeURL == "" {
		errs = append(errs, fmt.Errorf("node URL not provided (use -node flag or NODE_URL env var)"))
	}
	if !slices.Contains(environments, c.Env) {
		errs = append(errs, fmt.Errorf("SSV_SYNC_ENV must be one of %v, got %q", environments, c.Env))
	}
	if version, network, ok := strings.Cut(c.Group, "."); !ok || version == "" || network == "" {
		errs = append(errs, fmt.Errorf("SSV_SYNC must look like v4.mainnet, got %q", c.Group))
	}
	if c.PrivateKey == "" {
		errs = append(errs, fmt.Errorf("ACCOUNT_PRIVATE_KEY environment variable is required"))
	}
	if !slices.Contains(gasTiers, c.GasTier) {
		errs = append(errs, fmt.Errorf("GAS_PRICE must be one of %v, got %q", gasTiers, c.GasTier))
	}
	if c.GasMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("GAS_MULTIPLIER must be positive, got %v", c.GasMultiplier))
	}
	if c.BurnRateBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BURN_RATE_BATCH_SIZE must be positive, got %d", c.BurnRateBatchSize))
	}
	if c.CallConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("CALL_CONCURRENCY must be positive, got %d", c.CallConcurrency))
	}
	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPC_RATE_LIMIT must not be negative, got %v", c.RPCRateLimit))
	}
	if c.MaxVisibleBlocks <= 0 {
		errs = append(errs, fmt.Errorf("MAX_VISIBLE_BLOCKS must be positive, got %d", c.MaxVisibleBlocks))
	}

	schedules := []struct{ name, spec string }{
		{"FETCH_SCHEDULE", c.FetchSchedule},
		{"BURN_RATE_SCHEDULE", c.BurnRateSchedule},
		{"LIQUIDATION_SCHEDULE", c.LiquidationSchedule},
	}
	for _, s := range schedules {
		if _, err := scheduleParser.Parse(s.spec); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", s.name, s.spec, err))
		}
	}

	return errors.Join(errs...)
}

// ScheduleParser parses the cron specs accepted by Validate.
func ScheduleParser() cron.Parser {
	return scheduleParser
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
