package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NODE_URL", "http://localhost:8545")
	t.Setenv("SSV_SYNC_ENV", "prod")
	t.Setenv("SSV_SYNC", "v4.holesky")
	t.Setenv("DATABASE_URL", "postgres://localhost/liquidator")
	t.Setenv("ACCOUNT_PRIVATE_KEY", "0xabc")
}

func TestLoad_Defaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	if cfg.Command != CommandRun {
		t.Errorf("expected run command, got %q", cfg.Command)
	}
	if cfg.GasTier != "low" || cfg.GasMultiplier != 1.2 || cfg.GasUsageOverride {
		t.Errorf("unexpected gas defaults: %+v", cfg)
	}
	if cfg.BurnRateBatchSize != 100 || cfg.CallConcurrency != 10 || cfg.MaxVisibleBlocks != 50000 {
		t.Errorf("unexpected engine defaults: %+v", cfg)
	}
	if cfg.FetchSchedule != DefaultFetchSchedule || cfg.LiquidationSchedule != DefaultLiquidationSchedule {
		t.Errorf("unexpected schedules: %q %q", cfg.FetchSchedule, cfg.LiquidationSchedule)
	}
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	setValidEnv(t)
	t.Setenv("GAS_PRICE", "medium")
	t.Setenv("GAS_USAGE_OVERRIDE", "true")

	cfg, err := Load([]string{"-gas", "HIGH", "-batch", "25", "status"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GasTier != "high" {
		t.Errorf("expected flag to win, got %q", cfg.GasTier)
	}
	if !cfg.GasUsageOverride {
		t.Error("expected gas override from environment")
	}
	if cfg.BurnRateBatchSize != 25 {
		t.Errorf("expected batch 25, got %d", cfg.BurnRateBatchSize)
	}
	if cfg.Command != CommandStatus {
		t.Errorf("expected status command, got %q", cfg.Command)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	setValidEnv(t)
	t.Setenv("CALL_CONCURRENCY", "4")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "CALL_CONCURRENCY=99\nMAX_VISIBLE_BLOCKS=1234\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MAX_VISIBLE_BLOCKS") })

	cfg, err := Load(nil, path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CallConcurrency != 4 {
		t.Errorf("expected environment to win over .env, got %d", cfg.CallConcurrency)
	}
	if cfg.MaxVisibleBlocks != 1234 {
		t.Errorf("expected value from .env, got %d", cfg.MaxVisibleBlocks)
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	if _, err := Load([]string{"-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Command:             CommandRun,
		Env:                 "dev",
		Group:               "v4",
		GasTier:             "turbo",
		GasMultiplier:       1,
		BurnRateBatchSize:   1,
		CallConcurrency:     1,
		MaxVisibleBlocks:    1,
		FetchSchedule:       "every second",
		BurnRateSchedule:    DefaultBurnRateSchedule,
		LiquidationSchedule: DefaultLiquidationSchedule,
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"database URL", "node URL", "SSV_SYNC_ENV", "SSV_SYNC must", "ACCOUNT_PRIVATE_KEY", "GAS_PRICE", "FETCH_SCHEDULE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_StatusNeedsOnlyDatabase(t *testing.T) {
	cfg := Config{Command: CommandStatus, DatabaseURL: "postgres://localhost/liquidator"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected status config to be valid, got %v", err)
	}

	cfg.Command = "liquidate-all"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown command to be rejected")
	}
}

func TestScheduleParserAcceptsSeconds(t *testing.T) {
	if _, err := ScheduleParser().Parse("*/5 * * * * *"); err != nil {
		t.Errorf("expected six-field spec to parse: %v", err)
	}
	if _, err := ScheduleParser().Parse("@every 30s"); err != nil {
		t.Errorf("expected descriptor to parse: %v", err)
	}
}
