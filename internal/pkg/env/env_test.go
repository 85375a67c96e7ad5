package env

import (
	"log/slog"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Setenv("LIQ_TEST_STRING", "value")

	if got := Get("LIQ_TEST_STRING", "fallback"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
	if got := Get("LIQ_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestGetInt(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback int
		want     int
	}{
		{name: "parses integer", raw: "42", fallback: 1, want: 42},
		{name: "empty uses fallback", raw: "", fallback: 7, want: 7},
		{name: "garbage uses fallback", raw: "forty", fallback: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LIQ_TEST_INT", tt.raw)
			if got := GetInt("LIQ_TEST_INT", tt.fallback); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestGetFloatAndDuration(t *testing.T) {
	t.Setenv("LIQ_TEST_FLOAT", "1.5")
	t.Setenv("LIQ_TEST_DURATION", "250ms")

	if got := GetFloat("LIQ_TEST_FLOAT", 1.2); got != 1.5 {
		t.Errorf("expected 1.5, got %v", got)
	}
	if got := GetDuration("LIQ_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
	if got := GetDuration("LIQ_TEST_DURATION_MISSING", time.Second); got != time.Second {
		t.Errorf("expected 1s fallback, got %v", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	if got := ParseLogLevel(slog.LevelInfo); got != slog.LevelDebug {
		t.Errorf("expected debug, got %v", got)
	}

	t.Setenv("LOG_LEVEL", "verbose")
	if got := ParseLogLevel(slog.LevelWarn); got != slog.LevelWarn {
		t.Errorf("expected fallback warn, got %v", got)
	}
}
