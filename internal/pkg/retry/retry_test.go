package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient error")
var errPermanent = errors.New("permanent error")

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), DefaultConfig(), isTransient, nil, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected result 42, got %d", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesOnTransientError(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastConfig(3), isTransient, nil, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected result 42, got %d", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_FailsImmediatelyOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), isTransient, nil, func(context.Context) (int, error) {
		calls++
		return 0, errPermanent
	})

	if !errors.Is(err, errPermanent) {
		t.Errorf("expected permanent error, got: %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("permanent error must not be reported as exhausted retries")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retries for permanent error), got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(2), isTransient, nil, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got: %v", err)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("expected transient error wrapped, got: %v", err)
	}
	// 1 initial + 2 retries = 3 total
	if calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := Config{
		MaxRetries:     10,
		InitialBackoff: 100 * time.Millisecond,
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		cancel()
	}

	_, err := Do(ctx, cfg, isTransient, onRetry, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	cfg := fastConfig(1)
	cfg.AttemptTimeout = 5 * time.Millisecond

	calls := 0
	result, err := Do(context.Background(), cfg, nil, nil, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "late", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "late" {
		t.Errorf("expected second attempt result, got %q", result)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ExponentialBackoff(t *testing.T) {
	cfg := Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     15 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	backoffs := []time.Duration{}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		backoffs = append(backoffs, backoff)
	}

	_, _ = Do(context.Background(), cfg, isTransient, onRetry, func(context.Context) (int, error) {
		return 0, errTransient
	})

	expected := []time.Duration{10 * time.Millisecond, 15 * time.Millisecond, 15 * time.Millisecond}
	if len(backoffs) != len(expected) {
		t.Fatalf("expected %d backoffs, got %v", len(expected), backoffs)
	}
	for i, exp := range expected {
		if backoffs[i] != exp {
			t.Errorf("backoff[%d]: expected %v, got %v", i, exp, backoffs[i])
		}
	}
}

func TestDoVoid_RetriesAndSucceeds(t *testing.T) {
	calls := 0
	err := DoVoid(context.Background(), fastConfig(3), isTransient, nil, func(context.Context) error {
		calls++
		if calls < 2 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

type stubDecoder map[error]string

func (d stubDecoder) ProtocolError(err error) (string, bool) {
	for target, signature := range d {
		if errors.Is(err, target) {
			return signature, true
		}
	}
	return "", false
}

func TestCall_ReturnsValue(t *testing.T) {
	outcome, err := Call(context.Background(), fastConfig(2), stubDecoder{}, nil, func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, ok := outcome.Value()
	if !ok || value != 7 {
		t.Errorf("expected Ok(7), got %v", outcome)
	}
	if _, reverted := outcome.ProtocolError(); reverted {
		t.Error("expected no protocol error")
	}
}

func TestCall_DecodedRevertIsAValueAndNotRetried(t *testing.T) {
	errRevert := errors.New("execution reverted")
	calls := 0

	outcome, err := Call(context.Background(), fastConfig(3), stubDecoder{errRevert: "ClusterIsLiquidated()"}, nil,
		func(context.Context) (bool, error) {
			calls++
			return false, errRevert
		})

	if err != nil {
		t.Fatalf("decoded revert must not be an error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if outcome.IsOk() {
		t.Fatal("expected reverted outcome")
	}
	signature, _ := outcome.ProtocolError()
	if signature != "ClusterIsLiquidated()" {
		t.Errorf("expected ClusterIsLiquidated(), got %q", signature)
	}
}

func TestCall_UndecodableFailureExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := Call(context.Background(), fastConfig(2), stubDecoder{}, nil, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestCall_RevertAfterTransientFailure(t *testing.T) {
	errRevert := errors.New("execution reverted")
	calls := 0

	outcome, err := Call(context.Background(), fastConfig(3), stubDecoder{errRevert: "IncorrectClusterState()"}, nil,
		func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, errTransient
			}
			return 0, errRevert
		})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signature, ok := outcome.ProtocolError(); !ok || signature != "IncorrectClusterState()" {
		t.Errorf("expected IncorrectClusterState(), got %v", outcome)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
