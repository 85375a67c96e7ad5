package retry

import (
	"context"
	"fmt"
)

// ErrorDecoder recognises protocol errors carried as revert data inside an error.
type ErrorDecoder interface {
	// ProtocolError returns the declared error signature, e.g. "ClusterIsLiquidated()".
	ProtocolError(err error) (string, bool)
}

// Outcome is the result of a contract call: either a value or a decoded protocol error.
// The zero Outcome is an Ok with the zero value.
type Outcome[T any] struct {
	value         T
	protocolError string
}

// Ok wraps a successful call result.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Reverted wraps a protocol error returned by the contract.
func Reverted[T any](signature string) Outcome[T] {
	return Outcome[T]{protocolError: signature}
}

// IsOk reports whether the call produced a value.
func (o Outcome[T]) IsOk() bool {
	return o.protocolError == ""
}

// Value returns the call result. ok is false when the call reverted.
func (o Outcome[T]) Value() (value T, ok bool) {
	return o.value, o.protocolError == ""
}

// ProtocolError returns the decoded error signature when the call reverted.
func (o Outcome[T]) ProtocolError() (string, bool) {
	return o.protocolError, o.protocolError != ""
}

func (o Outcome[T]) String() string {
	if o.protocolError != "" {
		return "reverted: " + o.protocolError
	}
	return fmt.Sprintf("ok: %v", o.value)
}

// Call runs fn with retries. A failure whose revert data decodes to a declared
// protocol error stops retrying and comes back as Reverted with a nil error.
// Every other failure is retried; exhaustion returns an error wrapping ErrRetriesExhausted.
func Call[T any](
	ctx context.Context,
	cfg Config,
	decoder ErrorDecoder,
	onRetry OnRetryFunc,
	fn func(ctx context.Context) (T, error),
) (Outcome[T], error) {
	var reverted string
	isRetryable := func(err error) bool {
		if decoder == nil {
			return true
		}
		if signature, ok := decoder.ProtocolError(err); ok {
			reverted = signature
			return false
		}
		return true
	}

	value, err := Do(ctx, cfg, isRetryable, onRetry, fn)
	if reverted != "" {
		return Reverted[T](reverted), nil
	}
	if err != nil {
		return Outcome[T]{}, err
	}
	return Ok(value), nil
}
