package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrBatchTimeout is returned when a window does not finish within its deadline.
var ErrBatchTimeout = errors.New("batch window timed out")

// Task is one remote call scheduled by RunBatched.
type Task[T any] func(ctx context.Context) (T, error)

// RunBatched runs tasks in consecutive windows of at most limit tasks. A window
// starts only after the previous one completed, so no more than limit tasks are
// ever in flight. Each window is bounded by windowTimeout (zero disables it).
//
// The first failing task cancels its window and RunBatched returns without
// starting later windows. Results are returned in input order.
func RunBatched[T any](ctx context.Context, tasks []Task[T], limit int, windowTimeout time.Duration) ([]T, error) {
	if limit <= 0 {
		limit = 1
	}

	results := make([]T, len(tasks))
	for start := 0; start < len(tasks); start += limit {
		end := min(start+limit, len(tasks))

		window := make([]T, end-start)
		if err := runWindow(ctx, tasks[start:end], window, windowTimeout); err != nil {
			return nil, fmt.Errorf("batch window [%d, %d): %w", start, end, err)
		}
		copy(results[start:end], window)
	}
	return results, nil
}

func runWindow[T any](ctx context.Context, tasks []Task[T], out []T, timeout time.Duration) error {
	windowCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		windowCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(windowCtx)
	for i, task := range tasks {
		g.Go(func() error {
			value, err := task(gctx)
			if err != nil {
				return err
			}
			out[i] = value
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-windowCtx.Done():
		// A window that finished right at the deadline still counts.
		select {
		case err := <-done:
			return err
		default:
		}
		if errors.Is(windowCtx.Err(), context.DeadlineExceeded) {
			return ErrBatchTimeout
		}
		return windowCtx.Err()
	}
}
