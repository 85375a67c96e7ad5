package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// task is one periodic job. Tasks that must not overlap set exclusive.
type task struct {
	name      string
	spec      string
	exclusive bool
	run       func(ctx context.Context) error
}

// slogCronLogger routes cron's own logging through slog.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// newScheduler registers every task on a cron with a seconds field. Panics in
// a task are recovered and logged. Task errors are already reported by the
// engines through the worker state.
func newScheduler(ctx context.Context, logger *slog.Logger, parser cron.Parser, tasks []task) (*cron.Cron, error) {
	cronLogger := slogCronLogger{logger: logger.With("component", "scheduler")}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	for _, t := range tasks {
		job := cron.Job(cron.FuncJob(func() {
			if err := t.run(ctx); err != nil {
				cronLogger.logger.Debug("task run failed", "task", t.name, "error", err)
			}
		}))
		if t.exclusive {
			job = cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(job)
		}
		if _, err := c.AddJob(t.spec, job); err != nil {
			return nil, fmt.Errorf("scheduling %s with %q: %w", t.name, t.spec, err)
		}
		logger.Info("task scheduled", "task", t.name, "schedule", t.spec)
	}
	return c, nil
}
