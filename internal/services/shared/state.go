// Package shared provides state and helpers shared by the periodic tasks.
package shared

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-research/cluster-liquidator/internal/ports/inbound"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

// Task names used for status reporting and metrics labels.
const (
	TaskFetch       = "fetch"
	TaskBurnRates   = "burn_rates"
	TaskLiquidation = "liquidation"
)

// DefaultCriticalAfter is the number of consecutive failed runs after which a
// task is reported critical.
const DefaultCriticalAfter = 5

var _ inbound.HealthChecker = (*WorkerState)(nil)

// TaskStatus is the last reported state of one task.
type TaskStatus = inbound.TaskStatus

// WorkerState is created once per process and injected into every task.
// It owns the sync lock, the task status board and the metrics recorder.
type WorkerState struct {
	syncMu sync.Mutex

	metrics       outbound.MetricsRecorder
	criticalAfter int

	mu       sync.RWMutex
	statuses map[string]TaskStatus

	ready atomic.Bool
}

// NewWorkerState creates the shared state. metrics may be nil.
func NewWorkerState(metrics outbound.MetricsRecorder, criticalAfter int) *WorkerState {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if criticalAfter <= 0 {
		criticalAfter = DefaultCriticalAfter
	}
	return &WorkerState{
		metrics:       metrics,
		criticalAfter: criticalAfter,
		statuses:      make(map[string]TaskStatus),
	}
}

// TryLockSync acquires the sync lock without waiting.
func (s *WorkerState) TryLockSync() bool {
	return s.syncMu.TryLock()
}

// UnlockSync releases the sync lock.
func (s *WorkerState) UnlockSync() {
	s.syncMu.Unlock()
}

// Metrics returns the recorder shared by every task.
func (s *WorkerState) Metrics() outbound.MetricsRecorder {
	return s.metrics
}

// MarkReady flags that the projection has been synchronised at least once.
func (s *WorkerState) MarkReady() {
	s.ready.Store(true)
}

// Report records the outcome of one task run.
func (s *WorkerState) Report(ctx context.Context, task string, err error) {
	s.mu.Lock()
	st := s.statuses[task]
	st.LastRun = time.Now()
	if err != nil {
		st.Healthy = false
		st.LastError = err.Error()
		st.ConsecutiveFailures++
	} else {
		st.Healthy = true
		st.LastError = ""
		st.ConsecutiveFailures = 0
	}
	s.statuses[task] = st
	critical := s.criticalLocked()
	s.mu.Unlock()

	s.metrics.SetTaskStatus(ctx, task, err == nil)
	s.metrics.SetCriticalStatus(ctx, critical)
}

// Statuses returns a copy of every task status.
func (s *WorkerState) Statuses() map[string]TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TaskStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// IsReady implements inbound.HealthChecker.
func (s *WorkerState) IsReady() bool {
	return s.ready.Load()
}

// IsHealthy implements inbound.HealthChecker.
func (s *WorkerState) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.criticalLocked()
}

func (s *WorkerState) criticalLocked() bool {
	for _, st := range s.statuses {
		if st.ConsecutiveFailures >= s.criticalAfter {
			return true
		}
	}
	return false
}
