// Package inbound contains the primary/inbound ports.
package inbound

import "time"

// TaskStatus is the last reported state of one periodic task.
type TaskStatus struct {
	Healthy             bool      `json:"healthy"`
	LastRun             time.Time `json:"last_run"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// HealthChecker defines the interface for services that can report readiness and liveness.
//
// Implementations:
//   - shared.WorkerState: ready after the first successful sync, healthy while no
//     task has been failing for too many consecutive runs
type HealthChecker interface {
	// IsReady returns true once the projection has been synchronised at least once.
	IsReady() bool

	// IsHealthy returns true when the tasks are operating normally.
	IsHealthy() bool

	// Statuses returns the last status of every task that has run.
	Statuses() map[string]TaskStatus
}
