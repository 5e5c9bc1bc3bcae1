// Package circuitbreaker implements the per-task quarantine breaker the
// Dispatcher consults before re-queueing a task. Unlike pkg/resilience's
// in-process breaker for outbound executor calls, this breaker has no
// in-memory state: the trip decision is derived from the DispatchLog on
// every call, so it stays correct across dispatcher restarts and replicas.
package circuitbreaker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

// DefaultThreshold is the quarantine count at which a task's circuit trips.
const DefaultThreshold = 3

// Result is the breaker's verdict for a task.
type Result struct {
	Tripped         bool
	QuarantineCount int
	Reason          string
}

// Breaker consults the DispatchLog's quarantine history for a task.
type Breaker struct {
	logs      interfaces.DispatchLogRepository
	threshold int
}

// New builds a Breaker backed by logs, tripping at threshold quarantine
// events. A threshold of 0 uses DefaultThreshold.
func New(logs interfaces.DispatchLogRepository, threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Breaker{logs: logs, threshold: threshold}
}

// Check counts quarantined DispatchLog entries for taskID and reports
// whether the task's circuit is tripped.
func (b *Breaker) Check(ctx context.Context, taskID uuid.UUID) (Result, error) {
	count, err := b.logs.CountByAction(ctx, taskID, models.DispatchActionQuarantined)
	if err != nil {
		return Result{}, fmt.Errorf("circuitbreaker: count quarantine events: %w", err)
	}

	if count >= b.threshold {
		return Result{
			Tripped:         true,
			QuarantineCount: count,
			Reason:          fmt.Sprintf("task quarantined %d times, threshold %d", count, b.threshold),
		}, nil
	}

	return Result{QuarantineCount: count}, nil
}
