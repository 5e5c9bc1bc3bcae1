package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchLog is the append-only audit of every QueueEntry state transition
// (spec §3, invariant I3). Readers may observe a DispatchLog row slightly
// before the corresponding main-table row is visible (spec §5).
type DispatchLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	TenantID     uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	QueueEntryID *uuid.UUID     `json:"queue_entry_id,omitempty" db:"queue_entry_id"`
	TaskID       uuid.UUID      `json:"task_id" db:"task_id"`
	ExecutorType ExecutorType   `json:"executor_type" db:"executor_type"`
	Action       DispatchAction `json:"action" db:"action"`
	Details      JSONMap        `json:"details" db:"details_json"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// DispatchAction is the vocabulary of recordable transitions (spec §3).
type DispatchAction string

const (
	DispatchActionQueued                DispatchAction = "queued"
	DispatchActionClaimed               DispatchAction = "claimed"
	DispatchActionDispatched            DispatchAction = "dispatched"
	DispatchActionCompleted             DispatchAction = "completed"
	DispatchActionFailed                DispatchAction = "failed"
	DispatchActionQuarantined           DispatchAction = "quarantined"
	DispatchActionCircuitBreakerTripped DispatchAction = "circuit_breaker_tripped"
)
