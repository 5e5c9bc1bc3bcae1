package models

import (
	"time"

	"github.com/google/uuid"
)

// IdeaTask is the second task family (spec §3): produced by a planning
// workflow, stored separately from Task, but reconciled by the same
// Callback Reconciler.
type IdeaTask struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	IdeaID   uuid.UUID `json:"idea_id" db:"idea_id"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description,omitempty" db:"description"`

	Status IdeaTaskStatus `json:"status" db:"status"`

	Result       string `json:"result,omitempty" db:"result"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	Version int `json:"version" db:"version"`
}

// IdeaTaskStatus is the IdeaTask status vocabulary (spec §3): overlaps with
// Task's but is not identical.
type IdeaTaskStatus string

const (
	IdeaTaskStatusPending     IdeaTaskStatus = "pending"
	IdeaTaskStatusReady       IdeaTaskStatus = "ready"
	IdeaTaskStatusInProgress  IdeaTaskStatus = "in_progress"
	IdeaTaskStatusDispatched  IdeaTaskStatus = "dispatched"
	IdeaTaskStatusBlocked     IdeaTaskStatus = "blocked"
	IdeaTaskStatusQuarantined IdeaTaskStatus = "quarantined"
	IdeaTaskStatusCompleted   IdeaTaskStatus = "completed"
	IdeaTaskStatusFailed      IdeaTaskStatus = "failed"
)

// IsTerminal reports whether this idea task has no further state transitions.
func (it *IdeaTask) IsTerminal() bool {
	switch it.Status {
	case IdeaTaskStatusCompleted, IdeaTaskStatusFailed, IdeaTaskStatusQuarantined:
		return true
	default:
		return false
	}
}

// OpenIdeaTaskStatuses are the statuses that count as "still outstanding" for
// the purposes of IdeaExecution roll-up (spec §4.5 step 11).
var OpenIdeaTaskStatuses = []IdeaTaskStatus{
	IdeaTaskStatusPending,
	IdeaTaskStatusReady,
	IdeaTaskStatusInProgress,
	IdeaTaskStatusDispatched,
}

// IdeaExecution is an aggregate-counter row per idea, mutated only by the
// Callback Reconciler as a side effect of idea-task transitions (spec §3,
// invariant I5).
type IdeaExecution struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	IdeaID   uuid.UUID `json:"idea_id" db:"idea_id"`

	CompletedTasks int `json:"completed_tasks" db:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks" db:"failed_tasks"`

	Status IdeaExecutionStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IdeaExecutionStatus tracks the overall roll-up state of an idea's tasks.
type IdeaExecutionStatus string

const (
	IdeaExecutionStatusInProgress IdeaExecutionStatus = "in_progress"
	IdeaExecutionStatusCompleted  IdeaExecutionStatus = "completed"
	IdeaExecutionStatusBlocked    IdeaExecutionStatus = "blocked"
)

// Idea is the parent planning-workflow aggregate; the core only ever reads
// and updates its execution_status field (spec §4.5 step 11).
type Idea struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TenantID        uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ExecutionStatus string    `json:"execution_status" db:"execution_status"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
