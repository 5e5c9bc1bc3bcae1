package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is one row per dispatch attempt (spec §3). At most one live
// entry (status in {queued, claimed, dispatched}) may exist per task — the
// uniqueness invariant (I1) that prevents double-dispatch.
type QueueEntry struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	TaskID   uuid.UUID `json:"task_id" db:"task_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`

	ExecutorType ExecutorType      `json:"executor_type" db:"executor_type"`
	Status       QueueEntryStatus  `json:"status" db:"status"`
	Priority     int               `json:"priority" db:"priority"`

	// ClaimToken uniquely identifies an Executor's claim on this entry so
	// that claim-timeout reversion cannot race with a concurrent completion.
	ClaimToken *string `json:"claim_token,omitempty" db:"claim_token"`

	// WorkflowInstanceID is recorded when the container path accepts the
	// task asynchronously (spec §4.4).
	WorkflowInstanceID string `json:"workflow_instance_id,omitempty" db:"workflow_instance_id"`

	// Context snapshots the task's decrypted fields at dispatch time (spec
	// §4.3 step 6): title, description, project, domain, due date, energy,
	// source info.
	Context JSONMap `json:"context" db:"context"`

	Result string `json:"result,omitempty" db:"result"`
	Error  string `json:"error,omitempty" db:"error"`

	QueuedAt    time.Time  `json:"queued_at" db:"queued_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ExecutorType is the Classifier's output vocabulary (spec §4.1).
type ExecutorType string

const (
	ExecutorTypeAI       ExecutorType = "ai"
	ExecutorTypeHuman    ExecutorType = "human"
	ExecutorTypeHumanAI  ExecutorType = "human-ai"
)

// QueueEntryStatus is the QueueEntry state-machine vocabulary (spec §4.7):
// queued -> claimed -> {dispatched | completed | failed}; dispatched ->
// {completed | failed | quarantine}; claimed -> queued on claim timeout.
type QueueEntryStatus string

const (
	QueueEntryStatusQueued     QueueEntryStatus = "queued"
	QueueEntryStatusClaimed    QueueEntryStatus = "claimed"
	QueueEntryStatusDispatched QueueEntryStatus = "dispatched"
	QueueEntryStatusCompleted  QueueEntryStatus = "completed"
	QueueEntryStatusFailed     QueueEntryStatus = "failed"
	QueueEntryStatusQuarantine QueueEntryStatus = "quarantine"
)

// LiveQueueEntryStatuses are the statuses counted as "live" for invariant I1
// and the Glossary's "Live queue entry" definition.
var LiveQueueEntryStatuses = []QueueEntryStatus{
	QueueEntryStatusQueued,
	QueueEntryStatusClaimed,
	QueueEntryStatusDispatched,
}

// TerminalQueueEntryStatuses are the statuses eligible for archival.
var TerminalQueueEntryStatuses = []QueueEntryStatus{
	QueueEntryStatusCompleted,
	QueueEntryStatusFailed,
	QueueEntryStatusQuarantine,
}

// IsLive reports whether this entry occupies the single live slot for its
// task (invariant I1).
func (q *QueueEntry) IsLive() bool {
	switch q.Status {
	case QueueEntryStatusQueued, QueueEntryStatusClaimed, QueueEntryStatusDispatched:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether this entry has reached a terminal state and is
// eligible for archival (invariant I2).
func (q *QueueEntry) IsTerminal() bool {
	switch q.Status {
	case QueueEntryStatusCompleted, QueueEntryStatusFailed, QueueEntryStatusQuarantine:
		return true
	default:
		return false
	}
}

// QueueEntryArchive is the archive-table counterpart of QueueEntry (spec §6
// persistent state layout: execution_queue_archive). Queue reconciliation
// copies a terminal entry here and deletes the live row (spec §4.5 step 8).
type QueueEntryArchive struct {
	QueueEntry
	ArchivedAt time.Time `json:"archived_at" db:"archived_at"`
}
