package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

// QueueRepository persists QueueEntry rows and enforces invariant I1 (at
// most one live entry per task) at the database layer: Insert relies on a
// partial unique index over (task_id) WHERE status IN
// ('queued','claimed','dispatched'), so a second concurrent insert for the
// same task surfaces as a duplicate-key error rather than silently
// succeeding.
type QueueRepository interface {
	Insert(ctx context.Context, entry *models.QueueEntry) error
	Get(ctx context.Context, id uuid.UUID) (*models.QueueEntry, error)

	// GetLiveByTask returns the task's single live entry, if any (spec §6
	// persistent state layout). Returns interfaces.ErrNotFound when none
	// exists.
	GetLiveByTask(ctx context.Context, taskID uuid.UUID) (*models.QueueEntry, error)

	// ClaimNext atomically selects and claims the highest-priority queued
	// entry (oldest first among equal priorities) for an
	// executor type (spec §4.4 step 1): SELECT ... FOR UPDATE SKIP LOCKED
	// followed by an UPDATE to claimed, returning the claim token.
	ClaimNext(ctx context.Context, executorType models.ExecutorType, claimToken string) (*models.QueueEntry, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status models.QueueEntryStatus) error

	// RecordDispatch transitions a claimed entry to dispatched and records
	// the workflow instance id the container path returned (spec §4.4 step
	// 4).
	RecordDispatch(ctx context.Context, id uuid.UUID, workflowInstanceID string) error

	// RecordResult transitions a live entry to its terminal status with the
	// callback's result or error payload (spec §4.5 step 2).
	RecordResult(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status models.QueueEntryStatus, result, errText string) error

	// RevertExpiredClaims moves every claimed entry whose ClaimedAt predates
	// the cutoff back to queued (spec §4.4's claim-timeout reversion), and
	// returns the reverted entries so the caller can append a per-task
	// DispatchLog event for each one.
	RevertExpiredClaims(ctx context.Context, cutoff time.Time) ([]*models.QueueEntry, error)

	// ListTerminal returns terminal entries older than cutoff, a page at a
	// time, for archival (spec §4.5 step 8 / invariant I2).
	ListTerminal(ctx context.Context, cutoff time.Time, limit int) ([]*models.QueueEntry, error)

	// ArchiveAndDelete copies the given entries into
	// execution_queue_archive and deletes them from execution_queue. When tx
	// is non-nil the copy and delete run inside the caller's transaction
	// instead of opening their own.
	ArchiveAndDelete(ctx context.Context, tx *sqlx.Tx, entries []*models.QueueEntry) (int64, error)
}
