package interfaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

// DispatchLogRepository persists the append-only DispatchLog mirroring every
// QueueEntry transition (invariant I3). Nothing ever updates or deletes a
// row here outside of the archival job.
type DispatchLogRepository interface {
	// Append writes one log row. When tx is non-nil the write participates
	// in the caller's transaction, keeping the log durably consistent with
	// the state change it records (spec §4.2 requires the circuit breaker's
	// read to see every quarantine synchronously with the write that caused
	// it).
	Append(ctx context.Context, tx *sqlx.Tx, entry *models.DispatchLog) error

	// CountByAction counts log rows for a task matching the given action,
	// the read the domain circuit breaker (spec §4.2) performs on every
	// dispatch attempt.
	CountByAction(ctx context.Context, taskID uuid.UUID, action models.DispatchAction) (int, error)

	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.DispatchLog, error)
}
