package interfaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

// IdeaTaskRepository persists IdeaTask rows, the planning-workflow task
// family reconciled by the same Callback Reconciler as Task (spec §3).
type IdeaTaskRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.IdeaTask, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.IdeaTask, error)
	Update(ctx context.Context, task *models.IdeaTask) error
	UpdateWithVersion(ctx context.Context, tx *sqlx.Tx, task *models.IdeaTask, expectedVersion int) error

	// CountOpenByIdea counts idea tasks still in one of
	// models.OpenIdeaTaskStatuses, the read the Callback Reconciler uses to
	// decide whether an idea's execution has finished (spec §4.5 step 11).
	CountOpenByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (int, error)
	CountFailedByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (int, error)

	// CountQuarantinedByIdea counts idea tasks that ended in the terminal
	// "quarantined" status, the read the roll-up step uses to decide
	// whether an idea's execution finished blocked (spec §4.5 step 11: a
	// failed-but-not-quarantined task still rolls up to completed).
	CountQuarantinedByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (int, error)
}
