package interfaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

// IdeaExecutionRepository maintains the per-idea aggregate counters
// (CompletedTasks, FailedTasks, Status) the Callback Reconciler updates as a
// side effect of idea-task transitions (spec §3, invariant I5).
type IdeaExecutionRepository interface {
	GetByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (*models.IdeaExecution, error)
	IncrementCompleted(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) error
	IncrementFailed(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID, status models.IdeaExecutionStatus) error
}

// IdeaRepository updates the parent Idea aggregate's execution_status field,
// the only column this system ever writes on that table (spec §4.5 step
// 11).
type IdeaRepository interface {
	UpdateExecutionStatus(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID, status string) error
}
