package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

// TaskFilters narrows a task listing by the fields the Dispatcher, the API,
// and operational tooling actually query by.
type TaskFilters struct {
	TenantID  uuid.UUID
	Statuses  []models.TaskStatus
	ProjectID *uuid.UUID
	IdeaID    *uuid.UUID
	Domain    string
	Limit     int
	Offset    int
}

// TaskRepository persists Task rows. Every method is tenant-scoped through
// either the task's own TenantID field or an explicit tenantID parameter;
// nothing here reaches across tenants.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)

	// GetForUpdate locks the row (SELECT ... FOR UPDATE) for the duration of
	// the caller's transaction, for a status transition that must not race a
	// concurrent writer. No component in this repository calls it.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Task, error)

	Update(ctx context.Context, task *models.Task) error

	// UpdateWithVersion performs an optimistic-lock update: the row is only
	// written if its current version still matches expectedVersion. When tx
	// is non-nil the write participates in the caller's transaction.
	UpdateWithVersion(ctx context.Context, tx *sqlx.Tx, task *models.Task, expectedVersion int) error

	SoftDelete(ctx context.Context, id uuid.UUID) error

	// ListNext returns up to limit tasks with status "next", ordered by
	// urgency then importance descending, for the Dispatcher's tick loop
	// (spec §4.3 step 1).
	ListNext(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Task, error)

	// ListBlocked returns every blocked task for a tenant, for the
	// Dependency Promoter's pass (spec §4.6 step 1).
	ListBlocked(ctx context.Context, tenantID uuid.UUID) ([]*models.Task, error)

	List(ctx context.Context, filters TaskFilters) ([]*models.Task, error)

	Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*models.TaskStats, error)
}
