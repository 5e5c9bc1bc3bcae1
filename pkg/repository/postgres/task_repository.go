package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

// taskRepository is the postgres-backed interfaces.TaskRepository.
type taskRepository struct {
	*BaseRepository
	opts    repositoryOptions
	metrics *repositoryMetrics
}

// NewTaskRepository builds a TaskRepository over base, applying any
// RepositoryOption overrides.
func NewTaskRepository(base *BaseRepository, opts ...RepositoryOption) interfaces.TaskRepository {
	o := defaultRepositoryOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &taskRepository{BaseRepository: base, opts: o, metrics: getRepositoryMetrics()}
}


const taskColumns = `id, tenant_id, user_id, title, description, status, urgency, importance,
	project_id, idea_id, domain, due_date, energy_required, source_type, source_reference,
	depends_on, completion_notes, created_at, updated_at, completed_at, deleted_at, version`

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	start := time.Now()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	task.Version = 1

	ctx, cancel := context.WithTimeout(ctx, r.opts.queryTimeout)
	defer cancel()

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (
		:id, :tenant_id, :user_id, :title, :description, :status, :urgency, :importance,
		:project_id, :idea_id, :domain, :due_date, :energy_required, :source_type, :source_reference,
		:depends_on, :completion_notes, :created_at, :updated_at, :completed_at, :deleted_at, :version)`

	_, err := r.writeDB.NamedExecContext(ctx, query, task)
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_create", start, err)
	return err
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	start := time.Now()
	var task models.Task
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted_at IS NULL`
	err := r.readDB.GetContext(ctx, &task, query, id)
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_get", start, err)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Task, error) {
	start := time.Now()
	var task models.Task
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	err := tx.GetContext(ctx, &task, query, id)
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_get_for_update", start, err)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	start := time.Now()
	task.UpdatedAt = time.Now()
	task.Version++

	query := `UPDATE tasks SET
		title = :title, description = :description, status = :status, urgency = :urgency,
		importance = :importance, project_id = :project_id, idea_id = :idea_id, domain = :domain,
		due_date = :due_date, energy_required = :energy_required, source_type = :source_type,
		source_reference = :source_reference, depends_on = :depends_on,
		completion_notes = :completion_notes, updated_at = :updated_at, completed_at = :completed_at,
		deleted_at = :deleted_at, version = :version
		WHERE id = :id AND deleted_at IS NULL`

	res, err := r.writeDB.NamedExecContext(ctx, query, task)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_update", start, err)
	return err
}

// UpdateWithVersion is the optimistic-lock write path used by the
// Dispatcher, Callback Reconciler, and Dependency Promoter whenever a
// status transition must not silently clobber a concurrent writer
// (invariant I4). A row-count of zero after the WHERE version = $N clause
// means someone else moved the task first; the caller gets
// interfaces.ErrOptimisticLock and is expected to reload and retry.
func (r *taskRepository) UpdateWithVersion(ctx context.Context, tx *sqlx.Tx, task *models.Task, expectedVersion int) error {
	start := time.Now()
	task.UpdatedAt = time.Now()
	newVersion := expectedVersion + 1

	query := `UPDATE tasks SET
		status = $1, completion_notes = $2, completed_at = $3, updated_at = $4, version = $5
		WHERE id = $6 AND version = $7 AND deleted_at IS NULL`

	exec := sqlExecerFor(r.writeDB, tx)
	res, err := exec.ExecContext(ctx, query,
		task.Status, task.CompletionNotes, task.CompletedAt, task.UpdatedAt, newVersion,
		task.ID, expectedVersion)
	if err == nil {
		n, _ := res.RowsAffected()
		if n == 0 {
			err = interfaces.ErrOptimisticLock
		} else {
			task.Version = newVersion
		}
	}
	if err != interfaces.ErrOptimisticLock {
		err = r.TranslateError(err, "task")
	}
	r.metrics.observe("task_update_with_version", start, err)
	return err
}

func (r *taskRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	query := `UPDATE tasks SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.writeDB.ExecContext(ctx, query, id)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_soft_delete", start, err)
	return err
}

// ListNext is the Dispatcher's per-tick selection query (spec §4.3 step 1):
// every "next" task for the tenant, ordered by urgency then importance
// descending, capped at limit.
func (r *taskRepository) ListNext(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Task, error) {
	start := time.Now()
	if limit <= 0 {
		limit = r.opts.batchSize
	}
	var tasks []*models.Task
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE tenant_id = $1 AND status = 'next' AND deleted_at IS NULL
		ORDER BY urgency DESC, importance DESC, created_at ASC
		LIMIT $2`
	err := r.readDB.SelectContext(ctx, &tasks, query, tenantID, limit)
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_list_next", start, err)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListBlocked is the Dependency Promoter's source query (spec §4.6
// step 1).
func (r *taskRepository) ListBlocked(ctx context.Context, tenantID uuid.UUID) ([]*models.Task, error) {
	start := time.Now()
	var tasks []*models.Task
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE tenant_id = $1 AND status = 'blocked' AND deleted_at IS NULL`
	err := r.readDB.SelectContext(ctx, &tasks, query, tenantID)
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_list_blocked", start, err)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) List(ctx context.Context, filters interfaces.TaskFilters) ([]*models.Task, error) {
	start := time.Now()
	query, args := buildTaskFilterQuery(filters)
	var tasks []*models.Task
	err := r.readDB.SelectContext(ctx, &tasks, query, args...)
	err = r.TranslateError(err, "task")
	r.metrics.observe("task_list", start, err)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func buildTaskFilterQuery(f interfaces.TaskFilters) (string, []interface{}) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id = $1 AND deleted_at IS NULL`
	args := []interface{}{f.TenantID}
	n := 1

	if len(f.Statuses) > 0 {
		n++
		query += fmt.Sprintf(" AND status = ANY($%d)", n)
		args = append(args, statusesToStrings(f.Statuses))
	}
	if f.ProjectID != nil {
		n++
		query += fmt.Sprintf(" AND project_id = $%d", n)
		args = append(args, *f.ProjectID)
	}
	if f.IdeaID != nil {
		n++
		query += fmt.Sprintf(" AND idea_id = $%d", n)
		args = append(args, *f.IdeaID)
	}
	if f.Domain != "" {
		n++
		query += fmt.Sprintf(" AND domain = $%d", n)
		args = append(args, f.Domain)
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	if f.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, f.Offset)
	}

	return query, args
}

func statusesToStrings(statuses []models.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *taskRepository) Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*models.TaskStats, error) {
	start := time.Now()
	stats := &models.TaskStats{TasksByStatus: make(map[models.TaskStatus]int64)}

	rows, err := r.readDB.QueryxContext(ctx, `
		SELECT status, COUNT(*) FROM tasks
		WHERE tenant_id = $1 AND created_at >= $2 AND deleted_at IS NULL
		GROUP BY status`, tenantID, since)
	if err != nil {
		err = r.TranslateError(err, "task")
		r.metrics.observe("task_stats", start, err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status models.TaskStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}
		stats.TasksByStatus[status] = count
		stats.TotalTasks += count
	}

	completed := stats.TasksByStatus[models.TaskStatusCompleted]
	cancelled := stats.TasksByStatus[models.TaskStatusCancelled]
	if terminal := completed + cancelled; terminal > 0 {
		stats.SuccessRate = float64(completed) / float64(terminal)
	}

	r.metrics.observe("task_stats", start, nil)
	return stats, nil
}
