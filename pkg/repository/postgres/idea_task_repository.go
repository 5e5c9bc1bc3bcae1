package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

type ideaTaskRepository struct {
	*BaseRepository
	metrics *repositoryMetrics
}

// NewIdeaTaskRepository builds an IdeaTaskRepository over base.
func NewIdeaTaskRepository(base *BaseRepository) interfaces.IdeaTaskRepository {
	return &ideaTaskRepository{BaseRepository: base, metrics: getRepositoryMetrics()}
}


const ideaTaskColumns = `id, tenant_id, user_id, idea_id, title, description, status,
	result, error_message, created_at, updated_at, completed_at, deleted_at, version`

func (r *ideaTaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.IdeaTask, error) {
	start := time.Now()
	var task models.IdeaTask
	query := `SELECT ` + ideaTaskColumns + ` FROM idea_tasks WHERE id = $1 AND deleted_at IS NULL`
	err := r.readDB.GetContext(ctx, &task, query, id)
	err = r.TranslateError(err, "idea_task")
	r.metrics.observe("idea_task_get", start, err)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *ideaTaskRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.IdeaTask, error) {
	start := time.Now()
	var task models.IdeaTask
	query := `SELECT ` + ideaTaskColumns + ` FROM idea_tasks WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	err := tx.GetContext(ctx, &task, query, id)
	err = r.TranslateError(err, "idea_task")
	r.metrics.observe("idea_task_get_for_update", start, err)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *ideaTaskRepository) Update(ctx context.Context, task *models.IdeaTask) error {
	start := time.Now()
	task.UpdatedAt = time.Now()
	query := `UPDATE idea_tasks SET
		status = :status, result = :result, error_message = :error_message,
		updated_at = :updated_at, completed_at = :completed_at, deleted_at = :deleted_at
		WHERE id = :id AND deleted_at IS NULL`
	res, err := r.writeDB.NamedExecContext(ctx, query, task)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	err = r.TranslateError(err, "idea_task")
	r.metrics.observe("idea_task_update", start, err)
	return err
}

func (r *ideaTaskRepository) UpdateWithVersion(ctx context.Context, tx *sqlx.Tx, task *models.IdeaTask, expectedVersion int) error {
	start := time.Now()
	task.UpdatedAt = time.Now()
	newVersion := expectedVersion + 1

	query := `UPDATE idea_tasks SET
		status = $1, result = $2, error_message = $3, updated_at = $4, completed_at = $5, version = $6
		WHERE id = $7 AND version = $8 AND deleted_at IS NULL`

	exec := sqlExecerFor(r.writeDB, tx)
	res, err := exec.ExecContext(ctx, query,
		task.Status, task.Result, task.ErrorMessage, task.UpdatedAt, task.CompletedAt, newVersion,
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
		err = r.TranslateError(err, "idea_task")
	}
	r.metrics.observe("idea_task_update_with_version", start, err)
	return err
}

func (r *ideaTaskRepository) CountOpenByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (int, error) {
	start := time.Now()
	var count int
	exec := sqlQueryerFor(r.readDB, tx)
	err := exec.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM idea_tasks
		 WHERE idea_id = $1 AND deleted_at IS NULL
		 AND status IN ('pending','ready','in_progress','dispatched')`, ideaID)
	err = r.TranslateError(err, "idea_task")
	r.metrics.observe("idea_task_count_open_by_idea", start, err)
	return count, err
}

func (r *ideaTaskRepository) CountFailedByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (int, error) {
	start := time.Now()
	var count int
	exec := sqlQueryerFor(r.readDB, tx)
	err := exec.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM idea_tasks
		 WHERE idea_id = $1 AND deleted_at IS NULL
		 AND status IN ('failed','quarantined')`, ideaID)
	err = r.TranslateError(err, "idea_task")
	r.metrics.observe("idea_task_count_failed_by_idea", start, err)
	return count, err
}

func (r *ideaTaskRepository) CountQuarantinedByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (int, error) {
	start := time.Now()
	var count int
	exec := sqlQueryerFor(r.readDB, tx)
	err := exec.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM idea_tasks
		 WHERE idea_id = $1 AND deleted_at IS NULL
		 AND status = 'quarantined'`, ideaID)
	err = r.TranslateError(err, "idea_task")
	r.metrics.observe("idea_task_count_quarantined_by_idea", start, err)
	return count, err
}

// sqlExecerFor picks tx when non-nil, falling back to db. Shared by every
// repository method that can optionally participate in a caller's
// transaction.
func sqlExecerFor(db *sqlx.DB, tx *sqlx.Tx) execer {
	if tx != nil {
		return tx
	}
	return db
}

type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func sqlQueryerFor(db *sqlx.DB, tx *sqlx.Tx) queryer {
	if tx != nil {
		return tx
	}
	return db
}
