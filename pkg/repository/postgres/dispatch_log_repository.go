package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

type dispatchLogRepository struct {
	*BaseRepository
	metrics *repositoryMetrics
}

// NewDispatchLogRepository builds a DispatchLogRepository over base.
func NewDispatchLogRepository(base *BaseRepository) interfaces.DispatchLogRepository {
	return &dispatchLogRepository{BaseRepository: base, metrics: getRepositoryMetrics()}
}


func (r *dispatchLogRepository) Append(ctx context.Context, tx *sqlx.Tx, entry *models.DispatchLog) error {
	start := time.Now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `INSERT INTO dispatch_log
		(id, tenant_id, queue_entry_id, task_id, executor_type, action, details_json, created_at)
		VALUES (:id, :tenant_id, :queue_entry_id, :task_id, :executor_type, :action, :details_json, :created_at)`

	var err error
	if tx != nil {
		_, err = tx.NamedExecContext(ctx, query, entry)
	} else {
		_, err = r.writeDB.NamedExecContext(ctx, query, entry)
	}
	err = r.TranslateError(err, "dispatch_log")
	r.metrics.observe("dispatch_log_append", start, err)
	return err
}

// CountByAction backs the domain circuit breaker's read (spec §4.2): how
// many times has this task been quarantined.
func (r *dispatchLogRepository) CountByAction(ctx context.Context, taskID uuid.UUID, action models.DispatchAction) (int, error) {
	start := time.Now()
	var count int
	err := r.readDB.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM dispatch_log WHERE task_id = $1 AND action = $2`, taskID, action)
	err = r.TranslateError(err, "dispatch_log")
	r.metrics.observe("dispatch_log_count_by_action", start, err)
	return count, err
}

func (r *dispatchLogRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.DispatchLog, error) {
	start := time.Now()
	var logs []*models.DispatchLog
	err := r.readDB.SelectContext(ctx, &logs,
		`SELECT id, tenant_id, queue_entry_id, task_id, executor_type, action, details_json, created_at
		 FROM dispatch_log WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	err = r.TranslateError(err, "dispatch_log")
	r.metrics.observe("dispatch_log_list_by_task", start, err)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
