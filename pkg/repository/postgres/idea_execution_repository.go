package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

type ideaExecutionRepository struct {
	*BaseRepository
	metrics *repositoryMetrics
}

// NewIdeaExecutionRepository builds an IdeaExecutionRepository over base.
func NewIdeaExecutionRepository(base *BaseRepository) interfaces.IdeaExecutionRepository {
	return &ideaExecutionRepository{BaseRepository: base, metrics: getRepositoryMetrics()}
}


func (r *ideaExecutionRepository) GetByIdea(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) (*models.IdeaExecution, error) {
	start := time.Now()
	var exec models.IdeaExecution
	query := `SELECT id, tenant_id, idea_id, completed_tasks, failed_tasks, status, created_at, updated_at
		FROM idea_executions WHERE idea_id = $1`
	var err error
	if tx != nil {
		err = tx.GetContext(ctx, &exec, query, ideaID)
	} else {
		err = r.readDB.GetContext(ctx, &exec, query, ideaID)
	}
	err = r.TranslateError(err, "idea_execution")
	r.metrics.observe("idea_execution_get_by_idea", start, err)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *ideaExecutionRepository) IncrementCompleted(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) error {
	return r.increment(ctx, tx, ideaID, "completed_tasks", "idea_execution_increment_completed")
}

func (r *ideaExecutionRepository) IncrementFailed(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID) error {
	return r.increment(ctx, tx, ideaID, "failed_tasks", "idea_execution_increment_failed")
}

func (r *ideaExecutionRepository) increment(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID, column, operation string) error {
	start := time.Now()
	query := `UPDATE idea_executions SET ` + column + ` = ` + column + ` + 1, updated_at = now() WHERE idea_id = $1`
	exec := sqlExecerForTx(r.writeDB, tx)
	_, err := exec.ExecContext(ctx, query, ideaID)
	err = r.TranslateError(err, "idea_execution")
	r.metrics.observe(operation, start, err)
	return err
}

func (r *ideaExecutionRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID, status models.IdeaExecutionStatus) error {
	start := time.Now()
	exec := sqlExecerForTx(r.writeDB, tx)
	_, err := exec.ExecContext(ctx,
		`UPDATE idea_executions SET status = $1, updated_at = now() WHERE idea_id = $2`, status, ideaID)
	err = r.TranslateError(err, "idea_execution")
	r.metrics.observe("idea_execution_update_status", start, err)
	return err
}

func sqlExecerForTx(db *sqlx.DB, tx *sqlx.Tx) execer {
	if tx != nil {
		return tx
	}
	return db
}

// ideaRepository updates the parent Idea aggregate's execution_status.
type ideaRepository struct {
	*BaseRepository
	metrics *repositoryMetrics
}

// NewIdeaRepository builds an IdeaRepository over base.
func NewIdeaRepository(base *BaseRepository) interfaces.IdeaRepository {
	return &ideaRepository{BaseRepository: base, metrics: getRepositoryMetrics()}
}

func (r *ideaRepository) UpdateExecutionStatus(ctx context.Context, tx *sqlx.Tx, ideaID uuid.UUID, status string) error {
	start := time.Now()
	exec := sqlExecerForTx(r.writeDB, tx)
	_, err := exec.ExecContext(ctx,
		`UPDATE ideas SET execution_status = $1, updated_at = now() WHERE id = $2`, status, ideaID)
	err = r.TranslateError(err, "idea")
	r.metrics.observe("idea_update_execution_status", start, err)
	return err
}
