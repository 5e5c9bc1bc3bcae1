package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

type queueRepository struct {
	*BaseRepository
	opts    repositoryOptions
	metrics *repositoryMetrics
}

// NewQueueRepository builds a QueueRepository over base.
func NewQueueRepository(base *BaseRepository, opts ...RepositoryOption) interfaces.QueueRepository {
	o := defaultRepositoryOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &queueRepository{BaseRepository: base, opts: o, metrics: getRepositoryMetrics()}
}


const queueColumns = `id, tenant_id, task_id, user_id, executor_type, status, priority,
	claim_token, workflow_instance_id, context, result, error, queued_at, claimed_at, completed_at`

// Insert relies on the database's partial unique index over task_id among
// live statuses to enforce invariant I1; a concurrent second insert for the
// same task surfaces here as interfaces.ErrDuplicate.
func (r *queueRepository) Insert(ctx context.Context, entry *models.QueueEntry) error {
	start := time.Now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = time.Now()
	}

	query := `INSERT INTO execution_queue (` + queueColumns + `) VALUES (
		:id, :tenant_id, :task_id, :user_id, :executor_type, :status, :priority,
		:claim_token, :workflow_instance_id, :context, :result, :error, :queued_at, :claimed_at, :completed_at)`

	_, err := r.writeDB.NamedExecContext(ctx, query, entry)
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_insert", start, err)
	return err
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*models.QueueEntry, error) {
	start := time.Now()
	var entry models.QueueEntry
	query := `SELECT ` + queueColumns + ` FROM execution_queue WHERE id = $1`
	err := r.readDB.GetContext(ctx, &entry, query, id)
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_get", start, err)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) GetLiveByTask(ctx context.Context, taskID uuid.UUID) (*models.QueueEntry, error) {
	start := time.Now()
	var entry models.QueueEntry
	query := `SELECT ` + queueColumns + ` FROM execution_queue
		WHERE task_id = $1 AND status IN ('queued','claimed','dispatched')`
	err := r.readDB.GetContext(ctx, &entry, query, taskID)
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_get_live_by_task", start, err)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ClaimNext implements the Executor's claim step (spec §4.4 step 1) as a
// single round trip: SELECT ... FOR UPDATE SKIP LOCKED picks the
// highest-priority queued entry for the executor type (oldest first among
// equal priorities) without blocking on rows other
// Executor replicas are already evaluating, then the claim is recorded in
// the same transaction so a crash between the two never leaves an entry
// claimed without a token.
func (r *queueRepository) ClaimNext(ctx context.Context, executorType models.ExecutorType, claimToken string) (*models.QueueEntry, error) {
	start := time.Now()
	var entry models.QueueEntry

	err := r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT ` + queueColumns + ` FROM execution_queue
			WHERE executor_type = $1 AND status = 'queued'
			ORDER BY priority DESC, queued_at ASC
			FOR UPDATE SKIP LOCKED LIMIT 1`
		if err := tx.GetContext(ctx, &entry, query, executorType); err != nil {
			return err
		}

		now := time.Now()
		_, err := tx.ExecContext(ctx, `UPDATE execution_queue
			SET status = 'claimed', claim_token = $1, claimed_at = $2
			WHERE id = $3`, claimToken, now, entry.ID)
		if err != nil {
			return err
		}
		entry.Status = models.QueueEntryStatusClaimed
		entry.ClaimToken = &claimToken
		entry.ClaimedAt = &now
		return nil
	})

	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_claim_next", start, err)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.QueueEntryStatus) error {
	start := time.Now()
	res, err := r.writeDB.ExecContext(ctx,
		`UPDATE execution_queue SET status = $1 WHERE id = $2`, status, id)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_update_status", start, err)
	return err
}

func (r *queueRepository) RecordDispatch(ctx context.Context, id uuid.UUID, workflowInstanceID string) error {
	start := time.Now()
	res, err := r.writeDB.ExecContext(ctx, `UPDATE execution_queue
		SET status = 'dispatched', workflow_instance_id = $1
		WHERE id = $2 AND status = 'claimed'`, workflowInstanceID, id)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_record_dispatch", start, err)
	return err
}

func (r *queueRepository) RecordResult(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status models.QueueEntryStatus, result, errText string) error {
	start := time.Now()
	exec := sqlExecer(r, tx)
	res, err := exec.ExecContext(ctx, `UPDATE execution_queue
		SET status = $1, result = $2, error = $3, completed_at = now()
		WHERE id = $4`, status, result, errText, id)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_record_result", start, err)
	return err
}

// RevertExpiredClaims reverts claims (spec §4.4's claim-timeout reversion)
// so a crashed Executor doesn't strand an entry forever. It selects the
// stale claims with FOR UPDATE SKIP LOCKED in the same transaction as the
// revert so a concurrent Executor replica never double-reverts a row, and
// returns the post-revert entries so the caller can log one failed
// DispatchLog event per task.
func (r *queueRepository) RevertExpiredClaims(ctx context.Context, cutoff time.Time) ([]*models.QueueEntry, error) {
	start := time.Now()
	var entries []*models.QueueEntry

	err := r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var ids []uuid.UUID
		if err := tx.SelectContext(ctx, &ids, `SELECT id FROM execution_queue
			WHERE status = 'claimed' AND claimed_at < $1
			FOR UPDATE SKIP LOCKED`, cutoff); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE execution_queue
			SET status = 'queued', claim_token = NULL, claimed_at = NULL
			WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
			return err
		}

		query := `SELECT ` + queueColumns + ` FROM execution_queue WHERE id = ANY($1)`
		return tx.SelectContext(ctx, &entries, query, pq.Array(ids))
	})

	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_revert_expired_claims", start, err)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *queueRepository) ListTerminal(ctx context.Context, cutoff time.Time, limit int) ([]*models.QueueEntry, error) {
	start := time.Now()
	if limit <= 0 {
		limit = r.opts.batchSize
	}
	var entries []*models.QueueEntry
	query := `SELECT ` + queueColumns + ` FROM execution_queue
		WHERE status IN ('completed','failed','quarantine') AND completed_at < $1
		ORDER BY completed_at ASC LIMIT $2`
	err := r.readDB.SelectContext(ctx, &entries, query, cutoff, limit)
	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_list_terminal", start, err)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ArchiveAndDelete copies the given terminal entries into
// execution_queue_archive via pq.CopyIn for bulk throughput, then deletes
// them from execution_queue (spec §4.5 step 8). The COPY protocol requires
// an open transaction: when tx is nil one is opened and committed here;
// when the caller supplies one (e.g. the Callback Reconciler committing the
// task update, this archive, and the DispatchLog append together) the copy
// and delete join it instead.
func (r *queueRepository) ArchiveAndDelete(ctx context.Context, tx *sqlx.Tx, entries []*models.QueueEntry) (int64, error) {
	start := time.Now()
	if len(entries) == 0 {
		return 0, nil
	}

	archiveFn := func(tx *sqlx.Tx) (int64, error) {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("execution_queue_archive",
			"id", "tenant_id", "task_id", "user_id", "executor_type", "status", "priority",
			"claim_token", "workflow_instance_id", "context", "result", "error",
			"queued_at", "claimed_at", "completed_at", "archived_at"))
		if err != nil {
			return 0, err
		}

		now := time.Now()
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ID, e.TenantID, e.TaskID, e.UserID, e.ExecutorType,
				e.Status, e.Priority, e.ClaimToken, e.WorkflowInstanceID, e.Context, e.Result, e.Error,
				e.QueuedAt, e.ClaimedAt, e.CompletedAt, now); err != nil {
				_ = stmt.Close()
				return 0, err
			}
			ids = append(ids, e.ID)
		}

		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return 0, err
		}
		if err := stmt.Close(); err != nil {
			return 0, err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM execution_queue WHERE id = ANY($1)`, pq.Array(ids))
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	var archived int64
	var err error
	if tx != nil {
		archived, err = archiveFn(tx)
	} else {
		err = r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			n, archiveErr := archiveFn(tx)
			archived = n
			return archiveErr
		})
	}

	err = r.TranslateError(err, "queue_entry")
	r.metrics.observe("queue_archive_and_delete", start, err)
	return archived, err
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting RecordResult
// participate in a caller-supplied transaction or run standalone.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func sqlExecer(r *queueRepository, tx *sqlx.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.writeDB
}
