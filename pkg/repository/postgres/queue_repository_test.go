package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/dispatch-core/pkg/models"
)

func queueRows() []string {
	return []string{
		"id", "tenant_id", "task_id", "user_id", "executor_type", "status", "priority",
		"claim_token", "workflow_instance_id", "context", "result", "error",
		"queued_at", "claimed_at", "completed_at",
	}
}

func TestQueueRepository_Insert(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewQueueRepository(base)

	entry := &models.QueueEntry{
		TaskID:       uuid.New(),
		TenantID:     uuid.New(),
		UserID:       uuid.New(),
		ExecutorType: models.ExecutorTypeAI,
		Status:       models.QueueEntryStatusQueued,
	}

	mock.ExpectExec("INSERT INTO execution_queue").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.False(t, entry.QueuedAt.IsZero())
}

func TestQueueRepository_ClaimNext_SkipsLockedRows(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewQueueRepository(base)

	entryID := uuid.New()
	rows := sqlmock.NewRows(queueRows()).
		AddRow(entryID, uuid.New(), uuid.New(), uuid.New(), "ai", "queued", 0,
			nil, "", "{}", "", "", time.Now(), nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.|\n)* FROM execution_queue(.|\n)*FOR UPDATE SKIP LOCKED").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE execution_queue").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.ClaimNext(context.Background(), models.ExecutorTypeAI, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueEntryStatusClaimed, entry.Status)
	require.NotNil(t, entry.ClaimToken)
	assert.Equal(t, "tok-1", *entry.ClaimToken)
}

func TestQueueRepository_ClaimNext_NoneAvailableRollsBack(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewQueueRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.|\n)* FROM execution_queue").
		WillReturnRows(sqlmock.NewRows(queueRows()))
	mock.ExpectRollback()

	_, err := repo.ClaimNext(context.Background(), models.ExecutorTypeHuman, "tok-2")
	require.Error(t, err)
}

func TestQueueRepository_RevertExpiredClaims(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewQueueRepository(base)

	staleID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM execution_queue").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(staleID))
	mock.ExpectExec("UPDATE execution_queue").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.|\n)* FROM execution_queue WHERE id = ANY").
		WillReturnRows(sqlmock.NewRows(queueRows()).AddRow(
			staleID, uuid.New(), uuid.New(), uuid.New(), models.ExecutorTypeAI, models.QueueEntryStatusQueued, 0,
			nil, "", nil, "", "", time.Now(), nil, nil))
	mock.ExpectCommit()

	entries, err := repo.RevertExpiredClaims(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, staleID, entries[0].ID)
}

func TestQueueRepository_RevertExpiredClaims_None(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewQueueRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM execution_queue").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	entries, err := repo.RevertExpiredClaims(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
