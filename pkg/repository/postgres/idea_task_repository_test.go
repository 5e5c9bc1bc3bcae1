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
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

func TestIdeaTaskRepository_Get_NotFound(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewIdeaTaskRepository(base)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.|\n)* FROM idea_tasks").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "user_id", "idea_id", "title", "description", "status",
			"result", "error_message", "created_at", "updated_at", "completed_at", "deleted_at", "version",
		}))

	_, err := repo.Get(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestIdeaTaskRepository_UpdateWithVersion_Conflict(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewIdeaTaskRepository(base)

	task := &models.IdeaTask{
		ID:        uuid.New(),
		Status:    models.IdeaTaskStatusCompleted,
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec("UPDATE idea_tasks SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateWithVersion(context.Background(), nil, task, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrOptimisticLock)
}

func TestIdeaTaskRepository_CountOpenByIdea(t *testing.T) {
	base, mock, _, _ := setupBaseRepository(t)
	repo := NewIdeaTaskRepository(base)

	ideaID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(ideaID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountOpenByIdea(context.Background(), nil, ideaID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
