// Package promoter implements the Dependency Promoter (spec §4.6): when a
// task completes, any blocked task whose remaining dependencies are all
// completed is promoted back to "next".
package promoter

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/developer-mesh/dispatch-core/pkg/dispatcher"
	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/observability"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

// Result tallies one Promote call's outcome.
type Result struct {
	Promoted   int
	Dispatched int
}

// Promoter promotes blocked tasks once their dependencies complete.
type Promoter struct {
	tasks      interfaces.TaskRepository
	dispatcher *dispatcher.Dispatcher
	logger     observability.Logger
}

// New builds a Promoter. dispatcher may be nil to skip the optional eager
// dispatch path (Result.Dispatched then stays zero).
func New(tasks interfaces.TaskRepository, disp *dispatcher.Dispatcher, logger observability.Logger) *Promoter {
	return &Promoter{tasks: tasks, dispatcher: disp, logger: logger}
}

// Promote finds every blocked task in tenantID that depends on
// completedTaskID and whose other dependencies are all completed, and
// transitions each one to "next". A failure to promote an individual task is
// logged and skipped; it never fails the whole call (spec §4.6).
func (p *Promoter) Promote(ctx context.Context, tenantID, completedTaskID uuid.UUID) (Result, error) {
	blocked, err := p.tasks.ListBlocked(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, task := range blocked {
		if !dependsOn(task, completedTaskID) {
			continue
		}

		ready, err := p.dependenciesSatisfied(ctx, task, completedTaskID)
		if err != nil {
			p.logger.Warn("promoter: dependency check failed", map[string]interface{}{
				"task_id": task.ID.String(),
				"error":   err.Error(),
			})
			continue
		}
		if !ready {
			continue
		}

		task.Status = models.TaskStatusNext
		if err := p.tasks.UpdateWithVersion(ctx, nil, task, task.Version); err != nil {
			p.logger.Warn("promoter: promote failed", map[string]interface{}{
				"task_id": task.ID.String(),
				"error":   err.Error(),
			})
			continue
		}
		result.Promoted++

		if p.dispatcher != nil {
			if _, err := p.dispatcher.Run(ctx, tenantID, nil); err != nil {
				p.logger.Warn("promoter: eager dispatch failed", map[string]interface{}{
					"task_id": task.ID.String(),
					"error":   err.Error(),
				})
			} else {
				result.Dispatched++
			}
		}
	}
	return result, nil
}

func dependsOn(task *models.Task, taskID uuid.UUID) bool {
	for _, id := range task.DependsOn {
		if id == taskID {
			return true
		}
	}
	return false
}

func (p *Promoter) dependenciesSatisfied(ctx context.Context, task *models.Task, completedTaskID uuid.UUID) (bool, error) {
	for _, depID := range task.DependsOn {
		if depID == completedTaskID {
			continue
		}
		dep, err := p.tasks.Get(ctx, depID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue
			}
			return false, err
		}
		if dep.Status != models.TaskStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}
