// Package dispatcher implements the periodic and on-demand selection of
// "next" tasks into the execution queue (spec §4.3).
package dispatcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/developer-mesh/dispatch-core/pkg/circuitbreaker"
	"github.com/developer-mesh/dispatch-core/pkg/classifier"
	"github.com/developer-mesh/dispatch-core/pkg/encryption"
	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/observability"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
)

// DefaultLimit bounds how many "next" tasks one dispatch pass considers.
const DefaultLimit = 50

// Result tallies one Run's outcome.
type Result struct {
	Considered int
	Queued     int
	Skipped    int
	Cancelled  int
	Failed     int
}

// Dispatcher selects next tasks, classifies them, and queues them for
// execution (spec §4.3).
type Dispatcher struct {
	tasks      interfaces.TaskRepository
	queue      interfaces.QueueRepository
	logs       interfaces.DispatchLogRepository
	breaker    *circuitbreaker.Breaker
	encryption encryption.Collaborator
	logger     observability.Logger
	limit      int
}

// New builds a Dispatcher. limit of 0 uses DefaultLimit.
func New(
	tasks interfaces.TaskRepository,
	queue interfaces.QueueRepository,
	logs interfaces.DispatchLogRepository,
	breaker *circuitbreaker.Breaker,
	enc encryption.Collaborator,
	logger observability.Logger,
	limit int,
) *Dispatcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Dispatcher{
		tasks:      tasks,
		queue:      queue,
		logs:       logs,
		breaker:    breaker,
		encryption: enc,
		logger:     logger,
		limit:      limit,
	}
}

// Run performs one dispatch pass for tenantID, optionally filtering
// candidates to a single executorFilter (the `executor_type` field of the
// `POST /api/dispatch/ready` JSON body). Failures on an individual candidate
// abort that candidate, not
// the batch (spec §4.3).
func (d *Dispatcher) Run(ctx context.Context, tenantID uuid.UUID, executorFilter *models.ExecutorType) (Result, error) {
	tasks, err := d.tasks.ListNext(ctx, tenantID, d.limit)
	if err != nil {
		return Result{}, fmt.Errorf("dispatcher: list next tasks: %w", err)
	}

	result := Result{Considered: len(tasks)}
	for _, task := range tasks {
		outcome, err := d.dispatchOne(ctx, task, executorFilter)
		if err != nil {
			result.Failed++
			d.logger.Error("dispatcher: candidate failed", map[string]interface{}{
				"task_id": task.ID.String(),
				"error":   err.Error(),
			})
			continue
		}
		switch outcome {
		case outcomeQueued:
			result.Queued++
		case outcomeCancelled:
			result.Cancelled++
		default:
			result.Skipped++
		}
	}
	return result, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeQueued
	outcomeCancelled
)

func (d *Dispatcher) dispatchOne(ctx context.Context, task *models.Task, executorFilter *models.ExecutorType) (outcome, error) {
	// Step 1: skip if a live QueueEntry already exists (I1).
	if _, err := d.queue.GetLiveByTask(ctx, task.ID); err == nil {
		return outcomeSkipped, nil
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return outcomeSkipped, fmt.Errorf("check live queue entry: %w", err)
	}

	// Step 2: consult the circuit breaker.
	breaker, err := d.breaker.Check(ctx, task.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("circuit breaker check: %w", err)
	}
	if breaker.Tripped {
		if err := d.cancelTripped(ctx, task, breaker); err != nil {
			return outcomeSkipped, err
		}
		return outcomeCancelled, nil
	}

	// Step 3: decrypt the title and classify.
	title, description, err := d.decryptFields(ctx, task)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("decrypt task fields: %w", err)
	}
	executorType := classifier.Classify(title)

	// Step 4: executor_type filter.
	if executorFilter != nil && *executorFilter != executorType {
		return outcomeSkipped, nil
	}

	// Step 5: priority.
	priority := task.Urgency * task.Importance

	// Step 6: insert the QueueEntry with a plaintext context snapshot.
	entry := &models.QueueEntry{
		TenantID:     task.TenantID,
		TaskID:       task.ID,
		UserID:       task.UserID,
		ExecutorType: executorType,
		Status:       models.QueueEntryStatusQueued,
		Priority:     priority,
		Context:      snapshotContext(task, title, description),
	}
	if err := d.queue.Insert(ctx, entry); err != nil {
		return outcomeSkipped, fmt.Errorf("insert queue entry: %w", err)
	}

	// Step 7: append the queued DispatchLog row.
	if err := d.logs.Append(ctx, nil, &models.DispatchLog{
		TenantID:     task.TenantID,
		QueueEntryID: &entry.ID,
		TaskID:       task.ID,
		ExecutorType: executorType,
		Action:       models.DispatchActionQueued,
	}); err != nil {
		return outcomeSkipped, fmt.Errorf("append dispatch log: %w", err)
	}

	return outcomeQueued, nil
}

func (d *Dispatcher) cancelTripped(ctx context.Context, task *models.Task, breaker circuitbreaker.Result) error {
	task.Status = models.TaskStatusCancelled
	task.CompletionNotes = fmt.Sprintf("Quarantined %d times", breaker.QuarantineCount)
	if err := d.tasks.UpdateWithVersion(ctx, nil, task, task.Version); err != nil {
		return fmt.Errorf("cancel tripped task: %w", err)
	}
	return d.logs.Append(ctx, nil, &models.DispatchLog{
		TenantID: task.TenantID,
		TaskID:   task.ID,
		Action:   models.DispatchActionCircuitBreakerTripped,
		Details:  models.JSONMap{"reason": breaker.Reason, "quarantine_count": breaker.QuarantineCount},
	})
}

// decryptFields resolves the task's plaintext title and description via the
// Encryption collaborator. Persistent columns remain ciphertext; only this
// in-memory copy sees plaintext.
func (d *Dispatcher) decryptFields(ctx context.Context, task *models.Task) (title, description string, err error) {
	key, err := d.encryption.GetKey(ctx, task.TenantID)
	if err != nil {
		return "", "", fmt.Errorf("get tenant key: %w", err)
	}

	title, err = decryptField(d.encryption, key, task.Title)
	if err != nil {
		return "", "", fmt.Errorf("decrypt title: %w", err)
	}

	if task.Description == "" {
		return title, "", nil
	}
	description, err = decryptField(d.encryption, key, task.Description)
	if err != nil {
		return "", "", fmt.Errorf("decrypt description: %w", err)
	}
	return title, description, nil
}

func decryptField(enc encryption.Collaborator, key []byte, encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	return enc.Decrypt(ciphertext, key)
}

func snapshotContext(task *models.Task, title, description string) models.JSONMap {
	snapshot := models.JSONMap{
		"title":           title,
		"description":     description,
		"domain":          task.Domain,
		"energy_required": task.EnergyRequired,
		"source_type":     task.SourceType,
		"source_reference": task.SourceReference,
	}
	if task.ProjectID != nil {
		snapshot["project_id"] = task.ProjectID.String()
	}
	if task.DueDate != nil {
		snapshot["due_date"] = task.DueDate
	}
	return snapshot
}
