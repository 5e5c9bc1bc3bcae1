// Package reconciler implements the Callback Reconciler (spec §4.5): it
// normalizes the executor service's completion/error/workflow-callback
// payloads into a transition on either task family, reconciles the matching
// QueueEntry, and triggers dependency promotion on success.
package reconciler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	classifiederrors "github.com/developer-mesh/dispatch-core/pkg/errors"
	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/observability"
	"github.com/developer-mesh/dispatch-core/pkg/promoter"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
	"github.com/developer-mesh/dispatch-core/pkg/semantics"
)

const (
	maxResultLen     = 10000
	maxErrorLen      = 2000
	minNotesLen      = 50
	minIdeaOutputLen = 100
)

// Outcome is the normalized transition the reconciler applied.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeQuarantine Outcome = "quarantined"
)

// Input is the superset envelope the three HTTP entry points (spec §6)
// accept, normalized to one shape before reconciliation.
type Input struct {
	ID           uuid.UUID
	QueueEntryID *uuid.UUID

	Status  string // completed | failed | quarantined
	Success *bool  // legacy boolean form

	Output string
	Result string
	Logs   string
	Notes  string
	Error  string

	DurationMs         *int
	Executor           string
	WorkflowInstanceID string
	Quarantine         bool
}

// Options tunes reconciliation behavior per entry point.
type Options struct {
	// RequireMinNotes enables the /complete-only minimum-notes gate.
	RequireMinNotes bool
}

// Output reports what the reconciler did.
type Output struct {
	Message string
	Outcome Outcome
	Family  string // "task" | "idea_task"
}

// Reconciler applies callback payloads to Task and IdeaTask rows.
type Reconciler struct {
	db        interfaces.TransactionBeginner
	tasks     interfaces.TaskRepository
	ideaTasks interfaces.IdeaTaskRepository
	ideaExecs interfaces.IdeaExecutionRepository
	ideas     interfaces.IdeaRepository
	queue     interfaces.QueueRepository
	logs      interfaces.DispatchLogRepository
	promoter  *promoter.Promoter
	logger    observability.Logger
}

// New builds a Reconciler. db opens the transaction that wraps each
// callback's task/idea-task, queue, and dispatch-log writes into one
// commit.
func New(
	db interfaces.TransactionBeginner,
	tasks interfaces.TaskRepository,
	ideaTasks interfaces.IdeaTaskRepository,
	ideaExecs interfaces.IdeaExecutionRepository,
	ideas interfaces.IdeaRepository,
	queue interfaces.QueueRepository,
	logs interfaces.DispatchLogRepository,
	promo *promoter.Promoter,
	logger observability.Logger,
) *Reconciler {
	return &Reconciler{
		db:        db,
		tasks:     tasks,
		ideaTasks: ideaTasks,
		ideaExecs: ideaExecs,
		ideas:     ideas,
		queue:     queue,
		logs:      logs,
		promoter:  promo,
		logger:    logger,
	}
}

// Reconcile applies one callback payload (spec §4.5's eleven-step
// algorithm). Authentication (step 1) is the HTTP layer's responsibility;
// by the time Reconcile is called the caller is already authorized.
func (r *Reconciler) Reconcile(ctx context.Context, in Input, opts Options) (Output, error) {
	validationText := joinNonEmpty(in.Result, in.Output, in.Logs, in.Notes, in.Error)

	if opts.RequireMinNotes && len(strings.TrimSpace(validationText)) < minNotesLen {
		return Output{}, classifiederrors.NewValidationError("reconciler.complete",
			"notes/output must be at least 50 characters", map[string]interface{}{
				"length": len(strings.TrimSpace(validationText)),
			})
	}

	// Step 2: locate the target, task family first.
	if task, err := r.tasks.Get(ctx, in.ID); err == nil {
		return r.reconcileTask(ctx, task, in, validationText)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return Output{}, classifiederrors.NewTransientStoreError("reconciler.locate_task", err)
	}

	ideaTask, err := r.ideaTasks.Get(ctx, in.ID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return Output{}, classifiederrors.NewNotFoundError("reconciler.locate", "no task or idea_task found for id")
		}
		return Output{}, classifiederrors.NewTransientStoreError("reconciler.locate_idea_task", err)
	}
	return r.reconcileIdeaTask(ctx, ideaTask, in, validationText)
}

func (r *Reconciler) reconcileTask(ctx context.Context, task *models.Task, in Input, validationText string) (Output, error) {
	if task.IsTerminal() {
		return Output{Message: "already_processed", Family: "task"}, nil
	}
	if task.Status != models.TaskStatusNext && task.Status != models.TaskStatusInProgress {
		r.logger.Warn("reconciler: task in unexpected status", map[string]interface{}{
			"task_id": task.ID.String(), "status": string(task.Status),
		})
		return Output{Message: "unexpected_status", Family: "task"}, nil
	}

	entry, skip, err := r.findLiveEntry(ctx, task.ID, in.QueueEntryID)
	if err != nil {
		return Output{}, classifiederrors.NewTransientStoreError("reconciler.find_queue_entry", err)
	}
	if skip {
		return Output{Message: "already_processed", Family: "task"}, nil
	}

	outcome, matchedIndicator := normalizeOutcome(in, validationText, false)

	switch outcome {
	case OutcomeCompleted:
		task.Status = models.TaskStatusCompleted
		now := time.Now()
		task.CompletedAt = &now
		task.CompletionNotes = truncate(validationText, maxResultLen)
	case OutcomeQuarantine:
		task.Status = models.TaskStatusCancelled
		task.CompletionNotes = truncate(validationText, maxResultLen)
	default: // failed, retried
		task.Status = models.TaskStatusNext
		task.CompletionNotes = truncate(validationText, maxResultLen)
	}

	txErr := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.tasks.UpdateWithVersion(ctx, tx, task, task.Version); err != nil {
			return classifiederrors.NewTransientStoreError("reconciler.update_task", err)
		}
		if err := r.reconcileQueueEntry(ctx, tx, entry, outcome, validationText); err != nil {
			return err
		}
		return r.appendLog(ctx, tx, task.TenantID, task.ID, entry, outcome, matchedIndicator, in)
	})
	if txErr != nil {
		return Output{}, txErr
	}

	if outcome == OutcomeCompleted && r.promoter != nil {
		if _, err := r.promoter.Promote(ctx, task.TenantID, task.ID); err != nil {
			r.logger.Warn("reconciler: dependency promotion failed", map[string]interface{}{
				"task_id": task.ID.String(), "error": err.Error(),
			})
		}
	}

	return Output{Message: "ok", Outcome: outcome, Family: "task"}, nil
}

func (r *Reconciler) reconcileIdeaTask(ctx context.Context, task *models.IdeaTask, in Input, validationText string) (Output, error) {
	if task.IsTerminal() {
		return Output{Message: "already_processed", Family: "idea_task"}, nil
	}

	entry, skip, err := r.findLiveEntry(ctx, task.ID, in.QueueEntryID)
	if err != nil {
		return Output{}, classifiederrors.NewTransientStoreError("reconciler.find_queue_entry", err)
	}
	if skip {
		return Output{Message: "already_processed", Family: "idea_task"}, nil
	}

	outcome, matchedIndicator := normalizeOutcome(in, validationText, true)

	switch outcome {
	case OutcomeCompleted:
		task.Status = models.IdeaTaskStatusCompleted
		now := time.Now()
		task.CompletedAt = &now
		task.Result = truncate(validationText, maxResultLen)
	case OutcomeQuarantine:
		task.Status = models.IdeaTaskStatusQuarantined
		task.ErrorMessage = truncate(validationText, maxErrorLen)
	default:
		task.Status = models.IdeaTaskStatusFailed
		task.ErrorMessage = truncate(validationText, maxErrorLen)
	}

	txErr := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.ideaTasks.UpdateWithVersion(ctx, tx, task, task.Version); err != nil {
			return classifiederrors.NewTransientStoreError("reconciler.update_idea_task", err)
		}

		if outcome == OutcomeCompleted {
			if err := r.ideaExecs.IncrementCompleted(ctx, tx, task.IdeaID); err != nil {
				return classifiederrors.NewTransientStoreError("reconciler.increment_completed", err)
			}
		} else {
			if err := r.ideaExecs.IncrementFailed(ctx, tx, task.IdeaID); err != nil {
				return classifiederrors.NewTransientStoreError("reconciler.increment_failed", err)
			}
		}

		if err := r.reconcileQueueEntry(ctx, tx, entry, outcome, validationText); err != nil {
			return err
		}
		return r.appendLog(ctx, tx, task.TenantID, task.ID, entry, outcome, matchedIndicator, in)
	})
	if txErr != nil {
		return Output{}, txErr
	}

	if err := r.rollupIdea(ctx, task.IdeaID); err != nil {
		r.logger.Warn("reconciler: idea roll-up failed", map[string]interface{}{
			"idea_id": task.IdeaID.String(), "error": err.Error(),
		})
	}

	return Output{Message: "ok", Outcome: outcome, Family: "idea_task"}, nil
}

// findLiveEntry resolves the QueueEntry a callback refers to, and reports
// whether reconciliation should stop because the entry was already
// processed (spec §4.5's duplicate/out-of-order handling).
func (r *Reconciler) findLiveEntry(ctx context.Context, taskID uuid.UUID, explicitID *uuid.UUID) (*models.QueueEntry, bool, error) {
	var entry *models.QueueEntry
	var err error
	if explicitID != nil {
		entry, err = r.queue.Get(ctx, *explicitID)
	} else {
		entry, err = r.queue.GetLiveByTask(ctx, taskID)
	}
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if entry.Status != models.QueueEntryStatusDispatched && entry.Status != models.QueueEntryStatusClaimed {
		return nil, true, nil
	}
	return entry, false, nil
}

func (r *Reconciler) reconcileQueueEntry(ctx context.Context, tx *sqlx.Tx, entry *models.QueueEntry, outcome Outcome, validationText string) error {
	if entry == nil {
		return nil
	}

	var status models.QueueEntryStatus
	var result, errText string
	switch outcome {
	case OutcomeCompleted:
		status = models.QueueEntryStatusCompleted
		result = truncate(validationText, maxResultLen)
	case OutcomeQuarantine:
		status = models.QueueEntryStatusQuarantine
		errText = truncate(validationText, maxErrorLen)
	default:
		status = models.QueueEntryStatusFailed
		errText = truncate(validationText, maxErrorLen)
	}

	if err := r.queue.RecordResult(ctx, tx, entry.ID, status, result, errText); err != nil {
		return classifiederrors.NewTransientStoreError("reconciler.record_result", err)
	}

	entry.Status = status
	if _, err := r.queue.ArchiveAndDelete(ctx, tx, []*models.QueueEntry{entry}); err != nil {
		return classifiederrors.NewTransientStoreError("reconciler.archive", err)
	}
	return nil
}

func (r *Reconciler) appendLog(ctx context.Context, tx *sqlx.Tx, tenantID, taskID uuid.UUID, entry *models.QueueEntry, outcome Outcome, matchedIndicator string, in Input) error {
	action := models.DispatchActionFailed
	switch outcome {
	case OutcomeCompleted:
		action = models.DispatchActionCompleted
	case OutcomeQuarantine:
		action = models.DispatchActionQuarantined
	}

	details := models.JSONMap{
		"source":               "reconciler",
		"executor":             in.Executor,
		"workflow_instance_id": in.WorkflowInstanceID,
	}
	if in.DurationMs != nil {
		details["duration_ms"] = *in.DurationMs
	}
	if matchedIndicator != "" {
		details["matched_indicator"] = matchedIndicator
	}

	var queueEntryID *uuid.UUID
	var executorType models.ExecutorType
	if entry != nil {
		queueEntryID = &entry.ID
		executorType = entry.ExecutorType
	}

	log := &models.DispatchLog{
		TenantID:     tenantID,
		QueueEntryID: queueEntryID,
		TaskID:       taskID,
		ExecutorType: executorType,
		Action:       action,
		Details:      details,
	}
	if err := r.logs.Append(ctx, tx, log); err != nil {
		return classifiederrors.NewTransientStoreError("reconciler.append_log", err)
	}
	return nil
}

func (r *Reconciler) rollupIdea(ctx context.Context, ideaID uuid.UUID) error {
	open, err := r.ideaTasks.CountOpenByIdea(ctx, nil, ideaID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}

	quarantined, err := r.ideaTasks.CountQuarantinedByIdea(ctx, nil, ideaID)
	if err != nil {
		return err
	}

	status := models.IdeaExecutionStatusCompleted
	ideaStatus := "completed"
	if quarantined > 0 {
		status = models.IdeaExecutionStatusBlocked
		ideaStatus = "blocked"
	}

	if err := r.ideaExecs.UpdateStatus(ctx, nil, ideaID, status); err != nil {
		return err
	}
	return r.ideas.UpdateExecutionStatus(ctx, nil, ideaID, ideaStatus)
}

// normalizeOutcome applies spec §4.5 steps 4-6: explicit-success resolution,
// the semantic-completion indicator scan, and (idea-task family only) the
// substantial-output length gate.
func normalizeOutcome(in Input, validationText string, ideaTaskFamily bool) (Outcome, string) {
	isSuccess := in.Status == "completed"
	if in.Success != nil {
		isSuccess = *in.Success
	}

	if isSuccess {
		if scan := semantics.Scan(validationText); scan.Matched {
			return OutcomeFailed, scan.Indicator
		}
		if ideaTaskFamily && len(strings.TrimSpace(validationText)) < minIdeaOutputLen {
			return OutcomeFailed, "output_too_short"
		}
		return OutcomeCompleted, ""
	}

	if in.Quarantine || in.Status == "quarantined" {
		return OutcomeQuarantine, ""
	}
	return OutcomeFailed, ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func joinNonEmpty(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
