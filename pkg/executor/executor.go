// Package executor implements the Executor (spec §4.4): it claims queued
// entries, dispatches them to the external executor service's quick SDK
// path or container path, and feeds the result into the Callback
// Reconciler.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/developer-mesh/dispatch-core/pkg/classifier"
	"github.com/developer-mesh/dispatch-core/pkg/executorclient"
	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/observability"
	"github.com/developer-mesh/dispatch-core/pkg/reconciler"
	"github.com/developer-mesh/dispatch-core/pkg/repository/interfaces"
	"github.com/developer-mesh/dispatch-core/pkg/resilience"
)

// DefaultClaimTimeout reverts a claim that makes no progress for this long
// (spec §4.4).
const DefaultClaimTimeout = 10 * time.Minute

// executorTypes are the QueueEntry executor types the Executor claims work
// for; "human" entries are surfaced to the human UI elsewhere and never
// claimed here.
var executorTypes = []models.ExecutorType{models.ExecutorTypeAI, models.ExecutorTypeHumanAI}

var errRateLimited = errors.New("executor: outbound rate limit exceeded")

// Result tallies one Run's outcome.
type Result struct {
	Claimed       int
	Completed     int
	Failed        int
	Dispatched    int
	ClaimReverted int
}

// Executor claims QueueEntries and dispatches them to the executor service.
type Executor struct {
	queue        interfaces.QueueRepository
	logs         interfaces.DispatchLogRepository
	client       *executorclient.Client
	reconciler   *reconciler.Reconciler
	breaker      *resilience.CircuitBreaker
	bulkhead     *resilience.Bulkhead
	rateLimiter  *resilience.RateLimiter
	logger       observability.Logger
	claimTimeout time.Duration
	maxRetries   int
}

// Option configures optional Executor behavior.
type Option func(*Executor)

// WithRateLimiter caps outbound calls to the executor service at config's
// rate, ahead of the bulkhead's concurrency cap and the circuit breaker.
func WithRateLimiter(config resilience.RateLimiterConfig) Option {
	return func(e *Executor) {
		e.rateLimiter = resilience.NewRateLimiter("executor-service", config)
	}
}

// New builds an Executor. claimTimeout of 0 uses DefaultClaimTimeout.
func New(
	queue interfaces.QueueRepository,
	logs interfaces.DispatchLogRepository,
	client *executorclient.Client,
	recon *reconciler.Reconciler,
	breaker *resilience.CircuitBreaker,
	bulkhead *resilience.Bulkhead,
	logger observability.Logger,
	claimTimeout time.Duration,
	maxRetries int,
	opts ...Option,
) *Executor {
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	e := &Executor{
		queue:        queue,
		logs:         logs,
		client:       client,
		reconciler:   recon,
		breaker:      breaker,
		bulkhead:     bulkhead,
		logger:       logger,
		claimTimeout: claimTimeout,
		maxRetries:   maxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one Executor tick: revert stale claims, then claim and
// dispatch every available entry for the claimable executor types.
func (e *Executor) Run(ctx context.Context) (Result, error) {
	var result Result

	reverted, err := e.revertExpiredClaims(ctx)
	if err != nil {
		return result, fmt.Errorf("executor: revert expired claims: %w", err)
	}
	result.ClaimReverted = reverted

	for _, executorType := range executorTypes {
		for {
			entry, err := e.queue.ClaimNext(ctx, executorType, uuid.New().String())
			if err != nil {
				if err == interfaces.ErrNotFound {
					break
				}
				return result, fmt.Errorf("executor: claim next %s: %w", executorType, err)
			}
			result.Claimed++

			outcome, err := e.dispatchOne(ctx, entry)
			if err != nil {
				result.Failed++
				e.logger.Error("executor: dispatch failed", map[string]interface{}{
					"queue_entry_id": entry.ID.String(),
					"task_id":        entry.TaskID.String(),
					"error":          err.Error(),
				})
				continue
			}
			switch outcome {
			case reconciler.OutcomeCompleted:
				result.Completed++
			case reconciler.OutcomeQuarantine, reconciler.OutcomeFailed:
				result.Failed++
			default:
				result.Dispatched++
			}
		}
	}

	return result, nil
}

func (e *Executor) revertExpiredClaims(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.claimTimeout)
	reverted, err := e.queue.RevertExpiredClaims(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, entry := range reverted {
		if err := e.logs.Append(ctx, nil, &models.DispatchLog{
			TenantID:     entry.TenantID,
			QueueEntryID: &entry.ID,
			TaskID:       entry.TaskID,
			ExecutorType: entry.ExecutorType,
			Action:       models.DispatchActionFailed,
			Details:      models.JSONMap{"reason": "claim_timeout"},
		}); err != nil {
			e.logger.Error("executor: failed to log claim reversion", map[string]interface{}{
				"queue_entry_id": entry.ID.String(),
				"error":          err.Error(),
			})
		}
	}
	return len(reverted), nil
}

func (e *Executor) dispatchOne(ctx context.Context, entry *models.QueueEntry) (reconciler.Outcome, error) {
	if err := e.logs.Append(ctx, nil, &models.DispatchLog{
		TenantID:     entry.TenantID,
		QueueEntryID: &entry.ID,
		TaskID:       entry.TaskID,
		ExecutorType: entry.ExecutorType,
		Action:       models.DispatchActionClaimed,
	}); err != nil {
		return "", fmt.Errorf("append claimed log: %w", err)
	}

	title, _ := entry.Context["title"].(string)
	description, _ := entry.Context["description"].(string)

	if classifier.RequiresContainer(title) {
		return e.dispatchContainer(ctx, entry, title, description)
	}
	return e.dispatchQuick(ctx, entry, title, description)
}

func (e *Executor) dispatchQuick(ctx context.Context, entry *models.QueueEntry, title, description string) (reconciler.Outcome, error) {
	prompt := title
	if description != "" {
		prompt = title + "\n\n" + description
	}

	result, err := e.callWithResilience(ctx, func() (interface{}, error) {
		return e.client.ExecuteSDK(ctx, executorclient.SDKRequest{Prompt: prompt})
	})
	if err != nil {
		return e.reconcileError(ctx, entry, err)
	}

	sdkResult := result.(*executorclient.SDKResult)
	in := reconciler.Input{
		ID:           entry.TaskID,
		QueueEntryID: &entry.ID,
		Success:      &sdkResult.Success,
		Result:       sdkResult.Result,
		Error:        sdkResult.Error,
	}
	if sdkResult.TokensUsed > 0 {
		in.Executor = "sdk"
	}
	out, err := e.reconciler.Reconcile(ctx, in, reconciler.Options{})
	if err != nil {
		return "", fmt.Errorf("reconcile quick path result: %w", err)
	}
	return out.Outcome, nil
}

func (e *Executor) dispatchContainer(ctx context.Context, entry *models.QueueEntry, title, description string) (reconciler.Outcome, error) {
	if err := e.queue.RecordDispatch(ctx, entry.ID, ""); err != nil {
		return "", fmt.Errorf("record dispatch: %w", err)
	}
	if err := e.logs.Append(ctx, nil, &models.DispatchLog{
		TenantID:     entry.TenantID,
		QueueEntryID: &entry.ID,
		TaskID:       entry.TaskID,
		ExecutorType: entry.ExecutorType,
		Action:       models.DispatchActionDispatched,
	}); err != nil {
		return "", fmt.Errorf("append dispatched log: %w", err)
	}

	result, err := e.callWithResilience(ctx, func() (interface{}, error) {
		return e.client.ExecuteContainer(ctx, executorclient.ContainerRequest{Task: title + "\n\n" + description})
	})
	if err != nil {
		return e.reconcileError(ctx, entry, err)
	}

	containerResult := result.(*executorclient.ContainerResult)
	in := reconciler.Input{
		ID:           entry.TaskID,
		QueueEntryID: &entry.ID,
		Success:      &containerResult.Success,
		Logs:         containerResult.Logs,
		Error:        containerResult.Error,
		Executor:     "container",
	}
	if containerResult.DurationMs != nil {
		in.DurationMs = containerResult.DurationMs
	}
	out, err := e.reconciler.Reconcile(ctx, in, reconciler.Options{})
	if err != nil {
		return "", fmt.Errorf("reconcile container path result: %w", err)
	}
	return out.Outcome, nil
}

// callWithResilience wraps an executor-service call in the bulkhead (bounds
// concurrent calls per tick), the circuit breaker (trips after sustained
// executor-service failure), and exponential-backoff retry; every error is
// retried, not only transient ones.
func (e *Executor) callWithResilience(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	operation := func() (interface{}, error) {
		if e.rateLimiter != nil && !e.rateLimiter.Allow() {
			return nil, errRateLimited
		}
		return e.bulkhead.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return e.breaker.Execute(ctx, fn)
		})
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxRetries)), ctx)

	var result interface{}
	err := backoff.Retry(func() error {
		r, err := operation()
		if err != nil {
			return err
		}
		result = r
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) reconcileError(ctx context.Context, entry *models.QueueEntry, callErr error) (reconciler.Outcome, error) {
	failed := false
	in := reconciler.Input{
		ID:           entry.TaskID,
		QueueEntryID: &entry.ID,
		Success:      &failed,
		Error:        callErr.Error(),
		Executor:     "executor-service",
	}
	out, err := e.reconciler.Reconcile(ctx, in, reconciler.Options{})
	if err != nil {
		return "", fmt.Errorf("reconcile executor-service error: %w", err)
	}
	return out.Outcome, nil
}
