// Package api wires gin HTTP handlers over the Dispatcher and Callback
// Reconciler, the two components spec §6 exposes over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/developer-mesh/dispatch-core/pkg/dispatcher"
	classifiederrors "github.com/developer-mesh/dispatch-core/pkg/errors"
	"github.com/developer-mesh/dispatch-core/pkg/models"
	"github.com/developer-mesh/dispatch-core/pkg/reconciler"
)

// Server bundles the handlers and owns route registration.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	reconciler *reconciler.Reconciler
}

// New builds a Server.
func New(disp *dispatcher.Dispatcher, recon *reconciler.Reconciler) *Server {
	return &Server{dispatcher: disp, reconciler: recon}
}

// RegisterRoutes wires the bearer-authenticated and passphrase-authenticated
// route groups plus health endpoints.
func (s *Server) RegisterRoutes(router *gin.Engine, bearerToken, passphrase string, tenantID, userID uuid.UUID) {
	router.GET("/healthz", s.healthz)
	router.GET("/readyz", s.healthz)

	authenticated := router.Group("/api")
	authenticated.Use(bearerAuth(bearerToken, tenantID, userID))
	authenticated.POST("/dispatch/ready", s.dispatchReady)

	callbackScoped := router.Group("/api/tasks")
	callbackScoped.Use(passphraseAuth(passphrase))
	callbackScoped.POST("/:id/complete", s.taskComplete)
	callbackScoped.POST("/:id/error", s.taskError)

	router.POST("/workflow-callback", s.workflowCallback)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type dispatchReadyRequest struct {
	ExecutorType *models.ExecutorType `json:"executor_type"`
	Limit        int                  `json:"limit"`
}

// dispatchReady runs one Dispatcher pass on demand (spec §6:
// `POST /api/dispatch/ready`).
func (s *Server) dispatchReady(c *gin.Context) {
	var req dispatchReadyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, classifiederrors.NewValidationError("dispatch_ready", "invalid request body", err.Error()))
			return
		}
	}

	result, err := s.dispatcher.Run(c.Request.Context(), tenantFromContext(c), req.ExecutorType)
	if err != nil {
		writeError(c, classifiederrors.NewTransientStoreError("dispatch_ready", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dispatched": result.Queued,
		"skipped":    result.Skipped,
		"cancelled":  result.Cancelled,
		"failed":     result.Failed,
		"considered": result.Considered,
	})
}

type callbackRequest struct {
	TaskID             *uuid.UUID `json:"task_id"`
	QueueEntryID       *uuid.UUID `json:"queue_entry_id"`
	Status             string     `json:"status"`
	Success            *bool      `json:"success"`
	Output             string     `json:"output"`
	Result             string     `json:"result"`
	Logs               string     `json:"logs"`
	Notes              string     `json:"notes"`
	Error              string     `json:"error"`
	DurationMs         *int       `json:"duration_ms"`
	Executor           string     `json:"executor"`
	WorkflowInstanceID string     `json:"workflow_instance_id"`
	Quarantine         bool       `json:"quarantine"`
}

func (r callbackRequest) toInput(id uuid.UUID) reconciler.Input {
	return reconciler.Input{
		ID:                 id,
		QueueEntryID:       r.QueueEntryID,
		Status:             r.Status,
		Success:            r.Success,
		Output:             r.Output,
		Result:             r.Result,
		Logs:               r.Logs,
		Notes:              r.Notes,
		Error:              r.Error,
		DurationMs:         r.DurationMs,
		Executor:           r.Executor,
		WorkflowInstanceID: r.WorkflowInstanceID,
		Quarantine:         r.Quarantine,
	}
}

// taskComplete handles `POST /api/tasks/:id/complete` (spec §4.5), the only
// entry point enforcing the minimum-notes gate.
func (s *Server) taskComplete(c *gin.Context) {
	s.reconcileByPathID(c, reconciler.Options{RequireMinNotes: true}, func(req *callbackRequest) {
		if req.Status == "" {
			req.Status = "completed"
		}
	})
}

// taskError handles `POST /api/tasks/:id/error` (spec §4.5).
func (s *Server) taskError(c *gin.Context) {
	s.reconcileByPathID(c, reconciler.Options{}, func(req *callbackRequest) {
		if req.Status == "" {
			if req.Quarantine {
				req.Status = "quarantined"
			} else {
				req.Status = "failed"
			}
		}
		if req.Success == nil {
			failed := false
			req.Success = &failed
		}
	})
}

// workflowCallback handles `POST /workflow-callback` (spec §4.5): the
// unified executor outcome callback, unauthenticated beyond executor trust
// per spec step 1. The target id travels in the envelope's task_id field
// rather than a URL path parameter.
func (s *Server) workflowCallback(c *gin.Context) {
	req, ok := s.bindCallback(c)
	if !ok {
		return
	}
	if req.TaskID == nil {
		writeError(c, classifiederrors.NewValidationError("workflow_callback", "missing task_id", nil))
		return
	}
	s.finishReconcile(c, req.toInput(*req.TaskID), reconciler.Options{})
}

func (s *Server) reconcileByPathID(c *gin.Context, opts reconciler.Options, adjust func(*callbackRequest)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, classifiederrors.NewValidationError("reconcile", "invalid task id", nil))
		return
	}

	req, ok := s.bindCallback(c)
	if !ok {
		return
	}
	if adjust != nil {
		adjust(&req)
	}

	s.finishReconcile(c, req.toInput(id), opts)
}

func (s *Server) bindCallback(c *gin.Context) (callbackRequest, bool) {
	var req callbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, classifiederrors.NewValidationError("reconcile", "invalid request body", err.Error()))
			return req, false
		}
	}
	return req, true
}

func (s *Server) finishReconcile(c *gin.Context, in reconciler.Input, opts reconciler.Options) {
	out, err := s.reconciler.Reconcile(c.Request.Context(), in, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": out.Message, "outcome": out.Outcome, "family": out.Family})
}
