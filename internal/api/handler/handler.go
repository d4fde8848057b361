package handler

import (
	"context"
	"errors"
	"net/http"

	"quote-sentinel/internal/api/dto"
	"quote-sentinel/internal/domain"
	"quote-sentinel/internal/tracker"

	"github.com/gin-gonic/gin"
)

type WorkflowTracker interface {
	Start(ctx context.Context, workflowID string, workflowType domain.WorkflowType, ids domain.CorrelatedIDs) tracker.StartResult
	Get(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error)
	UpdateStepProgress(ctx context.Context, u tracker.StepUpdate) tracker.StepResult
	UpdateSupplierMetrics(ctx context.Context, workflowID string, contacted, responded int) tracker.SupplierResult
	Complete(ctx context.Context, workflowID string, status domain.WorkflowStatus, metadata map[string]any) tracker.CompleteResult
	RecordCustomerDecision(ctx context.Context, workflowID string, accepted bool) tracker.DecisionResult
}

type AlertResolver interface {
	ResolveAlert(ctx context.Context, workflowID string) error
}

type RecoveryCanceller interface {
	Cancel(workflowID string) bool
}

type WorkflowHandler struct {
	tracker  WorkflowTracker
	alerts   AlertResolver
	recovery RecoveryCanceller
}

func NewWorkflowHandler(t WorkflowTracker, alerts AlertResolver, recovery RecoveryCanceller) *WorkflowHandler {
	return &WorkflowHandler{tracker: t, alerts: alerts, recovery: recovery}
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWorkflowAlreadyExists),
		errors.Is(err, domain.ErrWorkflowClosed),
		errors.Is(err, domain.ErrStepAlreadyRunning),
		errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidType):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, err error) {
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

// respond writes result with the status its error maps to.
func respond(c *gin.Context, ok int, err error, result any) {
	if err != nil {
		c.JSON(statusFor(err), result)
		return
	}
	c.JSON(ok, result)
}

func (h *WorkflowHandler) StartWorkflow(c *gin.Context) {
	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	result := h.tracker.Start(c.Request.Context(), req.WorkflowID, domain.WorkflowType(req.WorkflowType), domain.CorrelatedIDs{
		EmailID:        req.EmailID,
		QuoteRequestID: req.QuoteRequestID,
		CustomerID:     req.CustomerID,
	})
	respond(c, http.StatusCreated, result.Err, result)
}

func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	execution, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkflowResponse(execution))
}

func (h *WorkflowHandler) UpdateStep(c *gin.Context) {
	var req dto.StepProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	result := h.tracker.UpdateStepProgress(c.Request.Context(), tracker.StepUpdate{
		WorkflowID: c.Param("id"),
		StepName:   req.StepName,
		Status:     domain.StepStatus(req.Status),
		Error:      req.Error,
		Metadata:   req.Metadata,
	})
	respond(c, http.StatusOK, result.Err, result)
}

func (h *WorkflowHandler) UpdateSuppliers(c *gin.Context) {
	var req dto.SupplierMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	result := h.tracker.UpdateSupplierMetrics(c.Request.Context(), c.Param("id"), req.Contacted, req.Responded)
	respond(c, http.StatusOK, result.Err, result)
}

func (h *WorkflowHandler) CompleteWorkflow(c *gin.Context) {
	var req dto.CompleteWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	result := h.tracker.Complete(c.Request.Context(), c.Param("id"), domain.WorkflowStatus(req.Status), req.Metadata)
	respond(c, http.StatusOK, result.Err, result)
}

func (h *WorkflowHandler) RecordCustomerDecision(c *gin.Context) {
	var req dto.CustomerDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	result := h.tracker.RecordCustomerDecision(c.Request.Context(), c.Param("id"), *req.Accepted)
	respond(c, http.StatusOK, result.Err, result)
}

func (h *WorkflowHandler) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.alerts.ResolveAlert(c.Request.Context(), id); err != nil {
		abort(c, statusFor(err), err)
		return
	}

	execution, err := h.tracker.Get(c.Request.Context(), id)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkflowResponse(execution))
}

func (h *WorkflowHandler) CancelRecovery(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, dto.CancelRecoveryResponse{
		WorkflowID: id,
		Cancelled:  h.recovery.Cancel(id),
	})
}
