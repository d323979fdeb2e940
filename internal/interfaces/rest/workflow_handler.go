package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusflow/backend/internal/application/services"
	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// WorkflowEngine defines the interface for workflow operations
type WorkflowEngine interface {
	Start(ctx context.Context, req services.StartRequest, requestedBy string) (*models.WorkflowInstance, error)
	Act(ctx context.Context, approvalID, userID, decision, comments string) error
	Cancel(ctx context.Context, instanceID, userID string, isAdmin bool, comments string) error
	PendingFor(ctx context.Context, userID string) ([]*models.Approval, error)
	PendingCountFor(ctx context.Context, userID string) (int, error)
	HistoryOf(ctx context.Context, instanceID string) (*models.WorkflowInstance, []*models.Approval, error)
	List(ctx context.Context, filter ports.InstanceFilter) ([]*models.WorkflowInstance, error)
	Stats(ctx context.Context) (*ports.InstanceStats, error)
	RetryStalled(ctx context.Context, instanceID string) error
}

// WorkflowHandler handles workflow instance API endpoints
type WorkflowHandler struct {
	svc WorkflowEngine
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(svc WorkflowEngine) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// ActRequest represents an approve/reject request
type ActRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comments string `json:"comments"`
}

// CancelRequest carries an optional cancellation reason
type CancelRequest struct {
	Comments string `json:"comments"`
}

// Start handles POST /api/workflows
func (h *WorkflowHandler) Start(c *gin.Context) {
	user := GetUserFromContext(c)

	var req services.StartRequest
	if !BindJSON(c, &req) {
		return
	}

	inst, err := h.svc.Start(c.Request.Context(), req, user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"instance": inst})
}

// Act handles POST /api/approvals/:id/act
func (h *WorkflowHandler) Act(c *gin.Context) {
	user := GetUserFromContext(c)

	var req ActRequest
	if !BindJSON(c, &req) {
		return
	}

	if err := h.svc.Act(c.Request.Context(), c.Param("id"), user.ID, req.Decision, req.Comments); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: "Decision recorded"})
}

// Cancel handles POST /api/workflows/:id/cancel
func (h *WorkflowHandler) Cancel(c *gin.Context) {
	user := GetUserFromContext(c)

	var req CancelRequest
	if !BindJSON(c, &req) {
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), c.Param("id"), user.ID, user.IsAdmin, req.Comments); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: "Workflow cancelled"})
}

// Pending handles GET /api/approvals/pending
func (h *WorkflowHandler) Pending(c *gin.Context) {
	user := GetUserFromContext(c)

	approvals, err := h.svc.PendingFor(c.Request.Context(), user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": approvals})
}

// PendingCount handles GET /api/approvals/pending/count
func (h *WorkflowHandler) PendingCount(c *gin.Context) {
	user := GetUserFromContext(c)

	count, err := h.svc.PendingCountFor(c.Request.Context(), user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// History handles GET /api/workflows/:id/history
func (h *WorkflowHandler) History(c *gin.Context) {
	inst, history, err := h.svc.HistoryOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instance": inst, "history": history})
}

// List handles GET /api/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	filter := ports.InstanceFilter{
		Status:      c.Query("status"),
		EntityType:  c.Query("entity_type"),
		RequestedBy: c.Query("requested_by"),
	}

	instances, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

// Stats handles GET /api/workflows/stats
func (h *WorkflowHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// RetryStalled handles POST /api/workflows/:id/retry (admin only)
func (h *WorkflowHandler) RetryStalled(c *gin.Context) {
	if err := h.svc.RetryStalled(c.Request.Context(), c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: "Step retried"})
}
