package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/constants"
)

// DelegationAdmin defines the interface for delegation management
type DelegationAdmin interface {
	Create(ctx context.Context, d *models.ApprovalDelegation, createdBy string) (*models.ApprovalDelegation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.ApprovalDelegation, error)
}

// DelegationHandler handles delegation admin API endpoints
type DelegationHandler struct {
	svc DelegationAdmin
}

// NewDelegationHandler creates a new DelegationHandler
func NewDelegationHandler(svc DelegationAdmin) *DelegationHandler {
	return &DelegationHandler{svc: svc}
}

// Create handles POST /api/delegations (admin only)
func (h *DelegationHandler) Create(c *gin.Context) {
	user := GetUserFromContext(c)

	var delegation models.ApprovalDelegation
	if !BindJSON(c, &delegation) {
		return
	}

	created, err := h.svc.Create(c.Request.Context(), &delegation, user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"delegation": created})
}

// Delete handles DELETE /api/delegations/:id (admin only)
func (h *DelegationHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: "Delegation removed"})
}

// List handles GET /api/delegations (admin only)
func (h *DelegationHandler) List(c *gin.Context) {
	delegations, err := h.svc.List(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delegations": delegations})
}
