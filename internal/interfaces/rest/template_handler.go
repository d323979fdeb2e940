package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// TemplateStore defines the interface for template management
type TemplateStore interface {
	Create(ctx context.Context, t *models.WorkflowTemplate, createdBy string) (*models.WorkflowTemplate, error)
	Update(ctx context.Context, id string, updated *models.WorkflowTemplate, updatedBy string) (*models.WorkflowTemplate, error)
	Get(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, filter ports.TemplateFilter) ([]*models.WorkflowTemplate, error)
	Deactivate(ctx context.Context, id string) error
}

// TemplateHandler handles workflow template API endpoints
type TemplateHandler struct {
	svc TemplateStore
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(svc TemplateStore) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// Create handles POST /api/templates (admin only)
func (h *TemplateHandler) Create(c *gin.Context) {
	user := GetUserFromContext(c)

	var template models.WorkflowTemplate
	if !BindJSON(c, &template) {
		return
	}

	created, err := h.svc.Create(c.Request.Context(), &template, user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template": created})
}

// Update handles PUT /api/templates/:id (admin only)
func (h *TemplateHandler) Update(c *gin.Context) {
	user := GetUserFromContext(c)

	var template models.WorkflowTemplate
	if !BindJSON(c, &template) {
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), c.Param("id"), &template, user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": updated})
}

// Get handles GET /api/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": template})
}

// List handles GET /api/templates
func (h *TemplateHandler) List(c *gin.Context) {
	filter := ports.TemplateFilter{
		Search:     c.Query("search"),
		EntityType: c.Query("entity_type"),
		ActiveOnly: c.Query("active") == "true",
	}

	templates, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// Deactivate handles DELETE /api/templates/:id (admin only)
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	if err := h.svc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: "Template deactivated"})
}
