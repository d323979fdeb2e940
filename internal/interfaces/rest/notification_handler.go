package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/constants"
)

// NotificationReader defines the interface for notification access
type NotificationReader interface {
	GetUnread(ctx context.Context, userID string) ([]*models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID string) error
}

// NotificationHandler handles notification API endpoints
type NotificationHandler struct {
	svc NotificationReader
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(svc NotificationReader) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// ListUnread handles GET /api/notifications
func (h *NotificationHandler) ListUnread(c *gin.Context) {
	user := GetUserFromContext(c)

	notifications, err := h.svc.GetUnread(c.Request.Context(), user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user := GetUserFromContext(c)

	if err := h.svc.MarkAsRead(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: "Notification marked as read"})
}
