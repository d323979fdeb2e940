package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexusflow/backend/internal/application/services"
)

// Authenticator defines the interface for authentication operations
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
}

// AuthHandler handles authentication API endpoints
type AuthHandler struct {
	svc Authenticator
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(svc Authenticator) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// LoginRequest is the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !BindJSON(c, &req) {
		return
	}

	result, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": result.Token, "user": result.User})
}
