package rest

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/auth"
	"github.com/nexusflow/backend/pkg/constants"
	"github.com/nexusflow/backend/pkg/errors"
)

// GetUserFromContext extracts the authenticated user from gin.Context
func GetUserFromContext(c *gin.Context) *models.UserSession {
	userInterface, exists := c.Get(constants.ContextKeyUser)
	if !exists {
		return nil
	}

	// The middleware stores auth.UserSession, convert to the domain session
	authUser, ok := userInterface.(auth.UserSession)
	if !ok {
		return nil
	}
	return &models.UserSession{
		ID:           authUser.ID,
		Name:         authUser.Name,
		Email:        &authUser.Email,
		RoleID:       authUser.RoleID,
		DepartmentID: authUser.DepartmentID,
		IsAdmin:      authUser.IsAdmin,
	}
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	errorCode := errors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	c.JSON(code, gin.H{
		constants.ResponseError: message,
		constants.FieldMessage:  message,
		"code":                  errorCode,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}
