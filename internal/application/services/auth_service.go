package services

import (
	"context"
	"fmt"
	"log"

	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/auth"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

// AuthService handles authentication
type AuthService struct {
	users ports.UserRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(users ports.UserRepository) *AuthService {
	return &AuthService{users: users}
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	Token string           `json:"token"`
	User  auth.UserSession `json:"user"`
}

// Login authenticates a user by email and password and issues a JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil || !user.IsActive {
		log.Printf("⚠️ Login failed for %s: user not found or inactive", email)
		return nil, apperrors.NewUnauthorizedError("Invalid email or password")
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		log.Printf("⚠️ Login failed for %s: invalid password", email)
		return nil, apperrors.NewUnauthorizedError("Invalid email or password")
	}

	session := auth.UserSession{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		RoleID:       user.RoleID,
		DepartmentID: user.DepartmentID,
		IsAdmin:      user.IsAdmin,
	}

	token, err := auth.GenerateToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Printf("🔑 User %s logged in", email)
	return &LoginResult{Token: token, User: session}, nil
}
