package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

// DelegationService is the admin surface for delegation windows. The engine
// itself only reads delegations through the resolver.
type DelegationService struct {
	delegations ports.DelegationRepository
	users       ports.UserRepository
}

// NewDelegationService creates a new DelegationService
func NewDelegationService(delegations ports.DelegationRepository, users ports.UserRepository) *DelegationService {
	return &DelegationService{delegations: delegations, users: users}
}

// Create registers a delegation window after checking both users exist
func (s *DelegationService) Create(ctx context.Context, d *models.ApprovalDelegation, createdBy string) (*models.ApprovalDelegation, error) {
	if d.DelegatorID == d.DelegateeID {
		return nil, apperrors.NewValidationError("delegatee_id", "cannot delegate to yourself")
	}
	if !d.EndsAt.After(d.StartsAt) {
		return nil, apperrors.NewValidationError("ends_at", "delegation window must end after it starts")
	}

	for _, userID := range []string{d.DelegatorID, d.DelegateeID} {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, apperrors.NewNotFoundError("user", userID)
		}
	}

	d.ID = uuid.New().String()
	d.CreatedBy = createdBy
	d.CreatedAt = time.Now().UTC()

	if err := s.delegations.Insert(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create delegation: %w", err)
	}

	log.Printf("🔄 Delegation created: %s -> %s (%s to %s)",
		d.DelegatorID, d.DelegateeID, d.StartsAt.Format(time.RFC3339), d.EndsAt.Format(time.RFC3339))
	return d, nil
}

// Delete removes a delegation window. In-flight approvals already assigned
// through it keep their assignee; removal only affects future resolution.
func (s *DelegationService) Delete(ctx context.Context, id string) error {
	return s.delegations.Delete(ctx, id)
}

// List returns all delegation windows
func (s *DelegationService) List(ctx context.Context) ([]*models.ApprovalDelegation, error) {
	return s.delegations.List(ctx)
}
