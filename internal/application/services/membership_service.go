package services

import (
	"context"
	"fmt"

	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
)

// MembershipService is the default, database-backed membership lookup.
// Deployments with an external directory swap this out behind the
// MembershipLookup port.
type MembershipService struct {
	users ports.UserRepository
}

var _ ports.MembershipLookup = (*MembershipService)(nil)

// NewMembershipService creates a new MembershipService
func NewMembershipService(users ports.UserRepository) *MembershipService {
	return &MembershipService{users: users}
}

// HolderOf resolves a role or department to its longest-tenured active
// member. Ties on tenure are broken by insertion order, which is stable.
func (s *MembershipService) HolderOf(ctx context.Context, kind, id string) (string, error) {
	switch kind {
	case constants.AssigneeTypeRole:
		u, err := s.users.FirstActiveByRole(ctx, id)
		if err != nil {
			return "", err
		}
		if u == nil {
			return "", fmt.Errorf("role %s has no active holder", id)
		}
		return u.ID, nil

	case constants.AssigneeTypeDepartment:
		u, err := s.users.FirstActiveByDepartment(ctx, id)
		if err != nil {
			return "", err
		}
		if u == nil {
			return "", fmt.Errorf("department %s has no active member", id)
		}
		return u.ID, nil

	default:
		return "", fmt.Errorf("unknown membership kind: %s", kind)
	}
}

// ManagerOf walks one step up the manager chain
func (s *MembershipService) ManagerOf(ctx context.Context, userID string) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", fmt.Errorf("user %s not found", userID)
	}
	if u.ManagerID == nil || *u.ManagerID == "" {
		return "", fmt.Errorf("user %s has no manager", userID)
	}
	return *u.ManagerID, nil
}
