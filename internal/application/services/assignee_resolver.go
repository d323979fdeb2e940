package services

import (
	"context"
	"log"
	"time"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

// AssigneeResolverService resolves an assignee spec to a concrete user id.
// Base resolution goes through the membership lookup; the result then gets
// one level of delegation substitution. Delegation never chains: if the
// delegatee has their own delegation it is ignored.
type AssigneeResolverService struct {
	membership  ports.MembershipLookup
	delegations ports.DelegationRepository
}

var _ ports.AssigneeResolver = (*AssigneeResolverService)(nil)

// NewAssigneeResolverService creates a new AssigneeResolverService
func NewAssigneeResolverService(membership ports.MembershipLookup, delegations ports.DelegationRepository) *AssigneeResolverService {
	return &AssigneeResolverService{
		membership:  membership,
		delegations: delegations,
	}
}

// Resolve determines who must act for the given spec. Every failure mode
// maps to UnresolvableAssigneeError so the engine can stall the instance
// instead of guessing.
func (s *AssigneeResolverService) Resolve(ctx context.Context, spec *models.AssigneeSpec, entityType string, snapshot models.FieldMap, requestedBy string, now time.Time) (string, error) {
	if spec == nil {
		return "", apperrors.NewUnresolvableAssigneeError("", "", "step has no assignee spec")
	}

	// Membership lookups may hit an external directory; bound them
	lookupCtx, cancel := context.WithTimeout(ctx, constants.ResolverTimeoutSecs*time.Second)
	defer cancel()

	userID, err := s.resolveBase(lookupCtx, spec, requestedBy)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", apperrors.NewUnresolvableAssigneeError(spec.Type, spec.ID, "resolution produced no user")
	}

	return s.applyDelegation(ctx, userID, entityType, now), nil
}

func (s *AssigneeResolverService) resolveBase(ctx context.Context, spec *models.AssigneeSpec, requestedBy string) (string, error) {
	switch spec.Type {
	case constants.AssigneeTypeUser:
		if spec.ID == "" {
			return "", apperrors.NewUnresolvableAssigneeError(spec.Type, spec.ID, "user assignee has empty id")
		}
		return spec.ID, nil

	case constants.AssigneeTypeRole, constants.AssigneeTypeDepartment:
		userID, err := s.membership.HolderOf(ctx, spec.Type, spec.ID)
		if err != nil {
			return "", apperrors.NewUnresolvableAssigneeError(spec.Type, spec.ID, err.Error())
		}
		return userID, nil

	case constants.AssigneeTypeRequesterManager:
		userID, err := s.membership.ManagerOf(ctx, requestedBy)
		if err != nil {
			return "", apperrors.NewUnresolvableAssigneeError(spec.Type, requestedBy, err.Error())
		}
		return userID, nil

	default:
		return "", apperrors.NewUnresolvableAssigneeError(spec.Type, spec.ID, "unknown assignee type")
	}
}

// applyDelegation substitutes the delegatee when the resolved user has an
// active delegation window covering this entity type. A failed delegation
// read keeps the base assignee; delegation is a convenience, not a gate.
func (s *AssigneeResolverService) applyDelegation(ctx context.Context, userID, entityType string, now time.Time) string {
	active, err := s.delegations.ActiveForDelegator(ctx, userID, now)
	if err != nil {
		log.Printf("⚠️ Failed to read delegations for %s, keeping base assignee: %v", userID, err)
		return userID
	}

	for _, d := range active {
		if d.ActiveAt(now, entityType) {
			log.Printf("🔄 Delegation applied: %s -> %s for entity type %s", userID, d.DelegateeID, entityType)
			return d.DelegateeID
		}
	}
	return userID
}
