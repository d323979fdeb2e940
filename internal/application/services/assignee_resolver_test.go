package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/constants"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

func TestResolveUserAssignee(t *testing.T) {
	resolver := NewAssigneeResolverService(&fakeMembership{}, &fakeDelegationRepo{})

	userID, err := resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeUser, ID: "bob"},
		"expense", nil, "alice", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
}

func TestResolveRoleAndDepartment(t *testing.T) {
	membership := &fakeMembership{holders: map[string]string{
		"role/finance":    "fin-1",
		"department/legal": "leg-1",
	}}
	resolver := NewAssigneeResolverService(membership, &fakeDelegationRepo{})
	now := time.Now().UTC()

	userID, err := resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeRole, ID: "finance"}, "expense", nil, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, "fin-1", userID)

	userID, err = resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeDepartment, ID: "legal"}, "expense", nil, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, "leg-1", userID)

	_, err = resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeRole, ID: "empty-role"}, "expense", nil, "alice", now)
	assert.True(t, apperrors.IsUnresolvableAssignee(err))
}

func TestResolveAppliesDelegation(t *testing.T) {
	now := time.Now().UTC()
	delegations := &fakeDelegationRepo{}
	delegations.Insert(context.Background(), &models.ApprovalDelegation{
		ID: "d-1", DelegatorID: "bob", DelegateeID: "carol",
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
	})
	resolver := NewAssigneeResolverService(&fakeMembership{}, delegations)

	userID, err := resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeUser, ID: "bob"},
		"expense", nil, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, "carol", userID)
}

func TestDelegationScopedByEntityTypeAndWindow(t *testing.T) {
	now := time.Now().UTC()
	delegations := &fakeDelegationRepo{}
	delegations.Insert(context.Background(), &models.ApprovalDelegation{
		ID: "d-1", DelegatorID: "bob", DelegateeID: "carol",
		EntityTypes: []string{"contract"},
		StartsAt:    now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
	})
	delegations.Insert(context.Background(), &models.ApprovalDelegation{
		ID: "d-2", DelegatorID: "bob", DelegateeID: "dave",
		StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour),
	})
	resolver := NewAssigneeResolverService(&fakeMembership{}, delegations)

	// Wrong entity type and a not-yet-open window both keep the base assignee
	userID, err := resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeUser, ID: "bob"},
		"expense", nil, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
}

func TestDelegationDoesNotChain(t *testing.T) {
	now := time.Now().UTC()
	delegations := &fakeDelegationRepo{}
	delegations.Insert(context.Background(), &models.ApprovalDelegation{
		ID: "d-1", DelegatorID: "bob", DelegateeID: "carol",
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
	})
	delegations.Insert(context.Background(), &models.ApprovalDelegation{
		ID: "d-2", DelegatorID: "carol", DelegateeID: "dave",
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
	})
	resolver := NewAssigneeResolverService(&fakeMembership{}, delegations)

	// bob's work goes to carol; carol's own delegation is not followed
	userID, err := resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: constants.AssigneeTypeUser, ID: "bob"},
		"expense", nil, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, "carol", userID)
}

func TestResolveUnknownTypeAndNilSpec(t *testing.T) {
	resolver := NewAssigneeResolverService(&fakeMembership{}, &fakeDelegationRepo{})
	now := time.Now().UTC()

	_, err := resolver.Resolve(context.Background(), nil, "expense", nil, "alice", now)
	assert.True(t, apperrors.IsUnresolvableAssignee(err))

	_, err = resolver.Resolve(context.Background(),
		&models.AssigneeSpec{Type: "committee", ID: "x"}, "expense", nil, "alice", now)
	assert.True(t, apperrors.IsUnresolvableAssignee(err))
}
