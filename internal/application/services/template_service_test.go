package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/constants"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

func validTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:       "Expense Approval",
		EntityType: "expense",
		Steps: []models.Step{
			{Order: 0, Name: "Manager Approval", Kind: constants.StepKindApproval,
				Assignee: &models.AssigneeSpec{Type: constants.AssigneeTypeRequesterManager}},
			{Order: 1, Name: "Finance Approval", Kind: constants.StepKindApproval,
				Assignee: &models.AssigneeSpec{Type: constants.AssigneeTypeRole, ID: "finance"}},
		},
	}
}

func TestCreateTemplate(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)

	created, err := svc.Create(context.Background(), validTemplate(), "admin-1")
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Contains(t, created.Code, "WFT-")
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.IsActive)
	assert.Equal(t, "admin-1", created.CreatedBy)
}

func TestCreateTemplateValidation(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)

	tests := []struct {
		name   string
		mutate func(*models.WorkflowTemplate)
	}{
		{"empty name", func(tpl *models.WorkflowTemplate) { tpl.Name = "" }},
		{"empty entity type", func(tpl *models.WorkflowTemplate) { tpl.EntityType = "" }},
		{"no steps", func(tpl *models.WorkflowTemplate) { tpl.Steps = nil }},
		{"non-contiguous order", func(tpl *models.WorkflowTemplate) { tpl.Steps[1].Order = 5 }},
		{"approval without assignee", func(tpl *models.WorkflowTemplate) { tpl.Steps[0].Assignee = nil }},
		{"unknown kind", func(tpl *models.WorkflowTemplate) { tpl.Steps[0].Kind = "vote" }},
		{"unknown assignee type", func(tpl *models.WorkflowTemplate) { tpl.Steps[1].Assignee.Type = "committee" }},
		{"role assignee without id", func(tpl *models.WorkflowTemplate) { tpl.Steps[1].Assignee.ID = "" }},
		{"zero escalation hours", func(tpl *models.WorkflowTemplate) {
			tpl.Steps[0].Escalation = &models.EscalationPolicy{HoursUntilDue: 0}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := validTemplate()
			tt.mutate(tpl)
			_, err := svc.Create(context.Background(), tpl, "admin-1")
			assert.Error(t, err)
		})
	}
}

func TestCreateTemplateInvalidCondition(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)

	tpl := validTemplate()
	tpl.Steps[0].AutoApprove = &models.Condition{Field: "amount", Op: "between", Value: 100}

	_, err := svc.Create(context.Background(), tpl, "admin-1")
	var invalid *apperrors.InvalidConditionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, invalid.StepIndex)
}

func TestUpdateInPlaceWhenNoInstances(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)

	v1, err := svc.Create(context.Background(), validTemplate(), "admin-1")
	require.NoError(t, err)

	edited := validTemplate()
	edited.Name = "Expense Approval (draft fix)"
	updated, err := svc.Update(context.Background(), v1.ID, edited, "admin-2")
	require.NoError(t, err)

	// No instance ever referenced v1, so the row is edited, not versioned
	assert.Equal(t, v1.ID, updated.ID)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, "Expense Approval (draft fix)", updated.Name)

	stored, err := svc.Get(context.Background(), v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Expense Approval (draft fix)", stored.Name)
	assert.True(t, stored.IsActive)
}

func TestUpdateCreatesNewVersion(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)

	v1, err := svc.Create(context.Background(), validTemplate(), "admin-1")
	require.NoError(t, err)
	repo.referenced[v1.ID] = true

	edited := validTemplate()
	edited.Name = "Expense Approval v2"
	v2, err := svc.Update(context.Background(), v1.ID, edited, "admin-2")
	require.NoError(t, err)

	assert.NotEqual(t, v1.ID, v2.ID)
	assert.Equal(t, v1.Code, v2.Code)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.IsActive)

	// The old version still exists but is no longer active
	old, err := svc.Get(context.Background(), v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestUpdateUnknownTemplate(t *testing.T) {
	svc := NewTemplateService(newFakeTemplateRepo())
	_, err := svc.Update(context.Background(), "missing", validTemplate(), "admin-1")
	var notFound *apperrors.TemplateNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
