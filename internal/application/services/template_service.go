package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

// TemplateService manages versioned workflow templates. Versioning is
// append-only: editing a template that has instances creates a new row with
// version+1 and deactivates the old one, so running instances keep the exact
// step list they started with.
type TemplateService struct {
	templates ports.TemplateRepository
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templates ports.TemplateRepository) *TemplateService {
	return &TemplateService{templates: templates}
}

// newCode generates a prefixed base36 timestamp code (WFT-MB3K2A9X style)
func newCode(prefix string) string {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(stamp))
}

// Create validates and stores a new template at version 1
func (s *TemplateService) Create(ctx context.Context, t *models.WorkflowTemplate, createdBy string) (*models.WorkflowTemplate, error) {
	if err := s.validate(t); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.ID = uuid.New().String()
	t.Code = newCode(constants.CodePrefixTemplate)
	t.Version = 1
	t.IsActive = true
	t.CreatedBy = createdBy
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.templates.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	log.Printf("📋 Template created: %s (%s) for entity type %s", t.Name, t.Code, t.EntityType)
	return t, nil
}

// Update edits a template. A version no instance has ever referenced is
// rewritten in place; once instances exist the row is frozen and the edit
// publishes a new version, deactivating the old one, so running instances
// keep the exact step list they started with.
func (s *TemplateService) Update(ctx context.Context, id string, updated *models.WorkflowTemplate, updatedBy string) (*models.WorkflowTemplate, error) {
	existing, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.NewTemplateNotFoundError(id)
	}

	if err := s.validate(updated); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	referenced, err := s.templates.HasInstances(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	if !referenced {
		existing.Name = updated.Name
		existing.Description = updated.Description
		existing.Steps = updated.Steps
		existing.UpdatedAt = now
		if err := s.templates.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update template: %w", err)
		}
		log.Printf("📋 Template %s edited in place at version %d", existing.Code, existing.Version)
		return existing, nil
	}

	next := &models.WorkflowTemplate{
		ID:          uuid.New().String(),
		Code:        existing.Code,
		Name:        updated.Name,
		Description: updated.Description,
		EntityType:  existing.EntityType,
		Version:     existing.Version + 1,
		IsActive:    true,
		Steps:       updated.Steps,
		CreatedBy:   updatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.templates.Insert(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to create template version: %w", err)
	}
	if err := s.templates.Deactivate(ctx, existing.ID); err != nil {
		return nil, fmt.Errorf("failed to deactivate previous version: %w", err)
	}

	log.Printf("📋 Template %s updated to version %d", next.Code, next.Version)
	return next, nil
}

// Get retrieves a template, erroring when it does not exist
func (s *TemplateService) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperrors.NewTemplateNotFoundError(id)
	}
	return t, nil
}

// List retrieves templates matching the filter
func (s *TemplateService) List(ctx context.Context, filter ports.TemplateFilter) ([]*models.WorkflowTemplate, error) {
	return s.templates.List(ctx, filter)
}

// Deactivate retires a template without touching its history. Templates with
// instances are never deleted.
func (s *TemplateService) Deactivate(ctx context.Context, id string) error {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return apperrors.NewTemplateNotFoundError(id)
	}
	return s.templates.Deactivate(ctx, id)
}

// validate enforces the step schema. Conditions and escalation targets are
// checked here so malformed templates fail at save time, not mid-workflow.
func (s *TemplateService) validate(t *models.WorkflowTemplate) error {
	if t.Name == "" {
		return apperrors.NewValidationError("name", "template name is required")
	}
	if t.EntityType == "" {
		return apperrors.NewValidationError("entity_type", "entity type is required")
	}
	if len(t.Steps) == 0 {
		return apperrors.NewValidationError("steps", "template must have at least one step")
	}

	for i, step := range t.Steps {
		if step.Name == "" {
			return apperrors.NewValidationError("steps", fmt.Sprintf("step %d has no name", i))
		}
		if step.Order != i {
			return apperrors.NewValidationError("steps", fmt.Sprintf("step %d has order %d, steps must be contiguous from 0", i, step.Order))
		}

		switch step.Kind {
		case constants.StepKindApproval, constants.StepKindReview:
			if step.Assignee == nil {
				return apperrors.NewValidationError("steps", fmt.Sprintf("step %d (%s) requires an assignee", i, step.Kind))
			}
			if err := validateAssignee(step.Assignee, i); err != nil {
				return err
			}
		case constants.StepKindAction:
			if len(step.ActionConfig) == 0 {
				return apperrors.NewValidationError("steps", fmt.Sprintf("step %d (action) requires an action config", i))
			}
		case constants.StepKindNotification:
			if step.NotifyTemplate == "" {
				return apperrors.NewValidationError("steps", fmt.Sprintf("step %d (notification) requires a notify template", i))
			}
		default:
			return apperrors.NewValidationError("steps", fmt.Sprintf("step %d has unknown kind %q", i, step.Kind))
		}

		if step.AutoApprove != nil {
			if err := ValidateCondition(step.AutoApprove); err != nil {
				return apperrors.NewInvalidConditionError(i, err.Error())
			}
		}

		if step.Escalation != nil {
			if step.Escalation.HoursUntilDue <= 0 {
				return apperrors.NewValidationError("steps", fmt.Sprintf("step %d escalation hours must be positive", i))
			}
			if step.Escalation.EscalateTo != nil {
				if err := validateAssignee(step.Escalation.EscalateTo, i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateAssignee(spec *models.AssigneeSpec, stepIndex int) error {
	switch spec.Type {
	case constants.AssigneeTypeUser, constants.AssigneeTypeRole, constants.AssigneeTypeDepartment:
		if spec.ID == "" {
			return apperrors.NewValidationError("steps", fmt.Sprintf("step %d assignee of type %s requires an id", stepIndex, spec.Type))
		}
	case constants.AssigneeTypeRequesterManager:
		// No id needed, resolved from the requester at runtime
	default:
		return apperrors.NewValidationError("steps", fmt.Sprintf("step %d has unknown assignee type %q", stepIndex, spec.Type))
	}
	return nil
}
