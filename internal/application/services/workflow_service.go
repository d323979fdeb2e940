package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/domain"
	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/internal/telemetry"
	"github.com/nexusflow/backend/pkg/constants"
	apperrors "github.com/nexusflow/backend/pkg/errors"
)

// InstanceEventPayload is the payload for instance lifecycle events
type InstanceEventPayload struct {
	Instance   *models.WorkflowInstance `json:"instance"`
	Template   *models.WorkflowTemplate `json:"template,omitempty"`
	ActionBy   string                   `json:"action_by,omitempty"`
	Comments   string                   `json:"comments,omitempty"`
	Flagged    bool                     `json:"flagged,omitempty"`
	StallCause string                   `json:"stall_cause,omitempty"`
}

// ApprovalEventPayload is the payload for approval lifecycle events
type ApprovalEventPayload struct {
	Approval *models.Approval         `json:"approval"`
	Instance *models.WorkflowInstance `json:"instance"`
	StepName string                   `json:"step_name"`
}

// StepNotificationPayload is the payload for kind=notification steps
type StepNotificationPayload struct {
	Instance       *models.WorkflowInstance `json:"instance"`
	StepIndex      int                      `json:"step_index"`
	NotifyTemplate string                   `json:"notify_template"`
	Snapshot       models.FieldMap          `json:"snapshot"`
}

// StartRequest carries the inputs of starting a workflow
type StartRequest struct {
	TemplateID string          `json:"template_id"`
	EntityID   string          `json:"entity_id"`
	Fields     models.FieldMap `json:"fields"`
	Priority   string          `json:"priority,omitempty"`
}

// WorkflowService is the engine: it drives instances through template steps,
// records decisions, and emits lifecycle events. All state transitions go
// through the instance state machine; all approval seals are compare-and-set.
type WorkflowService struct {
	templates   ports.TemplateRepository
	instances   ports.InstanceRepository
	approvals   ports.ApprovalRepository
	snapshots   ports.SnapshotRepository
	delegations ports.DelegationRepository
	resolver    ports.AssigneeResolver
	evaluator   ports.ConditionEvaluator
	executor    ports.ActionExecutor
	eventBus    ports.EventPublisher
	sm          *domain.InstanceStateMachine
}

// NewWorkflowService creates a new WorkflowService. executor may be nil when
// the deployment has no action steps.
func NewWorkflowService(
	templates ports.TemplateRepository,
	instances ports.InstanceRepository,
	approvals ports.ApprovalRepository,
	snapshots ports.SnapshotRepository,
	delegations ports.DelegationRepository,
	resolver ports.AssigneeResolver,
	evaluator ports.ConditionEvaluator,
	executor ports.ActionExecutor,
	eventBus ports.EventPublisher,
) *WorkflowService {
	return &WorkflowService{
		templates:   templates,
		instances:   instances,
		approvals:   approvals,
		snapshots:   snapshots,
		delegations: delegations,
		resolver:    resolver,
		evaluator:   evaluator,
		executor:    executor,
		eventBus:    eventBus,
		sm:          domain.NewInstanceStateMachine(),
	}
}

// Start begins a workflow for an entity. The field snapshot is captured here
// and every later condition and required-field check reads this frozen view,
// so concurrent entity edits cannot change a running workflow's course.
func (s *WorkflowService) Start(ctx context.Context, req StartRequest, requestedBy string) (*models.WorkflowInstance, error) {
	template, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if template == nil || !template.IsActive {
		return nil, apperrors.NewTemplateNotFoundError(req.TemplateID)
	}

	open, err := s.instances.FindOpenByEntity(ctx, template.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperrors.NewDuplicateOpenInstanceError(template.EntityType, req.EntityID)
	}

	// The snapshot is frozen at start, so every step's required fields can
	// be checked up front instead of failing mid-workflow.
	for i, step := range template.Steps {
		missing := missingFields(step.RequiredFields, req.Fields)
		if len(missing) > 0 {
			return nil, apperrors.NewMissingRequiredFieldsError(i, missing)
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = constants.PriorityNormal
	}

	now := time.Now().UTC()
	inst := &models.WorkflowInstance{
		ID:               uuid.New().String(),
		Code:             newCode(constants.CodePrefixInstance),
		TemplateID:       template.ID,
		EntityType:       template.EntityType,
		EntityID:         req.EntityID,
		CurrentStepIndex: 0,
		Status:           constants.InstanceStatusPending,
		Priority:         priority,
		RequestedBy:      requestedBy,
		RequestedAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.snapshots.Upsert(ctx, template.EntityType, req.EntityID, req.Fields); err != nil {
		return nil, fmt.Errorf("failed to store entity snapshot: %w", err)
	}
	if err := s.instances.Insert(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	telemetry.InstancesStarted.WithLabelValues(template.EntityType).Inc()
	log.Printf("🚀 Workflow %s started for %s/%s by %s", inst.Code, inst.EntityType, inst.EntityID, requestedBy)
	s.eventBus.PublishAsync(events.InstanceStarted, &InstanceEventPayload{Instance: inst, Template: template})

	if err := s.enterStep(ctx, inst, template, req.Fields); err != nil {
		return nil, err
	}
	return inst, nil
}

// Act records an approve/reject decision on a pending approval.
// Authorization re-resolves delegation at decision time, so a delegatee can
// act on rows assigned before their window opened.
func (s *WorkflowService) Act(ctx context.Context, approvalID, userID, decision, comments string) error {
	if decision != constants.DecisionApprove && decision != constants.DecisionReject {
		return apperrors.NewValidationError("decision", "decision must be 'approve' or 'reject'")
	}

	approval, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return err
	}
	if approval == nil {
		return apperrors.NewNotFoundError("approval", approvalID)
	}

	inst, err := s.instances.GetByID(ctx, approval.InstanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return apperrors.NewNotFoundError("workflow instance", approval.InstanceID)
	}

	if err := s.authorizeActor(ctx, approval, inst, userID); err != nil {
		return err
	}

	// Template and snapshot reads happen before the seal: once the row is
	// sealed, the only remaining work is advancement, which a retry of the
	// same decision can resume.
	template, err := s.templates.GetByID(ctx, inst.TemplateID)
	if err != nil {
		return err
	}
	if template == nil {
		return apperrors.NewTemplateNotFoundError(inst.TemplateID)
	}
	step := template.StepAt(approval.StepIndex)

	snapshot, err := s.snapshots.FieldsOf(ctx, inst.EntityType, inst.EntityID)
	if err != nil {
		return err
	}

	newStatus := constants.ApprovalStatusApproved
	if decision == constants.DecisionReject {
		newStatus = constants.ApprovalStatusRejected
	}

	now := time.Now().UTC()
	sealed, err := s.approvals.SealIfPending(ctx, approvalID, newStatus, userID, comments, now)
	if err != nil {
		return err
	}
	if sealed {
		telemetry.ApprovalsDecided.WithLabelValues(decision).Inc()
		log.Printf("✍️  Approval %s %sd by %s on workflow %s", approvalID, decision, userID, inst.Code)
	} else {
		resumable, status, err := s.decisionNeedsAdvancement(ctx, approvalID, newStatus, userID, approval, inst)
		if err != nil {
			return err
		}
		if !resumable {
			// Another caller, or the escalation sweep, got there first
			return apperrors.NewAlreadyDecidedError(approvalID, status)
		}
		log.Printf("🔄 Resuming advancement of workflow %s after sealed approval %s", inst.Code, approvalID)
	}

	if decision == constants.DecisionReject {
		if step != nil && step.Kind == constants.StepKindReview {
			// Review rejections flag the instance but never block it
			s.eventBus.PublishAsync(events.StepFlagged, &InstanceEventPayload{
				Instance: inst, ActionBy: userID, Comments: comments,
			})
		} else {
			return s.completeInstance(ctx, inst, domain.TransitionReject, userID, comments)
		}
	}

	// A decided last step completes the instance; the step index stays on
	// the step that carried the final decision.
	if template.StepAt(approval.StepIndex+1) == nil {
		return s.completeInstance(ctx, inst, domain.TransitionApprove, userID, comments)
	}

	if err := s.instances.AdvanceStep(ctx, inst.ID, approval.StepIndex+1); err != nil {
		return err
	}
	inst.CurrentStepIndex = approval.StepIndex + 1

	return s.enterStep(ctx, inst, template, snapshot)
}

// decisionNeedsAdvancement reports whether a lost seal belongs to an earlier
// attempt of the same decision that sealed the row but failed before moving
// the instance. Such calls resume the advancement instead of erroring, so a
// transient failure after the seal never strands an instance with no
// pending approvals. Returns the row's current status for error reporting.
func (s *WorkflowService) decisionNeedsAdvancement(ctx context.Context, approvalID, wantStatus, userID string, approval *models.Approval, inst *models.WorkflowInstance) (bool, string, error) {
	current, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return false, "", err
	}
	if current == nil {
		return false, approval.Status, nil
	}
	sameDecision := current.Status == wantStatus && current.ActionBy != nil && *current.ActionBy == userID
	stuck := inst.Status == constants.InstanceStatusPending && inst.CurrentStepIndex == approval.StepIndex
	return sameDecision && stuck, current.Status, nil
}

// Cancel seals an open instance and its pending approvals. Only the
// requester or an admin may cancel; cancellation is allowed at any step.
func (s *WorkflowService) Cancel(ctx context.Context, instanceID, userID string, isAdmin bool, comments string) error {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return apperrors.NewNotFoundError("workflow instance", instanceID)
	}
	if !s.sm.CanTransition(domain.InstanceState(inst.Status), domain.TransitionCancel) {
		return apperrors.NewAlreadyDecidedError(instanceID, inst.Status)
	}
	if inst.RequestedBy != userID && !isAdmin {
		return apperrors.NewNotAuthorizedError(instanceID, userID)
	}

	now := time.Now().UTC()
	history, err := s.approvals.ListByInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, a := range history {
		if a.Status != constants.ApprovalStatusPending {
			continue
		}
		// A losing CAS here means someone decided while we cancel; the
		// instance still seals below and the decision has no effect.
		if _, err := s.approvals.SealIfPending(ctx, a.ID, constants.ApprovalStatusCancelled, userID, comments, now); err != nil {
			return err
		}
	}

	return s.completeInstance(ctx, inst, domain.TransitionCancel, userID, comments)
}

// PendingFor returns the pending approvals a user can act on: rows assigned
// to them plus rows assigned to anyone who currently delegates to them. The
// queue and Act use the same delegation window, so a row that appears here
// is decidable by the caller.
func (s *WorkflowService) PendingFor(ctx context.Context, userID string) ([]*models.Approval, error) {
	rows, err := s.approvals.PendingByAssignee(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	delegations, err := s.delegations.ActiveForDelegatee(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	for _, a := range rows {
		seen[a.ID] = true
	}
	for _, d := range delegations {
		delegated, err := s.approvals.PendingByAssignee(ctx, d.DelegatorID)
		if err != nil {
			return nil, err
		}
		for _, a := range delegated {
			if seen[a.ID] {
				continue
			}
			inst, err := s.instances.GetByID(ctx, a.InstanceID)
			if err != nil {
				return nil, err
			}
			if inst != nil && d.ActiveAt(now, inst.EntityType) {
				seen[a.ID] = true
				rows = append(rows, a)
			}
		}
	}
	return rows, nil
}

// PendingCountFor returns the number of pending approvals a user can act on
func (s *WorkflowService) PendingCountFor(ctx context.Context, userID string) (int, error) {
	rows, err := s.PendingFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// HistoryOf returns an instance and its complete approval trail
func (s *WorkflowService) HistoryOf(ctx context.Context, instanceID string) (*models.WorkflowInstance, []*models.Approval, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if inst == nil {
		return nil, nil, apperrors.NewNotFoundError("workflow instance", instanceID)
	}
	history, err := s.approvals.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	return inst, history, nil
}

// List returns instances matching the filter
func (s *WorkflowService) List(ctx context.Context, filter ports.InstanceFilter) ([]*models.WorkflowInstance, error) {
	return s.instances.List(ctx, filter)
}

// Stats returns instance counts by status
func (s *WorkflowService) Stats(ctx context.Context) (*ports.InstanceStats, error) {
	return s.instances.Stats(ctx)
}

// RetryStalled re-enters the current step of a stalled instance. Operators
// call this after fixing membership data or the failing action target.
func (s *WorkflowService) RetryStalled(ctx context.Context, instanceID string) error {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return apperrors.NewNotFoundError("workflow instance", instanceID)
	}
	if _, err := s.sm.Transition(domain.InstanceState(inst.Status), domain.TransitionResume); err != nil {
		return apperrors.NewValidationError("status", fmt.Sprintf("instance is %s, only stalled instances can be retried", inst.Status))
	}

	if err := s.instances.SetStatus(ctx, inst.ID, constants.InstanceStatusPending); err != nil {
		return err
	}
	inst.Status = constants.InstanceStatusPending

	template, err := s.templates.GetByID(ctx, inst.TemplateID)
	if err != nil {
		return err
	}
	if template == nil {
		return apperrors.NewTemplateNotFoundError(inst.TemplateID)
	}
	snapshot, err := s.snapshots.FieldsOf(ctx, inst.EntityType, inst.EntityID)
	if err != nil {
		return err
	}

	log.Printf("🔁 Retrying stalled workflow %s at step %d", inst.Code, inst.CurrentStepIndex)
	return s.enterStep(ctx, inst, template, snapshot)
}

// enterStep advances the instance through steps starting at its current
// index. Non-decision steps and auto-approved steps advance in a loop; the
// loop stops when a step needs a human or the instance reaches an end.
func (s *WorkflowService) enterStep(ctx context.Context, inst *models.WorkflowInstance, template *models.WorkflowTemplate, snapshot models.FieldMap) error {
	for {
		step := template.StepAt(inst.CurrentStepIndex)
		if step == nil {
			return s.stallInstance(ctx, inst, fmt.Sprintf("no step at index %d", inst.CurrentStepIndex))
		}

		switch step.Kind {
		case constants.StepKindNotification:
			s.eventBus.PublishAsync(events.StepNotification, &StepNotificationPayload{
				Instance: inst, StepIndex: inst.CurrentStepIndex,
				NotifyTemplate: step.NotifyTemplate, Snapshot: snapshot,
			})

		case constants.StepKindAction:
			if err := s.runAction(ctx, step, inst, snapshot); err != nil {
				return s.stallInstance(ctx, inst, fmt.Sprintf("action step %d failed: %v", inst.CurrentStepIndex, err))
			}

		case constants.StepKindApproval, constants.StepKindReview:
			if step.AutoApprove != nil && s.evaluator.Matches(step.AutoApprove, snapshot) {
				if err := s.recordAutoApproval(ctx, inst, step); err != nil {
					return err
				}
			} else {
				return s.createPendingApproval(ctx, inst, step, snapshot)
			}

		default:
			// Unknown kinds cannot reach here past template validation
			return s.stallInstance(ctx, inst, fmt.Sprintf("step %d has unknown kind %q", inst.CurrentStepIndex, step.Kind))
		}

		// The last step finishing completes the instance; the index never
		// moves past the final step.
		if template.StepAt(inst.CurrentStepIndex+1) == nil {
			return s.completeInstance(ctx, inst, domain.TransitionApprove, constants.SystemUserID, "")
		}

		if err := s.instances.AdvanceStep(ctx, inst.ID, inst.CurrentStepIndex+1); err != nil {
			return err
		}
		inst.CurrentStepIndex++
	}
}

func (s *WorkflowService) runAction(ctx context.Context, step *models.Step, inst *models.WorkflowInstance, snapshot models.FieldMap) error {
	if s.executor == nil {
		return fmt.Errorf("no action executor configured")
	}
	return s.executor.Execute(ctx, step.ActionConfig, inst, snapshot)
}

// recordAutoApproval synthesizes an approved entry attributed to the system
// user so the history shows why the step was skipped.
func (s *WorkflowService) recordAutoApproval(ctx context.Context, inst *models.WorkflowInstance, step *models.Step) error {
	now := time.Now().UTC()
	systemID := constants.SystemUserID
	a := &models.Approval{
		ID:           uuid.New().String(),
		InstanceID:   inst.ID,
		StepIndex:    inst.CurrentStepIndex,
		EntryOrdinal: 0,
		StepName:     step.Name,
		AssignedTo:   systemID,
		Status:       constants.ApprovalStatusApproved,
		ActionBy:     &systemID,
		ActionAt:     &now,
		Comments:     "auto-approved by condition",
		CreatedAt:    now,
	}
	if err := s.approvals.Insert(ctx, a); err != nil {
		return err
	}
	log.Printf("⚡ Step %d of workflow %s auto-approved", inst.CurrentStepIndex, inst.Code)
	return nil
}

// createPendingApproval resolves the assignee and opens a pending entry.
// Resolution failure stalls the instance instead of guessing an assignee.
func (s *WorkflowService) createPendingApproval(ctx context.Context, inst *models.WorkflowInstance, step *models.Step, snapshot models.FieldMap) error {
	now := time.Now().UTC()
	assignee, err := s.resolver.Resolve(ctx, step.Assignee, inst.EntityType, snapshot, inst.RequestedBy, now)
	if err != nil {
		if apperrors.IsUnresolvableAssignee(err) {
			return s.stallInstance(ctx, inst, err.Error())
		}
		return err
	}

	a := &models.Approval{
		ID:           uuid.New().String(),
		InstanceID:   inst.ID,
		StepIndex:    inst.CurrentStepIndex,
		EntryOrdinal: 0,
		StepName:     step.Name,
		AssignedTo:   assignee,
		Status:       constants.ApprovalStatusPending,
		CreatedAt:    now,
	}
	if step.Escalation != nil {
		due := now.Add(time.Duration(step.Escalation.HoursUntilDue * float64(time.Hour)))
		a.DueAt = &due
	}

	if err := s.approvals.Insert(ctx, a); err != nil {
		return err
	}

	log.Printf("📨 Approval requested: workflow %s step %d assigned to %s", inst.Code, a.StepIndex, assignee)
	s.eventBus.PublishAsync(events.ApprovalRequested, &ApprovalEventPayload{
		Approval: a, Instance: inst, StepName: step.Name,
	})
	return nil
}

func (s *WorkflowService) stallInstance(ctx context.Context, inst *models.WorkflowInstance, cause string) error {
	if _, err := s.sm.Transition(domain.InstanceState(inst.Status), domain.TransitionStall); err != nil {
		return err
	}
	if err := s.instances.SetStatus(ctx, inst.ID, constants.InstanceStatusStalled); err != nil {
		return err
	}
	inst.Status = constants.InstanceStatusStalled

	telemetry.InstancesStalled.Inc()
	log.Printf("⚠️ Workflow %s stalled at step %d: %s", inst.Code, inst.CurrentStepIndex, cause)
	s.eventBus.PublishAsync(events.InstanceStalled, &InstanceEventPayload{Instance: inst, StallCause: cause})
	return nil
}

func (s *WorkflowService) completeInstance(ctx context.Context, inst *models.WorkflowInstance, via domain.InstanceTransition, actionBy, comments string) error {
	next, err := s.sm.Transition(domain.InstanceState(inst.Status), via)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.instances.Complete(ctx, inst.ID, string(next), actionBy, now); err != nil {
		return err
	}
	inst.Status = string(next)
	inst.CompletedAt = &now
	inst.CompletedBy = &actionBy

	telemetry.InstancesCompleted.WithLabelValues(inst.Status).Inc()
	log.Printf("🏁 Workflow %s completed: %s", inst.Code, inst.Status)

	eventType := map[domain.InstanceTransition]events.EventType{
		domain.TransitionApprove: events.InstanceApproved,
		domain.TransitionReject:  events.InstanceRejected,
		domain.TransitionCancel:  events.InstanceCancelled,
	}[via]
	s.eventBus.PublishAsync(eventType, &InstanceEventPayload{
		Instance: inst, ActionBy: actionBy, Comments: comments,
	})
	return nil
}

// authorizeActor checks that the caller is the assignee or an active
// delegatee of the assignee at decision time.
func (s *WorkflowService) authorizeActor(ctx context.Context, approval *models.Approval, inst *models.WorkflowInstance, userID string) error {
	if approval.AssignedTo == userID {
		return nil
	}

	// Delegation is re-resolved now, not at assignment time
	resolved, err := s.resolver.Resolve(ctx,
		&models.AssigneeSpec{Type: constants.AssigneeTypeUser, ID: approval.AssignedTo},
		inst.EntityType, nil, inst.RequestedBy, time.Now().UTC())
	if err == nil && resolved == userID {
		return nil
	}
	return apperrors.NewNotAuthorizedError(approval.ID, userID)
}

func missingFields(required []string, fields models.FieldMap) []string {
	missing := make([]string, 0)
	for _, f := range required {
		if !fields.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
