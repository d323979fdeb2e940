package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/internal/telemetry"
	"github.com/nexusflow/backend/pkg/constants"
)

// SweepResult summarizes one escalation sweep pass
type SweepResult struct {
	Scanned    int `json:"scanned"`
	Escalated  int `json:"escalated"`
	PushedBack int `json:"pushed_back"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
}

// EscalationService finds overdue pending approvals and escalates them.
// Every escalation is a per-row compare-and-set, so concurrent sweeps (or a
// sweep racing a human decision) process each row at most once. A losing CAS
// is a skip, not an error.
type EscalationService struct {
	templates  ports.TemplateRepository
	instances  ports.InstanceRepository
	approvals  ports.ApprovalRepository
	resolver   ports.AssigneeResolver
	membership ports.MembershipLookup
	eventBus   ports.EventPublisher
}

// NewEscalationService creates a new EscalationService
func NewEscalationService(
	templates ports.TemplateRepository,
	instances ports.InstanceRepository,
	approvals ports.ApprovalRepository,
	resolver ports.AssigneeResolver,
	membership ports.MembershipLookup,
	eventBus ports.EventPublisher,
) *EscalationService {
	return &EscalationService{
		templates:  templates,
		instances:  instances,
		approvals:  approvals,
		resolver:   resolver,
		membership: membership,
		eventBus:   eventBus,
	}
}

// Sweep processes one batch of overdue approvals. Per-row failures are
// logged and the sweep continues; a broken row must not starve the rest.
func (s *EscalationService) Sweep(ctx context.Context) *SweepResult {
	start := time.Now()
	defer func() {
		telemetry.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	result := &SweepResult{}
	now := time.Now().UTC()

	overdue, err := s.approvals.FindOverdue(ctx, now, constants.SweepBatchSize)
	if err != nil {
		log.Printf("⚠️ Escalation sweep failed to query overdue approvals: %v", err)
		result.Errors++
		return result
	}
	result.Scanned = len(overdue)

	for _, a := range overdue {
		if err := s.escalateOne(ctx, a, now, result); err != nil {
			log.Printf("⚠️ Escalation of approval %s failed: %v", a.ID, err)
			result.Errors++
		}
	}

	if result.Scanned > 0 {
		log.Printf("⏰ Escalation sweep: scanned=%d escalated=%d pushed_back=%d skipped=%d errors=%d",
			result.Scanned, result.Escalated, result.PushedBack, result.Skipped, result.Errors)
	}
	return result
}

func (s *EscalationService) escalateOne(ctx context.Context, a *models.Approval, now time.Time, result *SweepResult) error {
	inst, err := s.instances.GetByID(ctx, a.InstanceID)
	if err != nil {
		return err
	}
	if inst == nil || inst.Status != constants.InstanceStatusPending {
		// Instance was sealed or stalled after the row went overdue
		result.Skipped++
		return nil
	}

	template, err := s.templates.GetByID(ctx, inst.TemplateID)
	if err != nil {
		return err
	}
	if template == nil {
		result.Skipped++
		return nil
	}
	step := template.StepAt(a.StepIndex)
	if step == nil || step.Escalation == nil {
		result.Skipped++
		return nil
	}

	target, err := s.resolveTarget(ctx, step, inst, a, now)
	if err != nil {
		// No reachable target: push the deadline back and let the next
		// sweep retry once membership data is fixed
		due := now.Add(time.Duration(step.Escalation.HoursUntilDue * float64(time.Hour)))
		if pushErr := s.approvals.PushBackDueAt(ctx, a.ID, due); pushErr != nil {
			return pushErr
		}
		log.Printf("⚠️ Approval %s has no escalation target (%v), due pushed to %s", a.ID, err, due.Format(time.RFC3339))
		result.PushedBack++
		return nil
	}

	due := now.Add(time.Duration(step.Escalation.HoursUntilDue * float64(time.Hour)))
	next := &models.Approval{
		ID:           uuid.New().String(),
		InstanceID:   a.InstanceID,
		StepIndex:    a.StepIndex,
		EntryOrdinal: a.EntryOrdinal + 1,
		StepName:     a.StepName,
		AssignedTo:   target,
		Status:       constants.ApprovalStatusPending,
		DueAt:        &due,
		CreatedAt:    now,
	}
	escalated, err := s.approvals.Escalate(ctx, a.ID, target, now, next)
	if err != nil {
		return err
	}
	if !escalated {
		// Someone decided while we resolved the target
		result.Skipped++
		return nil
	}

	telemetry.ApprovalsEscalated.Inc()
	result.Escalated++
	log.Printf("⏫ Approval %s escalated: %s -> %s (workflow %s step %d)",
		a.ID, a.AssignedTo, target, inst.Code, a.StepIndex)

	s.eventBus.PublishAsync(events.ApprovalEscalated, &ApprovalEventPayload{
		Approval: next, Instance: inst, StepName: a.StepName,
	})
	return nil
}

// resolveTarget picks the escalation target: the policy's explicit
// escalate_to when present, otherwise the overdue assignee's manager.
func (s *EscalationService) resolveTarget(ctx context.Context, step *models.Step, inst *models.WorkflowInstance, a *models.Approval, now time.Time) (string, error) {
	if step.Escalation.EscalateTo != nil {
		return s.resolver.Resolve(ctx, step.Escalation.EscalateTo, inst.EntityType, nil, inst.RequestedBy, now)
	}
	return s.membership.ManagerOf(ctx, a.AssignedTo)
}
