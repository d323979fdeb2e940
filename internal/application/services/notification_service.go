package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/models"
)

// NotificationStore is the persistence surface the sink writes to
type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListUnreadByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

// NotificationService is the in-app event sink: it subscribes to lifecycle
// events and persists notification rows for the affected users. Delivery is
// fire-and-forget; a failed insert never reaches the engine.
type NotificationService struct {
	store NotificationStore
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// SubscribeTo wires the sink to the event bus
func (s *NotificationService) SubscribeTo(bus *EventBus) {
	bus.Subscribe(events.ApprovalRequested, s.onApprovalRequested)
	bus.Subscribe(events.ApprovalEscalated, s.onApprovalEscalated)
	bus.Subscribe(events.InstanceApproved, s.onInstanceCompleted("approved"))
	bus.Subscribe(events.InstanceRejected, s.onInstanceCompleted("rejected"))
	bus.Subscribe(events.InstanceCancelled, s.onInstanceCompleted("cancelled"))
	bus.Subscribe(events.InstanceStalled, s.onInstanceStalled)
	bus.Subscribe(events.StepFlagged, s.onStepFlagged)
}

// GetUnread returns unread notifications for a user
func (s *NotificationService) GetUnread(ctx context.Context, userID string) ([]*models.Notification, error) {
	return s.store.ListUnreadByRecipient(ctx, userID, 20)
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID string) error {
	return s.store.MarkRead(ctx, id, userID)
}

func (s *NotificationService) onApprovalRequested(ctx context.Context, payload interface{}) error {
	p, ok := payload.(*ApprovalEventPayload)
	if !ok {
		return nil
	}
	return s.store.Insert(ctx, &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: p.Approval.AssignedTo,
		Title:       fmt.Sprintf("Approval requested: %s", p.StepName),
		Body:        fmt.Sprintf("Workflow %s is waiting for your decision", p.Instance.Code),
		EventType:   string(events.ApprovalRequested),
		InstanceID:  p.Instance.ID,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *NotificationService) onApprovalEscalated(ctx context.Context, payload interface{}) error {
	p, ok := payload.(*ApprovalEventPayload)
	if !ok {
		return nil
	}
	return s.store.Insert(ctx, &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: p.Approval.AssignedTo,
		Title:       fmt.Sprintf("Escalated to you: %s", p.StepName),
		Body:        fmt.Sprintf("An overdue approval on workflow %s was escalated to you", p.Instance.Code),
		EventType:   string(events.ApprovalEscalated),
		InstanceID:  p.Instance.ID,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *NotificationService) onInstanceCompleted(outcome string) EventHandler {
	return func(ctx context.Context, payload interface{}) error {
		p, ok := payload.(*InstanceEventPayload)
		if !ok {
			return nil
		}
		return s.store.Insert(ctx, &models.Notification{
			ID:          uuid.New().String(),
			RecipientID: p.Instance.RequestedBy,
			Title:       fmt.Sprintf("Workflow %s %s", p.Instance.Code, outcome),
			Body:        p.Comments,
			EventType:   "instance." + outcome,
			InstanceID:  p.Instance.ID,
			CreatedAt:   time.Now().UTC(),
		})
	}
}

func (s *NotificationService) onInstanceStalled(ctx context.Context, payload interface{}) error {
	p, ok := payload.(*InstanceEventPayload)
	if !ok {
		return nil
	}
	return s.store.Insert(ctx, &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: p.Instance.RequestedBy,
		Title:       fmt.Sprintf("Workflow %s needs attention", p.Instance.Code),
		Body:        p.StallCause,
		EventType:   string(events.InstanceStalled),
		InstanceID:  p.Instance.ID,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *NotificationService) onStepFlagged(ctx context.Context, payload interface{}) error {
	p, ok := payload.(*InstanceEventPayload)
	if !ok {
		return nil
	}
	return s.store.Insert(ctx, &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: p.Instance.RequestedBy,
		Title:       fmt.Sprintf("Workflow %s flagged during review", p.Instance.Code),
		Body:        p.Comments,
		EventType:   string(events.StepFlagged),
		InstanceID:  p.Instance.ID,
		CreatedAt:   time.Now().UTC(),
	})
}
