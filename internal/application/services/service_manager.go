package services

import (
	"context"
	"log"
	"os"

	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/internal/infrastructure/database"
	"github.com/nexusflow/backend/internal/infrastructure/mq"
	"github.com/nexusflow/backend/internal/infrastructure/persistence"
	"github.com/nexusflow/backend/pkg/expression"
)

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	db *database.Connection

	// Core services
	EventBus     *EventBus
	Templates    *TemplateService
	Workflow     *WorkflowService
	Escalation   *EscalationService
	Scheduler    *SchedulerService
	Delegations  *DelegationService
	Notification *NotificationService
	Auth         *AuthService
	Users        ports.UserRepository

	broker *mq.Publisher
}

// NewServiceManager creates a new service manager with all dependencies
// wired in order. executor may be nil when no action steps are deployed.
func NewServiceManager(db *database.Connection, executor ports.ActionExecutor) *ServiceManager {
	sm := &ServiceManager{db: db}

	// Repositories
	templateRepo := persistence.NewTemplateRepository(db.DB())
	instanceRepo := persistence.NewInstanceRepository(db.DB())
	approvalRepo := persistence.NewApprovalRepository(db.DB())
	delegationRepo := persistence.NewDelegationRepository(db.DB())
	snapshotRepo := persistence.NewSnapshotRepository(db.DB())
	userRepo := persistence.NewUserRepository(db.DB())
	notificationRepo := persistence.NewNotificationRepository(db.DB())
	sm.Users = userRepo

	// Core plumbing
	sm.EventBus = NewEventBus()

	// Engine collaborators
	membership := NewMembershipService(userRepo)
	resolver := NewAssigneeResolverService(membership, delegationRepo)
	evaluator := NewConditionEvaluator(expression.NewEngine())

	// Services in dependency order
	sm.Templates = NewTemplateService(templateRepo)
	sm.Workflow = NewWorkflowService(templateRepo, instanceRepo, approvalRepo, snapshotRepo,
		delegationRepo, resolver, evaluator, executor, sm.EventBus)
	sm.Escalation = NewEscalationService(templateRepo, instanceRepo, approvalRepo,
		resolver, membership, sm.EventBus)
	sm.Scheduler = NewSchedulerService(sm.Escalation)
	sm.Delegations = NewDelegationService(delegationRepo, userRepo)
	sm.Auth = NewAuthService(userRepo)

	// Event sinks
	sm.Notification = NewNotificationService(notificationRepo)
	sm.Notification.SubscribeTo(sm.EventBus)
	sm.connectBroker()

	return sm
}

// connectBroker bridges the event bus to RabbitMQ when MQ_URL is set.
// The broker is optional and its absence is not an error.
func (sm *ServiceManager) connectBroker() {
	url := os.Getenv("MQ_URL")
	if url == "" {
		return
	}

	publisher, err := mq.NewPublisher(url)
	if err != nil {
		log.Printf("⚠️ RabbitMQ unavailable, running with in-process events only: %v", err)
		return
	}
	sm.broker = publisher
	sm.EventBus.BridgeToBroker(func(ctx context.Context, eventType EventType, payload interface{}) error {
		return publisher.Publish(ctx, eventType, payload)
	})
}

// Close releases external resources held by the services
func (sm *ServiceManager) Close() {
	sm.Scheduler.Stop()
	if sm.broker != nil {
		if err := sm.broker.Close(); err != nil {
			log.Printf("⚠️ Failed to close RabbitMQ publisher: %v", err)
		}
	}
}
