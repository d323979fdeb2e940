package ports

import (
	"context"
	"time"

	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/models"
)

// MembershipLookup resolves roles and departments to the acting individual,
// and walks manager chains. The engine calls out to it; it never implements
// org-chart logic itself.
type MembershipLookup interface {
	// HolderOf resolves a role or department id to the current holder's user id.
	HolderOf(ctx context.Context, kind, id string) (string, error)

	// ManagerOf returns the manager's user id for the given user.
	ManagerOf(ctx context.Context, userID string) (string, error)
}

// SnapshotProvider is the read-only view of entity field values used by the
// condition evaluator and required-fields checks.
type SnapshotProvider interface {
	FieldsOf(ctx context.Context, entityType, entityID string) (models.FieldMap, error)
}

// ActionExecutor performs the opaque side effect of a kind=action step.
// Failures stall the instance; they never crash the engine.
type ActionExecutor interface {
	Execute(ctx context.Context, config map[string]interface{}, instance *models.WorkflowInstance, snapshot models.FieldMap) error
}

// EventHandler is a function that handles a published event payload.
type EventHandler func(ctx context.Context, payload interface{}) error

// EventPublisher is the fire-and-forget boundary over which the engine emits
// lifecycle events for notification/audit consumers.
type EventPublisher interface {
	Subscribe(eventType events.EventType, handler EventHandler) func()
	Publish(ctx context.Context, eventType events.EventType, payload interface{}) error
	PublishAsync(eventType events.EventType, payload interface{})
}

// AssigneeResolver determines who must act at a step, applying active
// delegations after base resolution.
type AssigneeResolver interface {
	Resolve(ctx context.Context, spec *models.AssigneeSpec, entityType string, snapshot models.FieldMap, requestedBy string, now time.Time) (string, error)
}

// ConditionEvaluator evaluates auto-approval conditions against entity
// field values. Malformed or unmatched conditions are no-match, never errors.
type ConditionEvaluator interface {
	Matches(cond *models.Condition, snapshot models.FieldMap) bool
}

// TemplateFilter narrows template list queries.
type TemplateFilter struct {
	Search     string
	EntityType string
	ActiveOnly bool
}

// TemplateRepository persists versioned workflow templates.
type TemplateRepository interface {
	Insert(ctx context.Context, t *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, filter TemplateFilter) ([]*models.WorkflowTemplate, error)

	// Update rewrites a template row in place. Callers must first check
	// HasInstances: a version an instance references is never mutated.
	Update(ctx context.Context, t *models.WorkflowTemplate) error
	Deactivate(ctx context.Context, id string) error
	HasInstances(ctx context.Context, templateID string) (bool, error)
}

// InstanceFilter narrows instance list queries.
type InstanceFilter struct {
	Status      string
	EntityType  string
	RequestedBy string
	Limit       int
	Offset      int
}

// InstanceStats aggregates instance counts by status.
type InstanceStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
	Stalled   int `json:"stalled"`
}

// InstanceRepository persists workflow instances.
type InstanceRepository interface {
	Insert(ctx context.Context, inst *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	FindOpenByEntity(ctx context.Context, entityType, entityID string) (*models.WorkflowInstance, error)
	AdvanceStep(ctx context.Context, id string, stepIndex int) error
	SetStatus(ctx context.Context, id, status string) error
	Complete(ctx context.Context, id, status, completedBy string, completedAt time.Time) error
	List(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error)
	Stats(ctx context.Context) (*InstanceStats, error)
}

// ApprovalRepository persists the append-only approval log. Terminal
// transitions of a pending row are compare-and-set: they succeed for exactly
// one caller racing on the same row.
type ApprovalRepository interface {
	Insert(ctx context.Context, a *models.Approval) error
	GetByID(ctx context.Context, id string) (*models.Approval, error)

	// SealIfPending atomically moves a pending approval to a terminal status.
	// Returns false when the row was no longer pending.
	SealIfPending(ctx context.Context, id, newStatus, actionBy, comments string, actionAt time.Time) (bool, error)

	// Escalate atomically flips a pending row to escalated and appends the
	// successor entry in one transaction. Returns false (and skips the
	// insert) when the row was no longer pending.
	Escalate(ctx context.Context, id, escalatedTo string, actionAt time.Time, next *models.Approval) (bool, error)

	// PushBackDueAt re-arms an overdue approval without escalating it.
	PushBackDueAt(ctx context.Context, id string, dueAt time.Time) error

	ListByInstance(ctx context.Context, instanceID string) ([]*models.Approval, error)
	PendingByAssignee(ctx context.Context, userID string) ([]*models.Approval, error)
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Approval, error)
}

// DelegationRepository persists delegation windows. Created and expired by
// the admin flow; the engine only reads them during resolution.
type DelegationRepository interface {
	Insert(ctx context.Context, d *models.ApprovalDelegation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.ApprovalDelegation, error)
	ActiveForDelegator(ctx context.Context, delegatorID string, now time.Time) ([]*models.ApprovalDelegation, error)
	ActiveForDelegatee(ctx context.Context, delegateeID string, now time.Time) ([]*models.ApprovalDelegation, error)
}

// SnapshotRepository stores the entity field snapshot captured at start()
// so later step entries evaluate against a stable view.
type SnapshotRepository interface {
	Upsert(ctx context.Context, entityType, entityID string, fields models.FieldMap) error
	FieldsOf(ctx context.Context, entityType, entityID string) (models.FieldMap, error)
}

// UserRepository backs authentication and the default membership lookup.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	FirstActiveByRole(ctx context.Context, roleID string) (*models.User, error)
	FirstActiveByDepartment(ctx context.Context, departmentID string) (*models.User, error)
	Insert(ctx context.Context, u *models.User) error
	Count(ctx context.Context) (int, error)
}
