package models

import (
	"time"
)

// WorkflowTemplate is the versioned definition of an ordered step sequence
// for one entity type. Templates referenced by live instances are never
// mutated in place; edits create a new version row and deactivate the old one.
type WorkflowTemplate struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	EntityType  string    `json:"entity_type"`
	Version     int       `json:"version"`
	IsActive    bool      `json:"is_active"`
	Steps       []Step    `json:"steps"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StepAt returns the step at the given index, or nil if out of range.
func (t *WorkflowTemplate) StepAt(index int) *Step {
	if index < 0 || index >= len(t.Steps) {
		return nil
	}
	return &t.Steps[index]
}

// Step is a template-level slot: kind, assignee specification, and optional
// auto-approve/escalation rules. Kind-specific required fields are validated
// at template-save time, not at run time.
type Step struct {
	Order          int                    `json:"order"`
	Name           string                 `json:"name"`
	Kind           string                 `json:"kind"` // approval, review, action, notification
	Assignee       *AssigneeSpec          `json:"assignee,omitempty"`
	AutoApprove    *Condition             `json:"auto_approve,omitempty"`
	Escalation     *EscalationPolicy      `json:"escalation,omitempty"`
	RequiredFields []string               `json:"required_fields,omitempty"`
	ActionConfig   map[string]interface{} `json:"action_config,omitempty"` // kind=action only
	NotifyTemplate string                 `json:"notify_template,omitempty"` // kind=notification only
}

// RequiresDecision reports whether a human decision gates this step.
func (s *Step) RequiresDecision() bool {
	return s.Kind == "approval" || s.Kind == "review"
}

// AssigneeSpec identifies who must act at a step. For user the ID is a user
// id; for role/department it is resolved through the membership lookup;
// requester_manager needs no ID.
type AssigneeSpec struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Condition is a single field/comparator/value triple evaluated against the
// entity snapshot.
type Condition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// EscalationPolicy describes when and to whom an unanswered approval is
// reassigned.
type EscalationPolicy struct {
	HoursUntilDue float64       `json:"hours_until_due"`
	EscalateTo    *AssigneeSpec `json:"escalate_to,omitempty"`
}

// WorkflowInstance is one in-flight (or completed) run of a template against
// one concrete business record. At most one open instance may exist per
// (entityType, entityID) pair.
type WorkflowInstance struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	TemplateID       string     `json:"template_id"`
	EntityType       string     `json:"entity_type"`
	EntityID         string     `json:"entity_id"`
	CurrentStepIndex int        `json:"current_step_index"`
	Status           string     `json:"status"` // pending, approved, rejected, cancelled, stalled
	Priority         string     `json:"priority"`
	RequestedBy      string     `json:"requested_by"`
	RequestedAt      time.Time  `json:"requested_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CompletedBy      *string    `json:"completed_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOpen reports whether the instance can still advance.
func (i *WorkflowInstance) IsOpen() bool {
	return i.Status == "pending" || i.Status == "stalled"
}

// Approval is the per-step execution record: who was asked, what they
// decided, when. Rows are append-only; escalation chains at the same step
// index are distinguished by EntryOrdinal.
type Approval struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	StepIndex    int        `json:"step_index"`
	EntryOrdinal int        `json:"entry_ordinal"`
	StepName     string     `json:"step_name"`
	AssignedTo   string     `json:"assigned_to"`
	Status       string     `json:"status"` // pending, approved, rejected, delegated, escalated, cancelled
	ActionBy     *string    `json:"action_by,omitempty"`
	ActionAt     *time.Time `json:"action_at,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	DelegatedTo  *string    `json:"delegated_to,omitempty"`
	EscalatedTo  *string    `json:"escalated_to,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ApprovalDelegation is a time-boxed override substituting one user for
// another during assignee resolution. The engine only reads these rows.
type ApprovalDelegation struct {
	ID          string    `json:"id"`
	DelegatorID string    `json:"delegator_id"`
	DelegateeID string    `json:"delegatee_id"`
	EntityTypes []string  `json:"entity_types,omitempty"` // empty = all entity types
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActiveAt reports whether the delegation window covers the given time and
// entity type scope.
func (d *ApprovalDelegation) ActiveAt(now time.Time, entityType string) bool {
	if now.Before(d.StartsAt) || now.After(d.EndsAt) {
		return false
	}
	if len(d.EntityTypes) == 0 {
		return true
	}
	for _, et := range d.EntityTypes {
		if et == entityType {
			return true
		}
	}
	return false
}

// FieldMap is a flat view of an entity's field values, as provided by the
// snapshot collaborator.
type FieldMap map[string]interface{}

// GetString returns a string field value or "" when absent or non-string.
func (m FieldMap) GetString(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Has reports whether the field is present and non-nil.
func (m FieldMap) Has(key string) bool {
	v, ok := m[key]
	return ok && v != nil
}
