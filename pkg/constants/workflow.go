package constants

// Template status constants
const (
	TemplateStatusActive   = "active"
	TemplateStatusInactive = "inactive"
)

// Step kind constants - the closed set of step types a template may declare
const (
	StepKindApproval     = "approval"
	StepKindReview       = "review"
	StepKindAction       = "action"
	StepKindNotification = "notification"
)

// Assignee type constants
const (
	AssigneeTypeUser             = "user"
	AssigneeTypeRole             = "role"
	AssigneeTypeDepartment       = "department"
	AssigneeTypeRequesterManager = "requester_manager"
)

// Instance status constants
const (
	InstanceStatusPending   = "pending"
	InstanceStatusApproved  = "approved"
	InstanceStatusRejected  = "rejected"
	InstanceStatusCancelled = "cancelled"
	InstanceStatusStalled   = "stalled"
)

// Approval status constants
const (
	ApprovalStatusPending   = "pending"
	ApprovalStatusApproved  = "approved"
	ApprovalStatusRejected  = "rejected"
	ApprovalStatusDelegated = "delegated"
	ApprovalStatusEscalated = "escalated"
	ApprovalStatusCancelled = "cancelled"
)

// Decision constants for Act()
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Priority constants, ordered urgent > high > normal > low in pending queues
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Condition comparator constants - the closed set the evaluator understands
const (
	ComparatorEq = "eq"
	ComparatorNe = "ne"
	ComparatorGt = "gt"
	ComparatorLt = "lt"
	ComparatorGe = "ge"
	ComparatorLe = "le"
	ComparatorIn = "in"
)

// SystemUserID identifies the engine itself as the actor on synthesized
// approvals (auto-approve) and scheduler-driven transitions.
const SystemUserID = "00000000-0000-0000-0000-000000000000"

// Escalation sweep settings
const (
	SweepDefaultIntervalSecs = 60   // Seconds between escalation sweeps
	SweepBatchSize           = 200  // Max overdue approvals processed per sweep
	ResolverTimeoutSecs      = 5    // Timeout for external membership lookups
	DefaultEscalationHours   = 24.0 // Fallback hours-until-due when escalation re-arms
)
