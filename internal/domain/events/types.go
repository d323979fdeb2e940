package events

// EventType defines the type of event in the system
type EventType string

const (
	// Instance lifecycle events
	InstanceStarted   EventType = "instance.started"
	InstanceApproved  EventType = "instance.approved"
	InstanceRejected  EventType = "instance.rejected"
	InstanceCancelled EventType = "instance.cancelled"
	InstanceStalled   EventType = "instance.stalled"

	// Approval events
	ApprovalRequested EventType = "approval.requested"
	ApprovalEscalated EventType = "approval.escalated"

	// Step events
	StepNotification EventType = "step.notification"
	StepFlagged      EventType = "step.flagged"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// All returns every lifecycle event type external sinks may subscribe to.
func All() []EventType {
	return []EventType{
		InstanceStarted,
		InstanceApproved,
		InstanceRejected,
		InstanceCancelled,
		InstanceStalled,
		ApprovalRequested,
		ApprovalEscalated,
		StepNotification,
		StepFlagged,
	}
}
