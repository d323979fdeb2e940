package constants

// Table names - every persisted collection the engine owns.
const (
	TableTemplate     = "workflow_templates"
	TableInstance     = "workflow_instances"
	TableApproval     = "workflow_approvals"
	TableDelegation   = "approval_delegations"
	TableUser         = "users"
	TableSnapshot     = "entity_snapshots"
	TableNotification = "notifications"
)

// Code prefixes for human-readable identifiers
const (
	CodePrefixTemplate = "WFT"
	CodePrefixInstance = "WF"
)
