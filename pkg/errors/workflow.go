package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Workflow-specific error types. These cover the failure modes of the
// approval engine itself; generic CRUD failures use the types in errors.go.

// TemplateNotFoundError indicates the requested workflow template does not
// exist or is not active.
type TemplateNotFoundError struct {
	TemplateID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("workflow template '%s' not found or inactive", e.TemplateID)
}

func (e *TemplateNotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *TemplateNotFoundError) Code() string    { return "TEMPLATE_NOT_FOUND" }

// NewTemplateNotFoundError creates a new TemplateNotFoundError
func NewTemplateNotFoundError(templateID string) *TemplateNotFoundError {
	return &TemplateNotFoundError{TemplateID: templateID}
}

// DuplicateOpenInstanceError indicates an open instance already exists for
// the (entityType, entityId) pair. At most one open instance is allowed.
type DuplicateOpenInstanceError struct {
	EntityType string
	EntityID   string
}

func (e *DuplicateOpenInstanceError) Error() string {
	return fmt.Sprintf("an open workflow instance already exists for %s/%s", e.EntityType, e.EntityID)
}

func (e *DuplicateOpenInstanceError) HTTPStatus() int { return http.StatusConflict }
func (e *DuplicateOpenInstanceError) Code() string    { return "DUPLICATE_OPEN_INSTANCE" }

// NewDuplicateOpenInstanceError creates a new DuplicateOpenInstanceError
func NewDuplicateOpenInstanceError(entityType, entityID string) *DuplicateOpenInstanceError {
	return &DuplicateOpenInstanceError{EntityType: entityType, EntityID: entityID}
}

// MissingRequiredFieldsError indicates the entity snapshot lacks fields a
// step declares as required before entry.
type MissingRequiredFieldsError struct {
	StepIndex int
	Fields    []string
}

func (e *MissingRequiredFieldsError) Error() string {
	return fmt.Sprintf("step %d requires missing entity fields: %s", e.StepIndex, strings.Join(e.Fields, ", "))
}

func (e *MissingRequiredFieldsError) HTTPStatus() int { return http.StatusBadRequest }
func (e *MissingRequiredFieldsError) Code() string    { return "MISSING_REQUIRED_FIELDS" }

// NewMissingRequiredFieldsError creates a new MissingRequiredFieldsError
func NewMissingRequiredFieldsError(stepIndex int, fields []string) *MissingRequiredFieldsError {
	return &MissingRequiredFieldsError{StepIndex: stepIndex, Fields: fields}
}

// NotAuthorizedError indicates the acting user is neither the assignee nor
// the assignee's current delegatee for a pending approval.
type NotAuthorizedError struct {
	ApprovalID string
	UserID     string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("user '%s' is not authorized to act on approval '%s'", e.UserID, e.ApprovalID)
}

func (e *NotAuthorizedError) HTTPStatus() int { return http.StatusForbidden }
func (e *NotAuthorizedError) Code() string    { return "NOT_AUTHORIZED" }

// NewNotAuthorizedError creates a new NotAuthorizedError
func NewNotAuthorizedError(approvalID, userID string) *NotAuthorizedError {
	return &NotAuthorizedError{ApprovalID: approvalID, UserID: userID}
}

// AlreadyDecidedError indicates the approval was already sealed by another
// actor (a human decision, an escalation sweep, or a cancel). Safe to retry:
// callers racing on the same row should treat this as a benign no-op.
type AlreadyDecidedError struct {
	ApprovalID string
	Status     string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval '%s' is no longer pending (status: %s)", e.ApprovalID, e.Status)
}

func (e *AlreadyDecidedError) HTTPStatus() int { return http.StatusConflict }
func (e *AlreadyDecidedError) Code() string    { return "ALREADY_DECIDED" }

// NewAlreadyDecidedError creates a new AlreadyDecidedError
func NewAlreadyDecidedError(approvalID, status string) *AlreadyDecidedError {
	return &AlreadyDecidedError{ApprovalID: approvalID, Status: status}
}

// UnresolvableAssigneeError indicates assignee resolution found no acting
// individual for a step. The engine marks the instance stalled rather than
// dropping it.
type UnresolvableAssigneeError struct {
	AssigneeType string
	AssigneeID   string
	Reason       string
}

func (e *UnresolvableAssigneeError) Error() string {
	msg := fmt.Sprintf("cannot resolve assignee %s/%s", e.AssigneeType, e.AssigneeID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnresolvableAssigneeError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *UnresolvableAssigneeError) Code() string    { return "UNRESOLVABLE_ASSIGNEE" }

// NewUnresolvableAssigneeError creates a new UnresolvableAssigneeError
func NewUnresolvableAssigneeError(assigneeType, assigneeID, reason string) *UnresolvableAssigneeError {
	return &UnresolvableAssigneeError{AssigneeType: assigneeType, AssigneeID: assigneeID, Reason: reason}
}

// InvalidConditionError indicates a malformed auto-approve condition. At run
// time conditions never raise (a malformed rule is simply no-match); this
// error is returned by template-save validation only.
type InvalidConditionError struct {
	StepIndex int
	Message   string
}

func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("step %d has an invalid condition: %s", e.StepIndex, e.Message)
}

func (e *InvalidConditionError) HTTPStatus() int { return http.StatusBadRequest }
func (e *InvalidConditionError) Code() string    { return "INVALID_CONDITION" }

// NewInvalidConditionError creates a new InvalidConditionError
func NewInvalidConditionError(stepIndex int, message string) *InvalidConditionError {
	return &InvalidConditionError{StepIndex: stepIndex, Message: message}
}

// Helper functions for error checking

// IsAlreadyDecided checks if an error is an AlreadyDecidedError
func IsAlreadyDecided(err error) bool {
	var decided *AlreadyDecidedError
	return errors.As(err, &decided)
}

// IsUnresolvableAssignee checks if an error is an UnresolvableAssigneeError
func IsUnresolvableAssignee(err error) bool {
	var unresolvable *UnresolvableAssigneeError
	return errors.As(err, &unresolvable)
}

// IsNotAuthorized checks if an error is a NotAuthorizedError
func IsNotAuthorized(err error) bool {
	var notAuth *NotAuthorizedError
	return errors.As(err, &notAuth)
}

// IsDuplicateOpenInstance checks if an error is a DuplicateOpenInstanceError
func IsDuplicateOpenInstance(err error) bool {
	var dup *DuplicateOpenInstanceError
	return errors.As(err, &dup)
}
