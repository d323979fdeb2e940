package domain

import (
	"fmt"
)

// InstanceState represents the current state of a workflow instance
type InstanceState string

const (
	// InstanceStatePending indicates the instance is awaiting a decision at its current step
	InstanceStatePending InstanceState = "pending"
	// InstanceStateStalled indicates the current step could not resolve an assignee
	InstanceStateStalled InstanceState = "stalled"
	// InstanceStateApproved indicates every step was approved
	InstanceStateApproved InstanceState = "approved"
	// InstanceStateRejected indicates a step was rejected; rejection is always terminal
	InstanceStateRejected InstanceState = "rejected"
	// InstanceStateCancelled indicates an external cancel sealed the instance
	InstanceStateCancelled InstanceState = "cancelled"
)

// InstanceTransition represents an action that can change instance state
type InstanceTransition string

const (
	// TransitionApprove completes the final step successfully
	TransitionApprove InstanceTransition = "approve"
	// TransitionReject terminates the instance at the current step
	TransitionReject InstanceTransition = "reject"
	// TransitionCancel seals the instance regardless of current step
	TransitionCancel InstanceTransition = "cancel"
	// TransitionStall parks the instance for operator intervention
	TransitionStall InstanceTransition = "stall"
	// TransitionResume returns a stalled instance to pending after the step is retried
	TransitionResume InstanceTransition = "resume"
)

// InstanceStateMachine enforces valid state transitions for workflow instances.
// Invalid transitions return an error (fail-fast approach).
type InstanceStateMachine struct {
	// transitions maps (current state, transition) -> next state
	transitions map[stateTransitionKey]InstanceState
}

type stateTransitionKey struct {
	state      InstanceState
	transition InstanceTransition
}

// NewInstanceStateMachine creates a new state machine with the instance lifecycle rules.
// State diagram:
//
//	     [Pending] ◄──Resume──┐
//	    /    │    \           │
//	Approve  │   Stall        │
//	   /   Reject   \         │
//	  ▼      ▼       ▼        │
//	[Approved] [Rejected] [Stalled]
//
//	Pending and Stalled can transition to [Cancelled] via Cancel
func NewInstanceStateMachine() *InstanceStateMachine {
	sm := &InstanceStateMachine{
		transitions: make(map[stateTransitionKey]InstanceState),
	}

	// Define valid transitions
	sm.addTransition(InstanceStatePending, TransitionApprove, InstanceStateApproved)
	sm.addTransition(InstanceStatePending, TransitionReject, InstanceStateRejected)
	sm.addTransition(InstanceStatePending, TransitionCancel, InstanceStateCancelled)
	sm.addTransition(InstanceStatePending, TransitionStall, InstanceStateStalled)
	sm.addTransition(InstanceStateStalled, TransitionResume, InstanceStatePending)
	sm.addTransition(InstanceStateStalled, TransitionCancel, InstanceStateCancelled)

	return sm
}

func (sm *InstanceStateMachine) addTransition(from InstanceState, via InstanceTransition, to InstanceState) {
	key := stateTransitionKey{state: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current state using the given action.
// Returns the new state or an error if the transition is invalid.
func (sm *InstanceStateMachine) Transition(current InstanceState, action InstanceTransition) (InstanceState, error) {
	key := stateTransitionKey{state: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *InstanceStateMachine) CanTransition(current InstanceState, action InstanceTransition) bool {
	key := stateTransitionKey{state: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}

// IsTerminal returns true if the state is a terminal state (no further transitions).
func (sm *InstanceStateMachine) IsTerminal(state InstanceState) bool {
	return state == InstanceStateApproved || state == InstanceStateRejected || state == InstanceStateCancelled
}
