package release

import (
	"fmt"

	"github.com/qagate/qagate/pkg/errdefs"
)

// TransitionRule defines an allowed release transition.
type TransitionRule struct {
	From Status
	To   Status
	// RequiresGate marks a transition that only Approve may perform, after
	// the gate has passed.
	RequiresGate bool
}

// DefaultTransitions defines the release lifecycle.
var DefaultTransitions = []TransitionRule{
	{From: StatusPlanning, To: StatusExecuting},
	{From: StatusPlanning, To: StatusReleased},
	{From: StatusExecuting, To: StatusGateCheck},
	{From: StatusExecuting, To: StatusPlanning},
	{From: StatusGateCheck, To: StatusApprovedForRelease, RequiresGate: true},
	{From: StatusGateCheck, To: StatusExecuting},
	{From: StatusApprovedForRelease, To: StatusReleased},
	{From: StatusApprovedForRelease, To: StatusGateCheck},
}

// LifecycleMachine validates release status transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
}

// NewLifecycleMachine creates a machine with the default rules.
func NewLifecycleMachine() *LifecycleMachine {
	return &LifecycleMachine{transitions: DefaultTransitions}
}

func (m *LifecycleMachine) rule(from, to Status) (TransitionRule, bool) {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return TransitionRule{}, false
}

// CanTransitionTo reports whether from -> to is in the table.
func (m *LifecycleMachine) CanTransitionTo(from, to Status) bool {
	_, ok := m.rule(from, to)
	return ok
}

// ValidateTransition returns nil if from -> to is in the table.
func (m *LifecycleMachine) ValidateTransition(from, to Status) error {
	if m.CanTransitionTo(from, to) {
		return nil
	}
	return &errdefs.TransitionError{
		Code:    "RELEASE_INVALID_TRANSITION",
		Entity:  "release",
		From:    string(from),
		To:      string(to),
		Message: fmt.Sprintf("no release transition defined from %s to %s", from, to),
	}
}

// ValidateManualTransition is ValidateTransition for callers other than
// Approve: gated transitions are refused.
func (m *LifecycleMachine) ValidateManualTransition(from, to Status) error {
	if err := m.ValidateTransition(from, to); err != nil {
		return err
	}
	if r, _ := m.rule(from, to); r.RequiresGate {
		return &errdefs.TransitionError{
			Code:    "RELEASE_TRANSITION_REQUIRES_APPROVAL",
			Entity:  "release",
			From:    string(from),
			To:      string(to),
			Message: fmt.Sprintf("transition from %s to %s requires gate approval", from, to),
		}
	}
	return nil
}

// AllowedTransitions returns all valid target statuses from the given status.
func (m *LifecycleMachine) AllowedTransitions(from Status) []Status {
	var allowed []Status
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// AcceptsBaselines reports whether baselines may be added in status s.
func AcceptsBaselines(s Status) bool {
	return s == StatusPlanning || s == StatusExecuting
}
