package revision

import (
	"fmt"

	"github.com/qagate/qagate/pkg/errdefs"
)

var strictTransitions = map[Status][]Status{
	StatusDraft:      {StatusInReview, StatusDeprecated},
	StatusInReview:   {StatusApproved, StatusDeprecated, StatusDraft},
	StatusApproved:   {StatusDeprecated},
	StatusDeprecated: {},
}

var permissiveTransitions = map[Status][]Status{
	StatusDraft:      {StatusInReview, StatusDeprecated},
	StatusInReview:   {StatusApproved, StatusDeprecated, StatusDraft},
	StatusApproved:   {StatusDeprecated},
	StatusDeprecated: {StatusDraft},
}

// Machine validates revision status transitions against one table.
// It holds no mutable state and is safe for concurrent use.
type Machine struct {
	variant     Variant
	transitions map[Status][]Status
}

// NewMachine creates a machine enforcing the given variant's table.
func NewMachine(v Variant) *Machine {
	table := strictTransitions
	if v == Permissive {
		table = permissiveTransitions
	}
	return &Machine{variant: v, transitions: table}
}

// Variant returns the table variant the machine enforces.
func (m *Machine) Variant() Variant {
	return m.variant
}

// CanTransitionTo reports whether from -> to is in the table.
// A self-transition is never legal.
func (m *Machine) CanTransitionTo(from, to Status) bool {
	if from == to {
		return false
	}
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns nil if from -> to is allowed, a
// *errdefs.TransitionError otherwise.
func (m *Machine) ValidateTransition(from, to Status) error {
	if m.CanTransitionTo(from, to) {
		return nil
	}
	code := "REVISION_INVALID_TRANSITION"
	msg := fmt.Sprintf("no revision transition defined from %s to %s", from, to)
	if from == to {
		code = "REVISION_SELF_TRANSITION"
		msg = fmt.Sprintf("revision is already %s", from)
	}
	return &errdefs.TransitionError{
		Code:    code,
		Entity:  "revision",
		From:    string(from),
		To:      string(to),
		Message: msg,
	}
}

// AllowedTransitions returns the statuses reachable from the given status.
func (m *Machine) AllowedTransitions(from Status) []Status {
	out := make([]Status, len(m.transitions[from]))
	copy(out, m.transitions[from])
	return out
}

// CheckSubmit verifies a revision in status s may be submitted for review.
// A non-draft revision yields an immutable error; the table check guards
// against a table that ever drops draft -> in_review.
func (m *Machine) CheckSubmit(revisionID string, s Status) error {
	if !IsEditable(s) {
		return &errdefs.ImmutableError{RevisionID: revisionID, Status: string(s)}
	}
	return m.ValidateTransition(s, StatusInReview)
}

// CheckApprove verifies a revision in status s may be approved.
func (m *Machine) CheckApprove(revisionID string, s Status) error {
	if !IsApprovable(s) {
		return &errdefs.StatusError{
			Entity:   "revision",
			ID:       revisionID,
			Current:  string(s),
			Expected: []string{string(StatusInReview)},
			Op:       "approve",
		}
	}
	return m.ValidateTransition(s, StatusApproved)
}

// CheckNewRevision verifies a new revision may follow a latest revision in
// status latest. Only one revision per lineage may be in flight.
func CheckNewRevision(artifactID string, latest Status) error {
	if latest != StatusApproved {
		return &errdefs.StatusError{
			Entity:   "artifact",
			ID:       artifactID,
			Current:  string(latest),
			Expected: []string{string(StatusApproved)},
			Op:       "create revision",
		}
	}
	return nil
}
