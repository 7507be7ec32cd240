// Package revision holds the status model shared by every versioned QA
// artifact (test cases, test scenarios and test-scenario lists) and the
// machine that decides which status changes are legal.
package revision

import (
	"fmt"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Status is the lifecycle status of a single revision.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInReview   Status = "in_review"
	StatusApproved   Status = "approved"
	StatusDeprecated Status = "deprecated"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusDraft, StatusInReview, StatusApproved, StatusDeprecated}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusApproved, StatusDeprecated:
		return true
	}
	return false
}

// IsFinal reports whether the status counts as settled for reporting.
// Deprecated is final here even though the permissive table can reopen it.
func (s Status) IsFinal() bool {
	return s == StatusApproved || s == StatusDeprecated
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errdefs.Invalid("status", "unknown revision status %q", s)
	}
	return st, nil
}

// IsEditable reports whether revision content may still change.
func IsEditable(s Status) bool {
	return s == StatusDraft
}

// IsApprovable reports whether a revision may be approved.
func IsApprovable(s Status) bool {
	return s == StatusInReview
}

// Variant selects which transition table a Machine enforces.
type Variant string

const (
	// Strict never leaves deprecated.
	Strict Variant = "strict"
	// Permissive additionally allows deprecated -> draft to restart a lineage.
	Permissive Variant = "permissive"
)

// ParseVariant converts a configuration value into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Strict, Permissive:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown revision transition variant %q (expected strict or permissive)", s)
}
