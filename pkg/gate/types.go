package gate

import (
	"fmt"
	"time"

	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/waiver"
)

// Severity of a violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Details carries the measured values behind a violation.
type Details struct {
	Expected    string   `json:"expected,omitempty"`
	Actual      string   `json:"actual,omitempty"`
	AffectedIDs []string `json:"affectedIds,omitempty"`
}

// Violation is a failed condition. It is waived only when every affected
// target has a waiver in force; WaiverID is the first of WaiverIDs.
type Violation struct {
	Condition        string            `json:"condition"`
	ConditionType    ConditionType     `json:"conditionType"`
	Severity         Severity          `json:"severity"`
	Message          string            `json:"message"`
	Details          *Details          `json:"details,omitempty"`
	SuggestedAction  string            `json:"suggestedAction,omitempty"`
	WaiverTargetType waiver.TargetType `json:"waiverTargetType"`
	WaiverTargetID   *string           `json:"waiverTargetId,omitempty"`
	HasWaiver        bool              `json:"hasWaiver"`
	WaiverID         string            `json:"waiverId,omitempty"`
	WaiverIDs        []string          `json:"waiverIds,omitempty"`
}

// Blocking reports whether the violation prevents approval.
func (v Violation) Blocking() bool {
	return v.Severity == SeverityCritical && !v.HasWaiver
}

// Result is the outcome of one gate evaluation.
type Result struct {
	ReleaseID   string      `json:"releaseId"`
	Conditions  []Condition `json:"conditions"`
	Violations  []Violation `json:"violations"`
	Passed      bool        `json:"passed"`
	EvaluatedAt time.Time   `json:"evaluatedAt"`
}

// BlockingViolations returns the violations that prevent approval.
func (r *Result) BlockingViolations() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// BlockedError reports an approval refused because of unwaived critical
// violations. It carries every violation of the evaluation.
type BlockedError struct {
	ReleaseID  string      `json:"releaseId"`
	Violations []Violation `json:"violations"`
}

func (e *BlockedError) Error() string {
	blocking := 0
	for _, v := range e.Violations {
		if v.Blocking() {
			blocking++
		}
	}
	return fmt.Sprintf("release %s is blocked by %d unwaived critical violation(s)", e.ReleaseID, blocking)
}

func (e *BlockedError) Is(target error) bool { return target == errdefs.ErrGateBlocked }
