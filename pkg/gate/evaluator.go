package gate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/metrics"
	"github.com/qagate/qagate/pkg/waiver"
)

// Release statuses the gate accepts.
const (
	releaseExecuting = "executing"
	releaseGateCheck = "gate_check"
)

// WaiverFinder looks up waivers in force for a violation target.
type WaiverFinder interface {
	FindValidForTarget(ctx context.Context, releaseID string, targetType waiver.TargetType, targetID *string) (*waiver.Waiver, error)
}

// Evaluator runs gate conditions against a release.
type Evaluator struct {
	releases   Releases
	agg        *Aggregator
	waivers    WaiverFinder
	conditions []Condition
	audit      audit.Sink
	logger     *slog.Logger

	// Clock returns the current time. Defaults to UTC wall time.
	Clock func() time.Time
}

// NewEvaluator creates an Evaluator. conditions are used when a caller does
// not supply any; nil means DefaultConditions. sink and logger may be nil.
func NewEvaluator(releases Releases, agg *Aggregator, waivers WaiverFinder, conditions []Condition, sink audit.Sink, logger *slog.Logger) *Evaluator {
	if len(conditions) == 0 {
		conditions = DefaultConditions()
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		releases:   releases,
		agg:        agg,
		waivers:    waivers,
		conditions: conditions,
		audit:      sink,
		logger:     logger,
		Clock:      func() time.Time { return time.Now().UTC() },
	}
}

// Conditions returns the conditions used when a caller supplies none.
func (e *Evaluator) Conditions() []Condition {
	out := make([]Condition, len(e.conditions))
	copy(out, e.conditions)
	return out
}

// Evaluate checks conditions (or the configured defaults when empty) against
// the release. The release must be executing or in gate check; an executing
// release moves into gate check once every condition has been evaluated.
func (e *Evaluator) Evaluate(ctx context.Context, releaseID string, conditions []Condition) (*Result, error) {
	start := time.Now()
	if len(conditions) == 0 {
		conditions = e.conditions
	}
	if err := ValidateConditions(conditions); err != nil {
		return nil, err
	}

	view, err := e.releases.GateView(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if view.Status != releaseExecuting && view.Status != releaseGateCheck {
		return nil, &errdefs.StatusError{
			Entity:   "release",
			ID:       view.ID,
			Current:  view.Status,
			Expected: []string{releaseExecuting, releaseGateCheck},
			Op:       "evaluate gate",
		}
	}

	res := &Result{
		ReleaseID:  releaseID,
		Conditions: conditions,
		Violations: []Violation{},
	}
	var targets [][]waiverTarget
	for _, c := range conditions {
		v, t, err := e.check(ctx, view, c)
		if err != nil {
			return nil, fmt.Errorf("evaluate condition %q: %w", c.Name, err)
		}
		if v != nil {
			res.Violations = append(res.Violations, *v)
			targets = append(targets, t)
		}
	}

	for i := range res.Violations {
		if err := e.attachWaiver(ctx, releaseID, &res.Violations[i], targets[i]); err != nil {
			return nil, err
		}
	}

	if err := e.releases.EnterGateCheck(ctx, releaseID); err != nil {
		return nil, err
	}

	res.Passed = passed(res.Violations)
	res.EvaluatedAt = e.Clock()

	e.observe(res, time.Since(start))
	e.logger.Info("gate evaluated",
		"releaseId", releaseID,
		"passed", res.Passed,
		"violations", len(res.Violations),
		"blocking", len(res.BlockingViolations()))
	outcome := audit.OutcomeSuccess
	if !res.Passed {
		outcome = audit.OutcomeBlocked
	}
	e.audit.Record(ctx, audit.Event{
		EventType:  audit.EventGateEvaluated,
		Actor:      "system",
		ObjectType: "release",
		ObjectID:   releaseID,
		Outcome:    outcome,
		NewValue:   audit.Value(res),
	})
	return res, nil
}

// passed is true iff no critical violation lacks a waiver.
func passed(violations []Violation) bool {
	for _, v := range violations {
		if v.Blocking() {
			return false
		}
	}
	return true
}

func severityFor(c Condition) Severity {
	switch {
	case c.Required:
		return SeverityCritical
	case c.Type == NoUnapprovedChanges:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// waiverTarget is one thing a waiver must cover for a violation to count as
// waived. exact targets never fall back to a type-wide waiver.
type waiverTarget struct {
	typ   waiver.TargetType
	id    *string
	exact bool
}

func targetsFor(typ waiver.TargetType, ids []string, exact bool) []waiverTarget {
	out := make([]waiverTarget, 0, len(ids))
	for _, id := range ids {
		id := id
		out = append(out, waiverTarget{typ: typ, id: &id, exact: exact})
	}
	return out
}

func testTargetType(f FailingItem) waiver.TargetType {
	if f.Unexecuted {
		return waiver.TargetUnexecutedTest
	}
	return waiver.TargetFailResult
}

// check evaluates one condition and returns its violation together with the
// targets a waiver has to cover, or nil.
func (e *Evaluator) check(ctx context.Context, view *ReleaseView, c Condition) (*Violation, []waiverTarget, error) {
	v := &Violation{
		Condition:     c.Name,
		ConditionType: c.Type,
		Severity:      severityFor(c),
	}
	var targets []waiverTarget

	switch c.Type {
	case MinimumCoverage:
		sig, err := e.agg.coverage(ctx, view)
		if err != nil {
			return nil, nil, err
		}
		threshold := c.threshold()
		if sig.Percent >= threshold {
			return nil, nil, nil
		}
		v.Message = fmt.Sprintf("requirement coverage %s%% is below the %s%% threshold", formatPercent(sig.Percent), formatPercent(threshold))
		v.Details = &Details{Expected: formatPercent(threshold), Actual: formatPercent(sig.Percent)}
		v.SuggestedAction = "Map uncovered requirements to test cases in a baselined list, or lower the threshold."
		v.WaiverTargetType = waiver.TargetOther
		targets = []waiverTarget{{typ: waiver.TargetOther}}

	case AllTestsPass:
		sig, err := e.agg.AllTestsPass(ctx, view.ID)
		if err != nil {
			return nil, nil, err
		}
		if sig.Passed {
			return nil, nil, nil
		}
		ids := make([]string, 0, len(sig.Failing))
		unexecuted := 0
		for _, f := range sig.Failing {
			f := f
			ids = append(ids, f.ItemID)
			targets = append(targets, waiverTarget{typ: testTargetType(f), id: &f.ItemID})
			if f.Unexecuted {
				unexecuted++
			}
		}
		first := sig.Failing[0]
		v.Details = &Details{Expected: "pass", AffectedIDs: ids}
		v.WaiverTargetType = testTargetType(first)
		v.WaiverTargetID = single(ids)
		switch {
		case len(ids) > 1:
			v.Message = fmt.Sprintf("%d run items are not passing", len(ids))
			v.Details.Actual = fmt.Sprintf("%d failed, %d unexecuted", len(ids)-unexecuted, unexecuted)
			v.SuggestedAction = "Fix and re-run the failing tests, or waive each of them."
		case first.Unexecuted:
			v.Message = fmt.Sprintf("run item %s has not been executed", first.ItemID)
			v.Details.Actual = "unexecuted"
			v.SuggestedAction = "Execute the test and record a result."
		default:
			v.Message = fmt.Sprintf("run item %s latest result is %s", first.ItemID, first.Outcome)
			v.Details.Actual = string(first.Outcome)
			v.SuggestedAction = "Fix the failure and re-run the test, or waive the result."
		}

	case NoCriticalBugs:
		sig, err := e.agg.NoCriticalBugs(ctx, view.ID)
		if err != nil {
			return nil, nil, err
		}
		if sig.Passed {
			return nil, nil, nil
		}
		v.Message = fmt.Sprintf("%d critical or high severity bug(s) linked: %s", len(sig.BugIDs), strings.Join(sig.ExternalIDs, ", "))
		v.Details = &Details{Expected: "0", Actual: strconv.Itoa(len(sig.BugIDs)), AffectedIDs: sig.BugIDs}
		v.SuggestedAction = "Resolve or downgrade the linked bugs, or waive each bug link."
		v.WaiverTargetType = waiver.TargetOther
		v.WaiverTargetID = single(sig.BugIDs)
		targets = targetsFor(waiver.TargetOther, sig.BugIDs, true)

	case AllApprovalsComplete:
		sig, err := e.agg.approvals(ctx, view)
		if err != nil {
			return nil, nil, err
		}
		if sig.Passed {
			return nil, nil, nil
		}
		v.Message = fmt.Sprintf("%d baselined list revision(s) are not approved", len(sig.UnapprovedRevisionIDs))
		v.Details = &Details{Expected: "approved", Actual: "unapproved", AffectedIDs: sig.UnapprovedRevisionIDs}
		v.SuggestedAction = "Review and approve the baselined test-scenario-list revisions."
		v.WaiverTargetType = waiver.TargetUnapprovedRevision
		v.WaiverTargetID = single(sig.UnapprovedRevisionIDs)
		targets = targetsFor(waiver.TargetUnapprovedRevision, sig.UnapprovedRevisionIDs, false)

	case NoUnapprovedChanges:
		sig, err := e.agg.NoUnapprovedChanges(ctx, view.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		if sig.Passed {
			return nil, nil, nil
		}
		v.Message = fmt.Sprintf("%d revision(s) in project %s are in review or deprecated", sig.Count, view.ProjectID)
		v.Details = &Details{Expected: "0", Actual: strconv.Itoa(sig.Count), AffectedIDs: sig.RevisionIDs}
		v.SuggestedAction = "Finish pending reviews before releasing."
		v.WaiverTargetType = waiver.TargetUnapprovedRevision
		v.WaiverTargetID = single(sig.RevisionIDs)
		targets = targetsFor(waiver.TargetUnapprovedRevision, sig.RevisionIDs, false)

	default:
		return nil, nil, fmt.Errorf("unknown condition type %q", c.Type)
	}
	return v, targets, nil
}

// attachWaiver marks the violation waived when every target has a waiver in
// force. A violation without targets is never waived.
func (e *Evaluator) attachWaiver(ctx context.Context, releaseID string, v *Violation, targets []waiverTarget) error {
	if len(targets) == 0 {
		return nil
	}
	var ids []string
	for _, t := range targets {
		w, err := e.findWaiver(ctx, releaseID, t)
		if err != nil {
			return err
		}
		if w == nil {
			return nil
		}
		if !slices.Contains(ids, w.ID) {
			ids = append(ids, w.ID)
		}
	}
	v.HasWaiver, v.WaiverID, v.WaiverIDs = true, ids[0], ids
	return nil
}

// findWaiver tries the target's own id first, then a waiver on its type
// without an id.
func (e *Evaluator) findWaiver(ctx context.Context, releaseID string, t waiverTarget) (*waiver.Waiver, error) {
	if t.id != nil {
		w, err := e.waivers.FindValidForTarget(ctx, releaseID, t.typ, t.id)
		if err != nil {
			return nil, fmt.Errorf("find waiver: %w", err)
		}
		if w != nil || t.exact {
			return w, nil
		}
	}
	w, err := e.waivers.FindValidForTarget(ctx, releaseID, t.typ, nil)
	if err != nil {
		return nil, fmt.Errorf("find waiver: %w", err)
	}
	return w, nil
}

func (e *Evaluator) observe(res *Result, elapsed time.Duration) {
	outcome := "passed"
	if !res.Passed {
		outcome = "blocked"
	}
	metrics.GateEvaluations.WithLabelValues(outcome).Inc()
	metrics.GateEvaluationDuration.Observe(elapsed.Seconds())
	for _, v := range res.Violations {
		metrics.GateViolations.WithLabelValues(string(v.ConditionType), string(v.Severity)).Inc()
		if v.HasWaiver {
			metrics.GateWaivedViolations.WithLabelValues(string(v.ConditionType)).Inc()
		}
	}
}

func single(ids []string) *string {
	if len(ids) != 1 {
		return nil
	}
	id := ids[0]
	return &id
}

// formatPercent renders v rounded to two decimals without trailing zeros.
func formatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
