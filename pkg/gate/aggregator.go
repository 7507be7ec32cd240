package gate

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/results"
	"github.com/qagate/qagate/pkg/revision"
)

// ReleaseView is what the gate needs to know about a release.
type ReleaseView struct {
	ID              string
	ProjectID       string
	Status          string
	ListRevisionIDs []string
}

// Releases exposes releases to the gate.
type Releases interface {
	GateView(ctx context.Context, releaseID string) (*ReleaseView, error)
	// EnterGateCheck moves an executing release into gate check and accepts
	// one already there. Any other status yields a StatusError.
	EnterGateCheck(ctx context.Context, releaseID string) error
}

// ArtifactGraph reads revision references and statuses.
type ArtifactGraph interface {
	References(ctx context.Context, parentIDs []string) ([]artifact.Reference, error)
	RevisionsWithKind(ctx context.Context, ids []string) ([]artifact.RevisionWithKind, error)
	ListByStatus(ctx context.Context, projectID string, statuses []revision.Status) ([]artifact.RevisionWithKind, error)
}

// ResultReader answers release-scoped result queries.
type ResultReader interface {
	RunItemsForRelease(ctx context.Context, releaseID string) ([]results.RunItem, error)
	LatestResults(ctx context.Context, releaseID string) (map[string]results.TestResult, error)
	BlockingBugs(ctx context.Context, releaseID string) ([]results.BugLink, error)
}

// RequirementReader answers requirement coverage queries.
type RequirementReader interface {
	CountForProject(ctx context.Context, projectID string) (int64, error)
	CoveredRequirementIDs(ctx context.Context, projectID string, caseRevisionIDs []string) ([]string, error)
}

// CoverageSignal is the requirement coverage of a release.
type CoverageSignal struct {
	Percent         float64  `json:"percent"`
	Covered         int      `json:"covered"`
	Total           int      `json:"total"`
	CaseRevisionIDs []string `json:"caseRevisionIds"`
}

// TestsSignal reports whether every run item's latest result passed. The
// Failing* fields describe the first failing item; Failing lists all of them.
type TestsSignal struct {
	Passed                bool            `json:"passed"`
	Items                 int             `json:"items"`
	FailingItemID         string          `json:"failingItemId,omitempty"`
	FailingCaseRevisionID string          `json:"failingCaseRevisionId,omitempty"`
	Unexecuted            bool            `json:"unexecuted,omitempty"`
	Outcome               results.Outcome `json:"outcome,omitempty"`
	Failing               []FailingItem   `json:"failing,omitempty"`
}

// FailingItem is a run item whose latest result is not a pass.
type FailingItem struct {
	ItemID         string          `json:"itemId"`
	CaseRevisionID string          `json:"caseRevisionId"`
	Unexecuted     bool            `json:"unexecuted,omitempty"`
	Outcome        results.Outcome `json:"outcome,omitempty"`
}

// BugsSignal reports blocking bug links under a release.
type BugsSignal struct {
	Passed      bool     `json:"passed"`
	BugIDs      []string `json:"bugIds,omitempty"`
	ExternalIDs []string `json:"externalIds,omitempty"`
}

// ApprovalsSignal reports baseline list revisions that are not approved.
type ApprovalsSignal struct {
	Passed                bool     `json:"passed"`
	UnapprovedRevisionIDs []string `json:"unapprovedRevisionIds,omitempty"`
}

// ChangesSignal reports in-review or deprecated revisions in a project.
type ChangesSignal struct {
	Passed      bool     `json:"passed"`
	Count       int      `json:"count"`
	RevisionIDs []string `json:"revisionIds,omitempty"`
}

// unsettledStatuses are the revision statuses counted as unapproved changes.
var unsettledStatuses = []revision.Status{revision.StatusInReview, revision.StatusDeprecated}

// Aggregator computes the individual release signals. Every method is
// read-only.
type Aggregator struct {
	releases     Releases
	artifacts    ArtifactGraph
	results      ResultReader
	requirements RequirementReader
}

// NewAggregator creates an Aggregator.
func NewAggregator(releases Releases, artifacts ArtifactGraph, results ResultReader, requirements RequirementReader) *Aggregator {
	return &Aggregator{
		releases:     releases,
		artifacts:    artifacts,
		results:      results,
		requirements: requirements,
	}
}

// Coverage returns the share of project requirements covered by case
// revisions reachable from the release's baselines. A project without
// requirements is fully covered.
func (a *Aggregator) Coverage(ctx context.Context, releaseID string) (*CoverageSignal, error) {
	view, err := a.releases.GateView(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	return a.coverage(ctx, view)
}

func (a *Aggregator) coverage(ctx context.Context, view *ReleaseView) (*CoverageSignal, error) {
	cases, err := a.caseRevisionsInScope(ctx, view.ListRevisionIDs)
	if err != nil {
		return nil, err
	}
	total, err := a.requirements.CountForProject(ctx, view.ProjectID)
	if err != nil {
		return nil, err
	}
	sig := &CoverageSignal{Total: int(total), CaseRevisionIDs: cases.ToSlice()}
	if total == 0 {
		sig.Percent = 100
		return sig, nil
	}

	covered, err := a.requirements.CoveredRequirementIDs(ctx, view.ProjectID, sig.CaseRevisionIDs)
	if err != nil {
		return nil, err
	}
	sig.Covered = mapset.NewThreadUnsafeSet(covered...).Cardinality()
	sig.Percent = float64(sig.Covered) / float64(total) * 100
	return sig, nil
}

// caseRevisionsInScope walks list -> scenario -> case references.
func (a *Aggregator) caseRevisionsInScope(ctx context.Context, listIDs []string) (mapset.Set[string], error) {
	cases := mapset.NewThreadUnsafeSet[string]()
	if len(listIDs) == 0 {
		return cases, nil
	}
	listRefs, err := a.artifacts.References(ctx, mapset.NewThreadUnsafeSet(listIDs...).ToSlice())
	if err != nil {
		return nil, err
	}
	scenarios := mapset.NewThreadUnsafeSet[string]()
	for _, r := range listRefs {
		scenarios.Add(r.ChildRevisionID)
	}
	if scenarios.IsEmpty() {
		return cases, nil
	}
	scenarioRefs, err := a.artifacts.References(ctx, scenarios.ToSlice())
	if err != nil {
		return nil, err
	}
	for _, r := range scenarioRefs {
		cases.Add(r.ChildRevisionID)
	}
	return cases, nil
}

// AllTestsPass checks that every run item under the release has a latest
// result of pass. An item without results fails as unexecuted. Failing items
// are reported in execution order.
func (a *Aggregator) AllTestsPass(ctx context.Context, releaseID string) (*TestsSignal, error) {
	items, err := a.results.RunItemsForRelease(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	latest, err := a.results.LatestResults(ctx, releaseID)
	if err != nil {
		return nil, err
	}

	sig := &TestsSignal{Passed: true, Items: len(items)}
	for _, item := range items {
		res, executed := latest[item.ID]
		if executed && res.Outcome == results.OutcomePass {
			continue
		}
		f := FailingItem{ItemID: item.ID, CaseRevisionID: item.CaseRevisionID, Unexecuted: !executed}
		if executed {
			f.Outcome = res.Outcome
		}
		sig.Failing = append(sig.Failing, f)
	}
	if len(sig.Failing) > 0 {
		first := sig.Failing[0]
		sig.Passed = false
		sig.FailingItemID = first.ItemID
		sig.FailingCaseRevisionID = first.CaseRevisionID
		sig.Unexecuted = first.Unexecuted
		sig.Outcome = first.Outcome
	}
	return sig, nil
}

// NoCriticalBugs checks that no result under the release links a critical
// or high severity bug.
func (a *Aggregator) NoCriticalBugs(ctx context.Context, releaseID string) (*BugsSignal, error) {
	bugs, err := a.results.BlockingBugs(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	sig := &BugsSignal{Passed: len(bugs) == 0}
	for _, b := range bugs {
		sig.BugIDs = append(sig.BugIDs, b.ID)
		sig.ExternalIDs = append(sig.ExternalIDs, b.ExternalID)
	}
	return sig, nil
}

// AllApprovalsComplete checks that every baseline's list revision is
// approved.
func (a *Aggregator) AllApprovalsComplete(ctx context.Context, releaseID string) (*ApprovalsSignal, error) {
	view, err := a.releases.GateView(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	return a.approvals(ctx, view)
}

func (a *Aggregator) approvals(ctx context.Context, view *ReleaseView) (*ApprovalsSignal, error) {
	revs, err := a.artifacts.RevisionsWithKind(ctx, view.ListRevisionIDs)
	if err != nil {
		return nil, err
	}
	status := make(map[string]revision.Status, len(revs))
	for _, r := range revs {
		status[r.ID] = r.Status
	}

	sig := &ApprovalsSignal{Passed: true}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, id := range view.ListRevisionIDs {
		if !seen.Add(id) {
			continue
		}
		if status[id] != revision.StatusApproved {
			sig.Passed = false
			sig.UnapprovedRevisionIDs = append(sig.UnapprovedRevisionIDs, id)
		}
	}
	return sig, nil
}

// NoUnapprovedChanges checks that no revision of a live artifact in the
// project is in review or deprecated.
func (a *Aggregator) NoUnapprovedChanges(ctx context.Context, projectID string) (*ChangesSignal, error) {
	revs, err := a.artifacts.ListByStatus(ctx, projectID, unsettledStatuses)
	if err != nil {
		return nil, err
	}
	sig := &ChangesSignal{Passed: len(revs) == 0, Count: len(revs)}
	for _, r := range revs {
		sig.RevisionIDs = append(sig.RevisionIDs, r.ID)
	}
	return sig, nil
}
