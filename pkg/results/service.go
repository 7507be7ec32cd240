package results

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/errdefs"
)

// ReleaseLookup reports whether a release exists.
type ReleaseLookup interface {
	Exists(ctx context.Context, releaseID string) error
}

// RevisionLookup resolves revisions with their artifact kind.
type RevisionLookup interface {
	RevisionsWithKind(ctx context.Context, ids []string) ([]artifact.RevisionWithKind, error)
}

// Service records execution data under releases.
type Service struct {
	store     *Store
	releases  ReleaseLookup
	revisions RevisionLookup

	// Clock returns the current time. Defaults to UTC wall time.
	Clock func() time.Time
}

// NewService creates a Service.
func NewService(store *Store, releases ReleaseLookup, revisions RevisionLookup) *Service {
	return &Service{
		store:     store,
		releases:  releases,
		revisions: revisions,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// CreateRunGroup adds a run group to a release.
func (s *Service) CreateRunGroup(ctx context.Context, releaseID, name string) (*RunGroup, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errdefs.Invalid("name", "must not be empty")
	}
	if err := s.releases.Exists(ctx, releaseID); err != nil {
		return nil, err
	}
	g := &RunGroup{ID: uuid.New().String(), ReleaseID: releaseID, Name: name, CreatedAt: s.Clock()}
	if err := s.store.CreateRunGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// CreateTestRun adds a test run to a run group.
func (s *Service) CreateTestRun(ctx context.Context, runGroupID, name, environment string) (*TestRun, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errdefs.Invalid("name", "must not be empty")
	}
	if _, err := s.store.GetRunGroup(ctx, runGroupID); err != nil {
		return nil, err
	}
	r := &TestRun{ID: uuid.New().String(), RunGroupID: runGroupID, Name: name, Environment: environment, CreatedAt: s.Clock()}
	if err := s.store.CreateTestRun(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddRunItem binds a case revision to a test run at the given position.
func (s *Service) AddRunItem(ctx context.Context, testRunID, caseRevisionID string, position int) (*RunItem, error) {
	if position < 1 {
		return nil, errdefs.Invalid("position", "must be at least 1")
	}
	if _, err := s.store.GetTestRun(ctx, testRunID); err != nil {
		return nil, err
	}
	revs, err := s.revisions.RevisionsWithKind(ctx, []string{caseRevisionID})
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, errdefs.NotFound("revision", caseRevisionID)
	}
	if revs[0].Kind != artifact.KindTestCase {
		return nil, errdefs.Invalid("caseRevisionId", "revision %s is a %s, expected %s", caseRevisionID, revs[0].Kind, artifact.KindTestCase)
	}
	item := &RunItem{
		ID:             uuid.New().String(),
		TestRunID:      testRunID,
		CaseRevisionID: caseRevisionID,
		Position:       position,
		CreatedAt:      s.Clock(),
	}
	if err := s.store.CreateRunItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// RecordResult appends a result to a run item. Earlier results are kept;
// the most recent one is authoritative.
func (s *Service) RecordResult(ctx context.Context, runItemID string, outcome Outcome, actor, note string) (*TestResult, error) {
	if !outcome.Valid() {
		return nil, errdefs.Invalid("outcome", "unknown outcome %q", outcome)
	}
	if _, err := s.store.GetRunItem(ctx, runItemID); err != nil {
		return nil, err
	}
	r := &TestResult{
		ID:         uuid.New().String(),
		RunItemID:  runItemID,
		Outcome:    outcome,
		RecordedBy: actor,
		RecordedAt: s.Clock(),
		Note:       note,
	}
	if err := s.store.CreateResult(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// LinkBug attaches an external bug to a result.
func (s *Service) LinkBug(ctx context.Context, resultID, externalID string, severity Severity, title string) (*BugLink, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, errdefs.Invalid("externalId", "must not be empty")
	}
	if !severity.Valid() {
		return nil, errdefs.Invalid("severity", "unknown severity %q", severity)
	}
	if _, err := s.store.GetResult(ctx, resultID); err != nil {
		return nil, err
	}
	b := &BugLink{
		ID:         uuid.New().String(),
		ResultID:   resultID,
		ExternalID: externalID,
		Severity:   severity,
		Title:      title,
		CreatedAt:  s.Clock(),
	}
	if err := s.store.CreateBugLink(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
