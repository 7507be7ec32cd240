package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qagate/qagate/pkg/approval"
	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/gate"
	"github.com/qagate/qagate/pkg/metrics"
)

// RevisionLookup resolves revisions with their artifact kind.
type RevisionLookup interface {
	RevisionsWithKind(ctx context.Context, ids []string) ([]artifact.RevisionWithKind, error)
}

// Evaluator runs the release gate.
type Evaluator interface {
	Evaluate(ctx context.Context, releaseID string, conditions []gate.Condition) (*gate.Result, error)
}

// Approver records approval decisions.
type Approver interface {
	RecordApproval(ctx context.Context, objectType, objectID, approver, comment string) (*approval.Record, error)
}

// CreateInput describes a new release.
type CreateInput struct {
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	BuildRef    string `json:"buildRef,omitempty"`
	Description string `json:"description,omitempty"`
	Actor       string `json:"-"`
}

// ApproveResult is returned by a successful approval.
type ApproveResult struct {
	Release  *Release         `json:"release"`
	Gate     *gate.Result     `json:"gate"`
	Approval *approval.Record `json:"approval"`
}

// Service drives releases through their lifecycle.
type Service struct {
	store     *Store
	machine   *LifecycleMachine
	revisions RevisionLookup
	evaluator Evaluator
	approver  Approver
	audit     audit.Sink
	logger    *slog.Logger

	// Clock returns the current time. Defaults to UTC wall time.
	Clock func() time.Time
}

// NewService creates a Service. sink and logger may be nil.
func NewService(store *Store, revisions RevisionLookup, evaluator Evaluator, approver Approver, sink audit.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		machine:   NewLifecycleMachine(),
		revisions: revisions,
		evaluator: evaluator,
		approver:  approver,
		audit:     sink,
		logger:    logger,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a release in planning.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Release, error) {
	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, errdefs.Invalid("projectId", "must not be empty")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errdefs.Invalid("name", "must not be empty")
	}
	now := s.Clock()
	r := &Release{
		ID:          uuid.New().String(),
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Status:      StatusPlanning,
		BuildRef:    in.BuildRef,
		Description: in.Description,
		CreatedBy:   in.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("release created", "releaseId", r.ID, "projectId", r.ProjectID, "name", r.Name)
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventReleaseCreated,
		Actor:      in.Actor,
		ObjectType: "release",
		ObjectID:   r.ID,
		NewValue:   audit.Value(r),
	})
	return r, nil
}

// Get returns a release by id.
func (s *Service) Get(ctx context.Context, id string) (*Release, error) {
	return s.store.Get(ctx, id)
}

// List returns releases, optionally limited to a project.
func (s *Service) List(ctx context.Context, projectID string) ([]Release, error) {
	return s.store.List(ctx, projectID)
}

// Baselines returns the baselines of a release.
func (s *Service) Baselines(ctx context.Context, releaseID string) ([]Baseline, error) {
	if err := s.store.Exists(ctx, releaseID); err != nil {
		return nil, err
	}
	return s.store.Baselines(ctx, releaseID)
}

// Transition moves a release along the lifecycle table. Approval to
// approved_for_release is reserved for Approve.
func (s *Service) Transition(ctx context.Context, releaseID string, to Status, actor string) (*Release, error) {
	if !to.Valid() {
		return nil, errdefs.Invalid("status", "unknown release status %q", to)
	}
	r, err := s.store.Get(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.ValidateManualTransition(r.Status, to); err != nil {
		return nil, err
	}
	return s.move(ctx, r, to, actor)
}

// move applies a table-checked transition with compare-and-swap.
func (s *Service) move(ctx context.Context, r *Release, to Status, actor string) (*Release, error) {
	from := r.Status
	now := s.Clock()
	if err := s.store.CompareAndSwapStatus(ctx, r.ID, from, to, now); err != nil {
		return nil, err
	}
	r.Status = to
	r.UpdatedAt = now
	s.statusChanged(ctx, r.ID, from, to, actor)
	return r, nil
}

func (s *Service) statusChanged(ctx context.Context, releaseID string, from, to Status, actor string) {
	metrics.StatusTransitions.WithLabelValues("release", string(from), string(to)).Inc()
	s.logger.Info("release status changed", "releaseId", releaseID, "from", from, "to", to, "actor", actor)
	old, updated := audit.StatusChange(string(from), string(to))
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventReleaseStatusChanged,
		Actor:      actor,
		ObjectType: "release",
		ObjectID:   releaseID,
		OldValue:   old,
		NewValue:   updated,
	})
}

// SetBaseline freezes a test-scenario-list revision into the release. The
// first baseline of a planning release moves it to executing.
func (s *Service) SetBaseline(ctx context.Context, releaseID, listRevisionID, actor string) (*Baseline, *Release, error) {
	revs, err := s.revisions.RevisionsWithKind(ctx, []string{listRevisionID})
	if err != nil {
		return nil, nil, err
	}
	if len(revs) == 0 {
		return nil, nil, errdefs.NotFound("revision", listRevisionID)
	}
	if revs[0].Kind != artifact.KindTestScenarioList {
		return nil, nil, errdefs.Invalid("listRevisionId", "revision %s is a %s, expected %s", listRevisionID, revs[0].Kind, artifact.KindTestScenarioList)
	}

	b := &Baseline{
		ID:             uuid.New().String(),
		ReleaseID:      releaseID,
		ListRevisionID: listRevisionID,
		CreatedBy:      actor,
		CreatedAt:      s.Clock(),
	}
	before, err := s.store.Get(ctx, releaseID)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.store.AddBaseline(ctx, b)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("release baseline set", "releaseId", releaseID, "listRevisionId", listRevisionID, "baselineId", b.ID)
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventReleaseBaselineSet,
		Actor:      actor,
		ObjectType: "release",
		ObjectID:   releaseID,
		NewValue:   audit.Value(b),
	})
	if before.Status != r.Status {
		s.statusChanged(ctx, releaseID, before.Status, r.Status, actor)
	}
	return b, r, nil
}

// Approve runs the gate and, if nothing blocks, moves the release to
// approved_for_release and records the approval. A blocked gate yields a
// *gate.BlockedError carrying every violation.
func (s *Service) Approve(ctx context.Context, releaseID, approver, comment string) (*ApproveResult, error) {
	r, err := s.store.Get(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusGateCheck {
		metrics.ReleaseApprovals.WithLabelValues("failed").Inc()
		return nil, &errdefs.StatusError{
			Entity:   "release",
			ID:       r.ID,
			Current:  string(r.Status),
			Expected: []string{string(StatusGateCheck)},
			Op:       "approve",
		}
	}

	res, err := s.evaluator.Evaluate(ctx, releaseID, nil)
	if err != nil {
		metrics.ReleaseApprovals.WithLabelValues("failed").Inc()
		return nil, err
	}
	if !res.Passed {
		metrics.ReleaseApprovals.WithLabelValues("blocked").Inc()
		s.audit.Record(ctx, audit.Event{
			EventType:  audit.EventReleaseApproved,
			Actor:      approver,
			ObjectType: "release",
			ObjectID:   releaseID,
			Outcome:    audit.OutcomeBlocked,
			Reason:     comment,
		})
		return nil, &gate.BlockedError{ReleaseID: releaseID, Violations: res.Violations}
	}

	if err := s.machine.ValidateTransition(StatusGateCheck, StatusApprovedForRelease); err != nil {
		return nil, err
	}
	now := s.Clock()
	if err := s.store.CompareAndSwapStatus(ctx, releaseID, StatusGateCheck, StatusApprovedForRelease, now); err != nil {
		metrics.ReleaseApprovals.WithLabelValues("failed").Inc()
		return nil, err
	}

	rec, err := s.approver.RecordApproval(ctx, "release", releaseID, approver, comment)
	if err != nil {
		metrics.ReleaseApprovals.WithLabelValues("failed").Inc()
		if rbErr := s.store.CompareAndSwapStatus(ctx, releaseID, StatusApprovedForRelease, StatusGateCheck, s.Clock()); rbErr != nil {
			s.logger.Error("release approval rollback failed", "releaseId", releaseID, "error", rbErr)
			return nil, errors.Join(fmt.Errorf("record approval: %w", err), rbErr)
		}
		return nil, fmt.Errorf("record approval: %w", err)
	}

	r.Status = StatusApprovedForRelease
	r.UpdatedAt = now
	metrics.ReleaseApprovals.WithLabelValues("approved").Inc()
	s.statusChanged(ctx, releaseID, StatusGateCheck, StatusApprovedForRelease, approver)
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventReleaseApproved,
		Actor:      approver,
		ObjectType: "release",
		ObjectID:   releaseID,
		Reason:     comment,
	})
	return &ApproveResult{Release: r, Gate: res, Approval: rec}, nil
}
