package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/revision"
)

// CreateArtifactInput describes a new artifact and its first revision.
type CreateArtifactInput struct {
	Kind      Kind    `json:"kind"`
	ProjectID string  `json:"projectId"`
	Name      string  `json:"name"`
	Title     string  `json:"title"`
	Content   Content `json:"content"`
	Actor     string  `json:"-"`
}

// CreateRevisionInput describes the next revision of an artifact.
type CreateRevisionInput struct {
	ArtifactID string  `json:"-"`
	Title      string  `json:"title"`
	Content    Content `json:"content"`
	Reason     string  `json:"reason,omitempty"`
	Actor      string  `json:"-"`
}

// UpdateDraftInput replaces the editable parts of a draft revision.
type UpdateDraftInput struct {
	RevisionID string  `json:"-"`
	Title      string  `json:"title"`
	Content    Content `json:"content"`
	Actor      string  `json:"-"`
}

// Service applies the revision lifecycle to artifacts of every kind.
type Service struct {
	store   *Store
	machine *revision.Machine
	audit   audit.Sink
	logger  *slog.Logger

	// Clock returns the current time. Defaults to UTC wall time.
	Clock func() time.Time
}

// NewService creates a Service. sink and logger may be nil.
func NewService(store *Store, machine *revision.Machine, sink audit.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		machine: machine,
		audit:   sink,
		logger:  logger,
		Clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying store for read-side collaborators.
func (s *Service) Store() *Store { return s.store }

// CreateArtifact creates an artifact with revision 1 in draft.
func (s *Service) CreateArtifact(ctx context.Context, in CreateArtifactInput) (*Artifact, *Revision, error) {
	if !in.Kind.Valid() {
		return nil, nil, errdefs.Invalid("kind", "unknown artifact kind %q", in.Kind)
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, nil, errdefs.Invalid("projectId", "must not be empty")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, nil, errdefs.Invalid("name", "must not be empty")
	}
	if err := s.validateContent(ctx, in.Kind, in.Title, in.Content); err != nil {
		return nil, nil, err
	}

	now := s.Clock()
	a := &Artifact{
		ID:        uuid.New().String(),
		Kind:      in.Kind,
		ProjectID: in.ProjectID,
		Name:      in.Name,
		CreatedBy: in.Actor,
		CreatedAt: now,
	}
	rev := &Revision{
		ID:        uuid.New().String(),
		Status:    revision.StatusDraft,
		Title:     in.Title,
		Content:   datatypes.NewJSONType(in.Content),
		CreatedBy: in.Actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	refs := in.Content.references(rev.ID, newID)
	if err := s.store.CreateArtifact(ctx, a, rev, refs); err != nil {
		return nil, nil, err
	}

	s.logger.Info("artifact created", "artifactId", a.ID, "kind", a.Kind, "revisionId", rev.ID)
	s.record(ctx, audit.EventRevisionCreated, in.Actor, rev.ID, "", audit.Value(map[string]any{"artifactId": a.ID, "number": 1}))
	return a, rev, nil
}

// CreateRevision creates the next revision of an artifact in draft. The
// artifact's latest revision must be approved.
func (s *Service) CreateRevision(ctx context.Context, in CreateRevisionInput) (*Revision, error) {
	a, err := s.store.GetArtifact(ctx, in.ArtifactID)
	if err != nil {
		return nil, err
	}
	if err := s.validateContent(ctx, a.Kind, in.Title, in.Content); err != nil {
		return nil, err
	}

	now := s.Clock()
	rev := &Revision{
		ID:         uuid.New().String(),
		ArtifactID: a.ID,
		Status:     revision.StatusDraft,
		Title:      in.Title,
		Content:    datatypes.NewJSONType(in.Content),
		Reason:     in.Reason,
		CreatedBy:  in.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	refs := in.Content.references(rev.ID, newID)
	if err := s.store.AppendRevision(ctx, rev, refs); err != nil {
		return nil, err
	}

	s.logger.Info("revision created", "artifactId", a.ID, "revisionId", rev.ID, "number", rev.Number)
	s.record(ctx, audit.EventRevisionCreated, in.Actor, rev.ID, in.Reason, audit.Value(map[string]any{"artifactId": a.ID, "number": rev.Number}))
	return rev, nil
}

// UpdateDraft changes the title and content of a draft revision.
func (s *Service) UpdateDraft(ctx context.Context, in UpdateDraftInput) (*Revision, error) {
	rev, err := s.store.GetRevision(ctx, in.RevisionID)
	if err != nil {
		return nil, err
	}
	if !revision.IsEditable(rev.Status) {
		return nil, &errdefs.ImmutableError{RevisionID: rev.ID, Status: string(rev.Status)}
	}
	a, err := s.store.GetArtifact(ctx, rev.ArtifactID)
	if err != nil {
		return nil, err
	}
	if err := s.validateContent(ctx, a.Kind, in.Title, in.Content); err != nil {
		return nil, err
	}

	rev.Title = in.Title
	rev.Content = datatypes.NewJSONType(in.Content)
	rev.UpdatedAt = s.Clock()
	if err := s.store.UpdateDraft(ctx, rev, in.Content.references(rev.ID, newID)); err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventRevisionUpdated, in.Actor, rev.ID, "", nil)
	return rev, nil
}

// SubmitForReview moves a draft revision to in_review.
func (s *Service) SubmitForReview(ctx context.Context, revisionID, actor string) (*Revision, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.CheckSubmit(rev.ID, rev.Status); err != nil {
		return nil, err
	}
	return s.apply(ctx, rev, revision.StatusInReview, actor)
}

// Approve moves an in_review revision to approved.
func (s *Service) Approve(ctx context.Context, revisionID, actor string) (*Revision, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.CheckApprove(rev.ID, rev.Status); err != nil {
		return nil, err
	}
	return s.apply(ctx, rev, revision.StatusApproved, actor)
}

// ReturnToDraft sends an in_review revision back to draft.
func (s *Service) ReturnToDraft(ctx context.Context, revisionID, actor string) (*Revision, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Status != revision.StatusInReview {
		return nil, &errdefs.StatusError{
			Entity:   "revision",
			ID:       rev.ID,
			Current:  string(rev.Status),
			Expected: []string{string(revision.StatusInReview)},
			Op:       "return to draft",
		}
	}
	return s.Transition(ctx, revisionID, revision.StatusDraft, actor)
}

// Deprecate retires a revision.
func (s *Service) Deprecate(ctx context.Context, revisionID, actor string) (*Revision, error) {
	return s.Transition(ctx, revisionID, revision.StatusDeprecated, actor)
}

// Restart reopens a deprecated revision as draft. Only machines built with
// the permissive table allow it, and only for the latest revision of the
// artifact.
func (s *Service) Restart(ctx context.Context, revisionID, actor string) (*Revision, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Status != revision.StatusDeprecated {
		return nil, &errdefs.StatusError{
			Entity:   "revision",
			ID:       rev.ID,
			Current:  string(rev.Status),
			Expected: []string{string(revision.StatusDeprecated)},
			Op:       "restart",
		}
	}
	return s.Transition(ctx, revisionID, revision.StatusDraft, actor)
}

// Transition moves a revision to any status the table allows.
func (s *Service) Transition(ctx context.Context, revisionID string, to revision.Status, actor string) (*Revision, error) {
	if !to.Valid() {
		return nil, errdefs.Invalid("status", "unknown revision status %q", to)
	}
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	switch to {
	case revision.StatusInReview:
		err = s.machine.CheckSubmit(rev.ID, rev.Status)
	case revision.StatusApproved:
		err = s.machine.CheckApprove(rev.ID, rev.Status)
	default:
		err = s.machine.ValidateTransition(rev.Status, to)
	}
	if err != nil {
		return nil, err
	}
	if rev.Status == revision.StatusDeprecated && to == revision.StatusDraft {
		if err := s.checkLatest(ctx, rev); err != nil {
			return nil, err
		}
	}
	return s.apply(ctx, rev, to, actor)
}

// checkLatest fails with a StatusError when rev has been superseded.
func (s *Service) checkLatest(ctx context.Context, rev *Revision) error {
	latest, err := s.store.Latest(ctx, rev.ArtifactID)
	if err != nil {
		return err
	}
	if latest.ID == rev.ID {
		return nil
	}
	return &errdefs.StatusError{
		Entity:  "revision",
		ID:      rev.ID,
		Current: string(rev.Status),
		Op:      "restart",
		Reason:  fmt.Sprintf("superseded by revision %d", latest.Number),
	}
}

func (s *Service) apply(ctx context.Context, rev *Revision, to revision.Status, actor string) (*Revision, error) {
	from := rev.Status
	now := s.Clock()
	if err := s.store.UpdateStatus(ctx, rev.ID, from, to, now); err != nil {
		return nil, err
	}
	rev.Status = to
	rev.UpdatedAt = now

	s.logger.Info("revision status changed", "revisionId", rev.ID, "from", from, "to", to, "actor", actor)
	old, updated := audit.StatusChange(string(from), string(to))
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventRevisionStatusChanged,
		Actor:      actor,
		ObjectType: "revision",
		ObjectID:   rev.ID,
		OldValue:   old,
		NewValue:   updated,
	})
	return rev, nil
}

// Delete tombstones an artifact so no further revisions can be created.
func (s *Service) Delete(ctx context.Context, artifactID, actor string) error {
	if err := s.store.Tombstone(ctx, artifactID, s.Clock()); err != nil {
		return err
	}
	s.logger.Info("artifact deleted", "artifactId", artifactID, "actor", actor)
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventArtifactDeleted,
		Actor:      actor,
		ObjectType: "artifact",
		ObjectID:   artifactID,
	})
	return nil
}

// GetArtifact returns an artifact by id.
func (s *Service) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	return s.store.GetArtifact(ctx, id)
}

// GetRevision returns a revision by id.
func (s *Service) GetRevision(ctx context.Context, id string) (*Revision, error) {
	return s.store.GetRevision(ctx, id)
}

// Latest returns the latest revision of an artifact.
func (s *Service) Latest(ctx context.Context, artifactID string) (*Revision, error) {
	return s.store.Latest(ctx, artifactID)
}

// ListRevisions returns all revisions of an artifact.
func (s *Service) ListRevisions(ctx context.Context, artifactID string) ([]Revision, error) {
	if _, err := s.store.GetArtifact(ctx, artifactID); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, artifactID)
}

// ListByStatus returns the project's revisions in any of the statuses.
func (s *Service) ListByStatus(ctx context.Context, projectID string, statuses ...revision.Status) ([]RevisionWithKind, error) {
	if len(statuses) == 0 {
		statuses = revision.AllStatuses
	}
	return s.store.ListByStatus(ctx, projectID, statuses)
}

// validateContent checks the payload and that every reference points at an
// existing revision of the kind the parent may include.
func (s *Service) validateContent(ctx context.Context, kind Kind, title string, c Content) error {
	if err := validateShape(kind, title, c); err != nil {
		return err
	}
	want, ok := childKind(kind)
	if !ok {
		return nil
	}
	ids := c.referencedIDs()
	found, err := s.store.RevisionsWithKind(ctx, ids)
	if err != nil {
		return err
	}
	kinds := make(map[string]Kind, len(found))
	for _, r := range found {
		kinds[r.ID] = r.Kind
	}
	for _, id := range ids {
		got, exists := kinds[id]
		if !exists {
			return errdefs.Invalid("content", "referenced revision %s does not exist", id)
		}
		if got != want {
			return errdefs.Invalid("content", "referenced revision %s is a %s, expected %s", id, got, want)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, eventType, actor, objectID, reason string, value datatypes.JSON) {
	s.audit.Record(ctx, audit.Event{
		EventType:  eventType,
		Actor:      actor,
		ObjectType: "revision",
		ObjectID:   objectID,
		Reason:     reason,
		NewValue:   value,
	})
}

func newID() string { return uuid.New().String() }
