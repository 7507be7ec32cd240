package waiver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/metrics"
)

// ReleaseLookup reports whether a release exists.
type ReleaseLookup interface {
	Exists(ctx context.Context, releaseID string) error
}

// IssueInput describes a waiver to issue.
type IssueInput struct {
	ReleaseID  string     `json:"-"`
	TargetType TargetType `json:"targetType"`
	TargetID   *string    `json:"targetId,omitempty"`
	Reason     string     `json:"reason"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Issuer     string     `json:"-"`
}

// Service issues, validates, finds and expires waivers.
type Service struct {
	store    *Store
	releases ReleaseLookup
	audit    audit.Sink
	logger   *slog.Logger

	// Clock returns the current time. Defaults to UTC wall time.
	Clock func() time.Time
}

// NewService creates a Service. sink and logger may be nil.
func NewService(store *Store, releases ReleaseLookup, sink audit.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		releases: releases,
		audit:    sink,
		logger:   logger,
		Clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a waiver. Waivers are not de-duplicated; the most recent one
// wins on lookup.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*Waiver, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, errdefs.Invalid("reason", "must not be empty")
	}
	if !in.TargetType.Valid() {
		return nil, errdefs.Invalid("targetType", "unknown waiver target type %q", in.TargetType)
	}
	now := s.Clock()
	if !in.ExpiresAt.After(now) {
		return nil, errdefs.Invalid("expiresAt", "must be after %s", now.Format(time.RFC3339))
	}
	if in.TargetID != nil && strings.TrimSpace(*in.TargetID) == "" {
		in.TargetID = nil
	}
	if err := s.releases.Exists(ctx, in.ReleaseID); err != nil {
		return nil, err
	}

	w := &Waiver{
		ID:         uuid.New().String(),
		ReleaseID:  in.ReleaseID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Reason:     in.Reason,
		ExpiresAt:  in.ExpiresAt.UTC(),
		IssuedBy:   in.Issuer,
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, err
	}

	metrics.WaiversIssued.Inc()
	s.logger.Info("waiver issued",
		"waiverId", w.ID,
		"releaseId", w.ReleaseID,
		"targetType", w.TargetType,
		"expiresAt", w.ExpiresAt.Format(time.RFC3339))
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventWaiverIssued,
		Actor:      in.Issuer,
		ObjectType: "waiver",
		ObjectID:   w.ID,
		Reason:     w.Reason,
		NewValue:   audit.Value(w),
	})
	return w, nil
}

// Get returns a waiver by id.
func (s *Service) Get(ctx context.Context, id string) (*Waiver, error) {
	return s.store.Get(ctx, id)
}

// ListForRelease returns the waivers issued under a release.
func (s *Service) ListForRelease(ctx context.Context, releaseID string) ([]Waiver, error) {
	if err := s.releases.Exists(ctx, releaseID); err != nil {
		return nil, err
	}
	return s.store.ListForRelease(ctx, releaseID)
}

// IsValid returns nil if the waiver is in force at now, an *ExpiredError if
// now has reached its expiry, or a NotFoundError.
func (s *Service) IsValid(ctx context.Context, id string, now time.Time) error {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !w.ValidAt(now) {
		return &ExpiredError{WaiverID: w.ID, ExpiresAt: w.ExpiresAt}
	}
	return nil
}

// FindValidForTarget returns the newest waiver in force for the target, or
// nil when none exists.
func (s *Service) FindValidForTarget(ctx context.Context, releaseID string, targetType TargetType, targetID *string) (*Waiver, error) {
	now := s.Clock()
	w, err := s.store.FindValidForTarget(ctx, releaseID, targetType, targetID, now)
	if err != nil || w == nil {
		return nil, err
	}
	if !w.ValidAt(now) {
		return nil, nil
	}
	return w, nil
}

// FindExpired returns every waiver that expired before now.
func (s *Service) FindExpired(ctx context.Context, now time.Time) ([]Waiver, error) {
	return s.store.FindExpired(ctx, now)
}

// Sweep finds waivers expired before now and, when remove is set, deletes
// them. Waivers deleted concurrently are skipped without counting.
func (s *Service) Sweep(ctx context.Context, now time.Time, remove bool) (*SweepResult, error) {
	expired, err := s.store.FindExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{Expired: expired}
	if !remove {
		return res, nil
	}
	for _, w := range expired {
		if err := s.store.Delete(ctx, w.ID); err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				continue
			}
			return res, err
		}
		res.Deleted++
	}
	if res.Deleted > 0 {
		metrics.WaiversSwept.Add(float64(res.Deleted))
	}
	return res, nil
}

// Delete removes a waiver regardless of its validity.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("waiver deleted", "waiverId", id, "actor", actor)
	s.audit.Record(ctx, audit.Event{
		EventType:  audit.EventWaiverDeleted,
		Actor:      actor,
		ObjectType: "waiver",
		ObjectID:   id,
	})
	return nil
}
