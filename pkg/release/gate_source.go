package release

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/gate"
	"github.com/qagate/qagate/pkg/metrics"
)

// GateSource exposes releases to the gate evaluator.
type GateSource struct {
	store  *Store
	audit  audit.Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewGateSource creates a GateSource over store. sink and logger may be nil.
func NewGateSource(store *Store, sink audit.Sink, logger *slog.Logger) *GateSource {
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GateSource{
		store:  store,
		audit:  sink,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GateView returns the release's project, status and baseline list
// revisions.
func (g *GateSource) GateView(ctx context.Context, releaseID string) (*gate.ReleaseView, error) {
	r, err := g.store.Get(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	baselines, err := g.store.Baselines(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	view := &gate.ReleaseView{ID: r.ID, ProjectID: r.ProjectID, Status: string(r.Status)}
	for _, b := range baselines {
		view.ListRevisionIDs = append(view.ListRevisionIDs, b.ListRevisionID)
	}
	return view, nil
}

// EnterGateCheck moves an executing release to gate_check. A release
// already in gate_check is left alone.
func (g *GateSource) EnterGateCheck(ctx context.Context, releaseID string) error {
	r, err := g.store.Get(ctx, releaseID)
	if err != nil {
		return err
	}
	switch r.Status {
	case StatusGateCheck:
		return nil
	case StatusExecuting:
		err := g.store.CompareAndSwapStatus(ctx, r.ID, StatusExecuting, StatusGateCheck, g.now())
		var se *errdefs.StatusError
		if errors.As(err, &se) && se.Current == string(StatusGateCheck) {
			return nil
		}
		if err != nil {
			return err
		}
		metrics.StatusTransitions.WithLabelValues("release", string(StatusExecuting), string(StatusGateCheck)).Inc()
		g.logger.Info("release entered gate check", "releaseId", r.ID)
		old, updated := audit.StatusChange(string(StatusExecuting), string(StatusGateCheck))
		g.audit.Record(ctx, audit.Event{
			EventType:  audit.EventReleaseStatusChanged,
			Actor:      "system",
			ObjectType: "release",
			ObjectID:   r.ID,
			OldValue:   old,
			NewValue:   updated,
		})
		return nil
	default:
		return &errdefs.StatusError{
			Entity:   "release",
			ID:       r.ID,
			Current:  string(r.Status),
			Expected: []string{string(StatusExecuting), string(StatusGateCheck)},
			Op:       "evaluate gate",
		}
	}
}
