package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Sink receives audit events. Implementations must not fail the caller's
// operation; errors are reported through their own logging.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(context.Context, Event) {}

// Recorder persists events to a Store on a best-effort basis.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record fills in the id and timestamp if missing and appends the event.
// Append failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if err := r.store.Append(ctx, &event); err != nil {
		r.logger.Warn("audit event dropped",
			"eventType", event.EventType,
			"objectId", event.ObjectID,
			"error", err)
	}
}

// Value marshals v for use as an OldValue or NewValue. It returns nil when v
// cannot be encoded.
func Value(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// StatusChange builds the old/new values for a status transition event.
func StatusChange(from, to string) (datatypes.JSON, datatypes.JSON) {
	return Value(map[string]string{"status": from}), Value(map[string]string{"status": to})
}
