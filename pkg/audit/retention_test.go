package audit

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestRetentionWorker_Disabled(t *testing.T) {
	for _, days := range []int{0, -3} {
		worker := NewRetentionWorker(newTestStore(t), days, nil)

		done := make(chan struct{})
		go func() {
			worker.Run(context.Background())
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("retention of %d days should not start a loop", days)
		}
	}
}

func TestRetentionWorker_RunPurgesOnStart(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, &Event{
		ID:        uuid.New().String(),
		EventType: EventGateEvaluated,
		Actor:     "system",
		Outcome:   OutcomeBlocked,
		CreatedAt: now.AddDate(0, 0, -2),
	}))

	worker := NewRetentionWorker(store, 1, nil)
	worker.clock = func() time.Time { return now }

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		events, _, err := store.List(context.Background(), Filter{}, 10, "")
		return err == nil && len(events) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRetentionWorker_Purge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{40 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour} {
		require.NoError(t, store.Append(ctx, &Event{
			ID:        uuid.New().String(),
			EventType: EventWaiverIssued,
			Actor:     "alice",
			Outcome:   OutcomeSuccess,
			CreatedAt: now.Add(-age),
		}))
	}

	worker := NewRetentionWorker(store, 30, nil)
	worker.clock = func() time.Time { return now }

	n, err := worker.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, _, err := store.List(ctx, Filter{}, 10, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStore_ListFiltersAndPages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &Event{
			ID:         uuid.New().String(),
			EventType:  EventReleaseStatusChanged,
			Actor:      "bob",
			ObjectType: "release",
			ObjectID:   "rel-1",
			Outcome:    OutcomeSuccess,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Append(ctx, &Event{
		ID:         uuid.New().String(),
		EventType:  EventWaiverIssued,
		Actor:      "carol",
		ObjectType: "waiver",
		ObjectID:   "w-1",
		Outcome:    OutcomeSuccess,
		CreatedAt:  base,
	}))

	page1, next, err := store.List(ctx, Filter{ObjectID: "rel-1"}, 3, "")
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotEmpty(t, next)
	assert.True(t, page1[0].CreatedAt.After(page1[2].CreatedAt))

	page2, next, err := store.List(ctx, Filter{ObjectID: "rel-1"}, 3, next)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.Empty(t, next)

	_, _, err = store.List(ctx, Filter{}, 3, "not-a-time")
	assert.Error(t, err)
}

func TestRecorder_FillsDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := NewRecorder(store, nil)
	old, updated := StatusChange("planning", "executing")
	rec.Record(ctx, Event{
		EventType:  EventReleaseStatusChanged,
		Actor:      "dave",
		ObjectType: "release",
		ObjectID:   "rel-9",
		OldValue:   old,
		NewValue:   updated,
	})

	events, _, err := store.List(ctx, Filter{Actor: "dave"}, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, OutcomeSuccess, events[0].Outcome)
	assert.False(t, events[0].CreatedAt.IsZero())
	assert.JSONEq(t, `{"status":"executing"}`, string(events[0].NewValue))
}
