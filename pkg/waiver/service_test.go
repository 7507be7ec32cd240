package waiver

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qagate/qagate/pkg/errdefs"
)

type fakeReleases map[string]bool

func (f fakeReleases) Exists(_ context.Context, id string) error {
	if !f[id] {
		return errdefs.NotFound("release", id)
	}
	return nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *testClock) {
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

	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, fakeReleases{"rel-1": true}, nil, nil)
	svc.Clock = clock.Now
	return svc, clock
}

func ptr(s string) *string { return &s }

func TestIssue_Validation(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	future := clock.now.Add(time.Hour)

	tests := []struct {
		name    string
		in      IssueInput
		wantErr error
	}{
		{"blank reason", IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "  ", ExpiresAt: future}, errdefs.ErrValidation},
		{"unknown target type", IssueInput{ReleaseID: "rel-1", TargetType: "bug", Reason: "ok", ExpiresAt: future}, errdefs.ErrValidation},
		{"expiry equals now", IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "ok", ExpiresAt: clock.now}, errdefs.ErrValidation},
		{"expiry in the past", IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "ok", ExpiresAt: clock.now.Add(-time.Second)}, errdefs.ErrValidation},
		{"unknown release", IssueInput{ReleaseID: "rel-404", TargetType: TargetOther, Reason: "ok", ExpiresAt: future}, errdefs.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Issue(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsValid_ExpiryBoundary(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	expiresAt := clock.now.Add(24 * time.Hour)

	w, err := svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "known issue", ExpiresAt: expiresAt, Issuer: "qa-lead"})
	require.NoError(t, err)

	assert.NoError(t, svc.IsValid(ctx, w.ID, expiresAt.Add(-time.Microsecond)))

	err = svc.IsValid(ctx, w.ID, expiresAt)
	var ee *ExpiredError
	require.ErrorAs(t, err, &ee)
	assert.True(t, ee.ExpiresAt.Equal(expiresAt))
	assert.ErrorIs(t, err, errdefs.ErrExpired)

	assert.ErrorIs(t, svc.IsValid(ctx, "missing", clock.now), errdefs.ErrNotFound)
}

func TestFindValidForTarget(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	future := clock.now.Add(48 * time.Hour)

	generic, err := svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetUnexecutedTest, Reason: "infra down", ExpiresAt: future, Issuer: "qa"})
	require.NoError(t, err)

	clock.Advance(time.Second)
	older, err := svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetUnexecutedTest, TargetID: ptr("item-1"), Reason: "flaky", ExpiresAt: future, Issuer: "qa"})
	require.NoError(t, err)

	clock.Advance(time.Second)
	newer, err := svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetUnexecutedTest, TargetID: ptr("item-1"), Reason: "flaky again", ExpiresAt: future, Issuer: "qa"})
	require.NoError(t, err)
	assert.NotEqual(t, older.ID, newer.ID)

	got, err := svc.FindValidForTarget(ctx, "rel-1", TargetUnexecutedTest, ptr("item-1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)

	got, err = svc.FindValidForTarget(ctx, "rel-1", TargetUnexecutedTest, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, generic.ID, got.ID)

	got, err = svc.FindValidForTarget(ctx, "rel-1", TargetUnexecutedTest, ptr("item-2"))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.FindValidForTarget(ctx, "rel-1", TargetFailResult, ptr("item-1"))
	require.NoError(t, err)
	assert.Nil(t, got)

	clock.now = future
	got, err = svc.FindValidForTarget(ctx, "rel-1", TargetUnexecutedTest, ptr("item-1"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSweep(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	short, err := svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "a", ExpiresAt: clock.now.Add(time.Hour), Issuer: "qa"})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "b", ExpiresAt: clock.now.Add(2 * time.Hour), Issuer: "qa"})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "c", ExpiresAt: clock.now.Add(72 * time.Hour), Issuer: "qa"})
	require.NoError(t, err)

	sweepAt := clock.now.Add(3 * time.Hour)

	res, err := svc.Sweep(ctx, sweepAt, false)
	require.NoError(t, err)
	assert.Len(t, res.Expired, 2)
	assert.Equal(t, 0, res.Deleted)

	expired, err := svc.FindExpired(ctx, sweepAt)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	require.NoError(t, svc.Delete(ctx, short.ID, "qa"))

	res, err = svc.Sweep(ctx, sweepAt, true)
	require.NoError(t, err)
	assert.Len(t, res.Expired, 1)
	assert.Equal(t, 1, res.Deleted)

	all, err := svc.ListForRelease(ctx, "rel-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDelete_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing", "qa"), errdefs.ErrNotFound)
}

func TestSweepWorker_SweepOnce(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, IssueInput{ReleaseID: "rel-1", TargetType: TargetOther, Reason: "a", ExpiresAt: clock.now.Add(time.Minute), Issuer: "qa"})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	worker := NewSweepWorker(svc, time.Hour, true, nil)
	res := worker.sweepOnce(ctx)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Deleted)
}

func TestSweepWorker_StopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t)
	worker := NewSweepWorker(svc, time.Millisecond, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
