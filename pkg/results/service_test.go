package results

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/errdefs"
)

type fakeReleases map[string]bool

func (f fakeReleases) Exists(_ context.Context, id string) error {
	if !f[id] {
		return errdefs.NotFound("release", id)
	}
	return nil
}

type fakeRevisions map[string]artifact.Kind

func (f fakeRevisions) RevisionsWithKind(_ context.Context, ids []string) ([]artifact.RevisionWithKind, error) {
	var out []artifact.RevisionWithKind
	for _, id := range ids {
		if k, ok := f[id]; ok {
			out = append(out, artifact.RevisionWithKind{Revision: artifact.Revision{ID: id}, Kind: k})
		}
	}
	return out, nil
}

func newTestService(t *testing.T) *Service {
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

	svc := NewService(store,
		fakeReleases{"rel-1": true, "rel-2": true},
		fakeRevisions{"case-1": artifact.KindTestCase, "case-2": artifact.KindTestCase, "scn-1": artifact.KindTestScenario},
	)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	svc.Clock = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return svc
}

func newRun(t *testing.T, svc *Service, releaseID string) *TestRun {
	t.Helper()
	ctx := context.Background()
	g, err := svc.CreateRunGroup(ctx, releaseID, "nightly")
	require.NoError(t, err)
	r, err := svc.CreateTestRun(ctx, g.ID, "linux", "staging")
	require.NoError(t, err)
	return r
}

func TestRunItemsForRelease_OrderAndScope(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	run := newRun(t, svc, "rel-1")
	second, err := svc.AddRunItem(ctx, run.ID, "case-2", 2)
	require.NoError(t, err)
	first, err := svc.AddRunItem(ctx, run.ID, "case-1", 1)
	require.NoError(t, err)

	other := newRun(t, svc, "rel-2")
	_, err = svc.AddRunItem(ctx, other.ID, "case-1", 1)
	require.NoError(t, err)

	items, err := svc.Store().RunItemsForRelease(ctx, "rel-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
}

func TestLatestResults_MostRecentWins(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	run := newRun(t, svc, "rel-1")

	flaky, err := svc.AddRunItem(ctx, run.ID, "case-1", 1)
	require.NoError(t, err)
	fixed, err := svc.AddRunItem(ctx, run.ID, "case-2", 2)
	require.NoError(t, err)

	_, err = svc.RecordResult(ctx, flaky.ID, OutcomePass, "ci", "")
	require.NoError(t, err)
	_, err = svc.RecordResult(ctx, flaky.ID, OutcomeFail, "ci", "timeout")
	require.NoError(t, err)
	_, err = svc.RecordResult(ctx, fixed.ID, OutcomeFail, "ci", "")
	require.NoError(t, err)
	_, err = svc.RecordResult(ctx, fixed.ID, OutcomePass, "ci", "rerun")
	require.NoError(t, err)

	latest, err := svc.Store().LatestResults(ctx, "rel-1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, OutcomeFail, latest[flaky.ID].Outcome)
	assert.Equal(t, OutcomePass, latest[fixed.ID].Outcome)
}

func TestBlockingBugs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	run := newRun(t, svc, "rel-1")

	item, err := svc.AddRunItem(ctx, run.ID, "case-1", 1)
	require.NoError(t, err)
	res, err := svc.RecordResult(ctx, item.ID, OutcomeFail, "ci", "")
	require.NoError(t, err)

	_, err = svc.LinkBug(ctx, res.ID, "BUG-1", SeverityLow, "typo")
	require.NoError(t, err)
	high, err := svc.LinkBug(ctx, res.ID, "BUG-2", SeverityHigh, "crash")
	require.NoError(t, err)
	crit, err := svc.LinkBug(ctx, res.ID, "BUG-3", SeverityCritical, "data loss")
	require.NoError(t, err)

	bugs, err := svc.Store().BlockingBugs(ctx, "rel-1")
	require.NoError(t, err)
	require.Len(t, bugs, 2)
	assert.Equal(t, high.ID, bugs[0].ID)
	assert.Equal(t, crit.ID, bugs[1].ID)

	bugs, err = svc.Store().BlockingBugs(ctx, "rel-2")
	require.NoError(t, err)
	assert.Empty(t, bugs)
}

func TestServiceValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	run := newRun(t, svc, "rel-1")

	_, err := svc.CreateRunGroup(ctx, "rel-404", "nightly")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = svc.CreateRunGroup(ctx, "rel-1", "")
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = svc.AddRunItem(ctx, run.ID, "scn-1", 1)
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = svc.AddRunItem(ctx, run.ID, "case-404", 1)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = svc.AddRunItem(ctx, run.ID, "case-1", 0)
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	item, err := svc.AddRunItem(ctx, run.ID, "case-1", 1)
	require.NoError(t, err)

	_, err = svc.RecordResult(ctx, item.ID, Outcome("flaky"), "ci", "")
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	res, err := svc.RecordResult(ctx, item.ID, OutcomePass, "ci", "")
	require.NoError(t, err)

	_, err = svc.LinkBug(ctx, res.ID, "BUG-1", Severity("blocker"), "")
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = svc.LinkBug(ctx, "missing", "BUG-1", SeverityLow, "")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
