package artifact

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
	"github.com/qagate/qagate/pkg/revision"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestService(t *testing.T, variant revision.Variant) *Service {
	t.Helper()
	store := NewStore(newTestDB(t))
	require.NoError(t, store.AutoMigrate())
	svc := NewService(store, revision.NewMachine(variant), nil, nil)
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.Clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return svc
}

func caseContent() Content {
	return Content{
		Steps: []Step{
			{Position: 1, Action: "open login page", Expected: "form shown"},
			{Position: 2, Action: "submit valid credentials", Expected: "dashboard shown"},
		},
		ExpectedResult: "user is logged in",
		Priority:       PriorityHigh,
	}
}

func createCase(t *testing.T, svc *Service, name string) (*Artifact, *Revision) {
	t.Helper()
	a, rev, err := svc.CreateArtifact(context.Background(), CreateArtifactInput{
		Kind:      KindTestCase,
		ProjectID: "proj-1",
		Name:      name,
		Title:     name,
		Content:   caseContent(),
		Actor:     "alice",
	})
	require.NoError(t, err)
	return a, rev
}

func approve(t *testing.T, svc *Service, revisionID string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.SubmitForReview(ctx, revisionID, "alice")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, revisionID, "bob")
	require.NoError(t, err)
}

func TestCreateArtifact_FirstRevisionIsDraft(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	a, rev := createCase(t, svc, "login")

	assert.Equal(t, KindTestCase, a.Kind)
	assert.Equal(t, 1, rev.Number)
	assert.Equal(t, revision.StatusDraft, rev.Status)

	got, err := svc.GetRevision(context.Background(), rev.ID)
	require.NoError(t, err)
	assert.Equal(t, "user is logged in", got.Content.Data().ExpectedResult)
	assert.Len(t, got.Content.Data().Steps, 2)
}

func TestCreateRevision_RequiresApprovedLatest(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	a, rev1 := createCase(t, svc, "login")

	_, err := svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "v2", Content: caseContent(), Actor: "alice"})
	var se *errdefs.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "draft", se.Current)
	assert.Equal(t, []string{"approved"}, se.Expected)

	approve(t, svc, rev1.ID)

	rev2, err := svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "v2", Content: caseContent(), Reason: "new step", Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, rev2.Number)
	assert.Equal(t, revision.StatusDraft, rev2.Status)

	_, err = svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "v3", Content: caseContent(), Actor: "alice"})
	assert.ErrorIs(t, err, errdefs.ErrStatusPrecondition)

	latest, err := svc.Latest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, rev2.ID, latest.ID)
}

func TestRevisionNumbersAreGapless(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	a, rev := createCase(t, svc, "login")

	for i := 0; i < 4; i++ {
		approve(t, svc, rev.ID)
		var err error
		rev, err = svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "next", Content: caseContent(), Actor: "alice"})
		require.NoError(t, err)
	}

	revs, err := svc.ListRevisions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, revs, 5)
	for i, r := range revs {
		assert.Equal(t, i+1, r.Number)
	}
}

func TestUpdateDraft(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, rev := createCase(t, svc, "login")

	c := caseContent()
	c.Tags = []string{"auth"}
	updated, err := svc.UpdateDraft(ctx, UpdateDraftInput{RevisionID: rev.ID, Title: "login v1b", Content: c, Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "login v1b", updated.Title)

	approve(t, svc, rev.ID)

	_, err = svc.UpdateDraft(ctx, UpdateDraftInput{RevisionID: rev.ID, Title: "too late", Content: c, Actor: "alice"})
	var ie *errdefs.ImmutableError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "approved", ie.Status)
}

func TestSubmitForReview_NonDraftIsImmutable(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, rev := createCase(t, svc, "login")

	_, err := svc.SubmitForReview(ctx, rev.ID, "alice")
	require.NoError(t, err)

	_, err = svc.SubmitForReview(ctx, rev.ID, "alice")
	assert.ErrorIs(t, err, errdefs.ErrImmutable)
}

func TestApprove_RequiresInReview(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	_, rev := createCase(t, svc, "login")

	_, err := svc.Approve(context.Background(), rev.ID, "bob")
	assert.ErrorIs(t, err, errdefs.ErrStatusPrecondition)
}

func TestReturnToDraft(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, rev := createCase(t, svc, "login")

	_, err := svc.ReturnToDraft(ctx, rev.ID, "bob")
	assert.ErrorIs(t, err, errdefs.ErrStatusPrecondition)

	_, err = svc.SubmitForReview(ctx, rev.ID, "alice")
	require.NoError(t, err)
	got, err := svc.ReturnToDraft(ctx, rev.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, revision.StatusDraft, got.Status)
}

func TestRestart_DependsOnVariant(t *testing.T) {
	ctx := context.Background()

	strict := newTestService(t, revision.Strict)
	_, rev := createCase(t, strict, "login")
	_, err := strict.Deprecate(ctx, rev.ID, "alice")
	require.NoError(t, err)
	_, err = strict.Restart(ctx, rev.ID, "alice")
	assert.ErrorIs(t, err, errdefs.ErrInvalidTransition)

	permissive := newTestService(t, revision.Permissive)
	_, rev = createCase(t, permissive, "login")
	_, err = permissive.Deprecate(ctx, rev.ID, "alice")
	require.NoError(t, err)
	got, err := permissive.Restart(ctx, rev.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, revision.StatusDraft, got.Status)
}

func TestRestart_OnlyLatestRevision(t *testing.T) {
	svc := newTestService(t, revision.Permissive)
	ctx := context.Background()
	a, rev1 := createCase(t, svc, "login")
	approve(t, svc, rev1.ID)
	rev2, err := svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "v2", Content: caseContent(), Actor: "alice"})
	require.NoError(t, err)
	approve(t, svc, rev2.ID)

	_, err = svc.Deprecate(ctx, rev1.ID, "alice")
	require.NoError(t, err)

	_, err = svc.Restart(ctx, rev1.ID, "alice")
	var se *errdefs.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "deprecated", se.Current)
	assert.Equal(t, "superseded by revision 2", se.Reason)

	_, err = svc.Transition(ctx, rev1.ID, revision.StatusDraft, "alice")
	assert.ErrorIs(t, err, errdefs.ErrStatusPrecondition)

	_, err = svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "v3", Content: caseContent(), Actor: "alice"})
	require.NoError(t, err)

	revs, err := svc.ListRevisions(ctx, a.ID)
	require.NoError(t, err)
	drafts := 0
	for _, r := range revs {
		if r.Status == revision.StatusDraft {
			drafts++
		}
	}
	assert.Equal(t, 1, drafts)
	assert.Equal(t, revision.StatusDeprecated, revs[0].Status)
}

func TestTransition_UndefinedEdge(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, rev := createCase(t, svc, "login")
	approve(t, svc, rev.ID)

	_, err := svc.Transition(ctx, rev.ID, revision.StatusDraft, "alice")
	var te *errdefs.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "REVISION_INVALID_TRANSITION", te.Code)

	_, err = svc.Transition(ctx, rev.ID, revision.Status("archived"), "alice")
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestStore_UpdateStatusIsCompareAndSwap(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, rev := createCase(t, svc, "login")

	err := svc.Store().UpdateStatus(ctx, rev.ID, revision.StatusInReview, revision.StatusApproved, time.Now())
	var se *errdefs.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "draft", se.Current)

	err = svc.Store().UpdateStatus(ctx, "missing", revision.StatusDraft, revision.StatusInReview, time.Now())
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestDelete_Tombstones(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	a, rev := createCase(t, svc, "login")
	approve(t, svc, rev.ID)

	require.NoError(t, svc.Delete(ctx, a.ID, "alice"))

	got, err := svc.GetArtifact(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())

	_, err = svc.CreateRevision(ctx, CreateRevisionInput{ArtifactID: a.ID, Title: "v2", Content: caseContent(), Actor: "alice"})
	var se *errdefs.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "deleted", se.Current)

	err = svc.Delete(ctx, a.ID, "alice")
	assert.ErrorIs(t, err, errdefs.ErrStatusPrecondition)

	err = svc.Delete(ctx, "missing", "alice")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestContentValidation(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, caseRev := createCase(t, svc, "login")

	tests := []struct {
		name string
		in   CreateArtifactInput
	}{
		{
			name: "empty title",
			in:   CreateArtifactInput{Kind: KindTestCase, ProjectID: "proj-1", Name: "x", Title: " ", Content: caseContent()},
		},
		{
			name: "unknown kind",
			in:   CreateArtifactInput{Kind: "test_plan", ProjectID: "proj-1", Name: "x", Title: "x"},
		},
		{
			name: "step numbering gap",
			in: CreateArtifactInput{Kind: KindTestCase, ProjectID: "proj-1", Name: "x", Title: "x", Content: Content{
				Steps: []Step{{Position: 1, Action: "a"}, {Position: 3, Action: "b"}},
			}},
		},
		{
			name: "empty step action",
			in: CreateArtifactInput{Kind: KindTestCase, ProjectID: "proj-1", Name: "x", Title: "x", Content: Content{
				Steps: []Step{{Position: 1, Action: ""}},
			}},
		},
		{
			name: "scenario references missing revision",
			in: CreateArtifactInput{Kind: KindTestScenario, ProjectID: "proj-1", Name: "x", Title: "x", Content: Content{
				Cases: []CaseRef{{RevisionID: "nope"}},
			}},
		},
		{
			name: "scenario references a case twice",
			in: CreateArtifactInput{Kind: KindTestScenario, ProjectID: "proj-1", Name: "x", Title: "x", Content: Content{
				Cases: []CaseRef{{RevisionID: caseRev.ID}, {RevisionID: caseRev.ID}},
			}},
		},
		{
			name: "list references a case revision",
			in: CreateArtifactInput{Kind: KindTestScenarioList, ProjectID: "proj-1", Name: "x", Title: "x", Content: Content{
				Scenarios: []ScenarioRef{{RevisionID: caseRev.ID}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateArtifact(ctx, tt.in)
			assert.ErrorIs(t, err, errdefs.ErrValidation)
		})
	}
}

func TestReferencesAreStored(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, c1 := createCase(t, svc, "login")
	_, c2 := createCase(t, svc, "logout")

	_, scenario, err := svc.CreateArtifact(ctx, CreateArtifactInput{
		Kind: KindTestScenario, ProjectID: "proj-1", Name: "auth", Title: "auth",
		Content: Content{Cases: []CaseRef{{RevisionID: c1.ID}, {RevisionID: c2.ID, Optional: true}}},
		Actor:   "alice",
	})
	require.NoError(t, err)

	_, list, err := svc.CreateArtifact(ctx, CreateArtifactInput{
		Kind: KindTestScenarioList, ProjectID: "proj-1", Name: "smoke", Title: "smoke",
		Content: Content{Scenarios: []ScenarioRef{{RevisionID: scenario.ID}}},
		Actor:   "alice",
	})
	require.NoError(t, err)

	refs, err := svc.Store().References(ctx, []string{scenario.ID})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, c1.ID, refs[0].ChildRevisionID)
	assert.Equal(t, 1, refs[0].Position)
	assert.True(t, refs[1].Optional)

	refs, err = svc.Store().References(ctx, []string{list.ID})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, IncludeAlways, refs[0].IncludeRule)

	_, err = svc.UpdateDraft(ctx, UpdateDraftInput{
		RevisionID: scenario.ID, Title: "auth",
		Content: Content{Cases: []CaseRef{{RevisionID: c2.ID}}},
	})
	require.NoError(t, err)
	refs, err = svc.Store().References(ctx, []string{scenario.ID})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, c2.ID, refs[0].ChildRevisionID)
}

func TestListByStatus_SkipsDeletedArtifacts(t *testing.T) {
	svc := newTestService(t, revision.Strict)
	ctx := context.Background()
	_, r1 := createCase(t, svc, "login")
	a2, r2 := createCase(t, svc, "logout")

	_, err := svc.SubmitForReview(ctx, r1.ID, "alice")
	require.NoError(t, err)
	_, err = svc.SubmitForReview(ctx, r2.ID, "alice")
	require.NoError(t, err)

	got, err := svc.ListByStatus(ctx, "proj-1", revision.StatusInReview)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, svc.Delete(ctx, a2.ID, "alice"))

	got, err = svc.ListByStatus(ctx, "proj-1", revision.StatusInReview)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r1.ID, got[0].ID)
	assert.Equal(t, KindTestCase, got[0].Kind)
}
