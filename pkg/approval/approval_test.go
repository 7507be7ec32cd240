package approval

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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestRecordApproval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		base = base.Add(time.Minute)
		return base
	}

	first, err := store.RecordApproval(ctx, "release", "rel-1", "alice", "looks good")
	require.NoError(t, err)
	assert.Equal(t, VerdictApprove, first.Verdict)

	_, err = store.RecordApproval(ctx, "release", "rel-1", "bob", "")
	require.NoError(t, err)
	_, err = store.RecordApproval(ctx, "release", "rel-2", "carol", "")
	require.NoError(t, err)

	recs, err := store.ListForObject(ctx, "release", "rel-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "alice", recs[0].Approver)
	assert.Equal(t, "bob", recs[1].Approver)
}

func TestRecordApproval_RequiresApprover(t *testing.T) {
	store := newTestStore(t)
	_, err := store.RecordApproval(context.Background(), "release", "rel-1", "", "")
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}
