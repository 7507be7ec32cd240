package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/revision"
)

// Store provides persistence for artifacts, revisions and references.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the artifact tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Artifact{}); err != nil {
		return fmt.Errorf("auto-migrate artifacts: %w", err)
	}
	if err := s.db.AutoMigrate(&Revision{}); err != nil {
		return fmt.Errorf("auto-migrate artifact_revisions: %w", err)
	}
	if err := s.db.AutoMigrate(&Reference{}); err != nil {
		return fmt.Errorf("auto-migrate revision_references: %w", err)
	}
	return nil
}

// CreateArtifact inserts an artifact together with its first revision and
// that revision's references in one transaction.
func (s *Store) CreateArtifact(ctx context.Context, a *Artifact, rev *Revision, refs []Reference) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		rev.ArtifactID = a.ID
		rev.Number = 1
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		return createReferences(tx, refs)
	})
}

// AppendRevision inserts rev as the next revision of its artifact. The
// artifact must exist, must not be deleted, and its latest revision must be
// approved. rev.Number is assigned inside the transaction.
func (s *Store) AppendRevision(ctx context.Context, rev *Revision, refs []Reference) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a Artifact
		if err := tx.Where("id = ?", rev.ArtifactID).First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errdefs.NotFound("artifact", rev.ArtifactID)
			}
			return fmt.Errorf("get artifact: %w", err)
		}
		if a.Deleted() {
			return &errdefs.StatusError{
				Entity:   "artifact",
				ID:       a.ID,
				Current:  "deleted",
				Expected: []string{string(revision.StatusApproved)},
				Op:       "create revision",
			}
		}

		var latest Revision
		if err := tx.Where("artifact_id = ?", a.ID).Order("number DESC").First(&latest).Error; err != nil {
			return fmt.Errorf("get latest revision: %w", err)
		}
		if err := revision.CheckNewRevision(a.ID, latest.Status); err != nil {
			return err
		}

		rev.Number = latest.Number + 1
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		return createReferences(tx, refs)
	})
}

// UpdateDraft replaces the title, content and references of a draft
// revision. A revision that is no longer draft yields an ImmutableError.
func (s *Store) UpdateDraft(ctx context.Context, rev *Revision, refs []Reference) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Revision{}).
			Where("id = ? AND status = ?", rev.ID, revision.StatusDraft).
			Updates(map[string]any{
				"title":      rev.Title,
				"content":    rev.Content,
				"updated_at": rev.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("update draft revision: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			current, err := getRevision(tx, rev.ID)
			if err != nil {
				return err
			}
			return &errdefs.ImmutableError{RevisionID: rev.ID, Status: string(current.Status)}
		}
		if err := tx.Where("parent_revision_id = ?", rev.ID).Delete(&Reference{}).Error; err != nil {
			return fmt.Errorf("delete revision references: %w", err)
		}
		return createReferences(tx, refs)
	})
}

// UpdateStatus moves a revision from one status to another only if it is
// still in from. A lost race yields a StatusError naming the actual status.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to revision.Status, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&Revision{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("update revision status: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	current, err := getRevision(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	return &errdefs.StatusError{
		Entity:   "revision",
		ID:       id,
		Current:  string(current.Status),
		Expected: []string{string(from)},
		Op:       "transition to " + string(to),
	}
}

// Tombstone marks an artifact deleted. Deleting an already deleted artifact
// yields a StatusError.
func (s *Store) Tombstone(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&Artifact{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at)
	if result.Error != nil {
		return fmt.Errorf("delete artifact: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := s.GetArtifact(ctx, id); err != nil {
		return err
	}
	return &errdefs.StatusError{
		Entity:   "artifact",
		ID:       id,
		Current:  "deleted",
		Expected: []string{"active"},
		Op:       "delete",
	}
}

// GetArtifact returns the artifact with the given id.
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	var a Artifact
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.NotFound("artifact", id)
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return &a, nil
}

// GetRevision returns the revision with the given id.
func (s *Store) GetRevision(ctx context.Context, id string) (*Revision, error) {
	return getRevision(s.db.WithContext(ctx), id)
}

func getRevision(db *gorm.DB, id string) (*Revision, error) {
	var rev Revision
	if err := db.Where("id = ?", id).First(&rev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.NotFound("revision", id)
		}
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return &rev, nil
}

// Latest returns the highest-numbered revision of an artifact.
func (s *Store) Latest(ctx context.Context, artifactID string) (*Revision, error) {
	var rev Revision
	err := s.db.WithContext(ctx).Where("artifact_id = ?", artifactID).Order("number DESC").First(&rev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.NotFound("artifact", artifactID)
		}
		return nil, fmt.Errorf("get latest revision: %w", err)
	}
	return &rev, nil
}

// ListRevisions returns every revision of an artifact in number order.
func (s *Store) ListRevisions(ctx context.Context, artifactID string) ([]Revision, error) {
	var revs []Revision
	if err := s.db.WithContext(ctx).Where("artifact_id = ?", artifactID).Order("number ASC").Find(&revs).Error; err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revs, nil
}

// ListByStatus returns revisions of non-deleted artifacts in a project whose
// status is one of statuses, ordered by artifact and number.
func (s *Store) ListByStatus(ctx context.Context, projectID string, statuses []revision.Status) ([]RevisionWithKind, error) {
	var out []RevisionWithKind
	err := s.db.WithContext(ctx).Model(&Revision{}).
		Select("artifact_revisions.*, artifacts.kind, artifacts.project_id").
		Joins("JOIN artifacts ON artifacts.id = artifact_revisions.artifact_id").
		Where("artifacts.project_id = ? AND artifacts.deleted_at IS NULL", projectID).
		Where("artifact_revisions.status IN ?", statuses).
		Order("artifact_revisions.artifact_id ASC").
		Order("artifact_revisions.number ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list revisions by status: %w", err)
	}
	return out, nil
}

// RevisionsWithKind returns the revisions with the given ids joined with
// their artifact's kind. Unknown ids are omitted.
func (s *Store) RevisionsWithKind(ctx context.Context, ids []string) ([]RevisionWithKind, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []RevisionWithKind
	err := s.db.WithContext(ctx).Model(&Revision{}).
		Select("artifact_revisions.*, artifacts.kind, artifacts.project_id").
		Joins("JOIN artifacts ON artifacts.id = artifact_revisions.artifact_id").
		Where("artifact_revisions.id IN ?", ids).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("get revisions with kind: %w", err)
	}
	return out, nil
}

// References returns the child references of the given parent revisions,
// ordered by parent and position.
func (s *Store) References(ctx context.Context, parentIDs []string) ([]Reference, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var refs []Reference
	err := s.db.WithContext(ctx).
		Where("parent_revision_id IN ?", parentIDs).
		Order("parent_revision_id ASC").
		Order("position ASC").
		Find(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("list revision references: %w", err)
	}
	return refs, nil
}

func createReferences(tx *gorm.DB, refs []Reference) error {
	if len(refs) == 0 {
		return nil
	}
	if err := tx.Create(&refs).Error; err != nil {
		return fmt.Errorf("create revision references: %w", err)
	}
	return nil
}
