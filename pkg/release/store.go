package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Store persists releases and baselines.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the release tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Release{}); err != nil {
		return fmt.Errorf("auto-migrate releases: %w", err)
	}
	if err := s.db.AutoMigrate(&Baseline{}); err != nil {
		return fmt.Errorf("auto-migrate release_baselines: %w", err)
	}
	return nil
}

// Create inserts a release.
func (s *Store) Create(ctx context.Context, r *Release) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create release: %w", err)
	}
	return nil
}

// Get returns a release by id.
func (s *Store) Get(ctx context.Context, id string) (*Release, error) {
	return getRelease(s.db.WithContext(ctx), id)
}

func getRelease(db *gorm.DB, id string) (*Release, error) {
	var r Release
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.NotFound("release", id)
		}
		return nil, fmt.Errorf("get release: %w", err)
	}
	return &r, nil
}

// Exists returns a NotFoundError if no release has the id.
func (s *Store) Exists(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Release{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check release: %w", err)
	}
	if n == 0 {
		return errdefs.NotFound("release", id)
	}
	return nil
}

// List returns releases of a project, newest first. An empty projectID
// lists every release.
func (s *Store) List(ctx context.Context, projectID string) ([]Release, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	var rs []Release
	if err := query.Find(&rs).Error; err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return rs, nil
}

// CompareAndSwapStatus moves a release from one status to another only if
// it is still in from. A lost race yields a StatusError naming the actual
// status.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	return casStatus(s.db.WithContext(ctx), id, from, to, at)
}

func casStatus(db *gorm.DB, id string, from, to Status, at time.Time) error {
	result := db.Model(&Release{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("update release status: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	current, err := getRelease(db, id)
	if err != nil {
		return err
	}
	return &errdefs.StatusError{
		Entity:   "release",
		ID:       id,
		Current:  string(current.Status),
		Expected: []string{string(from)},
		Op:       "transition to " + string(to),
	}
}

// AddBaseline inserts a baseline. The release must accept baselines; when
// it is still planning it advances to executing in the same transaction.
// It returns the release as it stands after the insert.
func (s *Store) AddBaseline(ctx context.Context, b *Baseline) (*Release, error) {
	var out *Release
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := getRelease(tx, b.ReleaseID)
		if err != nil {
			return err
		}
		if !AcceptsBaselines(r.Status) {
			return &errdefs.StatusError{
				Entity:   "release",
				ID:       r.ID,
				Current:  string(r.Status),
				Expected: []string{string(StatusPlanning), string(StatusExecuting)},
				Op:       "set baseline",
			}
		}
		if err := tx.Create(b).Error; err != nil {
			return fmt.Errorf("create baseline: %w", err)
		}
		if r.Status == StatusPlanning {
			if err := casStatus(tx, r.ID, StatusPlanning, StatusExecuting, b.CreatedAt); err != nil {
				return err
			}
			r.Status = StatusExecuting
			r.UpdatedAt = b.CreatedAt
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Baselines returns the baselines of a release in creation order.
func (s *Store) Baselines(ctx context.Context, releaseID string) ([]Baseline, error) {
	var bs []Baseline
	err := s.db.WithContext(ctx).
		Where("release_id = ?", releaseID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&bs).Error
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	return bs, nil
}
