package waiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Store persists waivers.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the waivers table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Waiver{}); err != nil {
		return fmt.Errorf("auto-migrate waivers: %w", err)
	}
	return nil
}

// Create inserts a waiver.
func (s *Store) Create(ctx context.Context, w *Waiver) error {
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("create waiver: %w", err)
	}
	return nil
}

// Get returns a waiver by id.
func (s *Store) Get(ctx context.Context, id string) (*Waiver, error) {
	var w Waiver
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.NotFound("waiver", id)
		}
		return nil, fmt.Errorf("get waiver: %w", err)
	}
	return &w, nil
}

// FindValidForTarget returns the most recently issued waiver for the target
// that is still in force at now, or nil. A nil targetID only matches waivers
// issued without a target id.
func (s *Store) FindValidForTarget(ctx context.Context, releaseID string, targetType TargetType, targetID *string, now time.Time) (*Waiver, error) {
	query := s.db.WithContext(ctx).
		Where("release_id = ? AND target_type = ? AND expires_at > ?", releaseID, targetType, now)
	if targetID == nil {
		query = query.Where("target_id IS NULL")
	} else {
		query = query.Where("target_id = ?", *targetID)
	}

	var w Waiver
	err := query.Order("created_at DESC").Order("id DESC").First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find waiver for target: %w", err)
	}
	return &w, nil
}

// ListForRelease returns every waiver issued under a release, newest first.
func (s *Store) ListForRelease(ctx context.Context, releaseID string) ([]Waiver, error) {
	var ws []Waiver
	err := s.db.WithContext(ctx).
		Where("release_id = ?", releaseID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&ws).Error
	if err != nil {
		return nil, fmt.Errorf("list waivers: %w", err)
	}
	return ws, nil
}

// FindExpired returns every waiver whose expiry is strictly before now.
func (s *Store) FindExpired(ctx context.Context, now time.Time) ([]Waiver, error) {
	var ws []Waiver
	if err := s.db.WithContext(ctx).Where("expires_at < ?", now).Order("expires_at ASC").Find(&ws).Error; err != nil {
		return nil, fmt.Errorf("find expired waivers: %w", err)
	}
	return ws, nil
}

// Delete removes a waiver. A missing waiver yields a NotFoundError.
func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Waiver{})
	if result.Error != nil {
		return fmt.Errorf("delete waiver: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errdefs.NotFound("waiver", id)
	}
	return nil
}
