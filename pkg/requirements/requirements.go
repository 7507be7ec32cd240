// Package requirements stores project requirements and which case revisions
// cover them.
package requirements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/errdefs"
)

// Requirement is a project-level requirement.
type Requirement struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ProjectID string    `gorm:"column:project_id;not null;uniqueIndex:idx_requirement_key,priority:1" json:"projectId"`
	Key       string    `gorm:"column:key;not null;uniqueIndex:idx_requirement_key,priority:2" json:"key"`
	Title     string    `gorm:"column:title" json:"title"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Requirement) TableName() string { return "requirements" }

// Coverage records that a case revision covers a requirement.
type Coverage struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	RequirementID  string    `gorm:"column:requirement_id;type:varchar(36);not null;uniqueIndex:idx_coverage_pair,priority:1" json:"requirementId"`
	CaseRevisionID string    `gorm:"column:case_revision_id;type:varchar(36);not null;uniqueIndex:idx_coverage_pair,priority:2;index" json:"caseRevisionId"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Coverage) TableName() string { return "requirement_coverage" }

// Store persists requirements and coverage rows.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the requirement tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Requirement{}); err != nil {
		return fmt.Errorf("auto-migrate requirements: %w", err)
	}
	if err := s.db.AutoMigrate(&Coverage{}); err != nil {
		return fmt.Errorf("auto-migrate requirement_coverage: %w", err)
	}
	return nil
}

// Get returns a requirement by id.
func (s *Store) Get(ctx context.Context, id string) (*Requirement, error) {
	var r Requirement
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.NotFound("requirement", id)
		}
		return nil, fmt.Errorf("get requirement: %w", err)
	}
	return &r, nil
}

// CountForProject returns how many requirements the project has.
func (s *Store) CountForProject(ctx context.Context, projectID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Requirement{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count requirements: %w", err)
	}
	return n, nil
}

// CoveredRequirementIDs returns the distinct ids of the project's
// requirements covered by any of the case revisions.
func (s *Store) CoveredRequirementIDs(ctx context.Context, projectID string, caseRevisionIDs []string) ([]string, error) {
	if len(caseRevisionIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&Coverage{}).
		Distinct("requirement_coverage.requirement_id").
		Joins("JOIN requirements ON requirements.id = requirement_coverage.requirement_id").
		Where("requirements.project_id = ?", projectID).
		Where("requirement_coverage.case_revision_id IN ?", caseRevisionIDs).
		Pluck("requirement_coverage.requirement_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list covered requirements: %w", err)
	}
	return ids, nil
}

// RevisionLookup resolves revisions with their artifact kind.
type RevisionLookup interface {
	RevisionsWithKind(ctx context.Context, ids []string) ([]artifact.RevisionWithKind, error)
}

// Service manages requirements and coverage.
type Service struct {
	store     *Store
	revisions RevisionLookup

	// Clock returns the current time. Defaults to UTC wall time.
	Clock func() time.Time
}

// NewService creates a Service.
func NewService(store *Store, revisions RevisionLookup) *Service {
	return &Service{
		store:     store,
		revisions: revisions,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying store.
func (s *Service) Store() *Store { return s.store }

// Create adds a requirement to a project.
func (s *Service) Create(ctx context.Context, projectID, key, title string) (*Requirement, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errdefs.Invalid("projectId", "must not be empty")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errdefs.Invalid("key", "must not be empty")
	}
	r := &Requirement{ID: uuid.New().String(), ProjectID: projectID, Key: key, Title: title, CreatedAt: s.Clock()}
	if err := s.store.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("create requirement: %w", err)
	}
	return r, nil
}

// Cover records that a case revision covers a requirement. The revision must
// belong to a test case in the requirement's project.
func (s *Service) Cover(ctx context.Context, requirementID, caseRevisionID string) (*Coverage, error) {
	req, err := s.store.Get(ctx, requirementID)
	if err != nil {
		return nil, err
	}
	revs, err := s.revisions.RevisionsWithKind(ctx, []string{caseRevisionID})
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, errdefs.NotFound("revision", caseRevisionID)
	}
	if revs[0].Kind != artifact.KindTestCase {
		return nil, errdefs.Invalid("caseRevisionId", "revision %s is a %s, expected %s", caseRevisionID, revs[0].Kind, artifact.KindTestCase)
	}
	if revs[0].ProjectID != req.ProjectID {
		return nil, errdefs.Invalid("caseRevisionId", "revision %s belongs to project %s, not %s", caseRevisionID, revs[0].ProjectID, req.ProjectID)
	}
	c := &Coverage{ID: uuid.New().String(), RequirementID: req.ID, CaseRevisionID: caseRevisionID, CreatedAt: s.Clock()}
	if err := s.store.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create requirement coverage: %w", err)
	}
	return c, nil
}
