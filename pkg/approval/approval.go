// Package approval records sign-off decisions on releases.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Verdict of an approval decision.
type Verdict string

// VerdictApprove is the only verdict recorded today.
const VerdictApprove Verdict = "approve"

// Record is one approval decision on an object.
type Record struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ObjectType string    `gorm:"column:object_type;not null;index:idx_approval_object,priority:1" json:"objectType"`
	ObjectID   string    `gorm:"column:object_id;type:varchar(36);not null;index:idx_approval_object,priority:2" json:"objectId"`
	Verdict    Verdict   `gorm:"column:verdict;type:varchar(16);not null" json:"verdict"`
	Approver   string    `gorm:"column:approver;not null" json:"approver"`
	Comment    string    `gorm:"column:comment" json:"comment,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_approval_object,priority:3" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "approvals" }

// Store persists approval decisions.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the approvals table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto-migrate approvals: %w", err)
	}
	return nil
}

// RecordApproval appends an approve decision for the object.
func (s *Store) RecordApproval(ctx context.Context, objectType, objectID, approver, comment string) (*Record, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, errdefs.Invalid("approver", "must not be empty")
	}
	rec := &Record{
		ID:         uuid.New().String(),
		ObjectType: objectType,
		ObjectID:   objectID,
		Verdict:    VerdictApprove,
		Approver:   approver,
		Comment:    comment,
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("record approval: %w", err)
	}
	return rec, nil
}

// ListForObject returns the decisions on an object, oldest first.
func (s *Store) ListForObject(ctx context.Context, objectType, objectID string) ([]Record, error) {
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("object_type = ? AND object_id = ?", objectType, objectID).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return recs, nil
}
