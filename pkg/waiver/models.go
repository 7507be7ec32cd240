// Package waiver issues time-bounded exemptions that let a release pass a
// gate despite a specific violation.
package waiver

import (
	"fmt"
	"time"

	"github.com/qagate/qagate/pkg/errdefs"
)

// TargetType is what kind of violation a waiver covers.
type TargetType string

const (
	TargetFailResult         TargetType = "fail_result"
	TargetUnapprovedRevision TargetType = "unapproved_revision"
	TargetUnexecutedTest     TargetType = "unexecuted_test"
	TargetOther              TargetType = "other"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetFailResult, TargetUnapprovedRevision, TargetUnexecutedTest, TargetOther:
		return true
	}
	return false
}

// Waiver exempts one target under a release until ExpiresAt.
type Waiver struct {
	ID         string     `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ReleaseID  string     `gorm:"column:release_id;type:varchar(36);not null;index:idx_waiver_target,priority:1" json:"releaseId"`
	TargetType TargetType `gorm:"column:target_type;type:varchar(32);not null;index:idx_waiver_target,priority:2" json:"targetType"`
	TargetID   *string    `gorm:"column:target_id;type:varchar(64);index:idx_waiver_target,priority:3" json:"targetId,omitempty"`
	Reason     string     `gorm:"column:reason;not null" json:"reason"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;index;not null" json:"expiresAt"`
	IssuedBy   string     `gorm:"column:issued_by;not null" json:"issuedBy"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Waiver) TableName() string { return "waivers" }

// ValidAt reports whether the waiver is in force at now. A waiver expires at
// the instant now reaches ExpiresAt.
func (w *Waiver) ValidAt(now time.Time) bool {
	return now.Before(w.ExpiresAt)
}

// ExpiredError reports a waiver that is no longer in force.
type ExpiredError struct {
	WaiverID  string    `json:"waiverId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("waiver %s expired at %s", e.WaiverID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *ExpiredError) Is(target error) bool { return target == errdefs.ErrExpired }

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	Expired []Waiver `json:"expired"`
	Deleted int      `json:"deleted"`
}
