// Package release tracks releases through planning, execution, gate check
// and approval, and freezes the test-scenario-list revisions they ship with.
package release

import (
	"time"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Status is the lifecycle status of a release.
type Status string

const (
	StatusPlanning           Status = "planning"
	StatusExecuting          Status = "executing"
	StatusGateCheck          Status = "gate_check"
	StatusApprovedForRelease Status = "approved_for_release"
	StatusReleased           Status = "released"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPlanning, StatusExecuting, StatusGateCheck, StatusApprovedForRelease, StatusReleased}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errdefs.Invalid("status", "unknown release status %q", s)
	}
	return st, nil
}

// Release is a candidate build moving through the gate.
type Release struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ProjectID   string    `gorm:"column:project_id;index;not null" json:"projectId"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Status      Status    `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	BuildRef    string    `gorm:"column:build_ref" json:"buildRef,omitempty"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	CreatedBy   string    `gorm:"column:created_by" json:"createdBy"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName returns the GORM table name.
func (Release) TableName() string { return "releases" }

// Baseline freezes a test-scenario-list revision into a release. Baselines
// are never updated.
type Baseline struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ReleaseID      string    `gorm:"column:release_id;type:varchar(36);index;not null" json:"releaseId"`
	ListRevisionID string    `gorm:"column:list_revision_id;type:varchar(36);not null" json:"listRevisionId"`
	CreatedBy      string    `gorm:"column:created_by" json:"createdBy"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Baseline) TableName() string { return "release_baselines" }
