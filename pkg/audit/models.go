// Package audit keeps an append-only log of state changes made to revisions,
// releases and waivers.
package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Event types written by the services.
const (
	EventRevisionCreated       = "revision.created"
	EventRevisionUpdated       = "revision.updated"
	EventRevisionStatusChanged = "revision.status_changed"
	EventArtifactDeleted       = "artifact.deleted"
	EventReleaseCreated        = "release.created"
	EventReleaseStatusChanged  = "release.status_changed"
	EventReleaseBaselineSet    = "release.baseline_set"
	EventReleaseApproved       = "release.approved"
	EventGateEvaluated         = "gate.evaluated"
	EventWaiverIssued          = "waiver.issued"
	EventWaiverDeleted         = "waiver.deleted"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
)

// Event is one immutable audit row.
type Event struct {
	ID         string         `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	EventType  string         `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null" json:"eventType"`
	Actor      string         `gorm:"column:actor;not null" json:"actor"`
	ObjectType string         `gorm:"column:object_type;index:idx_audit_object_time,priority:1" json:"objectType"`
	ObjectID   string         `gorm:"column:object_id;index:idx_audit_object_time,priority:2" json:"objectId"`
	Outcome    string         `gorm:"column:outcome;not null" json:"outcome"`
	Reason     string         `gorm:"column:reason" json:"reason,omitempty"`
	OldValue   datatypes.JSON `gorm:"column:old_value" json:"oldValue,omitempty"`
	NewValue   datatypes.JSON `gorm:"column:new_value" json:"newValue,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_object_time,priority:3" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "audit_events" }

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	EventType  string
	ObjectType string
	ObjectID   string
	Actor      string
}
