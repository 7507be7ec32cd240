// Package artifact stores versioned QA artifacts and their revisions and
// applies the revision lifecycle to them.
package artifact

import (
	"time"

	"gorm.io/datatypes"

	"github.com/qagate/qagate/pkg/revision"
)

// Kind identifies the artifact type.
type Kind string

const (
	KindTestCase         Kind = "test_case"
	KindTestScenario     Kind = "test_scenario"
	KindTestScenarioList Kind = "test_scenario_list"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTestCase, KindTestScenario, KindTestScenarioList:
		return true
	}
	return false
}

// Artifact is the stable identity a lineage of revisions hangs off.
type Artifact struct {
	ID        string     `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	Kind      Kind       `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	ProjectID string     `gorm:"column:project_id;index;not null" json:"projectId"`
	Name      string     `gorm:"column:name;not null" json:"name"`
	CreatedBy string     `gorm:"column:created_by" json:"createdBy"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"createdAt"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deletedAt,omitempty"`
}

// TableName returns the GORM table name.
func (Artifact) TableName() string { return "artifacts" }

// Deleted reports whether the artifact has been tombstoned.
func (a *Artifact) Deleted() bool { return a.DeletedAt != nil }

// Revision is one numbered version of an artifact.
type Revision struct {
	ID         string                      `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ArtifactID string                      `gorm:"column:artifact_id;type:varchar(36);not null;uniqueIndex:idx_revision_number,priority:1" json:"artifactId"`
	Number     int                         `gorm:"column:number;not null;uniqueIndex:idx_revision_number,priority:2" json:"number"`
	Status     revision.Status             `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Title      string                      `gorm:"column:title;not null" json:"title"`
	Content    datatypes.JSONType[Content] `gorm:"column:content" json:"content"`
	Reason     string                      `gorm:"column:reason" json:"reason,omitempty"`
	CreatedBy  string                      `gorm:"column:created_by" json:"createdBy"`
	CreatedAt  time.Time                   `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName returns the GORM table name.
func (Revision) TableName() string { return "artifact_revisions" }

// Reference links a parent revision to a child revision it includes.
// Scenario revisions reference case revisions; list revisions reference
// scenario revisions.
type Reference struct {
	ID               string      `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ParentRevisionID string      `gorm:"column:parent_revision_id;type:varchar(36);index;not null" json:"parentRevisionId"`
	ChildRevisionID  string      `gorm:"column:child_revision_id;type:varchar(36);index;not null" json:"childRevisionId"`
	Position         int         `gorm:"column:position;not null" json:"position"`
	Optional         bool        `gorm:"column:optional" json:"optional"`
	IncludeRule      IncludeRule `gorm:"column:include_rule;type:varchar(20)" json:"includeRule,omitempty"`
}

// TableName returns the GORM table name.
func (Reference) TableName() string { return "revision_references" }

// RevisionWithKind is a revision joined with its artifact's kind and project.
type RevisionWithKind struct {
	Revision
	Kind      Kind   `gorm:"column:kind" json:"kind"`
	ProjectID string `gorm:"column:project_id" json:"projectId"`
}
