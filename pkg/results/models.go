// Package results records test execution under a release: run groups hold
// test runs, runs hold items bound to case revisions, items collect results,
// and results may link external bugs.
package results

import "time"

// Outcome of a single test result.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeBlocked Outcome = "blocked"
	OutcomeSkipped Outcome = "skipped"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePass, OutcomeFail, OutcomeBlocked, OutcomeSkipped:
		return true
	}
	return false
}

// Severity of a linked bug.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// BlockingSeverities are the bug severities that fail the critical-bug signal.
var BlockingSeverities = []Severity{SeverityCritical, SeverityHigh}

// RunGroup groups test runs executed for a release.
type RunGroup struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ReleaseID string    `gorm:"column:release_id;type:varchar(36);index;not null" json:"releaseId"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (RunGroup) TableName() string { return "run_groups" }

// TestRun is one execution pass inside a run group.
type TestRun struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	RunGroupID  string    `gorm:"column:run_group_id;type:varchar(36);index;not null" json:"runGroupId"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Environment string    `gorm:"column:environment" json:"environment,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (TestRun) TableName() string { return "test_runs" }

// RunItem binds a case revision to a test run.
type RunItem struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	TestRunID      string    `gorm:"column:test_run_id;type:varchar(36);index;not null" json:"testRunId"`
	CaseRevisionID string    `gorm:"column:case_revision_id;type:varchar(36);index;not null" json:"caseRevisionId"`
	Position       int       `gorm:"column:position;not null" json:"position"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (RunItem) TableName() string { return "run_items" }

// TestResult is one recorded outcome of a run item.
type TestResult struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	RunItemID  string    `gorm:"column:run_item_id;type:varchar(36);index:idx_result_item_time,priority:1;not null" json:"runItemId"`
	Outcome    Outcome   `gorm:"column:outcome;type:varchar(16);not null" json:"outcome"`
	RecordedBy string    `gorm:"column:recorded_by" json:"recordedBy"`
	RecordedAt time.Time `gorm:"column:recorded_at;index:idx_result_item_time,priority:2" json:"recordedAt"`
	Note       string    `gorm:"column:note" json:"note,omitempty"`
}

// TableName returns the GORM table name.
func (TestResult) TableName() string { return "test_results" }

// BugLink ties a result to a bug in an external tracker.
type BugLink struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ResultID   string    `gorm:"column:result_id;type:varchar(36);index;not null" json:"resultId"`
	ExternalID string    `gorm:"column:external_id;not null" json:"externalId"`
	Severity   Severity  `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Title      string    `gorm:"column:title" json:"title,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName returns the GORM table name.
func (BugLink) TableName() string { return "bug_links" }
