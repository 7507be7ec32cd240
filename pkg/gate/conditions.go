// Package gate aggregates release signals and evaluates them against gate
// conditions to decide whether a release may be approved.
package gate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qagate/qagate/pkg/errdefs"
)

// ConditionType selects which signal a condition checks.
type ConditionType string

const (
	MinimumCoverage      ConditionType = "minimum_coverage"
	AllTestsPass         ConditionType = "all_tests_pass"
	NoCriticalBugs       ConditionType = "no_critical_bugs"
	AllApprovalsComplete ConditionType = "all_approvals_complete"
	NoUnapprovedChanges  ConditionType = "no_unapproved_changes"
)

// DefaultCoverageThreshold applies when a minimum_coverage condition has no
// threshold.
const DefaultCoverageThreshold = 80.0

// Valid reports whether t is a known condition type.
func (t ConditionType) Valid() bool {
	switch t {
	case MinimumCoverage, AllTestsPass, NoCriticalBugs, AllApprovalsComplete, NoUnapprovedChanges:
		return true
	}
	return false
}

// Condition is one rule the gate checks.
type Condition struct {
	Name      string        `json:"name" yaml:"name"`
	Type      ConditionType `json:"type" yaml:"type"`
	Required  bool          `json:"required" yaml:"required"`
	Threshold *float64      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// threshold returns the coverage threshold, falling back to the default.
func (c Condition) threshold() float64 {
	if c.Threshold == nil {
		return DefaultCoverageThreshold
	}
	return *c.Threshold
}

// DefaultConditions returns the conditions used when none are configured.
func DefaultConditions() []Condition {
	threshold := DefaultCoverageThreshold
	return []Condition{
		{Name: "All tests pass", Type: AllTestsPass, Required: true},
		{Name: "All approvals complete", Type: AllApprovalsComplete, Required: true},
		{Name: "Minimum coverage", Type: MinimumCoverage, Required: true, Threshold: &threshold},
		{Name: "No critical bugs", Type: NoCriticalBugs, Required: true},
		{Name: "No unapproved changes", Type: NoUnapprovedChanges, Required: false},
	}
}

// ValidateConditions checks every condition has a known type and a usable
// threshold.
func ValidateConditions(conds []Condition) error {
	for i, c := range conds {
		if !c.Type.Valid() {
			return errdefs.Invalid("conditions", "condition %d has unknown type %q", i, c.Type)
		}
		if c.Threshold != nil && (*c.Threshold < 0 || *c.Threshold > 100) {
			return errdefs.Invalid("conditions", "condition %d threshold %.2f is outside 0..100", i, *c.Threshold)
		}
	}
	return nil
}

// conditionsFile is the on-disk layout of a gate condition file.
type conditionsFile struct {
	Conditions []Condition `yaml:"conditions"`
}

// LoadConditions reads gate conditions from a YAML file. A missing file or
// one with no conditions yields the defaults.
func LoadConditions(path string) ([]Condition, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConditions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConditions(), nil
		}
		return nil, fmt.Errorf("read gate conditions: %w", err)
	}

	var f conditionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse gate conditions: %w", err)
	}
	if len(f.Conditions) == 0 {
		return DefaultConditions(), nil
	}
	for i := range f.Conditions {
		if f.Conditions[i].Name == "" {
			f.Conditions[i].Name = string(f.Conditions[i].Type)
		}
	}
	if err := ValidateConditions(f.Conditions); err != nil {
		return nil, err
	}
	return f.Conditions, nil
}
