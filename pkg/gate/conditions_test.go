package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qagate/qagate/pkg/errdefs"
)

func TestDefaultConditions(t *testing.T) {
	conds := DefaultConditions()
	require.Len(t, conds, 5)
	require.NoError(t, ValidateConditions(conds))

	byType := map[ConditionType]Condition{}
	for _, c := range conds {
		byType[c.Type] = c
	}
	assert.True(t, byType[AllTestsPass].Required)
	assert.True(t, byType[AllApprovalsComplete].Required)
	assert.True(t, byType[NoCriticalBugs].Required)
	assert.True(t, byType[MinimumCoverage].Required)
	assert.Equal(t, 80.0, byType[MinimumCoverage].threshold())
	assert.False(t, byType[NoUnapprovedChanges].Required)
}

func TestValidateConditions(t *testing.T) {
	over := 120.0
	under := -1.0
	ok := 0.0

	tests := []struct {
		name    string
		conds   []Condition
		wantErr bool
	}{
		{"empty", nil, false},
		{"unknown type", []Condition{{Name: "x", Type: "no_flaky_tests"}}, true},
		{"threshold above 100", []Condition{{Type: MinimumCoverage, Threshold: &over}}, true},
		{"negative threshold", []Condition{{Type: MinimumCoverage, Threshold: &under}}, true},
		{"zero threshold", []Condition{{Type: MinimumCoverage, Threshold: &ok}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConditions(tt.conds)
			if tt.wantErr {
				assert.ErrorIs(t, err, errdefs.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConditions(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		conds, err := LoadConditions(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConditions(), conds)
	})

	t.Run("empty path yields defaults", func(t *testing.T) {
		conds, err := LoadConditions("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConditions(), conds)
	})

	t.Run("custom conditions", func(t *testing.T) {
		path := filepath.Join(dir, "gate.yaml")
		data := `conditions:
  - name: Coverage floor
    type: minimum_coverage
    required: true
    threshold: 60
  - type: no_unapproved_changes
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		conds, err := LoadConditions(path)
		require.NoError(t, err)
		require.Len(t, conds, 2)
		assert.Equal(t, "Coverage floor", conds[0].Name)
		assert.Equal(t, 60.0, conds[0].threshold())
		assert.Equal(t, "no_unapproved_changes", conds[1].Name)
		assert.False(t, conds[1].Required)
	})

	t.Run("unknown type", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("conditions:\n  - type: vibes\n"), 0o600))
		_, err := LoadConditions(path)
		assert.ErrorIs(t, err, errdefs.ErrValidation)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("conditions: [\n"), 0o600))
		_, err := LoadConditions(path)
		assert.ErrorContains(t, err, "parse gate conditions")
	})
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityCritical, severityFor(Condition{Type: NoUnapprovedChanges, Required: true}))
	assert.Equal(t, SeverityCritical, severityFor(Condition{Type: AllTestsPass, Required: true}))
	assert.Equal(t, SeverityWarning, severityFor(Condition{Type: AllTestsPass}))
	assert.Equal(t, SeverityWarning, severityFor(Condition{Type: MinimumCoverage}))
	assert.Equal(t, SeverityInfo, severityFor(Condition{Type: NoUnapprovedChanges}))
}

func TestPassed(t *testing.T) {
	tests := []struct {
		name       string
		violations []Violation
		want       bool
	}{
		{"no violations", nil, true},
		{"warning only", []Violation{{Severity: SeverityWarning}}, true},
		{"info only", []Violation{{Severity: SeverityInfo}}, true},
		{"waived critical", []Violation{{Severity: SeverityCritical, HasWaiver: true}}, true},
		{"unwaived critical", []Violation{{Severity: SeverityCritical}}, false},
		{"mixed", []Violation{
			{Severity: SeverityCritical, HasWaiver: true},
			{Severity: SeverityWarning},
			{Severity: SeverityCritical},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passed(tt.violations))
			res := &Result{Violations: tt.violations, Passed: passed(tt.violations)}
			assert.Equal(t, tt.want, len(res.BlockingViolations()) == 0)
		})
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "50", formatPercent(50))
	assert.Equal(t, "80", formatPercent(80.0))
	assert.Equal(t, "33.33", formatPercent(100.0/3))
	assert.Equal(t, "66.67", formatPercent(200.0/3))
}

func TestBlockedError(t *testing.T) {
	err := &BlockedError{ReleaseID: "rel-1", Violations: []Violation{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical, HasWaiver: true},
		{Severity: SeverityWarning},
	}}
	assert.ErrorIs(t, err, errdefs.ErrGateBlocked)
	assert.Equal(t, "release rel-1 is blocked by 1 unwaived critical violation(s)", err.Error())
}
