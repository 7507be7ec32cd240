package artifact

import (
	"strings"

	"github.com/qagate/qagate/pkg/errdefs"
)

// Priority of a test case.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IncludeRule controls when a scenario in a list is run.
type IncludeRule string

const (
	IncludeAlways     IncludeRule = "always"
	IncludeSmoke      IncludeRule = "smoke"
	IncludeRegression IncludeRule = "regression"
	IncludeManual     IncludeRule = "manual"
)

// Step is one numbered action in a test case.
type Step struct {
	Position int    `json:"position"`
	Action   string `json:"action"`
	Expected string `json:"expected,omitempty"`
}

// CaseRef points a scenario at a case revision.
type CaseRef struct {
	RevisionID string `json:"revisionId"`
	Optional   bool   `json:"optional,omitempty"`
}

// ScenarioRef points a list at a scenario revision.
type ScenarioRef struct {
	RevisionID  string      `json:"revisionId"`
	IncludeRule IncludeRule `json:"includeRule,omitempty"`
}

// Content is the revision payload. Which fields apply depends on the
// artifact kind: steps and the case fields for test cases, Cases for
// scenarios and Scenarios for lists.
type Content struct {
	Steps          []Step        `json:"steps,omitempty"`
	ExpectedResult string        `json:"expectedResult,omitempty"`
	Priority       Priority      `json:"priority,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	Environment    string        `json:"environment,omitempty"`
	Cases          []CaseRef     `json:"cases,omitempty"`
	Scenarios      []ScenarioRef `json:"scenarios,omitempty"`
}

// childKind returns the kind a revision of kind k may reference.
func childKind(k Kind) (Kind, bool) {
	switch k {
	case KindTestScenario:
		return KindTestCase, true
	case KindTestScenarioList:
		return KindTestScenario, true
	}
	return "", false
}

// validateShape checks the parts of the content that need no store lookup.
func validateShape(kind Kind, title string, c Content) error {
	if strings.TrimSpace(title) == "" {
		return errdefs.Invalid("title", "must not be empty")
	}

	switch kind {
	case KindTestCase:
		if len(c.Cases) > 0 || len(c.Scenarios) > 0 {
			return errdefs.Invalid("content", "a test case cannot reference other revisions")
		}
		for i, s := range c.Steps {
			if s.Position != i+1 {
				return errdefs.Invalid("steps", "step %d has position %d; steps must be numbered 1..n", i+1, s.Position)
			}
			if strings.TrimSpace(s.Action) == "" {
				return errdefs.Invalid("steps", "step %d has an empty action", s.Position)
			}
		}
		switch c.Priority {
		case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		default:
			return errdefs.Invalid("priority", "unknown priority %q", c.Priority)
		}
	case KindTestScenario:
		if len(c.Steps) > 0 || len(c.Scenarios) > 0 {
			return errdefs.Invalid("content", "a test scenario may only reference case revisions")
		}
	case KindTestScenarioList:
		if len(c.Steps) > 0 || len(c.Cases) > 0 {
			return errdefs.Invalid("content", "a test scenario list may only reference scenario revisions")
		}
		for _, ref := range c.Scenarios {
			switch ref.IncludeRule {
			case "", IncludeAlways, IncludeSmoke, IncludeRegression, IncludeManual:
			default:
				return errdefs.Invalid("includeRule", "unknown include rule %q", ref.IncludeRule)
			}
		}
	default:
		return errdefs.Invalid("kind", "unknown artifact kind %q", kind)
	}

	seen := make(map[string]bool)
	for _, id := range c.referencedIDs() {
		if id == "" {
			return errdefs.Invalid("content", "reference with empty revision id")
		}
		if seen[id] {
			return errdefs.Invalid("content", "revision %s is referenced more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// referencedIDs returns the child revision ids in position order.
func (c Content) referencedIDs() []string {
	ids := make([]string, 0, len(c.Cases)+len(c.Scenarios))
	for _, ref := range c.Cases {
		ids = append(ids, ref.RevisionID)
	}
	for _, ref := range c.Scenarios {
		ids = append(ids, ref.RevisionID)
	}
	return ids
}

// references converts the content's refs into rows for parentID.
func (c Content) references(parentID string, newID func() string) []Reference {
	refs := make([]Reference, 0, len(c.Cases)+len(c.Scenarios))
	for i, ref := range c.Cases {
		refs = append(refs, Reference{
			ID:               newID(),
			ParentRevisionID: parentID,
			ChildRevisionID:  ref.RevisionID,
			Position:         i + 1,
			Optional:         ref.Optional,
		})
	}
	for i, ref := range c.Scenarios {
		rule := ref.IncludeRule
		if rule == "" {
			rule = IncludeAlways
		}
		refs = append(refs, Reference{
			ID:               newID(),
			ParentRevisionID: parentID,
			ChildRevisionID:  ref.RevisionID,
			Position:         i + 1,
			IncludeRule:      rule,
		})
	}
	return refs
}
