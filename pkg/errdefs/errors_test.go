package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NotFound("waiver", "w-1"), ErrNotFound},
		{"status", &StatusError{Entity: "release", ID: "r-1", Current: "planning", Expected: []string{"gate_check"}}, ErrStatusPrecondition},
		{"transition", &TransitionError{Code: "X", From: "a", To: "b", Message: "no"}, ErrInvalidTransition},
		{"immutable", &ImmutableError{RevisionID: "rev-1", Status: "approved"}, ErrImmutable},
		{"validation", Invalid("reason", "must not be empty"), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotErrorIs(t, wrapped, errors.New("other"))
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{
		Entity:   "release",
		ID:       "r-1",
		Current:  "planning",
		Expected: []string{"executing", "gate_check"},
		Op:       "evaluate gate",
	}
	assert.Equal(t, "evaluate gate not allowed on release r-1 in status planning (requires executing or gate_check)", err.Error())
}

func TestStatusError_ReasonMessage(t *testing.T) {
	err := &StatusError{
		Entity:  "revision",
		ID:      "rev-1",
		Current: "deprecated",
		Op:      "restart",
		Reason:  "superseded by revision 2",
	}
	assert.Equal(t, "restart not allowed on revision rev-1 in status deprecated: superseded by revision 2", err.Error())
}

func TestNotFoundError_CarriesKey(t *testing.T) {
	var nf *NotFoundError
	err := fmt.Errorf("lookup: %w", NotFound("release", "abc"))
	if assert.ErrorAs(t, err, &nf) {
		assert.Equal(t, "release", nf.Kind)
		assert.Equal(t, "abc", nf.Key)
	}
}
