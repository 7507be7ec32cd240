// Package errdefs defines the error taxonomy shared by the artifact, release,
// waiver and gate packages. Every typed error matches one sentinel through
// errors.Is so callers can branch on the category without knowing the type.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStatusPrecondition = errors.New("status precondition failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrImmutable          = errors.New("content is immutable")
	ErrValidation         = errors.New("validation failed")
	ErrGateBlocked        = errors.New("release gate blocked")
	ErrExpired            = errors.New("expired")
)

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// NotFound returns a NotFoundError for the given kind and key.
func NotFound(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StatusError reports an operation attempted while the owning entity is in a
// status that forbids it. Reason replaces Expected when the status alone is
// not the problem.
type StatusError struct {
	Entity   string   `json:"entity"`
	ID       string   `json:"id"`
	Current  string   `json:"current"`
	Expected []string `json:"expected"`
	Op       string   `json:"op,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func (e *StatusError) Error() string {
	op := e.Op
	if op == "" {
		op = "operation"
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s not allowed on %s %s in status %s: %s", op, e.Entity, e.ID, e.Current, e.Reason)
	}
	return fmt.Sprintf("%s not allowed on %s %s in status %s (requires %s)",
		op, e.Entity, e.ID, e.Current, strings.Join(e.Expected, " or "))
}

func (e *StatusError) Is(target error) bool { return target == ErrStatusPrecondition }

// TransitionError is a structured error for a status edge the state table
// does not contain.
type TransitionError struct {
	Code    string `json:"code"`
	Entity  string `json:"entity"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ImmutableError reports an attempted content change on a non-draft revision.
type ImmutableError struct {
	RevisionID string `json:"revisionId"`
	Status     string `json:"status"`
}

func (e *ImmutableError) Error() string {
	return fmt.Sprintf("revision %s is %s; only draft revisions can be changed", e.RevisionID, e.Status)
}

func (e *ImmutableError) Is(target error) bool { return target == ErrImmutable }

// ValidationError reports a structural problem with caller input.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Invalid returns a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
