package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/qagate/qagate/pkg/errdefs"
	"github.com/qagate/qagate/pkg/gate"
	"github.com/qagate/qagate/pkg/waiver"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error      string           `json:"error"`
	Code       string           `json:"code"`
	Current    string           `json:"current,omitempty"`
	Expected   []string         `json:"expected,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	From       string           `json:"from,omitempty"`
	To         string           `json:"to,omitempty"`
	Violations []gate.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps a service error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorResponse) {
	body := errorResponse{Error: err.Error()}

	var (
		blocked    *gate.BlockedError
		expired    *waiver.ExpiredError
		transition *errdefs.TransitionError
		status     *errdefs.StatusError
	)
	switch {
	case errors.As(err, &blocked):
		body.Code = "GATE_BLOCKED"
		body.Violations = blocked.Violations
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &expired):
		body.Code = "WAIVER_EXPIRED"
		return http.StatusGone, body
	case errors.Is(err, errdefs.ErrNotFound):
		body.Code = "NOT_FOUND"
		return http.StatusNotFound, body
	case errors.As(err, &transition):
		body.Code = transition.Code
		body.Current = transition.From
		body.From = transition.From
		body.To = transition.To
		return http.StatusConflict, body
	case errors.As(err, &status):
		body.Code = "STATUS_PRECONDITION_FAILED"
		body.Current = status.Current
		body.Expected = status.Expected
		body.Reason = status.Reason
		return http.StatusConflict, body
	case errors.Is(err, errdefs.ErrImmutable):
		body.Code = "REVISION_IMMUTABLE"
		return http.StatusConflict, body
	case errors.Is(err, errdefs.ErrValidation):
		body.Code = "VALIDATION_FAILED"
		return http.StatusBadRequest, body
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"}
	}
}

// decode reads a JSON body into v. An empty body is accepted when optional
// is set.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errdefs.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

func notFound(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown %s", what))
}
