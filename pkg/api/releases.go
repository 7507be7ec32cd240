package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qagate/qagate/pkg/gate"
	"github.com/qagate/qagate/pkg/release"
)

// createRelease handles POST /api/v1/releases
func (s *Server) createRelease(w http.ResponseWriter, r *http.Request) {
	var in release.CreateInput
	if err := decode(r, &in, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in.Actor = UserFromContext(r.Context())
	rel, err := s.svc.Releases.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// listReleases handles GET /api/v1/releases?projectId=
func (s *Server) listReleases(w http.ResponseWriter, r *http.Request) {
	rs, err := s.svc.Releases.List(r.Context(), r.URL.Query().Get("projectId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": rs})
}

// getRelease handles GET /api/v1/releases/{id}
func (s *Server) getRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := s.svc.Releases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// transitionRelease handles POST /api/v1/releases/{id}/transition
func (s *Server) transitionRelease(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	to, err := release.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	rel, err := s.svc.Releases.Transition(r.Context(), chi.URLParam(r, "id"), to, UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

type baselineRequest struct {
	ListRevisionID string `json:"listRevisionId"`
}

type baselineResponse struct {
	Baseline *release.Baseline `json:"baseline"`
	Release  *release.Release  `json:"release"`
}

// setBaseline handles POST /api/v1/releases/{id}/baselines
func (s *Server) setBaseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	b, rel, err := s.svc.Releases.SetBaseline(r.Context(), chi.URLParam(r, "id"), req.ListRevisionID, UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, baselineResponse{Baseline: b, Release: rel})
}

// listBaselines handles GET /api/v1/releases/{id}/baselines
func (s *Server) listBaselines(w http.ResponseWriter, r *http.Request) {
	bs, err := s.svc.Releases.Baselines(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"baselines": bs})
}

type evaluateRequest struct {
	Conditions []gate.Condition `json:"conditions,omitempty"`
}

// evaluateGate handles POST /api/v1/releases/{id}/gate/evaluate. The body
// may be empty to use the configured conditions.
func (s *Server) evaluateGate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decode(r, &req, true); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	res, err := s.svc.Gate.Evaluate(r.Context(), chi.URLParam(r, "id"), req.Conditions)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type approveRequest struct {
	Comment string `json:"comment,omitempty"`
}

// approveRelease handles POST /api/v1/releases/{id}/approve
func (s *Server) approveRelease(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decode(r, &req, true); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Releases.Approve(r.Context(), chi.URLParam(r, "id"), UserFromContext(r.Context()), req.Comment)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// signal handles GET /api/v1/releases/{id}/signals/{signal}
func (s *Server) signal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rel, err := s.svc.Releases.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	var out any
	switch chi.URLParam(r, "signal") {
	case "coverage":
		out, err = s.svc.Signals.Coverage(ctx, rel.ID)
	case "tests":
		out, err = s.svc.Signals.AllTestsPass(ctx, rel.ID)
	case "bugs":
		out, err = s.svc.Signals.NoCriticalBugs(ctx, rel.ID)
	case "approvals":
		out, err = s.svc.Signals.AllApprovalsComplete(ctx, rel.ID)
	case "changes":
		out, err = s.svc.Signals.NoUnapprovedChanges(ctx, rel.ProjectID)
	default:
		notFound(w, "signal")
		return
	}
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
