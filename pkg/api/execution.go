package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qagate/qagate/pkg/results"
)

type requirementRequest struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// createRequirement handles POST /api/v1/projects/{project}/requirements
func (s *Server) createRequirement(w http.ResponseWriter, r *http.Request) {
	var req requirementRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Requirements.Create(r.Context(), chi.URLParam(r, "project"), req.Key, req.Title)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type coverageRequest struct {
	CaseRevisionID string `json:"caseRevisionId"`
}

// coverRequirement handles POST /api/v1/requirements/{id}/coverage
func (s *Server) coverRequirement(w http.ResponseWriter, r *http.Request) {
	var req coverageRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Requirements.Cover(r.Context(), chi.URLParam(r, "id"), req.CaseRevisionID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type runGroupRequest struct {
	Name string `json:"name"`
}

// createRunGroup handles POST /api/v1/releases/{id}/run-groups
func (s *Server) createRunGroup(w http.ResponseWriter, r *http.Request) {
	var req runGroupRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Results.CreateRunGroup(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type testRunRequest struct {
	Name        string `json:"name"`
	Environment string `json:"environment,omitempty"`
}

// createTestRun handles POST /api/v1/run-groups/{id}/runs
func (s *Server) createTestRun(w http.ResponseWriter, r *http.Request) {
	var req testRunRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Results.CreateTestRun(r.Context(), chi.URLParam(r, "id"), req.Name, req.Environment)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type runItemRequest struct {
	CaseRevisionID string `json:"caseRevisionId"`
	Position       int    `json:"position"`
}

// addRunItem handles POST /api/v1/runs/{id}/items
func (s *Server) addRunItem(w http.ResponseWriter, r *http.Request) {
	var req runItemRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Results.AddRunItem(r.Context(), chi.URLParam(r, "id"), req.CaseRevisionID, req.Position)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type resultRequest struct {
	Outcome results.Outcome `json:"outcome"`
	Note    string          `json:"note,omitempty"`
}

// recordResult handles POST /api/v1/run-items/{id}/results
func (s *Server) recordResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Results.RecordResult(r.Context(), chi.URLParam(r, "id"), req.Outcome, UserFromContext(r.Context()), req.Note)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type bugRequest struct {
	ExternalID string           `json:"externalId"`
	Severity   results.Severity `json:"severity"`
	Title      string           `json:"title,omitempty"`
}

// linkBug handles POST /api/v1/results/{id}/bugs
func (s *Server) linkBug(w http.ResponseWriter, r *http.Request) {
	var req bugRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out, err := s.svc.Results.LinkBug(r.Context(), chi.URLParam(r, "id"), req.ExternalID, req.Severity, req.Title)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
