package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/revision"
)

type createArtifactResponse struct {
	Artifact *artifact.Artifact `json:"artifact"`
	Revision *artifact.Revision `json:"revision"`
}

// createArtifact handles POST /api/v1/artifacts
func (s *Server) createArtifact(w http.ResponseWriter, r *http.Request) {
	var in artifact.CreateArtifactInput
	if err := decode(r, &in, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in.Actor = UserFromContext(r.Context())
	a, rev, err := s.svc.Artifacts.CreateArtifact(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createArtifactResponse{Artifact: a, Revision: rev})
}

// getArtifact handles GET /api/v1/artifacts/{id}
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Artifacts.GetArtifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// deleteArtifact handles DELETE /api/v1/artifacts/{id}
func (s *Server) deleteArtifact(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Artifacts.Delete(r.Context(), chi.URLParam(r, "id"), UserFromContext(r.Context())); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listRevisions handles GET /api/v1/artifacts/{id}/revisions
func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := s.svc.Artifacts.ListRevisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

// latestRevision handles GET /api/v1/artifacts/{id}/revisions/latest
func (s *Server) latestRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.svc.Artifacts.Latest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// createRevision handles POST /api/v1/artifacts/{id}/revisions
func (s *Server) createRevision(w http.ResponseWriter, r *http.Request) {
	var in artifact.CreateRevisionInput
	if err := decode(r, &in, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in.ArtifactID = chi.URLParam(r, "id")
	in.Actor = UserFromContext(r.Context())
	rev, err := s.svc.Artifacts.CreateRevision(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

// getRevision handles GET /api/v1/revisions/{id}
func (s *Server) getRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.svc.Artifacts.GetRevision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// updateDraft handles PATCH /api/v1/revisions/{id}
func (s *Server) updateDraft(w http.ResponseWriter, r *http.Request) {
	var in artifact.UpdateDraftInput
	if err := decode(r, &in, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in.RevisionID = chi.URLParam(r, "id")
	in.Actor = UserFromContext(r.Context())
	rev, err := s.svc.Artifacts.UpdateDraft(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// revisionAction handles POST /api/v1/revisions/{id}/actions/{action}
func (s *Server) revisionAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	actor := UserFromContext(ctx)

	var (
		rev *artifact.Revision
		err error
	)
	switch chi.URLParam(r, "action") {
	case "submit":
		rev, err = s.svc.Artifacts.SubmitForReview(ctx, id, actor)
	case "approve":
		rev, err = s.svc.Artifacts.Approve(ctx, id, actor)
	case "return-to-draft":
		rev, err = s.svc.Artifacts.ReturnToDraft(ctx, id, actor)
	case "deprecate":
		rev, err = s.svc.Artifacts.Deprecate(ctx, id, actor)
	case "restart":
		rev, err = s.svc.Artifacts.Restart(ctx, id, actor)
	case "transition":
		var req transitionRequest
		if err := decode(r, &req, false); err != nil {
			writeServiceError(w, s.logger, err)
			return
		}
		to, perr := revision.ParseStatus(req.Status)
		if perr != nil {
			writeServiceError(w, s.logger, perr)
			return
		}
		rev, err = s.svc.Artifacts.Transition(ctx, id, to, actor)
	default:
		notFound(w, "revision action")
		return
	}
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// listProjectRevisions handles GET /api/v1/projects/{project}/revisions?status=a,b
func (s *Server) listProjectRevisions(w http.ResponseWriter, r *http.Request) {
	var statuses []revision.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := revision.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				writeServiceError(w, s.logger, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	revs, err := s.svc.Artifacts.ListByStatus(r.Context(), chi.URLParam(r, "project"), statuses...)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}
