package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/waiver"
)

// issueWaiver handles POST /api/v1/releases/{id}/waivers
func (s *Server) issueWaiver(w http.ResponseWriter, r *http.Request) {
	var in waiver.IssueInput
	if err := decode(r, &in, false); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in.ReleaseID = chi.URLParam(r, "id")
	in.Issuer = UserFromContext(r.Context())
	wv, err := s.svc.Waivers.Issue(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wv)
}

// listWaivers handles GET /api/v1/releases/{id}/waivers
func (s *Server) listWaivers(w http.ResponseWriter, r *http.Request) {
	ws, err := s.svc.Waivers.ListForRelease(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"waivers": ws})
}

// getWaiver handles GET /api/v1/waivers/{id}
func (s *Server) getWaiver(w http.ResponseWriter, r *http.Request) {
	wv, err := s.svc.Waivers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wv)
}

// waiverValidity handles GET /api/v1/waivers/{id}/validity. An expired
// waiver answers 410.
func (s *Server) waiverValidity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Waivers.IsValid(r.Context(), id, s.svc.Waivers.Clock()); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"waiverId": id, "valid": true})
}

// deleteWaiver handles DELETE /api/v1/waivers/{id}
func (s *Server) deleteWaiver(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Waivers.Delete(r.Context(), chi.URLParam(r, "id"), UserFromContext(r.Context())); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sweepRequest struct {
	Delete bool `json:"delete"`
}

// sweepWaivers handles POST /api/v1/waivers/sweep
func (s *Server) sweepWaivers(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decode(r, &req, true); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	res, err := s.svc.Waivers.Sweep(r.Context(), s.svc.Waivers.Clock(), req.Delete)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listAuditEvents handles GET /api/v1/audit/events
// Query params: eventType, objectType, objectId, actor, pageSize, pageToken
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		EventType:  q.Get("eventType"),
		ObjectType: q.Get("objectType"),
		ObjectID:   q.Get("objectId"),
		Actor:      q.Get("actor"),
	}
	pageSize := 20
	if ps := q.Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}

	events, next, err := s.svc.Audit.List(r.Context(), filter, pageSize, q.Get("pageToken"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        events,
		"nextPageToken": next,
	})
}
