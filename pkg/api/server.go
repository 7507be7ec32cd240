// Package api exposes qagate over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/gate"
	"github.com/qagate/qagate/pkg/release"
	"github.com/qagate/qagate/pkg/requirements"
	"github.com/qagate/qagate/pkg/results"
	"github.com/qagate/qagate/pkg/waiver"
)

// Services are the domain services the API serves.
type Services struct {
	Artifacts    *artifact.Service
	Releases     *release.Service
	Gate         *gate.Evaluator
	Signals      *gate.Aggregator
	Waivers      *waiver.Service
	Requirements *requirements.Service
	Results      *results.Service
	// Audit is optional; without it the audit endpoint is not mounted.
	Audit *audit.Store
	// Health reports backend health for /healthz. Optional.
	Health func(ctx context.Context) error
}

// Server routes HTTP requests to the services.
type Server struct {
	svc         Services
	corsOrigins []string
	logger      *slog.Logger
}

// NewServer creates a Server. An empty corsOrigins allows any http(s)
// origin.
func NewServer(svc Services, corsOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"https://*", "http://*"}
	}
	return &Server{svc: svc, corsOrigins: corsOrigins, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(IdentityMiddleware())

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/artifacts", s.createArtifact)
		r.Get("/artifacts/{id}", s.getArtifact)
		r.Delete("/artifacts/{id}", s.deleteArtifact)
		r.Get("/artifacts/{id}/revisions", s.listRevisions)
		r.Post("/artifacts/{id}/revisions", s.createRevision)
		r.Get("/artifacts/{id}/revisions/latest", s.latestRevision)
		r.Get("/revisions/{id}", s.getRevision)
		r.Patch("/revisions/{id}", s.updateDraft)
		r.Post("/revisions/{id}/actions/{action}", s.revisionAction)
		r.Get("/projects/{project}/revisions", s.listProjectRevisions)

		r.Get("/releases", s.listReleases)
		r.Post("/releases", s.createRelease)
		r.Get("/releases/{id}", s.getRelease)
		r.Post("/releases/{id}/transition", s.transitionRelease)
		r.Post("/releases/{id}/baselines", s.setBaseline)
		r.Get("/releases/{id}/baselines", s.listBaselines)
		r.Post("/releases/{id}/gate/evaluate", s.evaluateGate)
		r.Post("/releases/{id}/approve", s.approveRelease)
		r.Get("/releases/{id}/signals/{signal}", s.signal)
		r.Post("/releases/{id}/waivers", s.issueWaiver)
		r.Get("/releases/{id}/waivers", s.listWaivers)
		r.Post("/releases/{id}/run-groups", s.createRunGroup)

		r.Get("/waivers/{id}", s.getWaiver)
		r.Get("/waivers/{id}/validity", s.waiverValidity)
		r.Delete("/waivers/{id}", s.deleteWaiver)
		r.Post("/waivers/sweep", s.sweepWaivers)

		r.Post("/projects/{project}/requirements", s.createRequirement)
		r.Post("/requirements/{id}/coverage", s.coverRequirement)

		r.Post("/run-groups/{id}/runs", s.createTestRun)
		r.Post("/runs/{id}/items", s.addRunItem)
		r.Post("/run-items/{id}/results", s.recordResult)
		r.Post("/results/{id}/bugs", s.linkBug)

		if s.svc.Audit != nil {
			r.Get("/audit/events", s.listAuditEvents)
		}
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
