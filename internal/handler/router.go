package handler

import (
	"net/http"

	"github.com/dandantas/assessment-orchestrator/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router handles HTTP routing
type Router struct {
	jobHandler        *JobHandler
	assessmentHandler *AssessmentHandler
	healthHandler     *HealthHandler
	corsOptions       cors.Options
}

// NewRouter creates a new router
func NewRouter(
	jobHandler *JobHandler,
	assessmentHandler *AssessmentHandler,
	healthHandler *HealthHandler,
	corsOptions cors.Options,
) *Router {
	return &Router{
		jobHandler:        jobHandler,
		assessmentHandler: assessmentHandler,
		healthHandler:     healthHandler,
		corsOptions:       corsOptions,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	// CORS first to handle preflight requests
	r.Use(cors.Handler(rt.corsOptions))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recovery)

	r.Get("/health", rt.healthHandler.Health)
	r.Get("/ready", rt.healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logging)

		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/jobs", rt.jobHandler.ListBySession)

			r.Route("/extended-risk-assessment", func(r chi.Router) {
				r.Post("/", rt.jobHandler.Submit)
				r.Get("/", rt.assessmentHandler.Get)
				r.Delete("/", rt.assessmentHandler.Delete)
				r.Get("/status", rt.assessmentHandler.Status)
			})
		})

		r.Route("/jobs/{jobId}", func(r chi.Router) {
			r.Get("/", rt.jobHandler.Get)
			r.Post("/retry", rt.jobHandler.Retry)
		})
	})

	return r
}
