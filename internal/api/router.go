package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/webgenie/internal/api/middleware"
	"github.com/kiranshivaraju/webgenie/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc
	Metrics       http.Handler

	SubmitJob http.HandlerFunc
	ListJobs  http.HandlerFunc
	GetJob    http.HandlerFunc
	JobLogs   http.HandlerFunc
	CancelJob http.HandlerFunc
	WatchJob  http.HandlerFunc

	JobResult  http.HandlerFunc
	JobSummary http.HandlerFunc
	JobNetwork http.HandlerFunc
	Compare    http.HandlerFunc

	ListAlgorithms http.HandlerFunc
	GetAlgorithm   http.HandlerFunc
	CheckImage     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.SubmitJob))
			r.Get("/", orNotImplemented(deps.ListJobs))

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.GetJob))
				r.Delete("/", orNotImplemented(deps.CancelJob))
				r.Post("/cancel", orNotImplemented(deps.CancelJob))
				r.Get("/logs", orNotImplemented(deps.JobLogs))
				r.Get("/watch", orNotImplemented(deps.WatchJob))

				r.Get("/result", orNotImplemented(deps.JobResult))
				r.Get("/summary", orNotImplemented(deps.JobSummary))
				r.Get("/network", orNotImplemented(deps.JobNetwork))
			})
		})

		r.Post("/api/v1/compare", orNotImplemented(deps.Compare))

		r.Get("/api/v1/algorithms", orNotImplemented(deps.ListAlgorithms))
		r.Get("/api/v1/algorithms/{name}", orNotImplemented(deps.GetAlgorithm))
		r.Get("/api/v1/algorithms/{name}/image", orNotImplemented(deps.CheckImage))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
