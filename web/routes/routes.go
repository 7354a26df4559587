// Package routes provides HTTP route registration for the web server.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/repotorpedo/torpedo/web/handlers"
)

// Route registration functions

// RegisterAPIRoutes registers the JSON API under /api
func RegisterAPIRoutes(r chi.Router, api *handlers.API) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", api.ListProviders())
		r.Get("/session", api.SessionView())

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", api.ListConnections())
			r.Get("/stream", api.StreamConnections())
			r.Post("/{provider}/connect", api.Connect())
			r.Post("/{provider}/cancel", api.CancelConnection())
			r.Post("/{provider}/disconnect", api.Disconnect())
		})

		r.Route("/deployments", func(r chi.Router) {
			r.Get("/", api.ListDeployments())
			r.Post("/", api.SubmitDeployment())
			r.Get("/{id}", api.DeploymentProgress())
			r.Post("/{id}/cancel", api.CancelDeployment())
			r.Get("/{id}/stream", api.StreamDeployment())
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", api.ListHistory())
			r.Get("/export", api.ExportHistory())
			r.Post("/import", api.ImportHistory())
		})
	})
}

// RegisterUtilityRoutes registers health and metrics endpoints. A nil
// metrics handler leaves /metrics unregistered.
func RegisterUtilityRoutes(r chi.Router, metrics http.Handler) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			handlers.LogOperationError("health_check", "routes", err)
		}
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
}
