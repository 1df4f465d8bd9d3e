package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxpert/mongoriver/telemetry"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the admin API under /admin and, when Prometheus is
// enabled, the metrics handler at /metrics
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Liveness stays unauthenticated for probes
	r.Get("/health", handlers.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Get("/status", handlers.handleStatus)

		r.Route("/checkpoints", func(r chi.Router) {
			r.Get("/", handlers.handleListCheckpoints)
			r.Get("/{name}", handlers.wrapWithName(handlers.handleGetCheckpoint))
			r.Delete("/{name}", handlers.wrapWithName(handlers.handleDeleteCheckpoint))
		})
	})

	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		mux.Handle("/metrics", AuthMiddleware(metrics))
	}

	log.Info().Msg("Admin endpoints enabled at /admin/{health,status,checkpoints}")
}

// wrapWithName extracts the {name} URL param
func (h *AdminHandlers) wrapWithName(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			writeErrorResponse(w, http.StatusBadRequest, "checkpoint name is required")
			return
		}
		fn(w, r, name)
	}
}
