package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP router. The decision endpoint is the only
// write-adjacent surface; everything else is operational.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// The decision endpoint is called cross-origin by browser snippets on
	// customer sites. Project-ID is how callers scope their requests.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Project-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Post("/decision", h.MakeDecision)

	return r
}
