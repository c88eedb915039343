package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medicrypt/recordvault/app"
	"github.com/medicrypt/recordvault/handlers"
	"github.com/medicrypt/recordvault/middleware"
	"github.com/medicrypt/recordvault/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.LimitBody(cfg.Server.MaxUploadBytes))

	var events handlers.EventStats
	if deps.Events != nil {
		events = deps.Events
	}

	health := handlers.NewHealthHandler(healthChecks(deps), events, deps.Logger)
	authHandler := handlers.NewAuthHandler(deps.Auth, cfg.Server.TLS.Enabled, deps.Logger)
	recordHandler := handlers.NewRecordHandler(deps.Records, deps.Logger)
	accessHandler := handlers.NewAccessHandler(deps.Access, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api", func(r chi.Router) {
		// Registration and sign-in are the only public API routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/signin", authHandler.HandleSignin)
			r.With(deps.AuthMiddleware.RequireAuth).Get("/me", authHandler.HandleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Route("/patient/records", func(r chi.Router) {
				r.Get("/", recordHandler.HandleListOwnRecords)
				r.Post("/{recordId}/artifacts", recordHandler.HandleStoreArtifact)
				r.Post("/{recordId}/grants", recordHandler.HandleGrantAccess)
				r.Delete("/{recordId}/grants/{wallet}", recordHandler.HandleRevokeAccess)
			})

			r.Route("/records/{recordId}", func(r chi.Router) {
				r.Get("/report", recordHandler.HandleReadReport)
				r.Get("/grants", recordHandler.HandleListAccessGrants)
				r.Get("/audit", recordHandler.HandleListAuditLog)
				r.Get("/audit/verify", recordHandler.HandleVerifyAuditLog)
			})

			r.Post("/doctor/access-requests", accessHandler.HandleRequestAccess)
			r.Get("/access-requests", accessHandler.HandleListAccessRequests)
			r.Put("/access-requests/{id}", accessHandler.HandleDecideAccessRequest)

			r.Get("/researcher/trends", recordHandler.HandleTrends)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// healthChecks lists the databases probed by readiness. The memory backend
// has none.
func healthChecks(deps *app.Dependencies) map[string]handlers.Pinger {
	checks := make(map[string]handlers.Pinger)
	if deps.RepoFactory == nil {
		return checks
	}
	checks["database"] = deps.RepoFactory.GetDB()
	if eventsDB := deps.RepoFactory.GetEventsDB(); eventsDB != nil {
		checks["events_database"] = eventsDB
	}
	return checks
}
