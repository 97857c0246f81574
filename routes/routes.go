package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/llm-governance/app"
	"github.com/upb/llm-governance/handlers"
	"github.com/upb/llm-governance/internal/auth"
	"github.com/upb/llm-governance/middleware"
)

// AdmissionScopeQuery prefixes the per-user admission key of the query endpoint
const AdmissionScopeQuery = "query"

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimw.Recoverer)
	if deps.Config.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.Config.Server.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.CredentialHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(readinessChecks(deps), deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	if deps.Metrics != nil && deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	authMW := middleware.NewAuthMiddleware(deps, deps.Logger)
	admission := middleware.NewAdmissionMiddleware(deps.Governance, deps.Logger)

	query := handlers.NewQueryHandler(deps.Orchestrator, deps.Logger)
	var spend handlers.SpendReader
	if deps.UsageRecorder != nil {
		spend = deps.UsageRecorder
	}
	usage := handlers.NewUsageHandler(deps.Governance, spend, AdmissionScopeQuery, deps.Logger)
	history := handlers.NewHistoryHandler(deps.Sessions, deps.Logger)
	admin := handlers.NewAdminHandler(deps.Governance.Admission, deps.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		// admission is counted before the role check
		r.With(admission.Limit(AdmissionScopeQuery), authMW.RequireAction(auth.ActionView)).
			Post("/query", query.HandleQuery)

		r.With(authMW.RequireAction(auth.ActionView)).
			Get("/usage", usage.HandleUsage)

		r.Route("/history", func(r chi.Router) {
			r.Use(authMW.RequireAction(auth.ActionView))
			r.Get("/", history.HandleHistory)
			r.Delete("/", history.HandleClearHistory)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW.RequireAction(auth.ActionDelete))
			r.Delete("/ratelimit/{key}", admin.HandleResetRateLimit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

// readinessChecks lists the optional backends; unconfigured ones are reported as such
func readinessChecks(deps *app.Dependencies) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{"database": nil, "redis": nil}
	if deps.DB != nil {
		checks["database"] = handlers.PingFunc(deps.DB.HealthCheck)
	}
	if deps.Redis != nil && deps.Governance != nil {
		checks["redis"] = handlers.PingFunc(deps.Governance.Admission.Ping)
	}
	return checks
}
