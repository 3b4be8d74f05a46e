package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"siteadmin/internal/domain/audit"
	"siteadmin/internal/domain/auth"
	"siteadmin/internal/platform/config"
	"siteadmin/internal/platform/jobs"
	"siteadmin/internal/platform/metrics"
	"siteadmin/internal/transport/http/api"
	payrollhandler "siteadmin/internal/transport/http/handlers/payroll"
	"siteadmin/internal/transport/http/middleware"
)

type RouterDeps struct {
	Payroll     payrollhandler.Service
	Audit       audit.Log
	Jobs        jobs.Runner
	Idempotency *middleware.IdempotencyStore
	Metrics     *metrics.Collector
	Ready       func(ctx context.Context) error
}

func NewRouter(cfg config.Config, deps RouterDeps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if deps.Metrics != nil {
		router.Use(middleware.Logger(deps.Metrics))
	} else {
		router.Use(middleware.Logger(nil))
	}
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && deps.Metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, deps.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireUser)
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.FunctionsRateLimit(cfg.RateLimitPerMinute, time.Minute))

		perms := auth.NewStaticPermissions(auth.RolePermissions)
		payrollHandler := payrollhandler.NewHandler(deps.Payroll, perms, deps.Jobs, deps.Audit, deps.Idempotency)
		payrollHandler.RegisterRoutes(r)
	})

	return router
}
