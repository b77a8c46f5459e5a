// Package api exposes the dispatch pipeline to its external trigger.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// NewRouter wires the trigger and health endpoints.
func NewRouter(h *DispatchHandler, health *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", health.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch", h.HandleDispatch)
		r.Post("/sweeps/scheduled", h.HandleSweepScheduled)
		r.Post("/sweeps/due", h.HandleSweepDue)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
