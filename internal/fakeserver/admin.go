package fakeserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/satstream-simulator/internal/observability"
)

// NewAdminRouter serves health, readiness and Prometheus metrics next to the
// gRPC listener.
func NewAdminRouter(svc *Service, collector *observability.SessionCollector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !svc.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "stopping"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ready",
			"active_sessions": svc.ActiveSessions(),
		})
	})
	if collector != nil {
		r.Handle("/metrics", collector.Handler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
