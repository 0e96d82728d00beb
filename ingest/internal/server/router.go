package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lensai/lensai-stack/common/middleware"
	"github.com/lensai/lensai-stack/ingest/internal/handlers"
)

// NewRouter constructs a ServeMux with ingest API routes registered.
// Every path not listed below is handled as an event submission.
func NewRouter(h *handlers.EventHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", h.HandleEvent)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  []string{"*"},
		AllowedMethods:  []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"Content-Type", "Authorization"},
		MaxAge:          -1,
		PreflightStatus: http.StatusOK,
	})

	return middleware.RequestID(cors(middleware.Recover("Internal server error")(mux)))
}
