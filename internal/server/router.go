package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systemsaholic/clerk-sync/internal/handlers"
	"github.com/systemsaholic/clerk-sync/internal/middleware"
)

// NewRouter constructs a ServeMux with the webhook API routes registered.
func NewRouter(h *handlers.WebhookHandler) http.Handler {
	mux := http.NewServeMux()

	// Webhook ingress
	mux.HandleFunc("POST /api/v1/webhooks/clerk", h.HandleClerkWebhook)

	// Operational endpoints
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
