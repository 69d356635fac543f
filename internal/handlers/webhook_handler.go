package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/systemsaholic/clerk-sync/internal/logging"
	"github.com/systemsaholic/clerk-sync/internal/metrics"
	"github.com/systemsaholic/clerk-sync/internal/models"
	"github.com/systemsaholic/clerk-sync/internal/usersync"
	"github.com/systemsaholic/clerk-sync/internal/webhook"
)

// maxBodyBytes caps webhook payloads. Clerk user objects are small; this
// is generous headroom.
const maxBodyBytes = 1 << 20

// WebhookHandler receives Clerk webhook deliveries, authenticates them,
// and hands the event to the sync service.
type WebhookHandler struct {
	verifier *webhook.Verifier
	replay   *webhook.ReplayCache
	service  *usersync.Service
	logger   *logging.Logger
}

// NewWebhookHandler wires the webhook endpoint. verifier may be nil when
// no secret is configured; every delivery is then rejected with 401.
func NewWebhookHandler(
	verifier *webhook.Verifier,
	replay *webhook.ReplayCache,
	service *usersync.Service,
	logger *logging.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		replay:   replay,
		service:  service,
		logger:   logger.With(logging.Service("webhook_handler")),
	}
}

// HandleClerkWebhook processes one delivery. Signature verification comes
// before any body interpretation; nothing in an unauthenticated payload
// is trusted, logged, or parsed beyond reading the raw bytes.
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	if h.verifier == nil {
		metrics.VerificationFailures.WithLabelValues("no_secret").Inc()
		h.logger.ErrorContext(ctx, "Webhook received but no secret is configured")
		writeError(w, http.StatusUnauthorized, "webhook secret not configured")
		return
	}

	hdrs := webhook.HeadersFromRequest(r.Header)
	if err := h.verifier.Verify(body, hdrs); err != nil {
		metrics.VerificationFailures.WithLabelValues(verifyFailureReason(err)).Inc()
		h.logger.WarnContext(ctx, "Webhook verification failed",
			logging.DeliveryID(hdrs.ID), logging.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var payload models.EventPayload
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	eventType := usersync.ResolveEventType(r.Header.Get(webhook.HeaderEventType), &payload)
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "missing event type")
		return
	}

	if seen, err := h.replay.Seen(ctx, hdrs.ID); err != nil {
		// Cache trouble is not a reason to drop an authenticated delivery.
		h.logger.WarnContext(ctx, "Replay cache unavailable",
			logging.DeliveryID(hdrs.ID), logging.Error(err))
	} else if seen {
		metrics.ReplaysTotal.Inc()
		metrics.DeliveriesTotal.WithLabelValues(eventType, "duplicate").Inc()
		h.logger.InfoContext(ctx, "Duplicate delivery ignored",
			logging.DeliveryID(hdrs.ID), logging.EventType(eventType))
		writeJSON(w, http.StatusOK, map[string]string{"message": "duplicate delivery ignored"})
		return
	}

	result, err := h.service.Dispatch(ctx, eventType, &payload)
	if err != nil {
		h.writeDispatchError(ctx, w, eventType, hdrs.ID, err)
		return
	}

	metrics.DeliveriesTotal.WithLabelValues(eventType, "success").Inc()
	h.markDelivery(ctx, hdrs.ID)
	writeJSON(w, http.StatusOK, result)
}

// markDelivery records an acknowledged delivery in the replay cache. Only
// called once the outcome is final: a delivery that failed transiently is
// never recorded, so the sender's retry of the same ID gets reprocessed.
func (h *WebhookHandler) markDelivery(ctx context.Context, deliveryID string) {
	if err := h.replay.Mark(ctx, deliveryID); err != nil {
		h.logger.WarnContext(ctx, "Failed to record delivery in replay cache",
			logging.DeliveryID(deliveryID), logging.Error(err))
	}
}

// writeDispatchError maps service errors onto the response contract.
// Unsupported events are acknowledged with 200 so Clerk stops retrying
// them; everything else signals whether a retry can help.
func (h *WebhookHandler) writeDispatchError(ctx context.Context, w http.ResponseWriter, eventType, deliveryID string, err error) {
	switch {
	case errors.Is(err, usersync.ErrUnsupportedEvent):
		metrics.DeliveriesTotal.WithLabelValues(eventType, "ignored").Inc()
		h.logger.InfoContext(ctx, "Event ignored",
			logging.DeliveryID(deliveryID), logging.EventType(eventType))
		h.markDelivery(ctx, deliveryID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "event ignored"})

	case errors.Is(err, usersync.ErrValidation), errors.Is(err, usersync.ErrMalformedRequest):
		metrics.DeliveriesTotal.WithLabelValues(eventType, "invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, usersync.ErrEmailCollision):
		metrics.DeliveriesTotal.WithLabelValues(eventType, "conflict").Inc()
		h.logger.WarnContext(ctx, "Email collision",
			logging.DeliveryID(deliveryID), logging.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, usersync.ErrNotFound):
		metrics.DeliveriesTotal.WithLabelValues(eventType, "not_found").Inc()
		writeError(w, http.StatusNotFound, "user not found")

	case errors.Is(err, usersync.ErrIdentityMismatch):
		metrics.DeliveriesTotal.WithLabelValues(eventType, "conflict").Inc()
		h.logger.WarnContext(ctx, "Identity mismatch on delete",
			logging.DeliveryID(deliveryID), logging.Error(err))
		writeError(w, http.StatusConflict, "clerk id mismatch")

	default:
		metrics.DeliveriesTotal.WithLabelValues(eventType, "error").Inc()
		h.logger.ErrorContext(ctx, "Sync failed",
			logging.DeliveryID(deliveryID), logging.EventType(eventType), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
	}
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, webhook.ErrMalformedHeaders):
		return "malformed_headers"
	case errors.Is(err, webhook.ErrTimestampExpired):
		return "timestamp"
	default:
		return "signature"
	}
}

// HealthCheck reports liveness.
func (h *WebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
