package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/payments"
	"github.com/zenithcart/api/internal/platform/httpx"
	"github.com/zenithcart/api/internal/services"
)

const (
	maxWebhookBodySize     = 256 * 1024
	razorpaySignatureHeader = "X-Razorpay-Signature"

	webhookEventPaymentCaptured = "payment.captured"
	webhookEventPaymentFailed   = "payment.failed"
	webhookEventRefundProcessed = "refund.processed"
	webhookEventRefundFailed    = "refund.failed"
)

// WebhookHandlers receives gateway callbacks and reconciles order state.
type WebhookHandlers struct {
	orders        services.OrderService
	webhookSecret string
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(orders services.OrderService, webhookSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		orders:        orders,
		webhookSecret: webhookSecret,
	}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/razorpay", h.razorpay)
}

// razorpayEvent mirrors the envelope Razorpay posts: the event name plus
// nested entity payloads for the touched resources.
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity razorpayRefund `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func (h *WebhookHandlers) razorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if strings.TrimSpace(h.webhookSecret) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_not_configured", "webhook secret is not configured", http.StatusServiceUnavailable))
		return
	}

	// Signature covers the raw body; read it before any JSON decoding.
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	signature := r.Header.Get(razorpaySignatureHeader)
	if !payments.VerifyWebhookSignature(body, signature, h.webhookSecret) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusUnauthorized))
		return
	}

	var event razorpayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid webhook payload", http.StatusBadRequest))
		return
	}

	switch event.Event {
	case webhookEventPaymentCaptured:
		err = h.orders.HandlePaymentCaptured(ctx, event.Payload.Payment.Entity.OrderID, event.Payload.Payment.Entity.ID)
	case webhookEventRefundProcessed:
		err = h.orders.HandleRefundEvent(ctx, event.Payload.Refund.Entity.ID, domain.RefundStatusProcessed)
	case webhookEventRefundFailed:
		err = h.orders.HandleRefundEvent(ctx, event.Payload.Refund.Entity.ID, domain.RefundStatusFailed)
	case webhookEventPaymentFailed:
		// Checkout records failed payments synchronously; nothing to reconcile.
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	default:
		// Unrecognised events are acknowledged so the gateway stops retrying.
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	if err != nil {
		h.writeWebhookError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeWebhookError keeps non-2xx statuses for retryable situations: the
// gateway redelivers on failure, which is what an order/refund race needs.
func (h *WebhookHandlers) writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order matches the webhook payload", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; webhook will be retried", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	}
}
