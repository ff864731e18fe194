package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/services"
)

const testWebhookSecret = "whsec_test"

func signWebhookBody(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRouter(orders services.OrderService) http.Handler {
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandlers(orders, testWebhookSecret).Routes)
	return r
}

func postWebhook(handler http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookPaymentCaptured(t *testing.T) {
	var gotOrderID, gotPaymentID string
	orders := &stubOrderService{
		paymentCaptured: func(_ context.Context, gatewayOrderID, paymentID string) error {
			gotOrderID = gatewayOrderID
			gotPaymentID = paymentID
			return nil
		},
	}

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_rzp_1","status":"captured"}}}}`
	rec := postWebhook(newWebhookRouter(orders), body, signWebhookBody(body))

	assertStatus(t, rec, http.StatusOK)
	assertBodyContains(t, rec, `"status":"ok"`)
	if gotOrderID != "order_rzp_1" || gotPaymentID != "pay_123" {
		t.Fatalf("unexpected dispatch: order=%q payment=%q", gotOrderID, gotPaymentID)
	}
}

func TestWebhookRefundEvents(t *testing.T) {
	cases := []struct {
		event      string
		wantStatus domain.RefundStatus
	}{
		{event: "refund.processed", wantStatus: domain.RefundStatusProcessed},
		{event: "refund.failed", wantStatus: domain.RefundStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			var gotRefundID string
			var gotStatus domain.RefundStatus
			orders := &stubOrderService{
				refundEvent: func(_ context.Context, refundID string, status domain.RefundStatus) error {
					gotRefundID = refundID
					gotStatus = status
					return nil
				},
			}

			body := fmt.Sprintf(`{"event":%q,"payload":{"refund":{"entity":{"id":"rfnd_9","payment_id":"pay_123","status":"processed"}}}}`, tc.event)
			rec := postWebhook(newWebhookRouter(orders), body, signWebhookBody(body))

			assertStatus(t, rec, http.StatusOK)
			if gotRefundID != "rfnd_9" {
				t.Fatalf("expected refund rfnd_9, got %q", gotRefundID)
			}
			if gotStatus != tc.wantStatus {
				t.Fatalf("expected status %q, got %q", tc.wantStatus, gotStatus)
			}
		})
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	orders := &stubOrderService{
		paymentCaptured: func(context.Context, string, string) error {
			t.Fatal("handler must not dispatch on a bad signature")
			return nil
		},
	}

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_rzp_1"}}}}`
	rec := postWebhook(newWebhookRouter(orders), body, "deadbeef")

	assertStatus(t, rec, http.StatusUnauthorized)
	assertBodyContains(t, rec, "invalid_signature")
}

func TestWebhookMissingSignature(t *testing.T) {
	body := `{"event":"payment.captured"}`
	rec := postWebhook(newWebhookRouter(&stubOrderService{}), body, "")
	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestWebhookIgnoredEvents(t *testing.T) {
	for _, event := range []string{"payment.failed", "order.paid", "invoice.expired"} {
		t.Run(event, func(t *testing.T) {
			body := fmt.Sprintf(`{"event":%q,"payload":{}}`, event)
			rec := postWebhook(newWebhookRouter(&stubOrderService{}), body, signWebhookBody(body))

			assertStatus(t, rec, http.StatusOK)
			assertBodyContains(t, rec, `"status":"ignored"`)
		})
	}
}

func TestWebhookOrderNotFoundStaysRetryable(t *testing.T) {
	orders := &stubOrderService{
		paymentCaptured: func(context.Context, string, string) error {
			return services.ErrOrderNotFound
		},
	}

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_missing"}}}}`
	rec := postWebhook(newWebhookRouter(orders), body, signWebhookBody(body))

	assertStatus(t, rec, http.StatusNotFound)
	assertBodyContains(t, rec, "order_not_found")
}

func TestWebhookMalformedPayload(t *testing.T) {
	body := `{"event":`
	rec := postWebhook(newWebhookRouter(&stubOrderService{}), body, signWebhookBody(body))
	assertStatus(t, rec, http.StatusBadRequest)
}
