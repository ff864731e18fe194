package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(metrics.Middleware())
	router.Get("/api/v1/products/{productID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	metrics.RecordOrderOperation("checkout", true)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(scrape.Result().Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}

	text := string(body)
	if !strings.Contains(text, `zenithcart_http_requests_total{method="GET",route="/api/v1/products/{productID}",status="204"} 1`) {
		t.Fatalf("expected request counter with route label, got:\n%s", text)
	}
	if !strings.Contains(text, `zenithcart_order_operations_total{operation="checkout",status="success"} 1`) {
		t.Fatalf("expected order operation counter, got:\n%s", text)
	}
}
