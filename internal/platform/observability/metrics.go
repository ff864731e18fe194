package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the HTTP-level Prometheus collectors.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	orderOperations *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

// NewMetrics builds a Metrics instance with its own registry so tests stay
// isolated from the default global one.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenithcart_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zenithcart_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route", "status"})

	orderOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenithcart_order_operations_total",
		Help: "Total number of order operations",
	}, []string{"operation", "status"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zenithcart_http_in_flight_requests",
		Help: "Requests currently being served",
	})

	registry.MustRegister(requestsTotal, requestDuration, orderOperations, inFlight)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		orderOperations: orderOperations,
		inFlight:        inFlight,
	}
}

// Handler exposes the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOrderOperation counts checkout, cancellation and refund outcomes.
func (m *Metrics) RecordOrderOperation(operation string, success bool) {
	if m == nil || m.orderOperations == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.orderOperations.WithLabelValues(operation, status).Inc()
}

// Middleware records request counts and latencies keyed by the chi route
// pattern rather than the raw path, keeping label cardinality bounded.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			recorder := newResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start).Seconds()

			method := SanitizeMethod(r.Method)
			route := SanitizeRoute(routePattern(r))
			status := strconv.Itoa(recorder.Status())
			m.requestsTotal.WithLabelValues(method, route, status).Inc()
			m.requestDuration.WithLabelValues(method, route, status).Observe(duration)
		})
	}
}
