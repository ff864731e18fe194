package handlers

import (
	"net/http"
	"time"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/repositories"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	health  repositories.HealthRepository
	started time.Time
	now     func() time.Time
}

// NewHealthHandlers constructs probe handlers. The health repository is
// optional; without one Readyz reports ready unconditionally.
func NewHealthHandlers(health repositories.HealthRepository) *HealthHandlers {
	return &HealthHandlers{
		health:  health,
		started: time.Now(),
		now:     time.Now,
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if h != nil && h.now != nil {
		now = h.now()
	}
	started := h.started
	if started.IsZero() {
		started = now
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(started).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz probes backend dependencies and reports readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.health == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.health.Collect(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": string(domain.HealthStatusError),
			"error":  err.Error(),
		})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"latency": check.Latency.String(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	writeJSONResponse(w, status, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}
