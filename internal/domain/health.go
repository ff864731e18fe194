package domain

import "time"

// HealthStatus grades the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK means the dependency responded within its timeout.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded means the dependency responded slowly or partially.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError means the dependency failed or timed out.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck captures a single dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probe results for readiness.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
