package domain

import "time"

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck describes one dependency probe.
type SystemHealthCheck struct {
	Status    string        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latencyNs"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// SystemHealthReport aggregates dependency status for readiness probes.
type SystemHealthReport struct {
	Status      string                       `json:"status"`
	Checks      map[string]SystemHealthCheck `json:"checks"`
	Version     string                       `json:"version,omitempty"`
	Environment string                       `json:"environment,omitempty"`
	Uptime      time.Duration                `json:"uptimeNs"`
	GeneratedAt time.Time                    `json:"generatedAt"`
}
