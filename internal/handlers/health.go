package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	repo  repositories.HealthRepository
	build BuildInfo
	now   func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthRepository wires the dependency checks evaluated by /readyz.
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.repo = repo
	}
}

// WithHealthBuildInfo sets the version metadata echoed by both probes.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

type readinessResponse struct {
	Status      string                              `json:"status"`
	Version     string                              `json:"version,omitempty"`
	Environment string                              `json:"environment,omitempty"`
	Checks      map[string]domain.SystemHealthCheck `json:"checks,omitempty"`
	Details     []string                            `json:"details,omitempty"`
	Timestamp   string                              `json:"timestamp"`
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now().UTC()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz evaluates every dependency check and answers 503 unless all pass.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	resp := readinessResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Timestamp:   now.Format(time.RFC3339),
	}
	if h.repo == nil {
		writeJSONResponse(w, http.StatusOK, resp)
		return
	}

	report, err := h.repo.Collect(r.Context())
	if err != nil {
		resp.Status = domain.HealthStatusError
		resp.Details = []string{fmt.Sprintf("health: %v", err)}
		writeJSONResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	if report.Status != "" {
		resp.Status = report.Status
	}
	resp.Checks = report.Checks
	resp.Details = failureDetails(report.Checks)

	status := http.StatusOK
	if resp.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

func failureDetails(checks map[string]domain.SystemHealthCheck) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var details []string
	for _, name := range names {
		check := checks[name]
		if check.Status == domain.HealthStatusOK {
			continue
		}
		reason := strings.TrimSpace(check.Error)
		if reason == "" {
			reason = check.Status
		}
		details = append(details, name+": "+reason)
	}
	return details
}
