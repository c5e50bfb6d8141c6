package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const (
	serviceName    = "calorie-tracker"
	serviceVersion = "1.0.0"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthCheckFunc reports whether a dependency is usable.
// Checks are passed in as functions to avoid import cycles.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// NamedCheck pairs a dependency name with its check
type NamedCheck struct {
	Name  string
	Check HealthCheckFunc
}

// Readiness runs a fixed set of dependency checks
type Readiness struct {
	checks  []NamedCheck
	timeout time.Duration
}

// NewReadiness creates a readiness evaluator. Nil checks are skipped.
func NewReadiness(timeout time.Duration, checks ...NamedCheck) *Readiness {
	filtered := make([]NamedCheck, 0, len(checks))
	for _, c := range checks {
		if c.Check != nil {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Readiness{checks: filtered, timeout: timeout}
}

// Evaluate runs every check and reports overall readiness
func (r *Readiness) Evaluate(ctx context.Context) (bool, map[string]DependencyStatus) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dependencies := make(map[string]DependencyStatus, len(r.checks))
	allHealthy := true

	for _, c := range r.checks {
		start := time.Now()
		healthy, err := c.Check(ctx)
		latency := time.Since(start).Milliseconds()

		status := "healthy"
		message := ""
		if err != nil || !healthy {
			status = "unhealthy"
			allHealthy = false
			if err != nil {
				message = err.Error()
			}
		}

		dependencies[c.Name] = DependencyStatus{
			Status:    status,
			Message:   message,
			LatencyMs: latency,
		}
	}

	return allHealthy, dependencies
}

// HealthCheckHandler handles liveness requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   serviceVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		writeJSON(w, http.StatusOK, status)
	}
}

// ReadinessHandler handles readiness check requests
func ReadinessHandler(readiness *Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, dependencies := readiness.Evaluate(r.Context())

		status := HealthStatus{
			Status:       "ready",
			Service:      serviceName,
			Version:      serviceVersion,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		code := http.StatusOK
		if !ready {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
