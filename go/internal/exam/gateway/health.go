package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Probe checks one dependency of the gateway.
type Probe func(ctx context.Context) error

// HealthStatus is the readiness report of the gateway.
type HealthStatus struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
	Engine     map[string]any    `json:"engine,omitempty"`
	Errors     []string          `json:"errors"`
}

// HealthChecker runs the registered probes for the readiness endpoint.
type HealthChecker struct {
	mu      sync.RWMutex
	names   []string
	probes  map[string]Probe
	stats   StatsProvider
	timeout time.Duration
}

// NewHealthChecker creates a checker reporting the engine's stats
// alongside its probes.
func NewHealthChecker(stats StatsProvider) *HealthChecker {
	return &HealthChecker{
		probes:  make(map[string]Probe),
		stats:   stats,
		timeout: 5 * time.Second,
	}
}

// Register adds or replaces a probe.
func (h *HealthChecker) Register(name string, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.probes[name]; !exists {
		h.names = append(h.names, name)
	}
	h.probes[name] = probe
}

// Check runs every probe in registration order.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := append([]string(nil), h.names...)
	probes := make([]Probe, len(names))
	for i, name := range names {
		probes[i] = h.probes[name]
	}
	h.mu.RUnlock()

	status := HealthStatus{
		Healthy:    true,
		Components: make(map[string]string, len(names)),
		Errors:     []string{},
	}
	for i, name := range names {
		if err := probes[i](ctx); err != nil {
			status.Healthy = false
			status.Components[name] = "down"
			status.Errors = append(status.Errors, name+": "+err.Error())
			continue
		}
		status.Components[name] = "ok"
	}
	if h.stats != nil {
		status.Engine = h.stats.Stats()
	}
	return status
}

// ServeHTTP answers 200 when every probe passes and 503 otherwise.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	if !status.Healthy {
		log.Warn().Strs("errors", status.Errors).Msg("readiness check failed")
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
