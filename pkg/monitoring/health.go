package monitoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/NERVsystems/velomcp/pkg/version"
)

// State is the last observed condition of a dependency
type State string

const (
	StateUnknown   State = "unknown"
	StateConnected State = "connected"
	StateDegraded  State = "degraded"
	StateError     State = "error"
)

// Status summarizes the service
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Dependency is what the checker knows about one dependency
type Dependency struct {
	State     State     `json:"state"`
	Required  bool      `json:"required,omitempty"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Failures  int       `json:"consecutive_failures,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Health is the document served on /health
type Health struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        Status                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	Dependencies  map[string]Dependency `json:"dependencies"`
	Goroutines    int                   `json:"goroutines"`
}

// HealthChecker tracks dependencies and derives the service status. A
// required dependency in error makes the service unhealthy on its own;
// otherwise it takes more than half of the dependencies in error.
type HealthChecker struct {
	service   string
	version   string
	startTime time.Time

	mu   sync.RWMutex
	deps map[string]Dependency
}

// NewHealthChecker creates a checker and publishes the build info gauge
func NewHealthChecker(service, buildVersion string) *HealthChecker {
	info := version.Info()
	SystemInfo.WithLabelValues(info["version"], info["go_version"], info["commit"], info["build_date"]).Set(1)

	return &HealthChecker{
		service:   service,
		version:   buildVersion,
		startTime: time.Now(),
		deps:      make(map[string]Dependency),
	}
}

// Require declares a dependency the service cannot work without. It stays
// unknown, and the service unready, until its first check.
func (h *HealthChecker) Require(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.deps[name]
	if !ok {
		d.State = StateUnknown
	}
	d.Required = true
	h.deps[name] = d
}

// UpdateConnection records the outcome of one check
func (h *HealthChecker) UpdateConnection(name string, state State, latencyMs int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.deps[name]
	d := Dependency{
		State:     state,
		Required:  prev.Required,
		LatencyMs: latencyMs,
		CheckedAt: time.Now(),
	}
	if err != nil {
		d.LastError = err.Error()
	}
	if state == StateError {
		d.Failures = prev.Failures + 1
	}
	h.deps[name] = d
}

// Dependency returns the recorded state of name
func (h *HealthChecker) Dependency(name string) (Dependency, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.deps[name]
	return d, ok
}

// Status derives the service status from the dependencies
func (h *HealthChecker) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status()
}

func (h *HealthChecker) status() Status {
	errs, degraded := 0, 0
	for _, d := range h.deps {
		switch d.State {
		case StateError:
			if d.Required {
				return StatusUnhealthy
			}
			errs++
		case StateDegraded:
			degraded++
		}
	}
	switch {
	case errs > len(h.deps)/2:
		return StatusUnhealthy
	case errs > 0 || degraded > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Ready reports whether plans can be served, and which required
// dependencies have not been checked yet
func (h *HealthChecker) Ready() (bool, []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var waiting []string
	for name, d := range h.deps {
		if d.Required && d.State == StateUnknown {
			waiting = append(waiting, name)
		}
	}
	sort.Strings(waiting)
	return len(waiting) == 0 && h.status() != StatusUnhealthy, waiting
}

// GetHealth returns the full health document
func (h *HealthChecker) GetHealth() Health {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deps := make(map[string]Dependency, len(h.deps))
	for k, v := range h.deps {
		deps[k] = v
	}
	return Health{
		Service:       h.service,
		Version:       h.version,
		Status:        h.status(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Dependencies:  deps,
		Goroutines:    runtime.NumGoroutine(),
	}
}

// HealthHandler serves the health document, 503 when unhealthy
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// ReadinessHandler answers 503 until every required dependency has been
// checked and while the service is unhealthy
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, waiting := h.Ready()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"ready":   ready,
			"status":  h.Status(),
			"waiting": waiting,
		})
	}
}

// LivenessHandler answers while the process runs
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"alive":          true,
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		})
	}
}

// Mux returns a ServeMux exposing /health, /ready and /live
func (h *HealthChecker) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HealthHandler())
	mux.HandleFunc("/ready", h.ReadinessHandler())
	mux.HandleFunc("/live", h.LivenessHandler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// CheckFunc probes a dependency
type CheckFunc func(ctx context.Context) error

// ConnectionMonitor probes one required dependency on an interval and
// feeds the result to a HealthChecker. A probe slower than half its
// timeout counts as degraded.
type ConnectionMonitor struct {
	name     string
	checker  *HealthChecker
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	last   State
}

// NewConnectionMonitor creates a monitor and declares name as required
func NewConnectionMonitor(name string, hc *HealthChecker, check CheckFunc, interval, timeout time.Duration, logger *slog.Logger) *ConnectionMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	hc.Require(name)
	return &ConnectionMonitor{
		name:     name,
		checker:  hc,
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "monitor", "target", name),
		last:     StateUnknown,
	}
}

// Start probes once right away, then on every interval until Stop
func (cm *ConnectionMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	cm.cancel = cancel
	cm.done = make(chan struct{})

	go func() {
		defer close(cm.done)
		cm.Probe(ctx)

		ticker := time.NewTicker(cm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cm.Probe(ctx)
			}
		}
	}()
}

// Stop ends the probe loop and waits for it
func (cm *ConnectionMonitor) Stop() {
	if cm.cancel == nil {
		return
	}
	cm.cancel()
	<-cm.done
}

// Probe runs one bounded check, records it and returns the new state
func (cm *ConnectionMonitor) Probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	start := time.Now()
	err := cm.check(ctx)
	latency := time.Since(start)

	state := StateConnected
	switch {
	case err != nil:
		state = StateError
		RecordError("monitor", cm.name)
	case latency > cm.timeout/2:
		state = StateDegraded
	}
	cm.checker.UpdateConnection(cm.name, state, latency.Milliseconds(), err)

	if state != cm.last {
		if state == StateError {
			cm.logger.Warn("dependency unreachable", "error", err, "latency_ms", latency.Milliseconds())
		} else {
			cm.logger.Info("dependency state changed", "from", cm.last, "to", state, "latency_ms", latency.Milliseconds())
		}
		cm.last = state
	}
	return state
}
