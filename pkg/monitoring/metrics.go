package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Service name for metrics
	ServiceName = "velomcp"
)

var (
	// MCP request metrics
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_mcp_requests_total",
			Help: "Total number of MCP requests processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velomcp_mcp_request_duration_seconds",
			Help:    "MCP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"tool"},
	)

	// Routing engine metrics
	EngineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_engine_requests_total",
			Help: "Total number of routing engine requests",
		},
		[]string{"operation", "status"},
	)

	EngineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velomcp_engine_request_duration_seconds",
			Help:    "Routing engine request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
		},
		[]string{"operation"},
	)

	ProfileUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_profile_uploads_total",
			Help: "Total number of profile uploads to the routing engine",
		},
		[]string{"profile", "status"},
	)

	FetchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_fetch_outcomes_total",
			Help: "Route fetches by final state",
		},
		[]string{"outcome"},
	)

	ParseWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_parse_warnings_total",
			Help: "Data-consistency warnings raised while parsing engine responses",
		},
		[]string{"kind"},
	)

	// Planning metrics
	PlanCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "velomcp_plan_candidates",
			Help:    "Itineraries collected per plan before selection",
			Buckets: prometheus.LinearBuckets(0, 2, 10),
		},
	)

	PlanSelected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "velomcp_plan_selected",
			Help:    "Itineraries kept per plan after selection",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		},
	)

	// Rate limiting metrics
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velomcp_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomcp_cache_size",
			Help: "Current number of items in cache",
		},
		[]string{"cache_type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomcp_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomcp_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	MCPRequestsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordEngineRequest(operation string, duration time.Duration, success bool) {
	EngineRequestsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	EngineRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordProfileUpload(profile string, success bool) {
	ProfileUploadsTotal.WithLabelValues(profile, statusLabel(success)).Inc()
}

func RecordFetchOutcome(outcome string) {
	FetchOutcomes.WithLabelValues(outcome).Inc()
}

func RecordParseWarning(kind string) {
	ParseWarningsTotal.WithLabelValues(kind).Inc()
}

// RecordPlan observes the candidate and selected counts of one plan
func RecordPlan(candidates, selected int) {
	PlanCandidates.Observe(float64(candidates))
	PlanSelected.Observe(float64(selected))
}

func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

func UpdateCacheSize(cacheType string, size int) {
	CacheSize.WithLabelValues(cacheType).Set(float64(size))
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
