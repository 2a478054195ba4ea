package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	metrics := []prometheus.Collector{
		MCPRequestsTotal,
		MCPRequestDuration,
		EngineRequestsTotal,
		EngineRequestDuration,
		ProfileUploadsTotal,
		FetchOutcomes,
		ParseWarningsTotal,
		PlanCandidates,
		PlanSelected,
		RateLimitWaitTime,
		CacheHits,
		CacheMisses,
		CacheSize,
		ErrorsTotal,
		SystemInfo,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("Metric is nil")
		}
	}
}

func TestRecordMCPRequest(t *testing.T) {
	MCPRequestsTotal.Reset()

	RecordMCPRequest("plan_itineraries", 100*time.Millisecond, true)
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("plan_itineraries", "success")); got != 1 {
		t.Errorf("Expected 1 successful request, got %v", got)
	}

	RecordMCPRequest("plan_itineraries", 200*time.Millisecond, false)
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("plan_itineraries", "error")); got != 1 {
		t.Errorf("Expected 1 failed request, got %v", got)
	}
}

func TestRecordEngineRequest(t *testing.T) {
	EngineRequestsTotal.Reset()

	RecordEngineRequest("route", 500*time.Millisecond, true)
	RecordEngineRequest("route", 300*time.Millisecond, false)
	RecordEngineRequest("upload_profile", 50*time.Millisecond, true)

	if got := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("route", "success")); got != 1 {
		t.Errorf("Expected 1 successful route request, got %v", got)
	}
	if got := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("route", "error")); got != 1 {
		t.Errorf("Expected 1 failed route request, got %v", got)
	}
	if got := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("upload_profile", "success")); got != 1 {
		t.Errorf("Expected 1 upload request, got %v", got)
	}
}

func TestRecordProfileUploadAndFetchOutcome(t *testing.T) {
	ProfileUploadsTotal.Reset()
	FetchOutcomes.Reset()

	RecordProfileUpload("safe", true)
	RecordFetchOutcome("retried")
	RecordFetchOutcome("retried")

	if got := testutil.ToFloat64(ProfileUploadsTotal.WithLabelValues("safe", "success")); got != 1 {
		t.Errorf("Expected 1 upload, got %v", got)
	}
	if got := testutil.ToFloat64(FetchOutcomes.WithLabelValues("retried")); got != 2 {
		t.Errorf("Expected 2 retried fetches, got %v", got)
	}
}

func TestRecordParseWarning(t *testing.T) {
	ParseWarningsTotal.Reset()

	RecordParseWarning("unmatched_messages")
	if got := testutil.ToFloat64(ParseWarningsTotal.WithLabelValues("unmatched_messages")); got != 1 {
		t.Errorf("Expected 1 warning, got %v", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	CacheHits.Reset()
	CacheMisses.Reset()
	CacheSize.Reset()

	RecordCacheHit("test_cache")
	if got := testutil.ToFloat64(CacheHits.WithLabelValues("test_cache")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}

	RecordCacheMiss("test_cache")
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("test_cache")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}

	UpdateCacheSize("test_cache", 42)
	if got := testutil.ToFloat64(CacheSize.WithLabelValues("test_cache")); got != 42 {
		t.Errorf("Expected cache size 42, got %v", got)
	}
}

func TestErrorMetrics(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("planner", "no_itinerary")
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("planner", "no_itinerary")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func TestRecordPlanDoesNotPanic(t *testing.T) {
	RecordPlan(9, 3)
	RecordRateLimitWait("brouter", time.Second)
}

func BenchmarkRecordMCPRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordMCPRequest("benchmark_tool", 100*time.Millisecond, true)
	}
}

func BenchmarkRecordEngineRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordEngineRequest("route", 100*time.Millisecond, true)
	}
}
