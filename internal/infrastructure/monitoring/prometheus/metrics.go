package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every series BizAtlas exports.  All Record* methods are
// safe on a nil receiver so components can run without metrics wired.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Map Layer
	FilterRunsTotal       CounterVec
	FilterDuration        HistogramVec
	FilterResultSize      HistogramVec
	IndexBuildsTotal      CounterVec
	IndexBuildDuration    HistogramVec
	VisibleQueriesTotal   CounterVec
	VisibleQueryDuration  HistogramVec
	MarkersTruncatedTotal CounterVec
	ViewportEventsTotal   CounterVec
	ActiveSessions        GaugeVec
	SnapshotExportsTotal  CounterVec
	SnapshotVersion       GaugeVec

	// Agent / LLM Layer
	AgentRunsTotal     CounterVec
	AgentRunDuration   HistogramVec
	LLMRequestsTotal   CounterVec
	LLMRequestDuration HistogramVec

	// Infrastructure Layer
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessagesProcessedTotal CounterVec
	ErrorsTotal            CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultFilterDurationBuckets = []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25}
	DefaultLLMDurationBuckets    = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultResultSizeBuckets     = []float64{0, 10, 50, 100, 500, 1000, 5000, 10000, 50000}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests")

	// Map
	m.FilterRunsTotal = collector.RegisterCounter("filter_runs_total", "Filter evaluations by cache outcome", "result")
	m.FilterDuration = collector.RegisterHistogram("filter_duration_seconds", "Filter evaluation duration", DefaultFilterDurationBuckets)
	m.FilterResultSize = collector.RegisterHistogram("filter_result_size", "Entities surviving the filter", DefaultResultSizeBuckets)
	m.IndexBuildsTotal = collector.RegisterCounter("index_builds_total", "Spatial index builds")
	m.IndexBuildDuration = collector.RegisterHistogram("index_build_duration_seconds", "Spatial index build duration", DefaultFilterDurationBuckets)
	m.VisibleQueriesTotal = collector.RegisterCounter("visible_queries_total", "Visible-marker queries by outcome", "outcome")
	m.VisibleQueryDuration = collector.RegisterHistogram("visible_query_duration_seconds", "Visible-marker query duration", DefaultFilterDurationBuckets)
	m.MarkersTruncatedTotal = collector.RegisterCounter("markers_truncated_total", "Markers dropped by the visible-marker cap")
	m.ViewportEventsTotal = collector.RegisterCounter("viewport_events_total", "Viewport events by fate", "fate")
	m.ActiveSessions = collector.RegisterGauge("active_sessions", "Open map sessions")
	m.SnapshotExportsTotal = collector.RegisterCounter("snapshot_exports_total", "GeoJSON snapshot exports", "status")
	m.SnapshotVersion = collector.RegisterGauge("snapshot_version", "Last observed company snapshot version")

	// Agent / LLM
	m.AgentRunsTotal = collector.RegisterCounter("agent_runs_total", "Agent runs", "agent", "action", "status")
	m.AgentRunDuration = collector.RegisterHistogram("agent_run_duration_seconds", "Agent run duration", DefaultLLMDurationBuckets, "agent", "action")
	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "LLM gateway requests", "provider", "model", "status")
	m.LLMRequestDuration = collector.RegisterHistogram("llm_request_duration_seconds", "LLM gateway request duration", DefaultLLMDurationBuckets, "provider", "model")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessagesProcessedTotal = collector.RegisterCounter("messages_processed_total", "Kafka messages processed", "topic", "status")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// NewNoopAppMetrics returns AppMetrics whose series discard every sample.
func NewNoopAppMetrics() *AppMetrics {
	c, h, g := noopCounterVec{}, noopHistogramVec{}, noopGaugeVec{}
	return &AppMetrics{
		HTTPRequestsTotal: c, HTTPRequestDuration: h, HTTPActiveRequests: g,
		FilterRunsTotal: c, FilterDuration: h, FilterResultSize: h,
		IndexBuildsTotal: c, IndexBuildDuration: h,
		VisibleQueriesTotal: c, VisibleQueryDuration: h, MarkersTruncatedTotal: c,
		ViewportEventsTotal: c, ActiveSessions: g, SnapshotExportsTotal: c, SnapshotVersion: g,
		AgentRunsTotal: c, AgentRunDuration: h, LLMRequestsTotal: c, LLMRequestDuration: h,
		DBQueryDuration: h, CacheHitsTotal: c, CacheMissesTotal: c,
		MessagesProcessedTotal: c, ErrorsTotal: c,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordHTTPRequest records one completed request.
func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFilter records one filter evaluation.  result is "hit", "miss" or "error".
func (m *AppMetrics) RecordFilter(result string, duration time.Duration, size int) {
	if m == nil {
		return
	}
	m.FilterRunsTotal.WithLabelValues(result).Inc()
	if result == "error" {
		return
	}
	m.FilterDuration.WithLabelValues().Observe(duration.Seconds())
	m.FilterResultSize.WithLabelValues().Observe(float64(size))
}

// IndexBuildTimer counts one spatial index build and times it until
// ObserveDuration is called.
func (m *AppMetrics) IndexBuildTimer() *Timer {
	if m == nil {
		return NewTimer(nil)
	}
	m.IndexBuildsTotal.WithLabelValues().Inc()
	return NewTimer(m.IndexBuildDuration.WithLabelValues())
}

// RecordVisibleQuery records one visible query.  dropped is the number of
// items removed by the marker cap.
func (m *AppMetrics) RecordVisibleQuery(outcome string, duration time.Duration, dropped int) {
	if m == nil {
		return
	}
	m.VisibleQueriesTotal.WithLabelValues(outcome).Inc()
	m.VisibleQueryDuration.WithLabelValues().Observe(duration.Seconds())
	if dropped > 0 {
		m.MarkersTruncatedTotal.WithLabelValues().Add(float64(dropped))
	}
}

// RecordViewportEvent counts a viewport event by fate ("fired", "superseded").
func (m *AppMetrics) RecordViewportEvent(fate string) {
	if m == nil {
		return
	}
	m.ViewportEventsTotal.WithLabelValues(fate).Inc()
}

// SetActiveSessions publishes the open session count.
func (m *AppMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues().Set(float64(n))
}

// RecordSnapshotExport counts one GeoJSON export.
func (m *AppMetrics) RecordSnapshotExport(success bool) {
	if m == nil {
		return
	}
	m.SnapshotExportsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// SetSnapshotVersion publishes the last observed snapshot version.
func (m *AppMetrics) SetSnapshotVersion(v uint64) {
	if m == nil {
		return
	}
	m.SnapshotVersion.WithLabelValues().Set(float64(v))
}

// RecordAgentRun records one agent invocation.  status is "ok",
// "parse_error", "cached" or "failed".
func (m *AppMetrics) RecordAgentRun(agent, action, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AgentRunsTotal.WithLabelValues(agent, action, status).Inc()
	m.AgentRunDuration.WithLabelValues(agent, action).Observe(duration.Seconds())
}

// RecordLLMCall records one gateway round trip.
func (m *AppMetrics) RecordLLMCall(provider, model string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, model, statusLabel(success)).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordDBQuery records one database round trip.
func (m *AppMetrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues("postgres", "query_error").Inc()
	}
}

// RecordCacheAccess counts a hit or miss on the named cache.
func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordMessage counts one consumed Kafka message.
func (m *AppMetrics) RecordMessage(topic string, success bool) {
	if m == nil {
		return
	}
	m.MessagesProcessedTotal.WithLabelValues(topic, statusLabel(success)).Inc()
}

// RecordError counts an error by component and type.
func (m *AppMetrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

//Personal.AI order the ending
