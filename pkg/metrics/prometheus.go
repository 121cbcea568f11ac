// Package metrics provides Prometheus metrics for the proctord integrity engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsStarted    prometheus.Counter
	sessionsStopped    prometheus.Counter
	sessionsTerminated prometheus.Counter
	sessionStartErrors *prometheus.CounterVec
	sessionsActive     prometheus.Gauge

	// Alerts and scoring
	alertsRaised     *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	violationPoints  prometheus.Counter

	// Frame analysis
	analysisLatency prometheus.Histogram
	analyzerErrors  prometheus.Counter
	framesSkipped   *prometheus.CounterVec
	analysisDropped prometheus.Counter

	// Event sink
	sinkEnqueued  prometheus.Counter
	sinkDropped   *prometheus.CounterVec
	sinkDelivered prometheus.Counter
	sinkFailed    prometheus.Counter
	sinkQueueSize prometheus.Gauge
	sinkLatency   prometheus.Histogram
	sinkWorkers   prometheus.Gauge

	// Record store
	recordsSaved      prometheus.Counter
	recordSaveErrors  prometheus.Counter
	recordSaveLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "proctor",
		subsystem:        "integrity",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// Collectors stay usable but nothing exports them.
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sessionsStarted = auto.NewCounter(m.counterOpts("sessions_started_total", "Total number of proctoring sessions that reached Active"))
	m.sessionsStopped = auto.NewCounter(m.counterOpts("sessions_stopped_total", "Total number of proctoring sessions torn down"))
	m.sessionsTerminated = auto.NewCounter(m.counterOpts("sessions_terminated_total", "Total number of sessions terminated for malpractice"))
	m.sessionStartErrors = auto.NewCounterVec(m.counterOpts("session_start_errors_total", "Session start failures by reason"), []string{"reason"})
	m.sessionsActive = auto.NewGauge(m.gaugeOpts("sessions_active", "Number of sessions currently Active"))

	m.alertsRaised = auto.NewCounterVec(m.counterOpts("alerts_raised_total", "Alerts raised by kind, including ledger-suppressed repeats"), []string{"kind"})
	m.alertsSuppressed = auto.NewCounterVec(m.counterOpts("alerts_suppressed_total", "Alerts suppressed from the ledger by consecutive-kind deduplication"), []string{"kind"})
	m.violationPoints = auto.NewCounter(m.counterOpts("violation_points_total", "Violation points accumulated across all sessions"))

	m.analysisLatency = auto.NewHistogram(m.histogramOpts("analysis_latency_milliseconds", "Latency of external frame analysis calls in milliseconds"))
	m.analyzerErrors = auto.NewCounter(m.counterOpts("analyzer_errors_total", "Frame analysis calls that failed"))
	m.framesSkipped = auto.NewCounterVec(m.counterOpts("frames_skipped_total", "Analysis ticks skipped because no frame was captured"), []string{"reason"})
	m.analysisDropped = auto.NewCounter(m.counterOpts("analysis_results_discarded_total", "Analysis results discarded because their session epoch was superseded"))

	m.sinkEnqueued = auto.NewCounter(m.counterOpts("sink_enqueued_total", "Events accepted by the event sink"))
	m.sinkDropped = auto.NewCounterVec(m.counterOpts("sink_dropped_total", "Events dropped by the event sink before delivery"), []string{"reason"})
	m.sinkDelivered = auto.NewCounter(m.counterOpts("sink_delivered_total", "Events delivered to the remote attempt log"))
	m.sinkFailed = auto.NewCounter(m.counterOpts("sink_failed_total", "Event deliveries that failed (never retried)"))
	m.sinkQueueSize = auto.NewGauge(m.gaugeOpts("sink_queue_size", "Current number of events waiting for delivery"))
	m.sinkLatency = auto.NewHistogram(m.histogramOpts("sink_delivery_latency_milliseconds", "Event delivery latency in milliseconds"))
	m.sinkWorkers = auto.NewGauge(m.gaugeOpts("sink_workers", "Number of event delivery workers"))

	m.recordsSaved = auto.NewCounter(m.counterOpts("records_saved_total", "Final session records persisted"))
	m.recordSaveErrors = auto.NewCounter(m.counterOpts("record_save_errors_total", "Final session records that failed to persist"))
	m.recordSaveLatency = auto.NewHistogram(m.histogramOpts("record_save_latency_milliseconds", "Session record persistence latency in milliseconds"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// Session lifecycle.

// RecordSessionStarted counts a session reaching Active.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
	globalManager.sessionsActive.Inc()
}

// RecordSessionStopped counts a session teardown.
func RecordSessionStopped() {
	globalManager.sessionsStopped.Inc()
	globalManager.sessionsActive.Dec()
}

// RecordSessionTerminated counts a malpractice termination.
func RecordSessionTerminated() {
	globalManager.sessionsTerminated.Inc()
}

// RecordSessionStartError counts a failed start by reason.
func RecordSessionStartError(reason string) {
	globalManager.sessionStartErrors.WithLabelValues(reason).Inc()
}

// Alerts and scoring.

// RecordAlertRaised counts an alert of kind; stored=false means the ledger suppressed it.
func RecordAlertRaised(kind string, stored bool) {
	globalManager.alertsRaised.WithLabelValues(kind).Inc()
	if !stored {
		globalManager.alertsSuppressed.WithLabelValues(kind).Inc()
	}
}

// RecordViolationPoint counts one violation point.
func RecordViolationPoint() {
	globalManager.violationPoints.Inc()
}

// Frame analysis.

// RecordAnalysisLatency records analyzer latency in milliseconds.
func RecordAnalysisLatency(latencyMs float64) {
	globalManager.analysisLatency.Observe(latencyMs)
}

// RecordAnalyzerError counts a failed analysis.
func RecordAnalyzerError() {
	globalManager.analyzerErrors.Inc()
	globalManager.errorRateByComponent.WithLabelValues("analysis", "analyzer_error").Inc()
}

// RecordFrameSkipped counts a tick that produced no frame.
func RecordFrameSkipped(reason string) {
	globalManager.framesSkipped.WithLabelValues(reason).Inc()
}

// RecordAnalysisDiscarded counts a stale analysis result.
func RecordAnalysisDiscarded() {
	globalManager.analysisDropped.Inc()
}

// Event sink.

// RecordSinkEnqueued counts an accepted sink event.
func RecordSinkEnqueued() {
	globalManager.sinkEnqueued.Inc()
}

// RecordSinkDropped counts a sink event dropped before delivery.
func RecordSinkDropped(reason string) {
	globalManager.sinkDropped.WithLabelValues(reason).Inc()
	globalManager.errorRateByComponent.WithLabelValues("sink", reason).Inc()
}

// RecordSinkDelivered counts a delivered event and its latency.
func RecordSinkDelivered(latencyMs float64) {
	globalManager.sinkDelivered.Inc()
	globalManager.sinkLatency.Observe(latencyMs)
}

// RecordSinkFailed counts a failed delivery.
func RecordSinkFailed() {
	globalManager.sinkFailed.Inc()
	globalManager.errorRateByComponent.WithLabelValues("sink", "delivery_failed").Inc()
}

// UpdateSinkQueueSize sets the sink backlog gauge.
func UpdateSinkQueueSize(size int) {
	globalManager.sinkQueueSize.Set(float64(size))
}

// UpdateSinkWorkers sets the number of delivery workers.
func UpdateSinkWorkers(count int) {
	globalManager.sinkWorkers.Set(float64(count))
}

// Record store.

// RecordSessionSaved records a persisted session record and its latency.
func RecordSessionSaved(latencyMs float64) {
	globalManager.recordsSaved.Inc()
	globalManager.recordSaveLatency.Observe(latencyMs)
}

// RecordSessionSaveError counts a failed persistence attempt.
func RecordSessionSaveError() {
	globalManager.recordSaveErrors.Inc()
	globalManager.errorRateByComponent.WithLabelValues("repository", "save_failed").Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// Configure rebuilds the global manager from opts on a fresh registry and
// makes that registry the one GetRegistry returns. It must run before the
// /metrics handler is built and before anything records.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	opts = append(opts[:len(opts):len(opts)], WithPrometheusRegistry(registry))
	globalManager = NewManager(opts...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval returns how often gauge snapshots should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// Enabled reports whether periodic gauge refreshes should run.
func Enabled() bool {
	return globalManager.enabled
}
