// Package metrics provides Prometheus metrics for the courtside decision pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline
	gamesSubmitted      prometheus.Counter
	gamesDuplicate      prometheus.Counter
	analysisLatency     prometheus.Histogram
	simulationLatency   prometheus.Histogram
	recommendations     *prometheus.CounterVec
	lowConfidence       prometheus.Counter
	insufficientData    *prometheus.CounterVec
	decisionsRecorded   prometheus.Counter
	decisionsPublished  prometheus.Counter
	publishErrors       prometheus.Counter
	decisionsSettled    *prometheus.CounterVec
	settlementConflicts prometheus.Counter
	rulesActive         prometheus.Gauge
	rulesSynthesized    prometheus.Counter
	jobRuns             *prometheus.CounterVec
	storeLatency        *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "courtside",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.gamesSubmitted = m.counter("games_submitted_total", "Games accepted for analysis")
	m.gamesDuplicate = m.counter("games_duplicate_total", "Games dropped because they were already submitted")
	m.analysisLatency = m.histogram("analysis_latency_milliseconds", "End-to-end analysis latency per game")
	m.simulationLatency = m.histogram("simulation_latency_milliseconds", "Monte Carlo run latency")
	m.recommendations = m.counterVec("recommendations_total", "Decisions by recommendation category", "recommendation")
	m.lowConfidence = m.counter("low_confidence_projections_total", "Projections built on too few games")
	m.insufficientData = m.counterVec("adjustment_insufficient_data_total", "Adjustments that degraded to zero", "adjustment")
	m.decisionsRecorded = m.counter("decisions_recorded_total", "Decisions written to the store")
	m.decisionsPublished = m.counter("decisions_published_total", "Decisions published downstream")
	m.publishErrors = m.counter("publish_errors_total", "Decision publish failures")
	m.decisionsSettled = m.counterVec("decisions_settled_total", "Settled decisions by outcome", "outcome")
	m.settlementConflicts = m.counter("settlement_conflicts_total", "Rejected attempts to settle a terminal decision")
	m.rulesActive = m.gauge("learning_rules_active", "Active learning rules")
	m.rulesSynthesized = m.counter("learning_rules_changed_total", "Learning rules created, updated or deactivated")
	m.jobRuns = m.counterVec("job_runs_total", "Scheduled job runs", "job", "status")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency", "op")

	m.queueSize = m.gauge("queue_size", "Games waiting in the analysis queue")
	m.queueCapacity = m.gauge("queue_capacity", "Analysis queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size over capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Games enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Games dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueues")

	m.workerActiveCount = m.gauge("worker_active_count", "Analysis workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-game worker latency")
	m.workerErrors = m.counter("worker_errors_total", "Worker failures")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Goroutines")
}

// RecordGameSubmitted counts a game accepted for analysis.
func RecordGameSubmitted() { globalManager.gamesSubmitted.Inc() }

// RecordGameDuplicate counts a game rejected by the dedupe guard.
func RecordGameDuplicate() { globalManager.gamesDuplicate.Inc() }

// RecordAnalysisLatency records per-game analysis latency in milliseconds.
func RecordAnalysisLatency(ms float64) { globalManager.analysisLatency.Observe(ms) }

// RecordSimulationLatency records a Monte Carlo run in milliseconds.
func RecordSimulationLatency(ms float64) { globalManager.simulationLatency.Observe(ms) }

// RecordRecommendation counts a decision by its category.
func RecordRecommendation(recommendation string) {
	globalManager.recommendations.WithLabelValues(recommendation).Inc()
}

// RecordLowConfidence counts a low-confidence projection.
func RecordLowConfidence() { globalManager.lowConfidence.Inc() }

// RecordInsufficientData counts an adjustment that degraded to zero.
func RecordInsufficientData(adjustment string) {
	globalManager.insufficientData.WithLabelValues(adjustment).Inc()
}

// RecordDecisionRecorded counts a persisted decision.
func RecordDecisionRecorded() { globalManager.decisionsRecorded.Inc() }

// RecordDecisionPublished counts a published decision.
func RecordDecisionPublished() { globalManager.decisionsPublished.Inc() }

// RecordPublishError counts a failed publish.
func RecordPublishError() { globalManager.publishErrors.Inc() }

// RecordDecisionSettled counts a settlement by outcome.
func RecordDecisionSettled(outcome string) {
	globalManager.decisionsSettled.WithLabelValues(outcome).Inc()
}

// RecordSettlementConflict counts a rejected double settlement.
func RecordSettlementConflict() { globalManager.settlementConflicts.Inc() }

// UpdateRulesActive sets the active rule gauge.
func UpdateRulesActive(n int) { globalManager.rulesActive.Set(float64(n)) }

// RecordRuleChange counts a created, updated or deactivated rule.
func RecordRuleChange() { globalManager.rulesSynthesized.Inc() }

// RecordJobRun counts a scheduled job run with its status ("ok" or "error").
func RecordJobRun(job, status string) { globalManager.jobRuns.WithLabelValues(job, status).Inc() }

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(ms)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(u float64) { globalManager.queueUtilization.Set(u) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeue.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker latency in milliseconds.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerProcessingLatency.Observe(ms) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
