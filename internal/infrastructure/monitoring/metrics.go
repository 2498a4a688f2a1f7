package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Task metrics
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec

	// Pool metrics
	PoolSessions     *prometheus.GaugeVec
	PoolWaiters      prometheus.Gauge
	AcquiresTotal    *prometheus.CounterVec
	AcquireWait      prometheus.Histogram
	SessionsCreated  prometheus.Counter
	SessionsRecycled *prometheus.CounterVec
	SessionCrashes   prometheus.Counter

	// Extraction metrics
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
	CacheEvents        *prometheus.CounterVec

	// Fetch metrics
	FetchRequests *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	TasksExecuted     int64
	TasksFailed       int64
	ActiveSessions    int64
	ActiveConnections int64
	TotalDuration     float64 // sum of all request durations
	RequestCount      int64   // count for averaging
}

// NewMetrics creates a new metrics collector on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a metrics collector on a caller-owned
// registry; tests use this to avoid duplicate registration panics.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Task metrics
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_tasks_total",
				Help: "Total number of browser tasks by outcome",
			},
			[]string{"outcome"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_task_duration_seconds",
				Help:    "Browser task duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_steps_total",
				Help: "Total number of task steps by kind and status",
			},
			[]string{"kind", "status"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_step_duration_seconds",
				Help:    "Task step duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),

		// Pool metrics
		PoolSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "extractor_pool_sessions",
				Help: "Number of pooled browser sessions by state",
			},
			[]string{"state"},
		),
		PoolWaiters: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extractor_pool_waiters",
				Help: "Number of acquirers queued for a session",
			},
		),
		AcquiresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_pool_acquires_total",
				Help: "Total number of pool acquire attempts by result",
			},
			[]string{"result"},
		),
		AcquireWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "extractor_pool_acquire_wait_seconds",
				Help:    "Time spent waiting for a session lease",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extractor_sessions_created_total",
				Help: "Total number of browser sessions started",
			},
		),
		SessionsRecycled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_sessions_recycled_total",
				Help: "Total number of browser sessions recycled by reason",
			},
			[]string{"reason"},
		),
		SessionCrashes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extractor_session_crashes_total",
				Help: "Total number of browser process crashes detected",
			},
		),

		// Extraction metrics
		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_extractions_total",
				Help: "Total number of post extractions by platform and status",
			},
			[]string{"platform", "status"},
		),
		ExtractionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_extraction_duration_seconds",
				Help:    "Post extraction duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"platform"},
		),
		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_cache_events_total",
				Help: "Total number of result cache events",
			},
			[]string{"event"},
		),

		// Fetch metrics
		FetchRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_fetch_requests_total",
				Help: "Total number of static fetch requests by platform and status",
			},
			[]string{"platform", "status"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "extractor_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extractor_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extractor_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordTask records a completed task with its outcome
func (m *Metrics) RecordTask(outcome string, duration time.Duration) {
	m.TasksTotal.WithLabelValues(outcome).Inc()
	m.TaskDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TasksExecuted++
	if outcome != "success" {
		m.snapshot.TasksFailed++
	}
	m.mu.Unlock()
}

// RecordStep records a single executed step
func (m *Metrics) RecordStep(kind, status string, duration time.Duration) {
	m.StepsTotal.WithLabelValues(kind, status).Inc()
	m.StepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAcquire records a pool acquire attempt and its wait time
func (m *Metrics) RecordAcquire(result string, wait time.Duration) {
	m.AcquiresTotal.WithLabelValues(result).Inc()
	m.AcquireWait.Observe(wait.Seconds())
}

// RecordExtraction records a platform extraction
func (m *Metrics) RecordExtraction(platform, status string, duration time.Duration) {
	m.ExtractionsTotal.WithLabelValues(platform, status).Inc()
	m.ExtractionDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordCacheEvent records a cache hit, miss, or store
func (m *Metrics) RecordCacheEvent(event string) {
	m.CacheEvents.WithLabelValues(event).Inc()
}

// RecordFetch records a static fetch request
func (m *Metrics) RecordFetch(platform, status string) {
	m.FetchRequests.WithLabelValues(platform, status).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetPoolSessions sets the per-state session gauge
func (m *Metrics) SetPoolSessions(state string, count int) {
	m.PoolSessions.WithLabelValues(state).Set(float64(count))
}

// SetActiveSessions updates the snapshot's live session count
func (m *Metrics) SetActiveSessions(count int) {
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// SetPoolWaiters sets the waiter queue depth gauge
func (m *Metrics) SetPoolWaiters(count int) {
	m.PoolWaiters.Set(float64(count))
}

// IncSessionsCreated increments the sessions created counter
func (m *Metrics) IncSessionsCreated() {
	m.SessionsCreated.Inc()
}

// IncSessionsRecycled increments the recycled counter for a reason
func (m *Metrics) IncSessionsRecycled(reason string) {
	m.SessionsRecycled.WithLabelValues(reason).Inc()
}

// IncSessionCrashes increments the crash counter
func (m *Metrics) IncSessionCrashes() {
	m.SessionCrashes.Inc()
}

// SetBreakerState records a circuit breaker state change
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// GetSnapshot returns a copy of current snapshot values
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// GetUptimeSeconds returns seconds since the collector was created
func (m *Metrics) GetUptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
