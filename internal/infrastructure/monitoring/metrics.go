package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every method is safe on a nil *Metrics, so
// components built without monitoring need no special casing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Service metrics
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec
	ServiceErrors   *prometheus.CounterVec

	// Page metrics
	PagesActive prometheus.Gauge
	PagesTotal  prometheus.Counter

	// Widget metrics
	WidgetsInitialized prometheus.Counter
	Renders            prometheus.Counter
	Outcomes           *prometheus.CounterVec
	ConsoleLines       *prometheus.CounterVec
	DebounceCoalesced  prometheus.Counter
	ScriptDuration     prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActivePages       int64   `json:"active_pages"`
	ActiveConnections int64   `json:"active_connections"`
	TotalRenders      int64   `json:"total_renders"`
	FailedLoads       int64   `json:"failed_loads"`
	TotalDuration     float64 `json:"-"` // sum of all request durations
	RequestCount      int64   `json:"-"` // count for averaging
}

// NewMetrics creates a metrics collector registered with reg. A nil reg uses the default
// registerer; tests pass a fresh prometheus.NewRegistry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		stop:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Service metrics
		ServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_service_calls_total",
				Help: "Total number of service calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_service_duration_seconds",
				Help:    "Service call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method"},
		),
		ServiceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_service_errors_total",
				Help: "Total number of service errors",
			},
			[]string{"service", "method", "error_type"},
		),

		// Page metrics
		PagesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_pages_active",
				Help: "Number of live host page sessions",
			},
		),
		PagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_pages_total",
				Help: "Total number of host page sessions created",
			},
		),

		// Widget metrics
		WidgetsInitialized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_widgets_initialized_total",
				Help: "Total number of widgets initialized",
			},
		),
		Renders: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_renders_total",
				Help: "Total number of isolated document renders",
			},
		),
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_load_outcomes_total",
				Help: "Isolated document loads by outcome",
			},
			[]string{"outcome"},
		),
		ConsoleLines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_console_lines_total",
				Help: "Console lines forwarded to widget panels",
			},
			[]string{"category"},
		),
		DebounceCoalesced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_debounce_coalesced_total",
				Help: "Edits folded into an already pending render",
			},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_script_duration_seconds",
				Help:    "Isolated document execution time in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime updates the uptime metric until Stop is called
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// Stop ends background updates.
func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordServiceCall records a service call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordServiceError records a service error
func (m *Metrics) RecordServiceError(service, method, errorType string) {
	if m == nil {
		return
	}
	m.ServiceErrors.WithLabelValues(service, method, errorType).Inc()
}

// SetPagesActive sets the number of live page sessions
func (m *Metrics) SetPagesActive(count int) {
	if m == nil {
		return
	}
	m.PagesActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActivePages = int64(count)
	m.mu.Unlock()
}

// IncPagesTotal increments the created pages counter
func (m *Metrics) IncPagesTotal() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncWidgetsInitialized counts a widget initialization
func (m *Metrics) IncWidgetsInitialized() {
	if m == nil {
		return
	}
	m.WidgetsInitialized.Inc()
}

// IncRenders counts an isolated document render
func (m *Metrics) IncRenders() {
	if m == nil {
		return
	}
	m.Renders.Inc()
	m.mu.Lock()
	m.snapshot.TotalRenders++
	m.mu.Unlock()
}

// RecordLoad records the outcome and execution time of an isolated document load
func (m *Metrics) RecordLoad(failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if failed {
		outcome = "failed"
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
	if failed {
		m.mu.Lock()
		m.snapshot.FailedLoads++
		m.mu.Unlock()
	}
}

// RecordConsoleLine counts a forwarded console line
func (m *Metrics) RecordConsoleLine(category string) {
	if m == nil {
		return
	}
	m.ConsoleLines.WithLabelValues(category).Inc()
}

// IncDebounceCoalesced counts an edit that restarted a pending render
func (m *Metrics) IncDebounceCoalesced() {
	if m == nil {
		return
	}
	m.DebounceCoalesced.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}
