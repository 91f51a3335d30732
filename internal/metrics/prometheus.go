package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice expense service
type Metrics struct {
	// Voice session metrics
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Capture upload metrics
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter

	// Playback metrics
	SegmentsScheduled prometheus.Counter
	SegmentsDropped   prometheus.Counter
	PlaybackBacklog   prometheus.Gauge

	// Tool call metrics
	ToolCalls        *prometheus.CounterVec
	ExpensesRecorded prometheus.Counter

	// Bulk extraction metrics
	ExtractRequests  prometheus.Counter
	ExtractSuccesses prometheus.Counter
	ExtractFailures  prometheus.Counter
	ExtractDuration  prometheus.Histogram
	ExtractRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Voice session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_voice_sessions_started_total",
			Help: "Total number of voice sessions started",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_voice_sessions_failed_total",
			Help: "Total number of voice sessions that ended with an error",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ves_voice_sessions_active",
			Help: "Current number of active voice sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ves_voice_session_duration_seconds",
			Help:    "Duration of voice sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Capture upload metrics
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_capture_frames_sent_total",
			Help: "Total number of capture frames sent upstream",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_capture_frames_dropped_total",
			Help: "Total number of capture frames dropped on send failure",
		}),

		// Playback metrics
		SegmentsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_playback_segments_scheduled_total",
			Help: "Total number of speech segments scheduled for playback",
		}),
		SegmentsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_playback_segments_dropped_total",
			Help: "Total number of inbound segments dropped due to decode errors",
		}),
		PlaybackBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ves_playback_backlog_segments",
			Help: "Current number of segments still playing",
		}),

		// Tool call metrics
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ves_tool_calls_total",
			Help: "Total number of tool calls received, by result",
		}, []string{"name", "result"}),
		ExpensesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_expenses_recorded_total",
			Help: "Total number of expenses appended to the ledger from tool calls",
		}),

		// Bulk extraction metrics
		ExtractRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_extract_requests_total",
			Help: "Total number of extraction requests sent",
		}),
		ExtractSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_extract_successes_total",
			Help: "Total number of successful extraction requests",
		}),
		ExtractFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_extract_failures_total",
			Help: "Total number of failed extraction requests",
		}),
		ExtractDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ves_extract_duration_seconds",
			Help:    "Duration of extraction requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		ExtractRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ves_extract_retries_total",
			Help: "Total number of extraction request retries",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ves_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ves_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ves_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnded decrements the active gauge and records the duration
func (m *Metrics) RecordSessionEnded(durationSeconds float64, failed bool) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if failed {
		m.SessionsFailed.Inc()
	}
}

// RecordFrameSent increments the capture frames sent counter
func (m *Metrics) RecordFrameSent() {
	m.FramesSent.Inc()
}

// RecordFrameDropped increments the capture frames dropped counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordSegmentScheduled records a playback segment and the current backlog
func (m *Metrics) RecordSegmentScheduled(backlog int) {
	m.SegmentsScheduled.Inc()
	m.PlaybackBacklog.Set(float64(backlog))
}

// RecordSegmentDropped increments the decode-drop counter
func (m *Metrics) RecordSegmentDropped() {
	m.SegmentsDropped.Inc()
}

// RecordToolCall records a tool call by function name and result
func (m *Metrics) RecordToolCall(name, result string) {
	m.ToolCalls.WithLabelValues(name, result).Inc()
}

// RecordExpenseRecorded increments the expenses recorded counter
func (m *Metrics) RecordExpenseRecorded() {
	m.ExpensesRecorded.Inc()
}

// RecordExtractRequest increments the extraction requests counter
func (m *Metrics) RecordExtractRequest() {
	m.ExtractRequests.Inc()
}

// RecordExtractSuccess records a successful extraction
func (m *Metrics) RecordExtractSuccess(durationSeconds float64) {
	m.ExtractSuccesses.Inc()
	m.ExtractDuration.Observe(durationSeconds)
}

// RecordExtractFailure records a failed extraction
func (m *Metrics) RecordExtractFailure(durationSeconds float64) {
	m.ExtractFailures.Inc()
	m.ExtractDuration.Observe(durationSeconds)
}

// RecordExtractRetry increments the retry counter
func (m *Metrics) RecordExtractRetry() {
	m.ExtractRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
