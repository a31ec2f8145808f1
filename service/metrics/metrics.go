package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Stacks node API metrics
	stacksAPICallsTotal   *prometheus.CounterVec
	stacksAPICallDuration *prometheus.HistogramVec

	// Tip feed metrics
	tipsFetchedTotal *prometheus.CounterVec
	tipsDroppedTotal *prometheus.CounterVec

	// Poll cycle metrics
	pollCyclesTotal   *prometheus.CounterVec
	pollCycleDuration *prometheus.HistogramVec

	// Transaction submission metrics
	txSubmissionsTotal *prometheus.CounterVec

	// Wallet session metrics
	walletConnectsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		stacksAPICallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacks_api_calls_total",
				Help: "Total number of Stacks node API calls by contract function and status",
			},
			[]string{"function", "status"},
		),
		stacksAPICallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stacks_api_call_duration_seconds",
				Help:    "Duration of Stacks node API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"function"},
		),

		tipsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tips_fetched_total",
				Help: "Total number of tip records fetched from the contract",
			},
			[]string{"source"},
		),
		tipsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tips_dropped_total",
				Help: "Total number of tip ids dropped from the feed (absent or failed lookups)",
			},
			[]string{"reason"},
		),

		pollCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_cycles_total",
				Help: "Total number of repository poll cycles",
			},
			[]string{"status"},
		),
		pollCycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poll_cycle_duration_seconds",
				Help:    "Duration of repository poll cycles in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),

		txSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tx_submissions_total",
				Help: "Total number of contract-call submissions by kind and status",
			},
			[]string{"kind", "status"},
		),

		walletConnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_connects_total",
				Help: "Total number of wallet connect attempts by outcome",
			},
			[]string{"status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Stacks node API metric helpers

// RecordAPICall records a read-only contract call with duration.
func (m *Metrics) RecordAPICall(function, status string, duration float64) {
	m.stacksAPICallsTotal.WithLabelValues(function, status).Inc()
	m.stacksAPICallDuration.WithLabelValues(function).Observe(duration)
}

// Tip feed metric helpers

// RecordTipsFetched records tip records fetched from the contract.
func (m *Metrics) RecordTipsFetched(source string, count int) {
	m.tipsFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordTipsDropped records tip ids dropped from the feed.
func (m *Metrics) RecordTipsDropped(reason string, count int) {
	m.tipsDroppedTotal.WithLabelValues(reason).Add(float64(count))
}

// Poll cycle metric helpers

// RecordPollCycle records a completed repository poll cycle.
func (m *Metrics) RecordPollCycle(status string, duration float64) {
	m.pollCyclesTotal.WithLabelValues(status).Inc()
	m.pollCycleDuration.WithLabelValues(status).Observe(duration)
}

// Transaction submission metric helpers

// RecordTxSubmission records a contract-call submission attempt.
func (m *Metrics) RecordTxSubmission(kind, status string) {
	m.txSubmissionsTotal.WithLabelValues(kind, status).Inc()
}

// Wallet session metric helpers

// RecordWalletConnect records a wallet connect attempt.
func (m *Metrics) RecordWalletConnect(status string) {
	m.walletConnectsTotal.WithLabelValues(status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
