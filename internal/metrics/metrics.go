package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Dispatch attempt outcomes
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeUnreachable = "unreachable"
	OutcomeSimulated   = "simulated"
)

// Metrics holds all Prometheus metrics for recupero
type Metrics struct {
	// Outbound workflow executions
	DispatchAttemptsTotal *prometheus.CounterVec
	DispatchRunsTotal     *prometheus.CounterVec
	RemindersTotal        *prometheus.CounterVec
	KapsoRequestSeconds   prometheus.Histogram

	// Inbound webhooks
	WebhooksTotal *prometheus.CounterVec

	// Daily cut
	CutsTotal    *prometheus.CounterVec
	CutRowsTotal prometheus.Counter

	// Pipeline state
	PersonsByState *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DispatchAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_dispatch_attempts_total",
				Help: "Initial-contact workflow executions by outcome",
			},
			[]string{"outcome"},
		),
		DispatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_dispatch_runs_total",
				Help: "Dispatch runs by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		RemindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_reminders_total",
				Help: "Reminder workflow executions by outcome",
			},
			[]string{"outcome"},
		),
		KapsoRequestSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recupero_kapso_request_duration_seconds",
				Help:    "Latency of workflow execution calls",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
		),

		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_webhooks_total",
				Help: "Inbound webhooks by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		CutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_cuts_total",
				Help: "Daily cut runs by result",
			},
			[]string{"result"},
		),
		CutRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recupero_cut_rows_total",
				Help: "Rows written to daily cut workbooks",
			},
		),

		PersonsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "recupero_persons",
				Help: "Persons by contact state across all campaigns",
			},
			[]string{"state"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recupero_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recupero_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recupero_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recupero_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recupero_storage_used_bytes",
				Help: "SQLite database file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.DispatchAttemptsTotal,
		m.DispatchRunsTotal,
		m.RemindersTotal,
		m.KapsoRequestSeconds,
		m.WebhooksTotal,
		m.CutsTotal,
		m.CutRowsTotal,
		m.PersonsByState,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncDispatchAttempt counts one initial-contact execution
func IncDispatchAttempt(outcome string) {
	if m := Global(); m != nil {
		m.DispatchAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncDispatchRun counts one dispatch run
func IncDispatchRun(trigger, result string) {
	if m := Global(); m != nil {
		m.DispatchRunsTotal.WithLabelValues(trigger, result).Inc()
	}
}

// IncReminder counts one reminder execution
func IncReminder(outcome string) {
	if m := Global(); m != nil {
		m.RemindersTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveKapsoRequest records the latency of one workflow execution call
func ObserveKapsoRequest(seconds float64) {
	if m := Global(); m != nil {
		m.KapsoRequestSeconds.Observe(seconds)
	}
}

// IncWebhook counts one inbound webhook
func IncWebhook(kind, outcome string) {
	if m := Global(); m != nil {
		m.WebhooksTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// IncCut counts one daily cut run and the rows it wrote
func IncCut(result string, rows int) {
	if m := Global(); m != nil {
		m.CutsTotal.WithLabelValues(result).Inc()
		m.CutRowsTotal.Add(float64(rows))
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	if m := Global(); m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
