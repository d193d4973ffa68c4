package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const namespace = "ticket_sla"

// Notification outcomes.
const (
	OutcomeSent       = "sent"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
)

// Metrics holds the Prometheus collectors of one process, registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	healthUpdates   *prometheus.CounterVec
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by error code.",
		}, []string{"route", "method", "code"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_job_runs_total",
			Help:      "SLA monitor job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_job_duration_seconds",
			Help:      "SLA monitor job run duration.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications by type, channel and outcome.",
		}, []string{"type", "channel", "outcome"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation attempts by whether the entry changed.",
		}, []string{"changed"}),
		healthUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_health_updates_total",
			Help:      "Conversation health evaluations by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(route, method, code).Inc()
}

// RecordJobRun records one finished monitor run.
func (m *Metrics) RecordJobRun(job, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordNotification counts one notification decision.
func (m *Metrics) RecordNotification(kind, channel, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, channel, outcome).Inc()
}

// RecordEscalation counts one escalate call.
func (m *Metrics) RecordEscalation(changed bool) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

// RecordHealthUpdate counts one conversation health evaluation.
func (m *Metrics) RecordHealthUpdate(outcome string) {
	if m == nil {
		return
	}
	m.healthUpdates.WithLabelValues(outcome).Inc()
}

// NotificationCount reads back a notification counter.
func (m *Metrics) NotificationCount(kind, channel, outcome string) float64 {
	return counterValue(m, func() prometheus.Counter { return m.notifications.WithLabelValues(kind, channel, outcome) })
}

// EscalationCount reads back the escalation counter.
func (m *Metrics) EscalationCount(changed bool) float64 {
	return counterValue(m, func() prometheus.Counter { return m.escalations.WithLabelValues(strconv.FormatBool(changed)) })
}

func counterValue(m *Metrics, counter func() prometheus.Counter) float64 {
	if m == nil {
		return 0
	}
	return testutil.ToFloat64(counter())
}
