// Package metrics exposes the service's Prometheus collectors on a private
// registry, plus a JSON summary endpoint for the dashboard.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission metrics.
	AdmissionDecisionsTotal *prometheus.CounterVec
	ReservationsTotal       prometheus.Counter
	ReleasesTotal           prometheus.Counter

	// Approval token metrics.
	TokenConsumptionsTotal *prometheus.CounterVec
	ReplayAttemptsTotal    prometheus.Counter

	// Rate limiting and auth.
	RateLimitRejectionsTotal prometheus.Counter
	AuthFailuresTotal        *prometheus.CounterVec

	// Queue metrics.
	QueueJobsTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpay_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentpay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		AdmissionDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpay_admission_decisions_total",
			Help: "Payment request admission decisions by outcome.",
		}, []string{"outcome"}),

		ReservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentpay_spend_reservations_total",
			Help: "Successful daily-spend reservations.",
		}),

		ReleasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentpay_spend_releases_total",
			Help: "Daily-spend reservation releases, including compensations.",
		}),

		TokenConsumptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpay_approval_token_consumptions_total",
			Help: "Approval token consumption attempts by observed state.",
		}, []string{"state"}),

		ReplayAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentpay_approval_replay_attempts_total",
			Help: "Approval link uses that found the token already consumed.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentpay_ratelimit_rejections_total",
			Help: "Requests rejected by the per-agent rate limiter.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpay_auth_failures_total",
			Help: "Authentication failures by credential type.",
		}, []string{"auth_type"}),

		QueueJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentpay_queue_jobs_total",
			Help: "Jobs enqueued by queue name.",
		}, []string{"queue"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentpay_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AdmissionDecisionsTotal,
		m.ReservationsTotal,
		m.ReleasesTotal,
		m.TokenConsumptionsTotal,
		m.ReplayAttemptsTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.QueueJobsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncAdmissionDecision increments the admission counter for the outcome
// (accepted, pending, rejected, idempotent_replay).
func (m *Metrics) IncAdmissionDecision(outcome string) {
	m.AdmissionDecisionsTotal.WithLabelValues(outcome).Inc()
}

// IncTokenConsumption increments the token consumption counter for the
// observed state (unused, used, missing).
func (m *Metrics) IncTokenConsumption(state string) {
	m.TokenConsumptionsTotal.WithLabelValues(state).Inc()
	if state == "used" {
		m.ReplayAttemptsTotal.Inc()
	}
}

// IncAuthFailure increments the auth failure counter for the credential type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncQueueJob increments the enqueued-jobs counter for a queue.
func (m *Metrics) IncQueueJob(queue string) {
	m.QueueJobsTotal.WithLabelValues(queue).Inc()
}
