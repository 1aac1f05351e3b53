// Package metrics exposes Prometheus metrics for the API.
//
// WHY A STRUCT AND NOT PACKAGE GLOBALS?
// Each Metrics owns its own registry. The server builds one at startup; tests
// build as many routers as they like without "duplicate metrics collector
// registration" panics. All record methods are safe on a nil *Metrics so
// services constructed without metrics (most unit tests) need no stub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "volunteer_hub"

// Membership kinds, used as the "resource" label.
const (
	ResourceEvent       = "event"
	ResourceTeam        = "team"
	ResourceHelpRequest = "help_request"
)

// Join outcomes, used as the "result" label.
const (
	ResultJoined        = "joined"
	ResultAlreadyJoined = "already_joined"
	ResultFull          = "full"
	ResultRejected      = "rejected"
	ResultError         = "error"
)

type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	MembershipJoins   *prometheus.CounterVec
	JoinCompensations *prometheus.CounterVec
	RateLimitedTotal  *prometheus.CounterVec
	UsersRegistered   *prometheus.CounterVec
}

// New creates a registry with the Go runtime and process collectors plus the
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),

		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		}),

		MembershipJoins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_joins_total",
			Help:      "Join attempts on events, teams and help requests by outcome",
		}, []string{"resource", "result"}),

		JoinCompensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_compensations_total",
			Help:      "Rollbacks of a half-applied cross-document write, by outcome",
		}, []string{"operation", "result"}),

		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"scope"}),

		UsersRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "New accounts by sign-up method",
		}, []string{"method"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) RecordJoin(resource, result string) {
	if m == nil {
		return
	}
	m.MembershipJoins.WithLabelValues(resource, result).Inc()
}

// RecordCompensation counts a rollback attempt; ok is false when the
// rollback itself failed and the data is left inconsistent.
func (m *Metrics) RecordCompensation(operation string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.JoinCompensations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordRegistration(method string) {
	if m == nil {
		return
	}
	m.UsersRegistered.WithLabelValues(method).Inc()
}
